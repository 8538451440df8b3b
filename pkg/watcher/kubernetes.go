package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// KubernetesWatcher watches the data keys of a single ConfigMap. Every key is one config file.
type KubernetesWatcher struct {
	clientset kubernetes.Interface
	namespace string
	name      string

	opts     *options
	logger   *zap.SugaredLogger
	snapshot *snapshot

	mu        sync.Mutex
	factory   informers.SharedInformerFactory
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewKubernetesWatcher creates a watcher for the ConfigMap namespace/name.
func NewKubernetesWatcher(clientset kubernetes.Interface, namespace, name string, consumer Consumer, opts ...Option) *KubernetesWatcher {
	o := newOptions("configmap", opts)
	return &KubernetesWatcher{
		clientset: clientset,
		namespace: namespace,
		name:      name,
		opts:      o,
		logger:    o.logger.Named("watcher").With("namespace", namespace, "name", name),
		snapshot:  newSnapshot(consumer, o.metrics),
		stopCh:    make(chan struct{}),
	}
}

// Start implements Watcher.
func (w *KubernetesWatcher) Start(ctx context.Context) error {
	factory := informers.NewSharedInformerFactoryWithOptions(
		w.clientset,
		w.opts.resyncPeriod,
		informers.WithNamespace(w.namespace),
		informers.WithTweakListOptions(func(options *metav1.ListOptions) {
			options.FieldSelector = fields.OneTermEqualSelector("metadata.name", w.name).String()
		}),
	)
	informer := factory.Core().V1().ConfigMaps().Informer()

	registration, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    w.onAdd,
		UpdateFunc: w.onUpdate,
		DeleteFunc: w.onDelete,
	})
	if err != nil {
		return fmt.Errorf("failed to register ConfigMap event handler: %w", err)
	}

	w.mu.Lock()
	w.factory = factory
	w.mu.Unlock()

	w.logger.Infow("Starting ConfigMap informer")
	start := time.Now()
	factory.Start(w.stopCh)

	syncCtx, cancel := context.WithTimeout(ctx, w.opts.syncTimeout)
	defer cancel()

	switch {
	case cache.WaitForCacheSync(syncCtx.Done(), registration.HasSynced):
		w.opts.metrics.RecordInitialLoad(time.Since(start))
		w.logger.Infow("Got initial ConfigMap", "configs", w.snapshot.len())
	case w.opts.syncInBackground && ctx.Err() == nil:
		w.logger.Warnw("Timed out getting initial ConfigMap, continuing in the background", "timeout", w.opts.syncTimeout)
	default:
		w.logger.Errorw("Timed out getting initial ConfigMap", "timeout", w.opts.syncTimeout)
		_ = w.Close()
		return fmt.Errorf("%w: ConfigMap %s/%s", ErrInitialSyncTimeout, w.namespace, w.name)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-w.stopCh:
		}
	}()

	return nil
}

// Close implements Watcher.
func (w *KubernetesWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		factory := w.factory
		w.mu.Unlock()
		if factory != nil {
			factory.Shutdown()
		}
	})
	return nil
}

func (w *KubernetesWatcher) onAdd(obj interface{}) {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok || cm.Name != w.name {
		return
	}

	if w.snapshot.len() > 0 {
		w.logger.Warnw("ConfigMap created but should already exist?")
	}
	w.process(cm)
}

func (w *KubernetesWatcher) onUpdate(_, newObj interface{}) {
	cm, ok := newObj.(*corev1.ConfigMap)
	if !ok || cm.Name != w.name {
		return
	}

	w.logger.Debugw("ConfigMap updated", "resourceVersion", cm.ResourceVersion)
	w.process(cm)
}

func (w *KubernetesWatcher) onDelete(obj interface{}) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok || cm.Name != w.name {
		return
	}

	w.logger.Infow("ConfigMap deleted, removing its configs", "configs", w.snapshot.len())
	w.snapshot.clear()
}

func (w *KubernetesWatcher) process(cm *corev1.ConfigMap) {
	if cm.Data == nil {
		w.logger.Warnw("ConfigMap data is null")
		return
	}
	w.snapshot.sync(cm.Data)
}
