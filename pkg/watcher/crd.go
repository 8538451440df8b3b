package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/emortalmc/live-config-parser/pkg/apis/liveconfig/v1alpha1"
)

// CRDWatcher watches GameMode custom resources in a namespace. Every resource is one
// config file named <resource name>.json whose contents are the resource spec.
type CRDWatcher struct {
	client    dynamic.Interface
	namespace string

	opts     *options
	logger   *zap.SugaredLogger
	snapshot *snapshot

	mu        sync.Mutex
	factory   dynamicinformer.DynamicSharedInformerFactory
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewCRDWatcher creates a watcher for GameMode resources in namespace.
func NewCRDWatcher(client dynamic.Interface, namespace string, consumer Consumer, opts ...Option) *CRDWatcher {
	o := newOptions("crd", opts)
	return &CRDWatcher{
		client:    client,
		namespace: namespace,
		opts:      o,
		logger:    o.logger.Named("watcher").With("namespace", namespace, "resource", v1alpha1.GameModeGVR.Resource),
		snapshot:  newSnapshot(consumer, o.metrics),
		stopCh:    make(chan struct{}),
	}
}

// Start implements Watcher.
func (w *CRDWatcher) Start(ctx context.Context) error {
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(w.client, w.opts.resyncPeriod, w.namespace, nil)
	informer := factory.ForResource(v1alpha1.GameModeGVR).Informer()

	registration, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    w.onUpsert,
		UpdateFunc: func(_, newObj interface{}) { w.onUpsert(newObj) },
		DeleteFunc: w.onDelete,
	})
	if err != nil {
		return fmt.Errorf("failed to register GameMode event handler: %w", err)
	}

	w.mu.Lock()
	w.factory = factory
	w.mu.Unlock()

	w.logger.Infow("Starting GameMode informer")
	start := time.Now()
	factory.Start(w.stopCh)

	syncCtx, cancel := context.WithTimeout(ctx, w.opts.syncTimeout)
	defer cancel()

	switch {
	case cache.WaitForCacheSync(syncCtx.Done(), registration.HasSynced):
		w.opts.metrics.RecordInitialLoad(time.Since(start))
		w.logger.Infow("Got initial GameModes", "configs", w.snapshot.len())
	case w.opts.syncInBackground && ctx.Err() == nil:
		w.logger.Warnw("Timed out getting initial GameModes, continuing in the background", "timeout", w.opts.syncTimeout)
	default:
		w.logger.Errorw("Timed out getting initial GameModes", "timeout", w.opts.syncTimeout)
		_ = w.Close()
		return fmt.Errorf("%w: GameModes in %s", ErrInitialSyncTimeout, w.namespace)
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
func (w *CRDWatcher) Close() error {
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

func (w *CRDWatcher) onUpsert(obj interface{}) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}

	contents, err := specContents(u)
	if err != nil {
		w.logger.Warnw("Skipping GameMode", "gameMode", u.GetName(), "error", err)
		return
	}
	w.snapshot.upsert(crdFileName(u.GetName()), contents)
}

func (w *CRDWatcher) onDelete(obj interface{}) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}

	w.logger.Infow("GameMode deleted", "gameMode", u.GetName())
	w.snapshot.remove(crdFileName(u.GetName()))
}

// specContents renders the spec of a GameMode as a config document.
func specContents(u *unstructured.Unstructured) (string, error) {
	spec, found, err := unstructured.NestedMap(u.Object, "spec")
	if err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	if !found {
		return "", fmt.Errorf("spec not found")
	}
	if _, ok := spec["id"]; !ok {
		spec["id"] = u.GetName()
	}

	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to encode spec: %w", err)
	}
	return string(data), nil
}

func crdFileName(name string) string {
	return name + ".json"
}
