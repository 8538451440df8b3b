package kubernetes

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

const (
	// ManagedByLabel marks ConfigMaps and GameModes written by liveconfig.
	ManagedByLabel = "app.kubernetes.io/managed-by"
	ManagedByValue = "liveconfig"
)

// ConfigMapPublisher writes a folder of configs into a ConfigMap.
type ConfigMapPublisher struct {
	clientset kubernetes.Interface
	logger    *zap.SugaredLogger

	// Annotations are merged into the ConfigMap on every publish.
	Annotations map[string]string
}

// NewConfigMapPublisher creates a ConfigMapPublisher.
func NewConfigMapPublisher(clientset kubernetes.Interface, logger *zap.SugaredLogger) *ConfigMapPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ConfigMapPublisher{
		clientset: clientset,
		logger:    logger.Named("publisher"),
	}
}

// Publish creates or updates the ConfigMap namespace/name so that its data is exactly data.
// It reports whether the ConfigMap was created.
func (p *ConfigMapPublisher) Publish(ctx context.Context, namespace, name string, data map[string]string, labels map[string]string) (bool, error) {
	configMap := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   namespace,
			Labels:      mergeStrings(map[string]string{ManagedByLabel: ManagedByValue}, labels),
			Annotations: mergeStrings(nil, p.Annotations),
		},
		Data: data,
	}

	configMaps := p.clientset.CoreV1().ConfigMaps(namespace)
	existing, err := configMaps.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			if _, err := configMaps.Create(ctx, configMap, metav1.CreateOptions{}); err != nil {
				return false, fmt.Errorf("failed to create configmap: %w", err)
			}
			p.logger.Infow("Created ConfigMap", "namespace", namespace, "name", name, "configs", len(data))
			return true, nil
		}
		return false, fmt.Errorf("failed to get configmap: %w", err)
	}

	existing.Data = data
	existing.Labels = mergeStrings(existing.Labels, configMap.Labels)
	existing.Annotations = mergeStrings(existing.Annotations, configMap.Annotations)
	if _, err := configMaps.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return false, fmt.Errorf("failed to update configmap: %w", err)
	}
	p.logger.Infow("Updated ConfigMap", "namespace", namespace, "name", name, "configs", len(data))
	return false, nil
}

// ReadConfigFolder reads the config files of a folder as ConfigMap data keyed by file name.
// A folder without config files is an error.
func ReadConfigFolder(path string) (map[string]string, error) {
	data, err := watcher.ReadFolder(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no config files found in %s", path)
	}
	return data, nil
}

// ResourceName turns a config file name into a valid Kubernetes object name.
func ResourceName(fileName string) string {
	name := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}

func mergeStrings(dst, src map[string]string) map[string]string {
	if dst == nil && len(src) == 0 {
		return nil
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
