package kubernetes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"

	"github.com/emortalmc/live-config-parser/pkg/apis/liveconfig/v1alpha1"
)

// ErrResourceNameCollision is returned when two config files map to the same GameMode name.
var ErrResourceNameCollision = errors.New("config files share a resource name")

// CRDClient handles GameMode custom resources.
type CRDClient struct {
	dynamicClient dynamic.Interface
	logger        *zap.SugaredLogger

	// Annotations are merged into every published GameMode.
	Annotations map[string]string
}

// PublishResult counts the GameModes changed by a publish.
type PublishResult struct {
	Created int
	Updated int
	Deleted int
}

// NewCRDClient creates a new CRD client.
func NewCRDClient(dynamicClient dynamic.Interface, logger *zap.SugaredLogger) *CRDClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CRDClient{
		dynamicClient: dynamicClient,
		logger:        logger.Named("publisher"),
	}
}

// ListGameModes returns every GameMode in namespace.
func (c *CRDClient) ListGameModes(ctx context.Context, namespace string) ([]*v1alpha1.GameMode, error) {
	list, err := c.dynamicClient.Resource(v1alpha1.GameModeGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list GameModes: %w", err)
	}

	gameModes := make([]*v1alpha1.GameMode, 0, len(list.Items))
	for i := range list.Items {
		gameMode, err := fromUnstructured(&list.Items[i])
		if err != nil {
			c.logger.Warnw("Skipping invalid GameMode", "name", list.Items[i].GetName(), "error", err)
			continue
		}
		gameModes = append(gameModes, gameMode)
	}
	return gameModes, nil
}

// Publish creates or updates one GameMode per config file. With prune set, GameModes managed
// by liveconfig that have no file anymore are deleted.
func (c *CRDClient) Publish(ctx context.Context, namespace string, files map[string]string, labels map[string]string, prune bool) (PublishResult, error) {
	var result PublishResult
	resources := c.dynamicClient.Resource(v1alpha1.GameModeGVR).Namespace(namespace)

	fileNames, err := resourceNames(files)
	if err != nil {
		return result, err
	}

	names := make(map[string]bool, len(fileNames))
	for name, fileName := range fileNames {
		names[name] = true

		desired, err := toUnstructured(v1alpha1.NewGameMode(namespace, name, []byte(files[fileName])))
		if err != nil {
			return result, fmt.Errorf("failed to convert %s: %w", fileName, err)
		}
		desired.SetLabels(mergeStrings(map[string]string{ManagedByLabel: ManagedByValue}, labels))
		desired.SetAnnotations(mergeStrings(nil, c.Annotations))

		existing, err := resources.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if !apierrors.IsNotFound(err) {
				return result, fmt.Errorf("failed to get GameMode %s: %w", name, err)
			}
			if _, err := resources.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
				return result, fmt.Errorf("failed to create GameMode %s: %w", name, err)
			}
			c.logger.Infow("Created GameMode", "namespace", namespace, "name", name)
			result.Created++
			continue
		}

		existing.Object["spec"] = desired.Object["spec"]
		existing.SetLabels(mergeStrings(existing.GetLabels(), desired.GetLabels()))
		existing.SetAnnotations(mergeStrings(existing.GetAnnotations(), desired.GetAnnotations()))
		if _, err := resources.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return result, fmt.Errorf("failed to update GameMode %s: %w", name, err)
		}
		c.logger.Infow("Updated GameMode", "namespace", namespace, "name", name)
		result.Updated++
	}

	if !prune {
		return result, nil
	}

	list, err := resources.List(ctx, metav1.ListOptions{LabelSelector: ManagedByLabel + "=" + ManagedByValue})
	if err != nil {
		return result, fmt.Errorf("failed to list GameModes: %w", err)
	}
	for _, item := range list.Items {
		if names[item.GetName()] {
			continue
		}
		if err := resources.Delete(ctx, item.GetName(), metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			return result, fmt.Errorf("failed to delete GameMode %s: %w", item.GetName(), err)
		}
		c.logger.Infow("Deleted GameMode", "namespace", namespace, "name", item.GetName())
		result.Deleted++
	}
	return result, nil
}

// resourceNames maps each GameMode name to its config file. Files that map to the same
// name are rejected.
func resourceNames(files map[string]string) (map[string]string, error) {
	fileNames := make([]string, 0, len(files))
	for fileName := range files {
		fileNames = append(fileNames, fileName)
	}
	sort.Strings(fileNames)

	names := make(map[string]string, len(files))
	for _, fileName := range fileNames {
		name := ResourceName(fileName)
		if other, ok := names[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to GameMode %s", ErrResourceNameCollision, other, fileName, name)
		}
		names[name] = fileName
	}
	return names, nil
}

func toUnstructured(gameMode *v1alpha1.GameMode) (*unstructured.Unstructured, error) {
	data, err := json.Marshal(gameMode)
	if err != nil {
		return nil, err
	}

	u := &unstructured.Unstructured{}
	if err := json.Unmarshal(data, &u.Object); err != nil {
		return nil, err
	}
	if _, ok := u.Object["spec"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("spec must be a JSON object")
	}
	return u, nil
}

// fromUnstructured converts an unstructured GameMode to the typed GameMode.
func fromUnstructured(u *unstructured.Unstructured) (*v1alpha1.GameMode, error) {
	spec, found, err := unstructured.NestedMap(u.Object, "spec")
	if err != nil || !found {
		return nil, fmt.Errorf("spec not found")
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spec: %w", err)
	}

	gameMode := v1alpha1.NewGameMode(u.GetNamespace(), u.GetName(), raw)
	gameMode.Labels = u.GetLabels()
	gameMode.ResourceVersion = u.GetResourceVersion()
	return gameMode, nil
}
