package liveconfig

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/parser"
	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

// GameModeCollectionName labels the game mode collection in logs and metrics.
const GameModeCollectionName = "gamemodes"

// GameModeCollection is a live collection of game mode configs.
type GameModeCollection = Collection[*configs.GameModeConfig]

// NewGameModeCollection creates an empty game mode collection.
func NewGameModeCollection(logger *zap.SugaredLogger) *GameModeCollection {
	return NewCollection[*configs.GameModeConfig](GameModeCollectionName, parser.GameModeParser(), logger)
}

// FromLocalPath loads game modes from a folder and watches it for changes.
func FromLocalPath(ctx context.Context, path string, logger *zap.SugaredLogger, opts ...watcher.Option) (*GameModeCollection, error) {
	c := NewGameModeCollection(logger)

	w, err := watcher.NewFileSystemWatcher(path, c, watcherOptions(c, opts)...)
	if err != nil {
		return nil, err
	}
	if err := c.Watch(ctx, w); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return c, nil
}

// FromKubernetes loads game modes from the data keys of a ConfigMap and watches it for changes.
func FromKubernetes(ctx context.Context, clientset kubernetes.Interface, namespace, name string, logger *zap.SugaredLogger, opts ...watcher.Option) (*GameModeCollection, error) {
	c := NewGameModeCollection(logger)

	w := watcher.NewKubernetesWatcher(clientset, namespace, name, c, watcherOptions(c, opts)...)
	if err := c.Watch(ctx, w); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to watch ConfigMap %s/%s: %w", namespace, name, err)
	}
	return c, nil
}

// FromCRD loads game modes from GameMode resources and watches them for changes.
func FromCRD(ctx context.Context, client dynamic.Interface, namespace string, logger *zap.SugaredLogger, opts ...watcher.Option) (*GameModeCollection, error) {
	c := NewGameModeCollection(logger)

	w := watcher.NewCRDWatcher(client, namespace, c, watcherOptions(c, opts)...)
	if err := c.Watch(ctx, w); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to watch GameModes in %s: %w", namespace, err)
	}
	return c, nil
}

func watcherOptions[T configs.Config](c *Collection[T], opts []watcher.Option) []watcher.Option {
	return append([]watcher.Option{watcher.WithLogger(c.logger)}, opts...)
}
