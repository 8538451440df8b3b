package liveconfig

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

// LiveConfigCollection owns every live config collection of a process.
type LiveConfigCollection struct {
	logger    *zap.SugaredLogger
	source    Source
	gameModes *GameModeCollection
}

// NewLiveConfigCollection opens the game mode collection from the source in opts.
// When no source is usable in auto mode, game modes are disabled rather than failing.
func NewLiveConfigCollection(ctx context.Context, opts Options, logger *zap.SugaredLogger) (*LiveConfigCollection, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid live config options: %w", err)
	}

	l := &LiveConfigCollection{logger: logger.Named("liveconfig")}
	watcherOpts := []watcher.Option{watcher.WithSyncTimeout(opts.SyncTimeout)}

	var err error
	switch {
	case opts.Source == SourceKubernetes:
		l.source = SourceKubernetes
		l.gameModes, err = FromKubernetes(ctx, opts.Clientset, opts.Namespace, opts.ConfigMapName, logger, watcherOpts...)
	case opts.Source == SourceAuto && opts.Clientset != nil:
		l.source = SourceKubernetes
		watcherOpts = append(watcherOpts, watcher.WithBackgroundSync())
		l.gameModes, err = FromKubernetes(ctx, opts.Clientset, opts.Namespace, opts.ConfigMapName, logger, watcherOpts...)
	case opts.Source == SourceCRD:
		l.source = SourceCRD
		l.gameModes, err = FromCRD(ctx, opts.DynamicClient, opts.Namespace, logger, watcherOpts...)
	case opts.Source == SourceLocal:
		l.source = SourceLocal
		l.gameModes, err = FromLocalPath(ctx, opts.Path, logger, watcherOpts...)
	default:
		if _, statErr := os.Stat(opts.Path); statErr != nil {
			l.logger.Warnw("No Kubernetes client and local path not found, game modes are disabled", "path", opts.Path)
			return l, nil
		}
		l.logger.Warnw("No Kubernetes client, falling back to local path", "path", opts.Path)
		l.source = SourceLocal
		l.gameModes, err = FromLocalPath(ctx, opts.Path, logger, watcherOpts...)
	}
	if err != nil {
		if errors.Is(err, watcher.ErrFolderNotFound) || errors.Is(err, watcher.ErrInitialSyncTimeout) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return nil, fmt.Errorf("failed to load game modes from %s: %w", l.source, err)
	}

	l.logger.Infow("Game modes loaded", "source", l.source, "count", len(l.gameModes.AllConfigs()))
	return l, nil
}

// GameModes returns the game mode provider, or nil when game modes are disabled.
func (l *LiveConfigCollection) GameModes() ConfigProvider[*configs.GameModeConfig] {
	if l.gameModes == nil {
		return nil
	}
	return l.gameModes
}

// Source returns the source game modes were loaded from, or "" when disabled.
func (l *LiveConfigCollection) Source() Source {
	return l.source
}

// Close closes every collection.
func (l *LiveConfigCollection) Close() error {
	var result *multierror.Error
	if l.gameModes != nil {
		if err := l.gameModes.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close game modes: %w", err))
		}
	}
	return result.ErrorOrNil()
}
