// Package watcher provides the sources that feed raw config files into a collection:
// a local folder, a Kubernetes ConfigMap, or GameMode custom resources.
package watcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/emortalmc/live-config-parser/pkg/metrics"
)

const (
	// DefaultSyncTimeout bounds how long Start waits for the initial configs of a remote source.
	DefaultSyncTimeout = 10 * time.Second
	// DefaultResyncPeriod is the informer resync period of the Kubernetes sources.
	DefaultResyncPeriod = 10 * time.Minute
)

var (
	// ErrFolderNotFound is returned when a watched folder does not exist.
	ErrFolderNotFound = errors.New("config folder not found")
	// ErrInitialSyncTimeout is returned when a remote source does not deliver its initial configs in time.
	ErrInitialSyncTimeout = errors.New("timed out waiting for initial configs")
)

// Consumer receives the raw contents of config files as they change.
// Calls are made serially from a single goroutine per watcher.
type Consumer interface {
	OnConfigCreate(fileName, contents string)
	OnConfigModify(fileName, contents string)
	OnConfigDelete(fileName string)
}

// Watcher is a config source.
type Watcher interface {
	// Start delivers every existing config to the consumer as a create before returning,
	// then keeps delivering changes in the background until Close is called or ctx ends.
	Start(ctx context.Context) error
	// Close stops watching. It is safe to call more than once.
	Close() error
}

// Option configures a watcher.
type Option func(*options)

type options struct {
	logger       *zap.SugaredLogger
	metrics      *metrics.Recorder
	syncTimeout  time.Duration
	resyncPeriod time.Duration
	// syncInBackground keeps the informer running when the initial sync times out.
	syncInBackground bool
}

func newOptions(source string, opts []Option) *options {
	o := &options{
		logger:       zap.NewNop().Sugar(),
		metrics:      metrics.NewRecorder(source),
		syncTimeout:  DefaultSyncTimeout,
		resyncPeriod: DefaultResyncPeriod,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger of the watcher.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics overrides the metrics recorder of the watcher.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = recorder
	}
}

// WithSyncTimeout sets how long Start waits for the initial configs of a remote source.
func WithSyncTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.syncTimeout = timeout
		}
	}
}

// WithBackgroundSync makes a Kubernetes source log an initial sync timeout and keep
// watching instead of failing Start. Configs are delivered once the informer syncs.
func WithBackgroundSync() Option {
	return func(o *options) {
		o.syncInBackground = true
	}
}

// WithResyncPeriod sets the informer resync period of the Kubernetes sources.
func WithResyncPeriod(period time.Duration) Option {
	return func(o *options) {
		if period >= 0 {
			o.resyncPeriod = period
		}
	}
}
