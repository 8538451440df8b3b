// Package liveconfig keeps configs from a watched source in memory and notifies
// listeners when they change.
package liveconfig

import (
	"errors"

	"github.com/emortalmc/live-config-parser/pkg/configs"
)

var (
	// ErrConfigNotFound is returned when no config exists for an id.
	ErrConfigNotFound = errors.New("config not found")
	// ErrSourceUnavailable is returned when no config source could be opened.
	ErrSourceUnavailable = errors.New("config source unavailable")
)

// ConfigProvider gives access to the live configs of a collection.
// Returned configs are shared and must be treated as read-only.
type ConfigProvider[T configs.Config] interface {
	// GetConfig returns the live config with the given id.
	GetConfig(id string) (T, bool)
	// AllConfigs returns every live config sorted by priority, then id.
	AllConfigs() []T

	// AddUpdateListener registers a listener for updates of a single config id.
	// Calling the returned func removes the listener.
	AddUpdateListener(id string, listener func(update ConfigUpdate[T])) (remove func())
	// AddGlobalUpdateListener registers a listener for updates of every config.
	// Calling the returned func removes the listener.
	AddGlobalUpdateListener(listener func(update ConfigUpdate[T])) (remove func())

	Close() error
}
