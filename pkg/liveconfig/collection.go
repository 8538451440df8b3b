package liveconfig

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/metrics"
	"github.com/emortalmc/live-config-parser/pkg/parser"
	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

type listener[T configs.Config] struct {
	id uint64
	fn func(update ConfigUpdate[T])
}

// Collection holds the parsed configs of one or more sources. It consumes raw file
// events from watchers and implements ConfigProvider.
type Collection[T configs.Config] struct {
	name    string
	parser  parser.Parser[T]
	logger  *zap.SugaredLogger
	metrics *metrics.Recorder

	mu     sync.RWMutex
	byID   map[string]T
	byFile map[string]T

	listenersMu     sync.RWMutex
	nextListenerID  uint64
	idListeners     map[string][]listener[T]
	globalListeners []listener[T]

	watchersMu sync.Mutex
	watchers   []watcher.Watcher
	closed     bool
}

var (
	_ ConfigProvider[*configs.GameModeConfig] = (*Collection[*configs.GameModeConfig])(nil)
	_ watcher.Consumer                        = (*Collection[*configs.GameModeConfig])(nil)
)

// NewCollection creates an empty collection. name labels its logs and metrics.
func NewCollection[T configs.Config](name string, p parser.Parser[T], logger *zap.SugaredLogger) *Collection[T] {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Collection[T]{
		name:        name,
		parser:      p,
		logger:      logger.Named("liveconfig").With("collection", name),
		metrics:     metrics.NewRecorder(name),
		byID:        make(map[string]T),
		byFile:      make(map[string]T),
		idListeners: make(map[string][]listener[T]),
	}
}

// Name returns the name of the collection.
func (c *Collection[T]) Name() string {
	return c.name
}

// Watch starts w and ties its lifetime to the collection. w must have been created
// with c as its consumer. Initial configs are loaded before Watch returns.
func (c *Collection[T]) Watch(ctx context.Context, w watcher.Watcher) error {
	c.watchersMu.Lock()
	if c.closed {
		c.watchersMu.Unlock()
		return fmt.Errorf("collection %s is closed", c.name)
	}
	c.watchers = append(c.watchers, w)
	c.watchersMu.Unlock()

	if err := w.Start(ctx); err != nil {
		return err
	}
	c.logger.Infow("Loaded configs", "count", c.len())
	return nil
}

// Close stops every watcher of the collection. Configs stay readable.
func (c *Collection[T]) Close() error {
	c.watchersMu.Lock()
	watchers := c.watchers
	c.watchers = nil
	c.closed = true
	c.watchersMu.Unlock()

	var result *multierror.Error
	for _, w := range watchers {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// GetConfig implements ConfigProvider.
func (c *Collection[T]) GetConfig(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byID[id]
	return cfg, ok
}

// AllConfigs implements ConfigProvider.
func (c *Collection[T]) AllConfigs() []T {
	c.mu.RLock()
	list := make([]T, 0, len(c.byID))
	for _, cfg := range c.byID {
		list = append(list, cfg)
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ConfigPriority() != list[j].ConfigPriority() {
			return list[i].ConfigPriority() < list[j].ConfigPriority()
		}
		return list[i].ConfigID() < list[j].ConfigID()
	})
	return list
}

// AddUpdateListener implements ConfigProvider.
func (c *Collection[T]) AddUpdateListener(id string, fn func(update ConfigUpdate[T])) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextListenerID++
	l := listener[T]{id: c.nextListenerID, fn: fn}
	c.idListeners[id] = append(c.idListeners[id], l)

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		c.idListeners[id] = removeListener(c.idListeners[id], l.id)
		if len(c.idListeners[id]) == 0 {
			delete(c.idListeners, id)
		}
	}
}

// AddGlobalUpdateListener implements ConfigProvider.
func (c *Collection[T]) AddGlobalUpdateListener(fn func(update ConfigUpdate[T])) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextListenerID++
	l := listener[T]{id: c.nextListenerID, fn: fn}
	c.globalListeners = append(c.globalListeners, l)

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		c.globalListeners = removeListener(c.globalListeners, l.id)
	}
}

func removeListener[T configs.Config](listeners []listener[T], id uint64) []listener[T] {
	kept := make([]listener[T], 0, len(listeners))
	for _, l := range listeners {
		if l.id != id {
			kept = append(kept, l)
		}
	}
	return kept
}

// OnConfigCreate implements watcher.Consumer. A create for an id another file already
// holds replaces that config and is dispatched as a modify.
func (c *Collection[T]) OnConfigCreate(fileName, contents string) {
	cfg, ok := c.parse(fileName, contents)
	if !ok {
		return
	}

	c.mu.Lock()
	shadowed, found := c.byID[cfg.ConfigID()]
	if found {
		c.logger.Warnw("Config id already loaded from another file, replacing it",
			"configId", cfg.ConfigID(), "fileName", fileName, "existingFile", fileNameOf(c.byFile, shadowed))
	}
	c.byFile[fileName] = cfg
	c.byID[cfg.ConfigID()] = cfg
	count := len(c.byID)
	c.mu.Unlock()

	c.logger.Debugw("Config created", "configId", cfg.ConfigID(), "fileName", fileName)
	if found {
		c.dispatch(ConfigUpdate[T]{Type: UpdateTypeModify, FileName: fileName, Config: cfg, Previous: shadowed}, count)
		return
	}
	c.dispatch(ConfigUpdate[T]{Type: UpdateTypeCreate, FileName: fileName, Config: cfg}, count)
}

// OnConfigModify implements watcher.Consumer.
func (c *Collection[T]) OnConfigModify(fileName, contents string) {
	c.mu.RLock()
	_, known := c.byFile[fileName]
	c.mu.RUnlock()
	if !known {
		c.logger.Debugw("Modified config was never loaded, treating it as created", "fileName", fileName)
		c.OnConfigCreate(fileName, contents)
		return
	}

	cfg, ok := c.parse(fileName, contents)
	if !ok {
		return
	}

	c.mu.Lock()
	previous, known := c.byFile[fileName]
	if !known {
		c.mu.Unlock()
		c.OnConfigCreate(fileName, contents)
		return
	}
	if reflect.DeepEqual(previous, cfg) {
		c.mu.Unlock()
		c.logger.Debugw("No change in parsed config", "configId", cfg.ConfigID(), "fileName", fileName)
		return
	}

	var updates []ConfigUpdate[T]
	if previous.ConfigID() == cfg.ConfigID() {
		live := previous
		if current, ok := c.byID[cfg.ConfigID()]; ok {
			live = current
		}
		updates = append(updates, ConfigUpdate[T]{Type: UpdateTypeModify, FileName: fileName, Config: cfg, Previous: live})
	} else {
		updates = c.changeIDLocked(fileName, previous, cfg)
	}
	c.byFile[fileName] = cfg
	c.byID[cfg.ConfigID()] = cfg
	count := len(c.byID)
	c.mu.Unlock()

	c.logger.Debugw("Config modified", "configId", cfg.ConfigID(), "previousId", previous.ConfigID(), "fileName", fileName)
	for _, update := range updates {
		c.dispatch(update, count)
	}
}

// changeIDLocked releases the old id of a modified file and returns the updates that
// describe both ids.
func (c *Collection[T]) changeIDLocked(fileName string, previous, cfg T) []ConfigUpdate[T] {
	wasLive := c.isLiveLocked(previous)
	restored, restoredFile, hasRestored := c.removeIDLocked(previous, fileName)
	shadowed, newIDTaken := c.byID[cfg.ConfigID()]

	if wasLive && !hasRestored && !newIDTaken {
		return []ConfigUpdate[T]{{Type: UpdateTypeModify, FileName: fileName, Config: cfg, Previous: previous}}
	}

	var updates []ConfigUpdate[T]
	if newIDTaken {
		updates = append(updates, ConfigUpdate[T]{Type: UpdateTypeModify, FileName: fileName, Config: cfg, Previous: shadowed})
	} else {
		updates = append(updates, ConfigUpdate[T]{Type: UpdateTypeCreate, FileName: fileName, Config: cfg})
	}
	switch {
	case hasRestored:
		updates = append(updates, ConfigUpdate[T]{Type: UpdateTypeModify, FileName: restoredFile, Config: restored, Previous: previous})
	case wasLive:
		updates = append(updates, ConfigUpdate[T]{Type: UpdateTypeDelete, FileName: fileName, Config: previous})
	}
	return updates
}

// OnConfigDelete implements watcher.Consumer. Deleting a file whose id is defined by
// another file too is dispatched as a modify back to that file's config, or not at all
// when the deleted config was not the live one.
func (c *Collection[T]) OnConfigDelete(fileName string) {
	c.mu.Lock()
	removed, ok := c.byFile[fileName]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.byFile, fileName)
	wasLive := c.isLiveLocked(removed)
	restored, restoredFile, hasRestored := c.removeIDLocked(removed, fileName)
	count := len(c.byID)
	c.mu.Unlock()

	switch {
	case !wasLive:
		c.logger.Debugw("Deleted shadowed config", "configId", removed.ConfigID(), "fileName", fileName)
	case hasRestored:
		c.logger.Debugw("Config deleted, restored from another file",
			"configId", removed.ConfigID(), "fileName", fileName, "restoredFile", restoredFile)
		c.dispatch(ConfigUpdate[T]{Type: UpdateTypeModify, FileName: restoredFile, Config: restored, Previous: removed}, count)
	default:
		c.logger.Debugw("Config deleted", "configId", removed.ConfigID(), "fileName", fileName)
		c.dispatch(ConfigUpdate[T]{Type: UpdateTypeDelete, FileName: fileName, Config: removed}, count)
	}
}

func (c *Collection[T]) isLiveLocked(cfg T) bool {
	current, ok := c.byID[cfg.ConfigID()]
	return ok && any(current) == any(cfg)
}

// removeIDLocked drops the id of cfg unless another file has taken it over since. When
// another file still defines the id, its config becomes live again and is returned.
func (c *Collection[T]) removeIDLocked(cfg T, fileName string) (T, string, bool) {
	var zero T
	if !c.isLiveLocked(cfg) {
		return zero, "", false
	}
	id := cfg.ConfigID()
	delete(c.byID, id)

	var candidates []string
	for otherFile, other := range c.byFile {
		if otherFile != fileName && other.ConfigID() == id {
			candidates = append(candidates, otherFile)
		}
	}
	if len(candidates) == 0 {
		return zero, "", false
	}
	sort.Strings(candidates)
	restored := c.byFile[candidates[0]]
	c.byID[id] = restored
	return restored, candidates[0], true
}

func fileNameOf[T configs.Config](byFile map[string]T, cfg T) string {
	for name, candidate := range byFile {
		if any(candidate) == any(cfg) {
			return name
		}
	}
	return ""
}

func (c *Collection[T]) parse(fileName, contents string) (T, bool) {
	cfg, err := c.parser.Parse(fileName, []byte(contents))
	if err != nil {
		c.metrics.RecordParseFailure()
		c.logger.Errorw("Failed to parse config", "fileName", fileName, "error", err)
		var zero T
		return zero, false
	}
	return cfg, true
}

func (c *Collection[T]) dispatch(update ConfigUpdate[T], count int) {
	c.metrics.RecordUpdate(update.Type.String())
	c.metrics.SetConfigCount(count)

	c.listenersMu.RLock()
	var targets []listener[T]
	targets = append(targets, c.idListeners[update.Config.ConfigID()]...)
	if update.Type == UpdateTypeModify && update.Previous.ConfigID() != update.Config.ConfigID() {
		targets = append(targets, c.idListeners[update.Previous.ConfigID()]...)
	}
	targets = append(targets, c.globalListeners...)
	c.listenersMu.RUnlock()

	for _, l := range targets {
		c.notify(l, update)
	}
}

func (c *Collection[T]) notify(l listener[T], update ConfigUpdate[T]) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("Config update listener panicked",
				"configId", update.Config.ConfigID(), "updateType", update.Type.String(), "panic", r)
		}
	}()
	l.fn(update)
}

func (c *Collection[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
