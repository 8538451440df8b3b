package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileSystemWatcher watches the JSON config files directly inside a folder.
type FileSystemWatcher struct {
	folder   string
	consumer Consumer
	opts     *options
	logger   *zap.SugaredLogger
	snapshot *snapshot

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFileSystemWatcher creates a watcher for folder. The folder must exist.
func NewFileSystemWatcher(folder string, consumer Consumer, opts ...Option) (*FileSystemWatcher, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config folder %s: %w", folder, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, abs)
		}
		return nil, fmt.Errorf("failed to stat config folder %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrFolderNotFound, abs)
	}

	o := newOptions("filesystem", opts)
	return &FileSystemWatcher{
		folder:   abs,
		consumer: consumer,
		opts:     o,
		logger:   o.logger.Named("watcher").With("folder", abs),
		snapshot: newSnapshot(consumer, o.metrics),
		done:     make(chan struct{}),
	}, nil
}

// Folder returns the absolute path of the watched folder.
func (w *FileSystemWatcher) Folder() string {
	return w.folder
}

// Start implements Watcher.
func (w *FileSystemWatcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Registered before the initial scan so no change between the two is lost.
	if err := fsw.Add(w.folder); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.folder, err)
	}

	w.mu.Lock()
	w.watcher = fsw
	w.mu.Unlock()

	w.logger.Infow("Watching config changes")

	start := time.Now()
	files, err := w.scan()
	if err != nil {
		_ = w.Close()
		return err
	}
	w.snapshot.sync(files)
	w.opts.metrics.RecordInitialLoad(time.Since(start))

	w.wg.Add(1)
	go w.run(ctx, fsw)

	return nil
}

// Close implements Watcher.
func (w *FileSystemWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		fsw := w.watcher
		w.mu.Unlock()
		if fsw != nil {
			err = fsw.Close()
		}
	})
	w.wg.Wait()
	return err
}

func (w *FileSystemWatcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debugw("Context done, stopping file watcher")
			go w.Close()
			return
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorw("Error watching for config changes", "error", err)
		}
	}
}

func (w *FileSystemWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	// Kubernetes volume mounts publish a new ConfigMap revision by swapping the
	// ..data symlink, so no event is raised for the visible files themselves.
	if strings.HasPrefix(name, "..") {
		w.logger.Debugw("Config volume revision changed, rescanning", "entry", name, "op", event.Op.String())
		files, err := w.scan()
		if err != nil {
			w.logger.Errorw("Failed to rescan config folder", "error", err)
			return
		}
		w.snapshot.sync(files)
		return
	}

	if strings.HasPrefix(name, ".") || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !isConfigFileName(name) {
		w.logger.Warnw("Non-json file in config directory was modified", "file", name)
		return
	}

	w.logger.Debugw("Config file changed", "file", name, "op", event.Op.String())

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.snapshot.remove(name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		contents, ok, err := w.readConfigFile(filepath.Join(w.folder, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.snapshot.remove(name)
				return
			}
			w.logger.Errorw("Failed to read config file", "file", name, "error", err)
			return
		}
		if !ok {
			return
		}
		w.snapshot.upsert(name, contents)
	}
}

// scan reads every config file currently in the folder.
func (w *FileSystemWatcher) scan() (map[string]string, error) {
	entries, err := os.ReadDir(w.folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list config folder %s: %w", w.folder, err)
	}

	files := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !isConfigFileName(name) {
			continue
		}

		contents, ok, err := w.readConfigFile(filepath.Join(w.folder, name))
		if err != nil {
			w.logger.Errorw("Failed to read config file", "file", name, "error", err)
			continue
		}
		if ok {
			files[name] = contents
		}
	}
	return files, nil
}

// readConfigFile reads path, following symlinks. ok is false for anything but a regular file.
func (w *FileSystemWatcher) readConfigFile(path string) (contents string, ok bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false, err
	}
	if !info.Mode().IsRegular() {
		return "", false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func isConfigFileName(name string) bool {
	return strings.HasSuffix(name, ".json")
}

// ReadFolder reads every config file directly inside folder, keyed by file name.
// Hidden and non-JSON files are skipped.
func ReadFolder(folder string) (map[string]string, error) {
	w, err := NewFileSystemWatcher(folder, nopConsumer{})
	if err != nil {
		return nil, err
	}
	return w.scan()
}

type nopConsumer struct{}

func (nopConsumer) OnConfigCreate(string, string) {}
func (nopConsumer) OnConfigModify(string, string) {}
func (nopConsumer) OnConfigDelete(string)         {}
