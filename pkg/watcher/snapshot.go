package watcher

import (
	"crypto/md5"
	"sort"
	"sync"

	"github.com/emortalmc/live-config-parser/pkg/metrics"
)

// snapshot remembers a content hash per file so sources only report real changes.
// Sources without reliable events (editors double firing writes, informer resyncs,
// full ConfigMap updates) all go through it.
type snapshot struct {
	mu       sync.Mutex
	hashes   map[string][md5.Size]byte
	consumer Consumer
	metrics  *metrics.Recorder
}

func newSnapshot(consumer Consumer, recorder *metrics.Recorder) *snapshot {
	return &snapshot{
		hashes:   make(map[string][md5.Size]byte),
		consumer: consumer,
		metrics:  recorder,
	}
}

// upsert reports a create for unknown files and a modify for files whose content changed.
func (s *snapshot) upsert(fileName, contents string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(fileName, contents)
}

func (s *snapshot) upsertLocked(fileName, contents string) {
	hash := md5.Sum([]byte(contents))

	existing, ok := s.hashes[fileName]
	if !ok {
		s.hashes[fileName] = hash
		s.metrics.RecordSourceEvent("create")
		s.consumer.OnConfigCreate(fileName, contents)
		return
	}
	if existing == hash {
		return
	}

	s.hashes[fileName] = hash
	s.metrics.RecordSourceEvent("modify")
	s.consumer.OnConfigModify(fileName, contents)
}

// remove reports a delete for known files.
func (s *snapshot) remove(fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(fileName)
}

func (s *snapshot) removeLocked(fileName string) {
	if _, ok := s.hashes[fileName]; !ok {
		return
	}
	delete(s.hashes, fileName)
	s.metrics.RecordSourceEvent("delete")
	s.consumer.OnConfigDelete(fileName)
}

// sync diffs a complete set of files against the snapshot.
func (s *snapshot) sync(files map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range sortedKeys(files) {
		s.upsertLocked(name, files[name])
	}

	var deleted []string
	for name := range s.hashes {
		if _, ok := files[name]; !ok {
			deleted = append(deleted, name)
		}
	}
	sort.Strings(deleted)
	for _, name := range deleted {
		s.removeLocked(name)
	}
}

// clear reports a delete for every known file.
func (s *snapshot) clear() {
	s.sync(map[string]string{})
}

func (s *snapshot) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
