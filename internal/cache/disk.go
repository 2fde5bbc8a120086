package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const indexFileName = "cache-index.json"

// diskItem represents one entry in the durable tier's index.
type diskItem struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// diskTier is the durable half of the cache: values live as individual files
// under a directory, tracked by a JSON index. It tolerates losing its
// contents at any time; everything in it is refetchable.
type diskTier struct {
	mu          sync.Mutex
	directory   string
	maxSize     int64
	currentSize int64
	index       map[string]*diskItem
	evicted     uint64
	logger      *slog.Logger
}

func newDiskTier(directory string, maxSize int64, logger *slog.Logger) (*diskTier, error) {
	if maxSize <= 0 {
		maxSize = 64 * 1024 * 1024 // 64MB
	}

	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	t := &diskTier{
		directory: directory,
		maxSize:   maxSize,
		index:     make(map[string]*diskItem),
		logger:    logger,
	}

	if err := t.loadIndex(); err != nil {
		// A corrupt index is not fatal: start empty, files get
		// overwritten as entries are refetched.
		logger.Warn("durable cache index unreadable, starting empty", "error", err)
		t.index = make(map[string]*diskItem)
		t.currentSize = 0
	}

	return t, nil
}

func (t *diskTier) get(key string) ([]byte, time.Time, bool) {
	t.mu.Lock()
	item, ok := t.index[key]
	t.mu.Unlock()
	if !ok {
		return nil, time.Time{}, false
	}

	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		t.mu.Lock()
		delete(t.index, key)
		t.currentSize -= item.Size
		t.mu.Unlock()
		return nil, time.Time{}, false
	}

	return data, item.Timestamp, true
}

func (t *diskTier) put(key string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := filepath.Join(t.directory, t.fileName(key))

	if err := os.WriteFile(path, data, 0640); err != nil {
		// Quota pressure: free the oldest quarter and drop this write.
		t.evictOldestLocked()
		return fmt.Errorf("durable write failed: %w", err)
	}

	if old, ok := t.index[key]; ok {
		t.currentSize -= old.Size
	}
	t.index[key] = &diskItem{
		Key:       key,
		FilePath:  path,
		Size:      int64(len(data)),
		Timestamp: time.Now(),
	}
	t.currentSize += int64(len(data))

	if t.currentSize > t.maxSize {
		t.evictOldestLocked()
	}

	t.saveIndexLocked()
	return nil
}

func (t *diskTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleteLocked(key)
	t.saveIndexLocked()
}

func (t *diskTier) deletePattern(substr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.index {
		if strings.Contains(key, substr) {
			t.deleteLocked(key)
		}
	}
	t.saveIndexLocked()
}

func (t *diskTier) size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSize
}

func (t *diskTier) capacity() int64 {
	return t.maxSize
}

func (t *diskTier) evictions() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted
}

func (t *diskTier) deleteLocked(key string) {
	item, ok := t.index[key]
	if !ok {
		return
	}
	_ = os.Remove(item.FilePath)
	t.currentSize -= item.Size
	delete(t.index, key)
}

// evictOldestLocked removes the oldest 25% of entries by timestamp.
func (t *diskTier) evictOldestLocked() {
	if len(t.index) == 0 {
		return
	}

	items := make([]*diskItem, 0, len(t.index))
	for _, item := range t.index {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})

	count := len(items) / 4
	if count == 0 {
		count = 1
	}

	for _, item := range items[:count] {
		t.deleteLocked(item.Key)
		t.evicted++
	}

	t.logger.Debug("durable cache evicted oldest entries", "count", count)
}

func (t *diskTier) fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x.cache", sum[:16])
}

func (t *diskTier) loadIndex() error {
	path := filepath.Join(t.directory, indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var items []*diskItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	for _, item := range items {
		if _, err := os.Stat(item.FilePath); err != nil {
			continue
		}
		t.index[item.Key] = item
		t.currentSize += item.Size
	}
	return nil
}

// saveIndexLocked persists the index best-effort; a failed save only costs a
// cold durable tier on the next start.
func (t *diskTier) saveIndexLocked() {
	items := make([]*diskItem, 0, len(t.index))
	for _, item := range t.index {
		items = append(items, item)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(t.directory, indexFileName), data, 0640); err != nil {
		t.logger.Debug("durable cache index save failed", "error", err)
	}
}
