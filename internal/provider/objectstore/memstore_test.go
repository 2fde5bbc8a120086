package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// memBackend is an in-memory Backend for tests. failures maps "op:key" (or
// "op:" for any key) to an error injected on the matching call.
type memBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failures map[string]error

	copies  int
	deletes int
}

func newMemBackend() *memBackend {
	return &memBackend{
		objects:  make(map[string][]byte),
		failures: make(map[string]error),
	}
}

func (m *memBackend) failOn(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+":"+key] = err
}

func (m *memBackend) injected(op, key string) error {
	if err, ok := m.failures[op+":"+key]; ok {
		return err
	}
	if err, ok := m.failures[op+":"]; ok {
		return err
	}
	return nil
}

func notFound(key string) error {
	return errors.NewError(errors.ErrCodeObjectNotFound, fmt.Sprintf("no object %q", key))
}

func (m *memBackend) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("get", key); err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, notFound(key)
	}
	return append([]byte(nil), data...), nil
}

func (m *memBackend) PutObject(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("put", key); err != nil {
		return err
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBackend) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("delete", key); err != nil {
		return err
	}
	delete(m.objects, key)
	m.deletes++
	return nil
}

func (m *memBackend) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("copy", srcKey); err != nil {
		return err
	}
	data, ok := m.objects[srcKey]
	if !ok {
		return notFound(srcKey)
	}
	m.objects[dstKey] = append([]byte(nil), data...)
	m.copies++
	return nil
}

func (m *memBackend) HeadObject(ctx context.Context, key string) (*types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("head", key); err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, notFound(key)
	}
	return &types.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memBackend) GetObjects(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		data, err := m.GetObject(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[key] = data
	}
	return out, nil
}

func (m *memBackend) PutObjects(ctx context.Context, objects map[string][]byte) error {
	for key, data := range objects {
		if err := m.PutObject(ctx, key, data); err != nil {
			return err
		}
	}
	return nil
}

func (m *memBackend) ListObjects(ctx context.Context, prefix string, limit int) ([]types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("list", prefix); err != nil {
		return nil, err
	}
	var out []types.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, types.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memBackend) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.injected("health", "")
}

func (m *memBackend) keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// memSigner produces deterministic fake signed URLs and counts calls.
type memSigner struct {
	mu    sync.Mutex
	calls int
}

func (s *memSigner) SignGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return fmt.Sprintf("https://signed.example/%s?n=%d", key, s.calls), nil
}

func (s *memSigner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
