package imagestore

import (
	"context"
	"sync"
)

// Memory is an in-process Uploader used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Uploader = (*Memory)(nil)

// NewMemory creates an empty in-memory object store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Upload stores the object and returns a mem:// URL for it.
func (m *Memory) Upload(_ context.Context, key string, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = buf
	return "mem://" + key, nil
}

// Get returns a stored object.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
