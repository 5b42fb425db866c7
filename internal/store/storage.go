package store

import (
	"context"
	"errors"
	"sync"
)

// DefaultQuotaBytes matches the usual per-origin localStorage budget.
const DefaultQuotaBytes = 5 * 1024 * 1024

// ErrQuotaExceeded is returned by Set when the write would exceed the
// storage quota. Nothing is written in that case.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Storage is a durable key/value capability.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Memory: in-process Storage with a byte quota over keys and values
type Memory struct {
	values map[string][]byte
	used   int
	quota  int
	mu     sync.RWMutex
}

// NewMemory creates a Memory store. A quota <= 0 means unlimited.
func NewMemory(quota int) *Memory {
	return &Memory{
		values: make(map[string][]byte),
		quota:  quota,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + len(key) + len(value)
	if old, ok := m.values[key]; ok {
		used -= len(key) + len(old)
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	m.used = used
	return nil
}

// Used: bytes currently stored
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.used
}

func (m *Memory) Close() error { return nil }
