package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps artifacts in-process. It backs DSN-less runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(_ context.Context, path string, content []byte) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	key := objectKey(path)
	if key == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), content...)
	return memoryURL(key), nil
}

func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	key := objectKey(strings.TrimPrefix(path, "memory://"))
	if key == "" {
		return nil, fmt.Errorf("path is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemoryStore) GetURL(_ context.Context, path string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	key := objectKey(path)
	if key == "" {
		return "", fmt.Errorf("path is required")
	}
	return memoryURL(key), nil
}

func memoryURL(key string) string {
	return "memory://" + key
}
