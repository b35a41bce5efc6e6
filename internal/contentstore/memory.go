package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// MemoryStore is an in-process content-addressed store for development and
// tests. Locators are the sha-256 of the content, which gives it the same
// locator-follows-content property as a real pinning service.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores the content under its content hash and returns the locator.
// Storing identical content twice is a no-op returning the same locator.
func (s *MemoryStore) Put(_ context.Context, content []byte) (string, error) {
	sum := sha256.Sum256(content)
	locator := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[locator]; !ok {
		s.blobs[locator] = append([]byte(nil), content...)
	}
	return locator, nil
}

// Get returns the content stored under locator.
func (s *MemoryStore) Get(_ context.Context, locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("%w: locator %s", ErrNotFound, locator)
	}
	return append([]byte(nil), content...), nil
}
