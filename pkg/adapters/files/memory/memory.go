package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/markflow/pkg/domain"
)

// InMemoryFileStore implements FileStore using in-memory map
type InMemoryFileStore struct {
	files map[string]domain.FileInfo
	mu    sync.RWMutex
}

// NewInMemoryFileStore creates a store seeded with files
func NewInMemoryFileStore(files ...domain.FileInfo) *InMemoryFileStore {
	s := &InMemoryFileStore{files: make(map[string]domain.FileInfo)}
	for _, f := range files {
		s.files[f.ID] = f
	}
	return s
}

// PutFile stores file metadata
func (s *InMemoryFileStore) PutFile(ctx context.Context, file domain.FileInfo) error {
	if file.ID == "" {
		return fmt.Errorf("file ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[file.ID] = file
	return nil
}

// GetFile returns the metadata stored under id
func (s *InMemoryFileStore) GetFile(ctx context.Context, id string) (*domain.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, id)
	}
	return &f, nil
}
