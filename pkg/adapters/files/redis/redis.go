package redis

import (
	"context"
	"fmt"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/redis/go-redis/v9"
)

const fileKeyPrefix = "markflow:file:"

// FileStore implements FileStore on Redis hashes with the fields url,
// mime_type and name.
type FileStore struct {
	client redis.UniversalClient
}

// NewFileStore creates a new Redis file store
func NewFileStore(client redis.UniversalClient) *FileStore {
	return &FileStore{client: client}
}

// PutFile stores file metadata
func (s *FileStore) PutFile(ctx context.Context, file domain.FileInfo) error {
	if file.ID == "" {
		return fmt.Errorf("file ID is required")
	}

	err := s.client.HSet(ctx, getFileKey(file.ID),
		"url", file.URL,
		"mime_type", file.MimeType,
		"name", file.Name,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save file %s: %w", file.ID, err)
	}
	return nil
}

// GetFile returns the metadata stored under id
func (s *FileStore) GetFile(ctx context.Context, id string) (*domain.FileInfo, error) {
	fields, err := s.client.HGetAll(ctx, getFileKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, id)
	}

	return &domain.FileInfo{
		ID:       id,
		URL:      fields["url"],
		MimeType: fields["mime_type"],
		Name:     fields["name"],
	}, nil
}

func getFileKey(id string) string {
	return fileKeyPrefix + id
}
