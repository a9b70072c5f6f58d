package file

import (
	"context"
	"errors"
	"io"

	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"github.com/google/uuid"
)

// DummyFileService is a no-op FileService used when artifact storage is
// not configured.
type DummyFileService struct{}

// NewDummyFileService creates a new instance of DummyFileService.
func NewDummyFileService() interfaces.FileService {
	return &DummyFileService{}
}

// SaveArtifact pretends to save an artifact and returns a random key.
func (s *DummyFileService) SaveArtifact(
	ctx context.Context, taskID, url string, data []byte, contentType string,
) (string, error) {
	return uuid.New().String(), nil
}

// GetArtifact always returns an error since the dummy service stores nothing.
func (s *DummyFileService) GetArtifact(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

// DeleteArtifact is a no-op that always succeeds.
func (s *DummyFileService) DeleteArtifact(ctx context.Context, storageKey string) error {
	return nil
}
