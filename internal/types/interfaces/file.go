package interfaces

import (
	"context"
	"io"
)

// FileService stores the raw artifacts a research task produces: fetched
// page bodies and extracted text, one object per source per §4.6's
// research_artifacts table.
type FileService interface {
	// SaveArtifact stores data under a key derived from taskID/url and
	// returns the storage key to persist alongside the artifact's row.
	SaveArtifact(ctx context.Context, taskID, url string, data []byte, contentType string) (string, error)
	// GetArtifact retrieves a previously stored artifact by its storage key.
	GetArtifact(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// DeleteArtifact removes a stored artifact.
	DeleteArtifact(ctx context.Context, storageKey string) error
}
