package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// localFileService implements FileService over the local filesystem,
// storing each artifact at baseDir/taskID/<hash of source url>.
type localFileService struct {
	baseDir string
}

// NewLocalFileService creates a local-filesystem-backed FileService.
func NewLocalFileService(baseDir string) interfaces.FileService {
	return &localFileService{baseDir: baseDir}
}

func (s *localFileService) SaveArtifact(
	ctx context.Context, taskID, url string, data []byte, contentType string,
) (string, error) {
	dir := filepath.Join(s.baseDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Errorf(ctx, "failed to create artifact directory: %v", err)
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	sum := sha256.Sum256([]byte(url))
	filePath := filepath.Join(dir, hex.EncodeToString(sum[:])[:16])
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		logger.Errorf(ctx, "failed to write artifact: %v", err)
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	logger.Infof(ctx, "artifact saved: %s", filePath)
	return filePath, nil
}

func (s *localFileService) GetArtifact(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	f, err := os.Open(storageKey)
	if err != nil {
		logger.Errorf(ctx, "failed to open artifact: %v", err)
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

func (s *localFileService) DeleteArtifact(ctx context.Context, storageKey string) error {
	if err := os.Remove(storageKey); err != nil {
		logger.Errorf(ctx, "failed to delete artifact: %v", err)
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
