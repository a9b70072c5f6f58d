package file

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioFileService is the MinIO-backed research-artifact store.
type minioFileService struct {
	client     *minio.Client
	bucketName string
}

// NewMinioFileService creates a MinIO-backed FileService, creating the
// bucket if it does not already exist.
func NewMinioFileService(endpoint,
	accessKeyID, secretAccessKey, bucketName string, useSSL bool) (interfaces.FileService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &minioFileService{client: client, bucketName: bucketName}, nil
}

// SaveArtifact stores a source's raw/extracted content under a key derived
// from the task id and source URL.
func (s *minioFileService) SaveArtifact(
	ctx context.Context, taskID, url string, data []byte, contentType string,
) (string, error) {
	objectName := artifactObjectName(taskID, url)
	_, err := s.client.PutObject(ctx, s.bucketName, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact to MinIO: %w", err)
	}
	return fmt.Sprintf("minio://%s/%s", s.bucketName, objectName), nil
}

func (s *minioFileService) GetArtifact(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	objectName, err := stripMinioPrefix(storageKey, s.bucketName)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact from MinIO: %w", err)
	}
	return obj, nil
}

func (s *minioFileService) DeleteArtifact(ctx context.Context, storageKey string) error {
	objectName, err := stripMinioPrefix(storageKey, s.bucketName)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{GovernanceBypass: true}); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func stripMinioPrefix(storageKey, bucketName string) (string, error) {
	prefix := "minio://" + bucketName + "/"
	if len(storageKey) <= len(prefix) || storageKey[:len(prefix)] != prefix {
		return "", fmt.Errorf("invalid MinIO storage key: %s", storageKey)
	}
	return storageKey[len(prefix):], nil
}

// artifactObjectName derives a stable object key from a task id and source
// URL, so re-fetching the same URL within a task overwrites its prior
// artifact instead of accumulating duplicates.
func artifactObjectName(taskID, url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s/%s", taskID, hex.EncodeToString(sum[:])[:16])
}
