package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"videoreach-engine/pkg/config"

	"github.com/minio/minio-go/v7"
)

// BlobStore uploads rendered videos and hands back a public URL.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
}

type MinioBlobStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioBlobStore(client *minio.Client, cfg *config.Config) *MinioBlobStore {
	return &MinioBlobStore{
		client:    client,
		bucket:    cfg.Minio.BucketName,
		publicURL: strings.TrimSuffix(cfg.Minio.PublicURL, "/"),
	}
}

func (s *MinioBlobStore) Upload(ctx context.Context, path string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, path), nil
}
