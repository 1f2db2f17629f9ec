// Package gcs archives snapshots in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the bucket to write to.
type Config struct {
	Bucket string `mapstructure:"bucket"`
}

// writerFactory opens a writer for one object; *storage.Writer in production.
type writerFactory func(ctx context.Context, path, contentType string) io.WriteCloser

// BlobStore writes objects to a configured bucket.
type BlobStore struct {
	bucket    string
	newWriter writerFactory
}

// New creates a bucket-backed store. The bucket is checked up front so a
// misconfiguration fails at start-up rather than after a full crawl.
func New(ctx context.Context, client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	bkt := client.Bucket(cfg.Bucket)
	if _, err := bkt.Attrs(ctx); err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	return newBlobStore(cfg.Bucket, func(ctx context.Context, path, contentType string) io.WriteCloser {
		w := bkt.Object(path).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		return w
	}), nil
}

func newBlobStore(bucket string, factory writerFactory) *BlobStore {
	return &BlobStore{bucket: bucket, newWriter: factory}
}

// PutObject uploads data and returns a gs:// URI. The object only becomes
// visible once the writer closes successfully.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := s.newWriter(ctx, path, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
