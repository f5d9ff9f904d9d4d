// Package gcs archives evidence images to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Archiver uploads image bytes to a GCS bucket and returns the gs:// URI
// recorded on the evidence payload.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewArchiver initializes a GCS client and verifies bucket access.
// Authentication is handled via Application Default Credentials.
func NewArchiver(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*Archiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or inaccessible.
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}

	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// Archive uploads data under path and returns the object's gs:// URI.
func (a *Archiver) Archive(ctx context.Context, path, contentType string, data []byte) (string, error) {
	object := strings.TrimPrefix(path, "/")
	if a.prefix != "" {
		object = a.prefix + "/" + object
	}

	wc := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		// Close anyway to release the writer; the write failure is the
		// error that matters.
		if closeErr := wc.Close(); closeErr != nil {
			a.logger.Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("write GCS object %s: %w", object, err)
	}

	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close GCS writer for object %s: %w", object, err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}

// Close releases the underlying client.
func (a *Archiver) Close() error {
	return a.client.Close()
}
