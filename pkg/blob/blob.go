// Package blob provides read and signed-URL access to the document blob
// store, backed by Google Cloud Storage. Writes never go through the
// services; uploaders PUT directly against signed URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
)

// GCS reads objects and signs upload URLs on a Google Cloud Storage bucket.
// Consumers depend on their own narrow interfaces rather than this type.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCS opens a GCS client against the named bucket using ambient
// credentials.
func NewGCS(ctx context.Context, bucketName string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(bucketName),
	}, nil
}

// Get reads the full object at key.
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("opening object %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

// SignedUploadURL issues a V4 signed URL that lets the caller PUT the object
// directly, valid for ttl.
func (g *GCS) SignedUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	url, err := g.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     time.Now().Add(ttl),
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("signing upload url for %s: %w", key, err)
	}
	return url, nil
}

// Close releases the underlying storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
