package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSArchive writes gzip-encoded export objects into a private bucket.
// Objects are never made public; readers get a V4 signed link instead.
type GCSArchive struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
}

func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	if bucket == "" {
		return nil, errors.New("gcs archive: bucket is empty")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSArchive{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

func (a *GCSArchive) Put(ctx context.Context, object, contentType string, body io.Reader) (string, error) {
	w := a.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.ContentEncoding = "gzip"
	w.Metadata = map[string]string{"kind": "user-export"}

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", object, err)
	}
	return "gs://" + a.name + "/" + object, nil
}

func (a *GCSArchive) Link(_ context.Context, object string, ttl time.Duration) (string, error) {
	return a.bucket.SignedURL(object, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
}

func (a *GCSArchive) Close() error { return a.client.Close() }
