// Package storage keeps export archives in object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Archive stores an object and reports where it landed.
type Archive interface {
	Put(ctx context.Context, object, contentType string, body io.Reader) (location string, err error)
}

// Linker hands out time-limited read links for archived objects.
type Linker interface {
	Link(ctx context.Context, object string, ttl time.Duration) (string, error)
}

func ExportObjectName(userID string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%s.json.gz", userID, at.UTC().Format("20060102T150405Z"))
}
