// Package objectstore wraps the S3-compatible backend behind a small
// interface so services and tests never touch the client directly.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosimple/slug"
)

// ObjectInfo is the backend's view of one stored object.
type ObjectInfo struct {
	Name         string
	SizeBytes    int64
	LastModified time.Time
}

type Store interface {
	// EnsureBucket creates the user's bucket if it does not exist yet.
	EnsureBucket(ctx context.Context, username string) error
	Put(ctx context.Context, username, name string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, username, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, username, name string) error
	List(ctx context.Context, username string) ([]ObjectInfo, error)
	// TotalBytes sums the size of every object in the user's bucket.
	TotalBytes(ctx context.Context, username string) (int64, error)
}

// BucketName derives the per-user bucket from the username. Slugging keeps
// the name valid for S3 naming rules regardless of what the user registered
// with.
func BucketName(username string) string {
	return fmt.Sprintf("user-%s", slug.Make(username))
}
