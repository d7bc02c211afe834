package storage

import (
	"context"
	"io"
)

// ObjectStore archives per-task artifacts (manifest snapshots). Archival is
// best-effort from the pipeline's point of view; implementations still return
// errors so failures can be logged.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error
}
