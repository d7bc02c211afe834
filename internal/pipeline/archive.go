package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"deployer-backend/internal/sitegen"
	"deployer-backend/internal/storage"
)

// Archiver snapshots each generated manifest to the object store so a
// deployment can be inspected or replayed after the repo diverges.
type Archiver struct {
	store  storage.ObjectStore
	bucket string
}

func NewArchiver(store storage.ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

func (a *Archiver) EnsureBucket(ctx context.Context) error {
	return a.store.CreateBucket(ctx, a.bucket)
}

func (a *Archiver) ArchiveManifest(ctx context.Context, taskId uuid.UUID, m *sitegen.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("serializing manifest snapshot: %w", err)
	}

	key := fmt.Sprintf("tasks/%s/manifest.json", taskId)
	if err := a.store.PutObject(ctx, a.bucket, key, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("archiving manifest snapshot: %w", err)
	}
	return nil
}
