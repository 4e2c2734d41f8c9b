package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// Uploader is the object store operation the replicator needs.
type Uploader interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Replicator copies released artifacts to an object store. The local tree
// stays authoritative; replication is best effort.
type Replicator struct {
	up Uploader
}

func NewReplicator(up Uploader) *Replicator {
	return &Replicator{up: up}
}

// ObjectKey is "<doc_id>/v<major>/<file>".
func ObjectKey(docID string, major int, path string) string {
	return fmt.Sprintf("%s/v%d/%s", docID, major, filepath.Base(path))
}

// Replicate uploads path and returns the object key.
func (r *Replicator) Replicate(ctx context.Context, docID string, major int, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := ObjectKey(docID, major, path)
	if err := r.up.UploadFile(ctx, key, f, st.Size(), contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
