package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key         string
	body        string
	size        int64
	contentType string
	err         error
}

func (f *fakeUploader) UploadFile(_ context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.key, f.body, f.size, f.contentType = key, string(b), size, contentType
	return nil
}

func TestReplicateUploadsUnderVersionKey(t *testing.T) {
	p := filepath.Join(t.TempDir(), "A01VA004_v2.0.pdf")
	require.NoError(t, os.WriteFile(p, []byte("released"), 0o644))

	up := &fakeUploader{}
	key, err := NewReplicator(up).Replicate(context.Background(), "A01VA004", 2, p)
	require.NoError(t, err)

	assert.Equal(t, "A01VA004/v2/A01VA004_v2.0.pdf", key)
	assert.Equal(t, key, up.key)
	assert.Equal(t, "released", up.body)
	assert.Equal(t, int64(8), up.size)
	assert.Equal(t, "application/pdf", up.contentType)
}

func TestReplicateReportsFailures(t *testing.T) {
	_, err := NewReplicator(&fakeUploader{}).Replicate(context.Background(), "A01VA004", 2, filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	_, err = NewReplicator(&fakeUploader{err: errors.New("bucket gone")}).Replicate(context.Background(), "A01VA004", 2, p)
	require.ErrorContains(t, err, "bucket gone")
}
