package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/examforge/internal/logger"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.fail != nil {
		return m.fail
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

var _ ObjectStorage = (*memStorage)(nil)

func (m *memStorage) EnsureBucket(context.Context) error { return nil }

func (m *memStorage) GetURL(key string) string { return "https://cdn.example.com/" + key }

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func TestPublisherUploadsUnderPrefix(t *testing.T) {
	local := filepath.Join(t.TempDir(), "exam_001.md")
	require.NoError(t, os.WriteFile(local, []byte("# Exam"), 0o644))

	store := newMemStorage()
	p := NewPublisher(store, "/exams/", logger.Discard())

	url, err := p.Publish(context.Background(), "batch-1/exam_001.md", local, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/exams/batch-1/exam_001.md", url)
	assert.Equal(t, []byte("# Exam"), store.objects["exams/batch-1/exam_001.md"])
	assert.Equal(t, "text/markdown", store.types["exams/batch-1/exam_001.md"])
}

func TestPublisherErrors(t *testing.T) {
	store := newMemStorage()
	p := NewPublisher(store, "", logger.Discard())

	_, err := p.Publish(context.Background(), "k", filepath.Join(t.TempDir(), "missing"), "text/plain")
	assert.ErrorIs(t, err, os.ErrNotExist)

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	store.fail = errors.New("bucket gone")
	_, err = p.Publish(context.Background(), "k", local, "text/plain")
	assert.EqualError(t, err, "bucket gone")
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://abc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "s3.amazonaws.com", normalizeEndpoint("https://s3.amazonaws.com/bucket/path"))
}
