package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/render"
)

// fileRenderer writes the document itself and reports only the path.
type fileRenderer struct {
	dir string
}

func (f *fileRenderer) Render(_ context.Context, req *render.Request) (*render.Result, error) {
	path := filepath.Join(f.dir, req.DocumentID+".pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o644); err != nil {
		return nil, err
	}
	return &render.Result{OutputPath: path}, nil
}

type emptyRenderer struct{}

func (emptyRenderer) Render(context.Context, *render.Request) (*render.Result, error) {
	return &render.Result{}, nil
}

// failingCache always misses and never stores.
type failingCache struct {
	puts int
}

func (c *failingCache) Get(string) (string, bool) { return "", false }

func (c *failingCache) Put(string, []byte) (string, error) {
	c.puts++
	return "", errors.New("disk full")
}

type sinkRecorder struct {
	mu       sync.Mutex
	started  []int
	finished []WorkResult
}

func (s *sinkRecorder) ItemStarted(item WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, item.Index)
}

func (s *sinkRecorder) ItemFinished(res WorkResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, res)
}

func testItem(dir string, index int) WorkItem {
	return WorkItem{
		BatchID:       "b1",
		Index:         index,
		DocumentID:    "doc-" + string(rune('a'+index)),
		QuestionSetID: "algebra",
		TemplateID:    "default",
		Format:        domain.FormatPDF,
		FileName:      "exam.pdf",
		OutputDir:     dir,
		OutputPath:    filepath.Join(dir, "exam.pdf"),
	}
}

func TestWorkerPool_ExecuteCopiesRendererOutputFile(t *testing.T) {
	scratch := t.TempDir()
	out := t.TempDir()
	pool := NewWorkerPool(&fileRenderer{dir: scratch}, nil, nil, logger.Discard())

	res := pool.Execute(context.Background(), testItem(out, 1))
	require.NoError(t, res.Err)
	require.NotNil(t, res.File)
	assert.Equal(t, int64(len("%PDF-1.7")), res.File.Size)

	data, err := os.ReadFile(filepath.Join(out, "exam.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestWorkerPool_CacheWriteFailureDoesNotFailItem(t *testing.T) {
	c := &failingCache{}
	pool := NewWorkerPool(&fileRenderer{dir: t.TempDir()}, c, nil, logger.Discard())

	res := pool.Execute(context.Background(), testItem(t.TempDir(), 1))
	assert.NoError(t, res.Err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, c.puts)
}

func TestWorkerPool_EmptyDocumentFails(t *testing.T) {
	out := t.TempDir()
	item := testItem(out, 2)
	item.OutputPath = filepath.Join(out, "missing", "exam.pdf")
	pool := NewWorkerPool(emptyRenderer{}, nil, nil, logger.Discard())

	res := pool.Execute(context.Background(), item)
	require.Error(t, res.Err)
	var ie *domain.ItemGenerationError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, 2, ie.Index)
	assert.Nil(t, res.File)
}

func TestWorkerPool_RunStopsOnCancelledContext(t *testing.T) {
	pool := NewWorkerPool(newFakeRenderer(), nil, nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &sinkRecorder{}
	dir := t.TempDir()
	started := pool.Run(ctx, []WorkItem{testItem(dir, 1), testItem(dir, 2)}, 2, nil, sink)
	assert.Equal(t, 0, started)
	assert.Empty(t, sink.finished)
}

func TestWorkerPool_RunReportsEveryItem(t *testing.T) {
	pool := NewWorkerPool(newFakeRenderer(), nil, nil, logger.Discard())
	dir := t.TempDir()
	items := make([]WorkItem, 0, 4)
	for i := 1; i <= 4; i++ {
		item := testItem(dir, i)
		item.Format = domain.FormatMarkdown
		item.OutputPath = filepath.Join(dir, FileName("", NameVars{Prefix: "exam", Index: i})+".md")
		items = append(items, item)
	}

	sink := &sinkRecorder{}
	started := pool.Run(context.Background(), items, 2, nil, sink)
	assert.Equal(t, 4, started)
	assert.Len(t, sink.started, 4)
	require.Len(t, sink.finished, 4)
	for _, res := range sink.finished {
		assert.True(t, res.Succeeded())
		assert.Greater(t, res.Duration, time.Duration(0))
	}
}

func TestPauseGate(t *testing.T) {
	g := newPauseGate()
	assert.False(t, g.Paused())
	require.NoError(t, g.Wait(context.Background()))

	assert.True(t, g.Pause())
	assert.False(t, g.Pause())
	assert.True(t, g.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	released := make(chan struct{})
	go func() {
		_ = g.Wait(context.Background())
		close(released)
	}()
	assert.True(t, g.Resume())
	assert.False(t, g.Resume())

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Resume")
	}
}
