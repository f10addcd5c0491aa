package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/timmy/examforge/internal/cache"
	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/fileutil"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/render"
)

// ContentCache stores rendered documents by canonical content.
type ContentCache interface {
	Get(content string) (string, bool)
	Put(content string, data []byte) (string, error)
}

// Publisher uploads a local document and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, key, localPath, contentType string) (string, error)
}

// ItemSink receives per-item lifecycle callbacks from a running pool.
// Calls may arrive concurrently.
type ItemSink interface {
	ItemStarted(item WorkItem)
	ItemFinished(res WorkResult)
}

// WorkerPool executes work items with bounded parallelism.
type WorkerPool struct {
	renderer  render.Renderer
	cache     ContentCache
	publisher Publisher
	log       *logger.Logger
}

// NewWorkerPool creates a new WorkerPool.
// Parameters:
//   - renderer: produces document bytes.
//   - contentCache: optional, consulted before rendering and filled after.
//   - publisher: optional, used for items that request publishing.
//   - log: base logger, falls back to the default logger.
func NewWorkerPool(renderer render.Renderer, contentCache ContentCache, publisher Publisher, log *logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetDefault()
	}
	return &WorkerPool{
		renderer:  renderer,
		cache:     contentCache,
		publisher: publisher,
		log:       log.WithField(logger.FieldComponent, "worker_pool"),
	}
}

func (p *WorkerPool) logFor(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, p.log)
}

// Run executes items with at most parallelism running at once and blocks
// until every started item has finished. New items are not started once ctx
// is done or while gate is paused; items already running finish regardless.
// A pause that lands between the gate check and the item's start lets that
// one item through, so it runs as in-flight work of the paused batch.
// It returns the number of items that were started.
func (p *WorkerPool) Run(ctx context.Context, items []WorkItem, parallelism int, gate Gate, sink ItemSink) int {
	if parallelism < 1 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(int64(parallelism))
	execCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	started := 0

dispatch:
	for _, item := range items {
		if !p.acquire(ctx, sem, gate) {
			break dispatch
		}

		started++
		wg.Add(1)
		go func(item WorkItem) {
			defer wg.Done()
			defer sem.Release(1)

			if sink != nil {
				sink.ItemStarted(item)
			}
			res := p.Execute(execCtx, item)
			if sink != nil {
				sink.ItemFinished(res)
			}
		}(item)
	}

	wg.Wait()
	return started
}

// acquire takes a slot once the gate is open. It returns false when ctx is
// done. A pause that lands while waiting for a slot gives the slot back.
func (p *WorkerPool) acquire(ctx context.Context, sem *semaphore.Weighted, gate Gate) bool {
	for {
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return false
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return false
		}
		if ctx.Err() != nil {
			sem.Release(1)
			return false
		}
		if gate != nil && gate.Paused() {
			sem.Release(1)
			continue
		}
		return true
	}
}

// Execute generates one item: the document, then its answer key when
// requested. A panic is converted into an item failure.
func (p *WorkerPool) Execute(ctx context.Context, item WorkItem) (res WorkResult) {
	start := time.Now()
	res.Item = item
	log := p.logFor(ctx).WithFields(logger.Fields{
		logger.FieldBatchID:   item.BatchID,
		logger.FieldItemIndex: item.Index,
	})

	defer func() {
		if r := recover(); r != nil {
			res.File, res.AnswerKey = nil, nil
			res.Err = &domain.ItemGenerationError{
				Index:      item.Index,
				DocumentID: item.DocumentID,
				Stage:      "panic",
				Err:        fmt.Errorf("%v", r),
			}
			log.WithField("panic", r).Error("Work item panicked")
		}
		res.Duration = time.Since(start)
	}()

	file, hit, err := p.produce(ctx, log, &item, item.OutputPath, false)
	if err != nil {
		res.Err = err
		log.WithError(err).Warn("Work item failed")
		return res
	}
	res.File = file
	res.CacheHit = hit

	if item.AnswerKeyPath != "" {
		key, _, err := p.produce(ctx, log, &item, item.AnswerKeyPath, true)
		if err != nil {
			res.File = nil
			res.Err = err
			log.WithError(err).Warn("Answer key generation failed")
			return res
		}
		res.AnswerKey = key
	}

	if item.Publish && p.publisher != nil {
		p.publish(ctx, log, &item, res.File)
		if res.AnswerKey != nil {
			p.publish(ctx, log, &item, res.AnswerKey)
		}
	}

	logger.With(logger.Fields{"cache_hit": hit}).
		WithDuration(time.Since(start)).
		WithSize(file.Size).
		Debug(ctx, "Work item %d completed: %s", item.Index, item.FileName)
	return res
}

// produce writes one document to outputPath, from the cache when possible.
func (p *WorkerPool) produce(ctx context.Context, log *logger.Logger, item *WorkItem, outputPath string, answerKey bool) (*domain.GeneratedFileInfo, bool, error) {
	req := item.renderRequest(outputPath, answerKey)
	fail := func(stage string, err error) error {
		return &domain.ItemGenerationError{Index: item.Index, DocumentID: item.DocumentID, Stage: stage, Err: err}
	}

	content, err := render.CanonicalContent(ctx, p.renderer, req)
	if err != nil {
		return nil, false, fail("render", err)
	}

	if p.cache != nil {
		if blob, ok := p.cache.Get(content); ok {
			n, err := fileutil.CopyAtomic(blob, outputPath)
			if err == nil {
				return newFileInfo(item, outputPath, n, answerKey), true, nil
			}
			log.WithError(err).WithField(logger.FieldCacheKey, cache.Key(content)).
				Warn("Failed to copy cached document, rendering instead")
		}
	}

	out, err := p.renderer.Render(ctx, req)
	if err != nil {
		return nil, false, fail("render", err)
	}
	if out == nil {
		return nil, false, fail("render", errors.New("renderer returned no result"))
	}

	data := out.Data
	if len(data) > 0 {
		if err := fileutil.WriteAtomic(outputPath, data); err != nil {
			return nil, false, fail("write", err)
		}
	} else {
		src := out.OutputPath
		if src == "" {
			src = outputPath
		}
		if data, err = os.ReadFile(src); err != nil {
			return nil, false, fail("write", err)
		}
		if filepath.Clean(src) != filepath.Clean(outputPath) {
			if err := fileutil.WriteAtomic(outputPath, data); err != nil {
				return nil, false, fail("write", err)
			}
		}
	}
	if len(data) == 0 {
		return nil, false, fail("render", errors.New("renderer produced an empty document"))
	}

	if p.cache != nil {
		if _, err := p.cache.Put(content, data); err != nil {
			warn := &domain.CacheWriteWarning{Key: cache.Key(content), Err: err}
			log.WithError(warn).Warn("Failed to cache document")
		}
	}

	return newFileInfo(item, outputPath, int64(len(data)), answerKey), false, nil
}

func (p *WorkerPool) publish(ctx context.Context, log *logger.Logger, item *WorkItem, file *domain.GeneratedFileInfo) {
	rel, err := filepath.Rel(item.OutputDir, file.Path)
	if err != nil {
		rel = file.FileName
	}
	key := path.Join(item.PublishPrefix, item.BatchID, filepath.ToSlash(rel))

	url, err := p.publisher.Publish(ctx, key, file.Path, item.Format.ContentType())
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to publish document")
		return
	}
	file.URL = url
}

func newFileInfo(item *WorkItem, outputPath string, size int64, answerKey bool) *domain.GeneratedFileInfo {
	return &domain.GeneratedFileInfo{
		FileName:   filepath.Base(outputPath),
		Path:       outputPath,
		Size:       size,
		CreatedAt:  time.Now(),
		DocumentID: item.DocumentID,
		ItemIndex:  item.Index,
		AnswerKey:  answerKey,
	}
}
