package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/notify"
	"github.com/timmy/examforge/internal/render"
)

const (
	maxHistoryPageSize = 100
	defaultMaxCount    = 10000
	sideEffectTimeout  = 30 * time.Second
)

// Archive persists terminal batches.
type Archive interface {
	Save(ctx context.Context, rec *domain.BatchRecord) error
	List(ctx context.Context, limit, offset int) ([]domain.BatchRecord, int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers the terminal event of an advanced batch.
type Notifier interface {
	Dispatch(ctx context.Context, ev *notify.Event, opts domain.NotificationOptions) error
}

// BatchConfig holds the orchestrator defaults.
type BatchConfig struct {
	DefaultParallelism int
	MaxParallelism     int
	MaxCount           int // upper bound on documents per batch
	DefaultPageSize    int
	MaxPageSize        int
	FilePrefix         string
	DefaultFormat      domain.OutputFormat
	DefaultTemplate    string
}

// BatchDependencies are the collaborators of a BatchService. Only Renderer
// is required.
type BatchDependencies struct {
	Renderer     render.Renderer
	Cache        ContentCache
	QuestionSets QuestionSetLookup
	Archive      Archive
	Publisher    Publisher
	Notifier     Notifier
	Logger       *logger.Logger
}

// BatchService accepts batch requests, runs them in the background and
// answers queries about them.
type BatchService struct {
	pool     *WorkerPool
	reports  *ReportBuilder
	archive  Archive
	notifier Notifier
	validate *validator.Validate
	log      *logger.Logger
	cfg      BatchConfig

	baseCtx    context.Context
	stopAll    context.CancelFunc
	mu         sync.RWMutex
	jobs       map[string]*BatchJob
	running    sync.WaitGroup
	shutdownMu sync.Mutex
	closed     bool
}

// NewBatchService creates a new BatchService.
// Parameters:
//   - deps: collaborators; nil optional ones disable their feature.
//   - cfg: defaults applied to incoming requests.
//
// Returns:
//   - *BatchService: ready to accept submissions.
//   - error: when no renderer is given.
func NewBatchService(deps BatchDependencies, cfg *BatchConfig) (*BatchService, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("batch service requires a renderer")
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	log = log.WithField(logger.FieldComponent, "batch")

	var c BatchConfig
	if cfg != nil {
		c = *cfg
	}
	if c.DefaultParallelism <= 0 {
		c.DefaultParallelism = 4
	}
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = 32
	}
	if c.DefaultParallelism > c.MaxParallelism {
		c.DefaultParallelism = c.MaxParallelism
	}
	if c.MaxCount <= 0 {
		c.MaxCount = defaultMaxCount
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 20
	}
	if c.MaxPageSize <= 0 || c.MaxPageSize > maxHistoryPageSize {
		c.MaxPageSize = maxHistoryPageSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = DefaultFilePrefix
	}
	if c.DefaultFormat == "" {
		c.DefaultFormat = domain.FormatMarkdown
	}
	if c.DefaultTemplate == "" {
		c.DefaultTemplate = render.DefaultTemplateID
	}

	baseCtx, stopAll := context.WithCancel(context.Background())
	return &BatchService{
		pool:     NewWorkerPool(deps.Renderer, deps.Cache, deps.Publisher, log),
		reports:  NewReportBuilder(deps.QuestionSets, log),
		archive:  deps.Archive,
		notifier: deps.Notifier,
		validate: newValidator(),
		log:      log,
		cfg:      c,
		baseCtx:  baseCtx,
		stopAll:  stopAll,
		jobs:     make(map[string]*BatchJob),
	}, nil
}

func (s *BatchService) logFor(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.log)
}

// Submit validates req and starts a basic batch. Advanced options are ignored.
// It returns as soon as the job is registered.
func (s *BatchService) Submit(ctx context.Context, req *domain.BatchRequest) (string, error) {
	return s.submit(ctx, req, false)
}

// SubmitAdvanced starts a batch that honours req.Advanced and can be paused.
func (s *BatchService) SubmitAdvanced(ctx context.Context, req *domain.BatchRequest) (string, error) {
	return s.submit(ctx, req, true)
}

func (s *BatchService) submit(ctx context.Context, in *domain.BatchRequest, advanced bool) (string, error) {
	if in == nil {
		return "", domain.NewValidationError("", "request is required")
	}
	req, err := s.prepare(in, advanced)
	if err != nil {
		return "", err
	}

	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if s.closed {
		return "", fmt.Errorf("batch service is shut down")
	}

	now := time.Now()
	id := uuid.NewString()
	items := buildItems(id, req, now)

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	job := newBatchJob(id, req, advanced, len(items), cancel, now)
	jobCtx = s.logFor(ctx).WithField(logger.FieldBatchID, id).WithContext(jobCtx)

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.logFor(ctx).WithFields(logger.Fields{
		logger.FieldBatchID: id,
		logger.FieldCount:   len(items),
		"advanced":          advanced,
		"format":            req.Format,
		"output_dir":        req.OutputDir,
	}).Info("Batch submitted")

	s.running.Add(1)
	go s.run(jobCtx, job, items)
	return id, nil
}

// prepare copies the request, fills defaults and validates it. The output
// directory is created here so an unwritable location fails the submission.
func (s *BatchService) prepare(in *domain.BatchRequest, advanced bool) (*domain.BatchRequest, error) {
	req := *in
	req.QuestionSetIDs = append([]string(nil), in.QuestionSetIDs...)
	if advanced {
		adv := domain.AdvancedOptions{}
		if in.Advanced != nil {
			adv = *in.Advanced
			adv.Notification.Emails = append([]string(nil), in.Advanced.Notification.Emails...)
		}
		req.Advanced = &adv
	} else {
		req.Advanced = nil
	}

	req.OutputDir = strings.TrimSpace(req.OutputDir)
	if req.Format == "" {
		req.Format = s.cfg.DefaultFormat
	}
	if req.TemplateID == "" {
		req.TemplateID = s.cfg.DefaultTemplate
	}
	if req.FilePrefix == "" {
		req.FilePrefix = s.cfg.FilePrefix
	}

	if err := s.validate.Struct(&req); err != nil {
		return nil, toValidationError(err)
	}
	if req.Count > s.cfg.MaxCount {
		return nil, domain.NewValidationError("count", fmt.Sprintf("must be at most %d", s.cfg.MaxCount))
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, domain.NewValidationError("output_dir", err.Error())
	}
	return &req, nil
}

func (s *BatchService) parallelism(req *domain.BatchRequest) int {
	p := req.Parallelism
	if p <= 0 {
		p = s.cfg.DefaultParallelism
	}
	if p > s.cfg.MaxParallelism {
		p = s.cfg.MaxParallelism
	}
	return p
}

// run drives one job to a terminal status.
func (s *BatchService) run(ctx context.Context, job *BatchJob, items []WorkItem) {
	defer s.running.Done()
	log := s.logFor(ctx)

	var aborted error
	func() {
		defer func() {
			if r := recover(); r != nil {
				aborted = fmt.Errorf("batch aborted: %v", r)
				log.WithField("panic", r).Error("Batch run panicked")
			}
		}()

		if !job.start(time.Now()) {
			return
		}
		var gate Gate
		if job.gate != nil {
			gate = job.gate
		}
		parallelism := s.parallelism(&job.req)
		log.WithField("parallelism", parallelism).Info("Batch started")

		started := s.pool.Run(ctx, items, parallelism, gate, job)
		log.WithField("started", started).Debug("Worker pool drained")
	}()

	status := job.finish(aborted, time.Now())
	job.cancel()
	s.complete(ctx, job, status)
}

// complete runs the terminal side effects and releases waiters.
func (s *BatchService) complete(ctx context.Context, job *BatchJob, status domain.BatchStatus) {
	defer close(job.done)

	p := job.Progress(time.Now())
	log := s.logFor(ctx)
	logger.With(logger.Fields{
		"completed": p.Completed,
		"failed":    p.Failed,
		"skipped":   p.Skipped,
	}).WithCount(p.Total).WithStatus(string(status)).WithDuration(p.Elapsed).
		Info(ctx, "Batch finished: %d of %d documents generated", p.Completed, p.Total)

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.archive != nil {
		if err := s.archive.Save(sideCtx, job.record()); err != nil {
			log.WithError(err).Warn("Failed to archive batch")
		}
	}

	if s.notifier != nil && job.advanced && !job.req.Advanced.Notification.Empty() {
		ev := s.event(job, p)
		if err := s.notifier.Dispatch(sideCtx, ev, job.req.Advanced.Notification); err != nil {
			log.WithError(err).Warn("Batch notification incomplete")
		}
	}
}

func (s *BatchService) event(job *BatchJob, p *domain.Progress) *notify.Event {
	snap := job.snapshot()
	ev := &notify.Event{
		BatchID:    p.BatchID,
		Status:     p.Status,
		Total:      p.Total,
		Completed:  p.Completed,
		Failed:     p.Failed,
		Skipped:    p.Skipped,
		OutputDir:  job.req.OutputDir,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
		Errors:     p.Errors,
	}
	for _, f := range snap.files {
		if f.URL != "" {
			ev.FileURLs = append(ev.FileURLs, f.URL)
		}
	}
	return ev
}

func (s *BatchService) job(id string) (*BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return job, nil
}

// GetProgress returns a snapshot of the batch.
func (s *BatchService) GetProgress(id string) (*domain.Progress, error) {
	job, err := s.job(id)
	if err != nil {
		return nil, err
	}
	return job.Progress(time.Now()), nil
}

// Cancel stops a batch from starting new items. Running items finish and the
// job then becomes cancelled. Cancelling a terminal batch fails with
// ErrInvalidTransition.
func (s *BatchService) Cancel(id string) error {
	job, err := s.job(id)
	if err != nil {
		return err
	}
	if err := job.requestCancel(); err != nil {
		return err
	}
	s.log.WithField(logger.FieldBatchID, id).Info("Batch cancel requested")
	return nil
}

// Pause holds back new items of an advanced batch. In-flight items finish.
func (s *BatchService) Pause(id string) error {
	job, err := s.job(id)
	if err != nil {
		return err
	}
	if err := job.pause(); err != nil {
		return err
	}
	s.log.WithField(logger.FieldBatchID, id).Info("Batch paused")
	return nil
}

// Resume lets a paused batch start new items again.
func (s *BatchService) Resume(id string) error {
	job, err := s.job(id)
	if err != nil {
		return err
	}
	if err := job.resume(); err != nil {
		return err
	}
	s.log.WithField(logger.FieldBatchID, id).Info("Batch resumed")
	return nil
}

// Wait blocks until the batch is terminal or ctx is done.
func (s *BatchService) Wait(ctx context.Context, id string) (*domain.Progress, error) {
	job, err := s.job(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-job.Done():
		return job.Progress(time.Now()), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetReport returns the statistics report of a terminal batch. The report
// is built once and reused.
func (s *BatchService) GetReport(ctx context.Context, id string) (*domain.BatchReport, error) {
	job, err := s.job(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-job.Done():
	default:
		return nil, fmt.Errorf("batch %s has no report until it finishes: %w", id, domain.ErrNotFound)
	}

	job.mu.Lock()
	cached := job.report
	job.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	report := s.reports.Build(ctx, job.snapshot())

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.report == nil {
		job.report = report
	}
	return job.report, nil
}

// GetHistory lists known batches newest first. pageSize is clamped to
// [1, MaxPageSize] and pageNumber starts at 1.
func (s *BatchService) GetHistory(pageSize, pageNumber int) *domain.PagedResult[domain.BatchSummary] {
	pageSize, pageNumber = s.page(pageSize, pageNumber)

	s.mu.RLock()
	all := make([]domain.BatchSummary, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		if all[i].CreatedAt.Equal(all[k].CreatedAt) {
			return all[i].BatchID > all[k].BatchID
		}
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})

	res := &domain.PagedResult[domain.BatchSummary]{
		Items:      []domain.BatchSummary{},
		Total:      len(all),
		PageSize:   pageSize,
		PageNumber: pageNumber,
		TotalPages: totalPages(len(all), pageSize),
	}
	start := (pageNumber - 1) * pageSize
	if start < len(all) {
		end := min(start+pageSize, len(all))
		res.Items = all[start:end]
	}
	return res
}

// GetArchived lists archived batches, most recently finished first.
func (s *BatchService) GetArchived(ctx context.Context, pageSize, pageNumber int) (*domain.PagedResult[domain.BatchRecord], error) {
	pageSize, pageNumber = s.page(pageSize, pageNumber)
	res := &domain.PagedResult[domain.BatchRecord]{
		Items:      []domain.BatchRecord{},
		PageSize:   pageSize,
		PageNumber: pageNumber,
	}
	if s.archive == nil {
		return res, nil
	}

	recs, total, err := s.archive.List(ctx, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list archived batches: %w", err)
	}
	if recs != nil {
		res.Items = recs
	}
	res.Total = int(total)
	res.TotalPages = totalPages(int(total), pageSize)
	return res, nil
}

func (s *BatchService) page(pageSize, pageNumber int) (int, int) {
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	return pageSize, pageNumber
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Cleanup forgets terminal batches that finished at least olderThanDays days
// ago and purges matching archive rows. Running batches are never removed.
// It returns the number of batches removed from memory.
func (s *BatchService) Cleanup(ctx context.Context, olderThanDays int) int {
	if olderThanDays < 0 {
		olderThanDays = 0
	}
	cutoff := time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	s.mu.Lock()
	removed := 0
	for id, job := range s.jobs {
		if job.finishedBefore(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	s.mu.Unlock()

	log := s.logFor(ctx).WithFields(logger.Fields{
		logger.FieldCount: removed,
		"older_than_days": olderThanDays,
	})
	if s.archive != nil {
		purged, err := s.archive.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			log.WithError(err).Warn("Failed to purge archived batches")
		} else {
			log = log.WithField("archived_purged", purged)
		}
	}
	log.Info("Batch cleanup completed")
	return removed
}

// Shutdown cancels every live batch and waits for them to drain or for ctx
// to be done. No submissions are accepted afterwards.
func (s *BatchService) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.closed = true
	s.shutdownMu.Unlock()

	s.mu.RLock()
	for _, job := range s.jobs {
		_ = job.requestCancel()
	}
	s.mu.RUnlock()
	s.stopAll()

	drained := make(chan struct{})
	go func() {
		s.running.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch service shutdown: %w", ctx.Err())
	}
}
