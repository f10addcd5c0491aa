package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/timmy/examforge/internal/domain"
)

// BatchJob is the mutable state of one batch. All fields are guarded by mu;
// readers get copies through snapshot methods.
type BatchJob struct {
	id       string
	req      domain.BatchRequest
	advanced bool
	total    int

	cancel context.CancelFunc
	gate   *pauseGate // nil for basic jobs
	done   chan struct{}

	mu              sync.Mutex
	status          domain.BatchStatus
	completed       int
	failed          int
	cacheHits       int
	totalBytes      int64
	itemTime        time.Duration
	createdAt       time.Time
	startedAt       *time.Time
	finishedAt      *time.Time
	currentItem     string
	cancelRequested bool
	files           []domain.GeneratedFileInfo
	answerKeys      []domain.GeneratedFileInfo
	errors          []string
	docsPerSet      map[string]int
	report          *domain.BatchReport
}

func newBatchJob(id string, req *domain.BatchRequest, advanced bool, total int, cancel context.CancelFunc, now time.Time) *BatchJob {
	job := &BatchJob{
		id:         id,
		req:        *req,
		advanced:   advanced,
		total:      total,
		cancel:     cancel,
		done:       make(chan struct{}),
		status:     domain.BatchStatusCreated,
		createdAt:  now,
		docsPerSet: make(map[string]int),
	}
	if advanced {
		job.gate = newPauseGate()
	}
	return job
}

// ID returns the batch id.
func (j *BatchJob) ID() string { return j.id }

// Done is closed once the job reaches a terminal status and its terminal
// side effects have run.
func (j *BatchJob) Done() <-chan struct{} { return j.done }

// Status returns the current status.
func (j *BatchJob) Status() domain.BatchStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// transitionLocked moves the job to next. Callers hold mu.
func (j *BatchJob) transitionLocked(next domain.BatchStatus) error {
	if !j.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.status, next)
	}
	j.status = next
	return nil
}

// start marks the job running. It returns false when a cancel arrived first.
func (j *BatchJob) start(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelRequested {
		return false
	}
	if err := j.transitionLocked(domain.BatchStatusInProgress); err != nil {
		return false
	}
	j.startedAt = &now
	return true
}

// requestCancel records a cancel request and stops new work. Repeating the
// request before the job drains is allowed.
func (j *BatchJob) requestCancel() error {
	j.mu.Lock()
	if j.status.IsTerminal() {
		status := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: batch already %s", domain.ErrInvalidTransition, status)
	}
	j.cancelRequested = true
	j.mu.Unlock()

	j.cancel()
	return nil
}

func (j *BatchJob) pause() error {
	if j.gate == nil {
		return fmt.Errorf("%w: pause requires an advanced batch", domain.ErrInvalidTransition)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelRequested {
		return fmt.Errorf("%w: batch is being cancelled", domain.ErrInvalidTransition)
	}
	if err := j.transitionLocked(domain.BatchStatusPaused); err != nil {
		return err
	}
	j.gate.Pause()
	return nil
}

func (j *BatchJob) resume() error {
	if j.gate == nil {
		return fmt.Errorf("%w: resume requires an advanced batch", domain.ErrInvalidTransition)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != domain.BatchStatusPaused || j.cancelRequested {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.status, domain.BatchStatusInProgress)
	}
	if err := j.transitionLocked(domain.BatchStatusInProgress); err != nil {
		return err
	}
	j.gate.Resume()
	return nil
}

// finish moves the job to its terminal status. A pending cancel wins; a job
// whose every item failed, or whose run aborted, is failed.
func (j *BatchJob) finish(aborted error, now time.Time) domain.BatchStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	var final domain.BatchStatus
	switch {
	case j.cancelRequested:
		final = domain.BatchStatusCancelled
	case aborted != nil:
		final = domain.BatchStatusFailed
		j.errors = append(j.errors, aborted.Error())
		// Items never reached count as failed so the totals add up.
		j.failed += j.total - j.completed - j.failed
	case j.total > 0 && j.failed == j.total:
		final = domain.BatchStatusFailed
	default:
		final = domain.BatchStatusCompleted
	}

	if err := j.transitionLocked(final); err != nil {
		// Created -> Completed cannot happen for a non-empty batch; force the
		// job out of a live state rather than leave it running forever.
		j.status = domain.BatchStatusFailed
		final = domain.BatchStatusFailed
	}
	j.finishedAt = &now
	j.currentItem = ""
	return final
}

// ItemStarted implements ItemSink.
func (j *BatchJob) ItemStarted(item WorkItem) {
	j.mu.Lock()
	j.currentItem = item.FileName
	j.mu.Unlock()
}

// ItemFinished implements ItemSink.
func (j *BatchJob) ItemFinished(res WorkResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.itemTime += res.Duration
	if res.Err != nil {
		j.failed++
		j.errors = append(j.errors, res.Err.Error())
		return
	}

	j.completed++
	j.docsPerSet[res.Item.QuestionSetID]++
	if res.CacheHit {
		j.cacheHits++
	}
	if res.File != nil {
		j.files = append(j.files, *res.File)
		j.totalBytes += res.File.Size
	}
	if res.AnswerKey != nil {
		j.answerKeys = append(j.answerKeys, *res.AnswerKey)
		j.totalBytes += res.AnswerKey.Size
	}
}

// Progress returns a consistent snapshot with timing estimates.
func (j *BatchJob) Progress(now time.Time) *domain.Progress {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := &domain.Progress{
		BatchID:     j.id,
		Status:      j.status,
		Total:       j.total,
		Completed:   j.completed,
		Failed:      j.failed,
		CreatedAt:   j.createdAt,
		StartedAt:   copyTime(j.startedAt),
		FinishedAt:  copyTime(j.finishedAt),
		CurrentItem: j.currentItem,
		Errors:      append([]string(nil), j.errors...),
	}
	done := j.completed + j.failed
	if j.status.IsTerminal() {
		p.Skipped = j.total - done
	}
	if j.total > 0 {
		p.Percentage = float64(done) / float64(j.total) * 100
	}

	if j.startedAt != nil {
		end := now
		if j.finishedAt != nil {
			end = *j.finishedAt
		}
		p.Elapsed = end.Sub(*j.startedAt)

		if !j.status.IsTerminal() && done > 0 && done < j.total {
			perItem := p.Elapsed / time.Duration(done)
			p.EstimatedRemaining = perItem * time.Duration(j.total-done)
			eta := now.Add(p.EstimatedRemaining)
			p.EstimatedCompletion = &eta
		}
	}
	return p
}

// Summary returns the history row for the job.
func (j *BatchJob) Summary() domain.BatchSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return domain.BatchSummary{
		BatchID:    j.id,
		Status:     j.status,
		TemplateID: j.req.TemplateID,
		OutputDir:  j.req.OutputDir,
		Total:      j.total,
		Completed:  j.completed,
		Failed:     j.failed,
		Advanced:   j.advanced,
		CreatedAt:  j.createdAt,
		FinishedAt: copyTime(j.finishedAt),
	}
}

// record returns the archive row for the job.
func (j *BatchJob) record() *domain.BatchRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &domain.BatchRecord{
		ID:          j.id,
		Status:      j.status,
		TemplateID:  j.req.TemplateID,
		OutputDir:   j.req.OutputDir,
		Format:      string(j.req.Format),
		TotalItems:  j.total,
		Completed:   j.completed,
		Failed:      j.failed,
		Advanced:    j.advanced,
		ErrorLog:    strings.Join(j.errors, "\n"),
		StartedAt:   copyTime(j.startedAt),
		CompletedAt: copyTime(j.finishedAt),
		CreatedAt:   j.createdAt,
	}
}

// finishedBefore reports whether the job is terminal and finished at or
// before cutoff.
func (j *BatchJob) finishedBefore(cutoff time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.IsTerminal() && j.finishedAt != nil && !j.finishedAt.After(cutoff)
}

// jobSnapshot is the data the report builder needs, copied out under mu.
type jobSnapshot struct {
	id         string
	status     domain.BatchStatus
	templateID string
	format     domain.OutputFormat
	total      int
	completed  int
	failed     int
	cacheHits  int
	totalBytes int64
	itemTime   time.Duration
	startedAt  *time.Time
	finishedAt *time.Time
	files      []domain.GeneratedFileInfo
	answerKeys []domain.GeneratedFileInfo
	errors     []string
	docsPerSet map[string]int
}

func (j *BatchJob) snapshot() jobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	docs := make(map[string]int, len(j.docsPerSet))
	for k, v := range j.docsPerSet {
		docs[k] = v
	}
	return jobSnapshot{
		id:         j.id,
		status:     j.status,
		templateID: j.req.TemplateID,
		format:     j.req.Format,
		total:      j.total,
		completed:  j.completed,
		failed:     j.failed,
		cacheHits:  j.cacheHits,
		totalBytes: j.totalBytes,
		itemTime:   j.itemTime,
		startedAt:  copyTime(j.startedAt),
		finishedAt: copyTime(j.finishedAt),
		files:      append([]domain.GeneratedFileInfo(nil), j.files...),
		answerKeys: append([]domain.GeneratedFileInfo(nil), j.answerKeys...),
		errors:     append([]string(nil), j.errors...),
		docsPerSet: docs,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
