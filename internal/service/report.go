package service

import (
	"context"
	"sort"
	"time"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
)

// QuestionSetLookup resolves question sets by id.
type QuestionSetLookup interface {
	GetByID(ctx context.Context, id string) (*domain.QuestionSet, error)
}

// ReportBuilder assembles the statistics report of a finished batch.
type ReportBuilder struct {
	sets QuestionSetLookup
	log  *logger.Logger
}

// NewReportBuilder creates a ReportBuilder. sets may be nil, in which case
// question statistics are left empty.
func NewReportBuilder(sets QuestionSetLookup, log *logger.Logger) *ReportBuilder {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ReportBuilder{sets: sets, log: log.WithField(logger.FieldComponent, "report")}
}

// Build computes the report for a snapshot of a terminal job.
func (b *ReportBuilder) Build(ctx context.Context, snap jobSnapshot) *domain.BatchReport {
	r := &domain.BatchReport{
		BatchID:            snap.id,
		Status:             snap.status,
		TemplateID:         snap.templateID,
		Format:             snap.format,
		Total:              snap.total,
		Completed:          snap.completed,
		Failed:             snap.failed,
		Skipped:            snap.total - snap.completed - snap.failed,
		StartedAt:          snap.startedAt,
		FinishedAt:         snap.finishedAt,
		CacheHits:          snap.cacheHits,
		TotalBytes:         snap.totalBytes,
		DocumentsPerSet:    snap.docsPerSet,
		QuestionTypeCounts: make(map[domain.QuestionType]int),
		PointsPerDocument:  make(map[string]float64),
		Files:              snap.files,
		AnswerKeyFiles:     make([]string, 0, len(snap.answerKeys)),
		Errors:             snap.errors,
		GeneratedAt:        time.Now(),
	}
	if r.Files == nil {
		r.Files = []domain.GeneratedFileInfo{}
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if snap.total > 0 {
		r.SuccessRate = float64(snap.completed) / float64(snap.total) * 100
	}
	if snap.startedAt != nil && snap.finishedAt != nil {
		r.Duration = snap.finishedAt.Sub(*snap.startedAt)
	}
	if done := snap.completed + snap.failed; done > 0 {
		r.AverageItemDuration = snap.itemTime / time.Duration(done)
	}
	for _, f := range snap.answerKeys {
		r.AnswerKeyFiles = append(r.AnswerKeyFiles, f.Path)
	}
	sort.Slice(r.Files, func(i, k int) bool { return r.Files[i].ItemIndex < r.Files[k].ItemIndex })
	sort.Strings(r.AnswerKeyFiles)

	b.addQuestionStats(ctx, r)
	return r
}

// addQuestionStats weights each set's question mix by the number of
// documents generated from it.
func (b *ReportBuilder) addQuestionStats(ctx context.Context, r *domain.BatchReport) {
	if b.sets == nil {
		return
	}

	ids := make([]string, 0, len(r.DocumentsPerSet))
	for id := range r.DocumentsPerSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		docs := r.DocumentsPerSet[id]
		set, err := b.sets.GetByID(ctx, id)
		if err != nil {
			b.log.WithError(err).WithFields(logger.Fields{
				logger.FieldBatchID: r.BatchID,
				"question_set_id":   id,
			}).Warn("Question set unavailable for report")
			r.UnresolvedSets = append(r.UnresolvedSets, id)
			continue
		}

		points := set.TotalPoints()
		r.PointsPerDocument[id] = points
		r.TotalPoints += points * float64(docs)
		for t, n := range set.CountByType() {
			r.QuestionTypeCounts[t] += n * docs
		}
	}
}
