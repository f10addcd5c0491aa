package service

import (
	"time"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/render"
)

// WorkItem is one document to generate. Items are immutable once built.
type WorkItem struct {
	BatchID       string
	Index         int // 1-based position within the batch
	DocumentID    string
	QuestionSetID string
	TemplateID    string
	Format        domain.OutputFormat
	FileName      string
	OutputDir     string
	OutputPath    string
	AnswerKeyPath string // empty unless an answer key is requested
	Variation     domain.VariationOptions
	Seed          int64
	Publish       bool
	PublishPrefix string
}

// WorkResult is the outcome of executing one WorkItem. Exactly one is
// produced per dispatched item.
type WorkResult struct {
	Item      WorkItem
	File      *domain.GeneratedFileInfo
	AnswerKey *domain.GeneratedFileInfo
	Err       error
	Duration  time.Duration
	CacheHit  bool
}

// Succeeded reports whether the item produced its document(s).
func (r *WorkResult) Succeeded() bool {
	return r.Err == nil
}

func (w *WorkItem) renderRequest(outputPath string, answerKey bool) *render.Request {
	req := &render.Request{
		DocumentID:    w.DocumentID,
		ItemIndex:     w.Index,
		TemplateID:    w.TemplateID,
		QuestionSetID: w.QuestionSetID,
		Format:        w.Format,
		OutputPath:    outputPath,
		Options: render.Options{
			ShuffleQuestions: w.Variation.ShuffleQuestions,
			ShuffleOptions:   w.Variation.ShuffleOptions,
			AnswerKey:        answerKey,
		},
	}
	if w.Variation.Enabled() {
		req.Options.Seed = w.Seed
	}
	return req
}
