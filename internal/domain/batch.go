package domain

import "time"

// BatchStatus represents the lifecycle state of a batch generation job.
// Values include BatchStatusCreated, BatchStatusInProgress, BatchStatusPaused,
// BatchStatusCompleted, BatchStatusFailed and BatchStatusCancelled.
type BatchStatus string

const (
	BatchStatusCreated    BatchStatus = "created"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusPaused     BatchStatus = "paused"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusCreated: {
		BatchStatusInProgress,
		BatchStatusFailed,
		BatchStatusCancelled,
	},
	BatchStatusInProgress: {
		BatchStatusPaused,
		BatchStatusCompleted,
		BatchStatusFailed,
		BatchStatusCancelled,
	},
	// A paused batch whose in-flight items drain with nothing left to start
	// finishes without being resumed.
	BatchStatusPaused: {
		BatchStatusInProgress,
		BatchStatusCompleted,
		BatchStatusFailed,
		BatchStatusCancelled,
	},
}

// CanTransitionTo reports whether the transition s -> next is allowed.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions can happen.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusCreated, BatchStatusInProgress, BatchStatusPaused,
		BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// GeneratedFileInfo describes one document written by a batch.
type GeneratedFileInfo struct {
	FileName   string    `json:"file_name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	DocumentID string    `json:"document_id"`
	ItemIndex  int       `json:"item_index"`
	AnswerKey  bool      `json:"answer_key,omitempty"`
	URL        string    `json:"url,omitempty"`
}

// Progress is a consistent snapshot of a batch job.
type Progress struct {
	BatchID             string        `json:"batch_id"`
	Status              BatchStatus   `json:"status"`
	Total               int           `json:"total"`
	Completed           int           `json:"completed"`
	Failed              int           `json:"failed"`
	Skipped             int           `json:"skipped"`
	Percentage          float64       `json:"percentage"`
	CreatedAt           time.Time     `json:"created_at"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	FinishedAt          *time.Time    `json:"finished_at,omitempty"`
	Elapsed             time.Duration `json:"elapsed"`
	EstimatedRemaining  time.Duration `json:"estimated_remaining"`
	EstimatedCompletion *time.Time    `json:"estimated_completion,omitempty"`
	CurrentItem         string        `json:"current_item,omitempty"`
	Errors              []string      `json:"errors,omitempty"`
}

// Done returns completed + failed.
func (p *Progress) Done() int {
	return p.Completed + p.Failed
}

// BatchSummary is a history row.
type BatchSummary struct {
	BatchID    string      `json:"batch_id"`
	Status     BatchStatus `json:"status"`
	TemplateID string      `json:"template_id"`
	OutputDir  string      `json:"output_dir"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	Failed     int         `json:"failed"`
	Advanced   bool        `json:"advanced"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// PagedResult is one page of a listing.
type PagedResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	PageSize   int `json:"page_size"`
	PageNumber int `json:"page_number"`
	TotalPages int `json:"total_pages"`
}
