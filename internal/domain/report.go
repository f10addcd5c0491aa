package domain

import "time"

// BatchReport is the read-only statistics view of a terminal batch.
type BatchReport struct {
	BatchID             string               `json:"batch_id"`
	Status              BatchStatus          `json:"status"`
	TemplateID          string               `json:"template_id"`
	Format              OutputFormat         `json:"format"`
	Total               int                  `json:"total"`
	Completed           int                  `json:"completed"`
	Failed              int                  `json:"failed"`
	Skipped             int                  `json:"skipped"`
	SuccessRate         float64              `json:"success_rate"`
	StartedAt           *time.Time           `json:"started_at,omitempty"`
	FinishedAt          *time.Time           `json:"finished_at,omitempty"`
	Duration            time.Duration        `json:"duration"`
	AverageItemDuration time.Duration        `json:"average_item_duration"`
	CacheHits           int                  `json:"cache_hits"`
	TotalBytes          int64                `json:"total_bytes"`
	DocumentsPerSet     map[string]int       `json:"documents_per_set"`
	QuestionTypeCounts  map[QuestionType]int `json:"question_type_counts"`
	PointsPerDocument   map[string]float64   `json:"points_per_document"`
	TotalPoints         float64              `json:"total_points"`
	Files               []GeneratedFileInfo  `json:"files"`
	AnswerKeyFiles      []string             `json:"answer_key_files"`
	Errors              []string             `json:"errors"`
	UnresolvedSets      []string             `json:"unresolved_sets,omitempty"`
	GeneratedAt         time.Time            `json:"generated_at"`
}
