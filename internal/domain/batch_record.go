package domain

import "time"

// BatchRecord is the archived row of a batch that reached a terminal status.
type BatchRecord struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	Status      BatchStatus `gorm:"type:text;not null;index" json:"status"`
	TemplateID  string      `gorm:"type:text" json:"template_id"`
	OutputDir   string      `gorm:"type:text" json:"output_dir"`
	Format      string      `gorm:"type:text" json:"format"`
	TotalItems  int         `gorm:"default:0" json:"total_items"`
	Completed   int         `gorm:"default:0" json:"completed"`
	Failed      int         `gorm:"default:0" json:"failed"`
	Advanced    bool        `gorm:"default:false" json:"advanced"`
	ErrorLog    string      `gorm:"type:text" json:"error_log,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `gorm:"index" json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for BatchRecord.
func (BatchRecord) TableName() string {
	return "batch_jobs"
}
