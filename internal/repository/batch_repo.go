package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/timmy/examforge/internal/domain"
)

// BatchRecordRepository archives batches that reached a terminal status.
type BatchRecordRepository struct {
	db *gorm.DB
}

// NewBatchRecordRepository creates a new BatchRecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *BatchRecordRepository: repository instance bound to db.
func NewBatchRecordRepository(db *gorm.DB) *BatchRecordRepository {
	return &BatchRecordRepository{db: db}
}

// Save inserts or updates an archived batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to persist.
// Returns:
//   - error: non-nil if the write fails.
func (r *BatchRecordRepository) Save(ctx context.Context, rec *domain.BatchRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// GetByID retrieves an archived batch. Unknown IDs wrap domain.ErrNotFound.
func (r *BatchRecordRepository) GetByID(ctx context.Context, id string) (*domain.BatchRecord, error) {
	var rec domain.BatchRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "batch", id)
	}
	return &rec, nil
}

// List returns archived batches, most recently completed first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: page size.
//   - offset: number of rows to skip.
// Returns:
//   - []domain.BatchRecord: page of records.
//   - int64: total number of records.
//   - error: non-nil if the query fails.
func (r *BatchRecordRepository) List(ctx context.Context, limit, offset int) ([]domain.BatchRecord, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.BatchRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []domain.BatchRecord
	if err := r.db.WithContext(ctx).
		Order("completed_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// DeleteFinishedBefore removes records completed at or before cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: completion time threshold.
// Returns:
//   - int64: number of rows removed.
//   - error: non-nil if the delete fails.
func (r *BatchRecordRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("completed_at IS NOT NULL AND completed_at <= ?", cutoff).
		Delete(&domain.BatchRecord{})
	return res.RowsAffected, res.Error
}
