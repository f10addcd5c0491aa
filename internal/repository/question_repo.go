package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/examforge/internal/domain"
)

// QuestionSetRepository handles question set persistence.
type QuestionSetRepository struct {
	db *gorm.DB
}

// NewQuestionSetRepository creates a new QuestionSetRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *QuestionSetRepository: repository instance bound to db.
func NewQuestionSetRepository(db *gorm.DB) *QuestionSetRepository {
	return &QuestionSetRepository{db: db}
}

// Upsert creates or replaces a question set keyed by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - set: question set to store.
// Returns:
//   - error: non-nil if the write fails.
func (r *QuestionSetRepository) Upsert(ctx context.Context, set *domain.QuestionSet) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "subject", "source_path", "questions", "updated_at"}),
	}).Create(set).Error
}

// GetByID retrieves a question set by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: question set ID.
// Returns:
//   - *domain.QuestionSet: question set if found.
//   - error: wraps domain.ErrNotFound when no row matches.
func (r *QuestionSetRepository) GetByID(ctx context.Context, id string) (*domain.QuestionSet, error) {
	var set domain.QuestionSet
	if err := r.db.WithContext(ctx).First(&set, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "question set", id)
	}
	return &set, nil
}

// List returns question sets ordered by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of rows, 0 for all.
//   - offset: number of rows to skip.
// Returns:
//   - []domain.QuestionSet: matching sets.
//   - error: non-nil if the query fails.
func (r *QuestionSetRepository) List(ctx context.Context, limit, offset int) ([]domain.QuestionSet, error) {
	var sets []domain.QuestionSet
	q := r.db.WithContext(ctx).Order("id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

// Delete removes a question set.
func (r *QuestionSetRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.QuestionSet{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "question set", id)
	}
	return nil
}
