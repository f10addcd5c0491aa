package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/examforge/internal/domain"
)

// TemplateRepository handles document template persistence.
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Upsert creates or replaces a template keyed by ID.
func (r *TemplateRepository) Upsert(ctx context.Context, t *domain.Template) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "format", "body", "updated_at"}),
	}).Create(t).Error
}

// GetByID retrieves a template by its ID. Unknown IDs wrap domain.ErrNotFound.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "template", id)
	}
	return &t, nil
}

// List returns every template ordered by name.
func (r *TemplateRepository) List(ctx context.Context) ([]domain.Template, error) {
	var templates []domain.Template
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}
