package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/render"
)

// QuestionSetStore is the question set repository surface used over HTTP.
type QuestionSetStore interface {
	Upsert(ctx context.Context, set *domain.QuestionSet) error
	GetByID(ctx context.Context, id string) (*domain.QuestionSet, error)
	List(ctx context.Context, limit, offset int) ([]domain.QuestionSet, error)
	Delete(ctx context.Context, id string) error
}

// TemplateStore is the template repository surface used over HTTP.
type TemplateStore interface {
	Upsert(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
}

// LibraryHandler manages the question sets and templates batches draw from.
type LibraryHandler struct {
	sets      QuestionSetStore
	templates TemplateStore
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(sets QuestionSetStore, templates TemplateStore) *LibraryHandler {
	return &LibraryHandler{sets: sets, templates: templates}
}

// ListQuestionSets handles GET /api/v1/question-sets?page_size=&page=.
func (h *LibraryHandler) ListQuestionSets(c *gin.Context) {
	size, page := pageParams(c)
	if size <= 0 || size > 100 {
		size = 20
	}
	if page < 1 {
		page = 1
	}
	sets, err := h.sets.List(c.Request.Context(), size, (page-1)*size)
	if err != nil {
		respondError(c, err)
		return
	}
	if sets == nil {
		sets = []domain.QuestionSet{}
	}
	c.JSON(http.StatusOK, gin.H{"items": sets, "page_size": size, "page_number": page})
}

// GetQuestionSet handles GET /api/v1/question-sets/:id.
func (h *LibraryHandler) GetQuestionSet(c *gin.Context) {
	set, err := h.sets.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// DeleteQuestionSet handles DELETE /api/v1/question-sets/:id. Batches already
// running keep the documents they rendered; later items of those batches fail.
func (h *LibraryHandler) DeleteQuestionSet(c *gin.Context) {
	if err := h.sets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PutQuestionSet handles PUT /api/v1/question-sets/:id.
func (h *LibraryHandler) PutQuestionSet(c *gin.Context) {
	var set domain.QuestionSet
	if err := c.ShouldBindJSON(&set); err != nil {
		badRequest(c, "Invalid question set: "+err.Error())
		return
	}
	set.ID = c.Param("id")
	if len(set.Questions) == 0 {
		respondError(c, domain.NewValidationError("questions", "at least one question is required"))
		return
	}
	for i := range set.Questions {
		q := &set.Questions[i]
		if strings.TrimSpace(q.Stem) == "" {
			respondError(c, domain.NewValidationError("questions", "every question needs a stem"))
			return
		}
		if q.Points == 0 {
			q.Points = 1
		}
	}
	if err := h.sets.Upsert(c.Request.Context(), &set); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// ListTemplates handles GET /api/v1/templates.
func (h *LibraryHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templates.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if templates == nil {
		templates = []domain.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"items": templates})
}

// PutTemplate handles PUT /api/v1/templates/:id.
func (h *LibraryHandler) PutTemplate(c *gin.Context) {
	var t domain.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, "Invalid template: "+err.Error())
		return
	}
	t.ID = c.Param("id")
	if strings.TrimSpace(t.Body) == "" {
		respondError(c, domain.NewValidationError("body", "is required"))
		return
	}
	switch t.Format {
	case domain.FormatMarkdown, domain.FormatLaTeX, domain.FormatText:
	case "":
		t.Format = domain.FormatMarkdown
	default:
		respondError(c, domain.NewValidationError("format", "must be one of [md tex txt]"))
		return
	}
	if err := render.CheckTemplate(t.Body, t.Format); err != nil {
		respondError(c, domain.NewValidationError("body", err.Error()))
		return
	}
	if err := h.templates.Upsert(c.Request.Context(), &t); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
