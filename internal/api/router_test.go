package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/examforge/internal/api/handler"
	"github.com/timmy/examforge/internal/api/middleware"
	"github.com/timmy/examforge/internal/cache"
	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/render"
	"github.com/timmy/examforge/internal/service"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, req *render.Request) (*render.Result, error) {
	return &render.Result{Data: []byte("# " + req.QuestionSetID)}, nil
}

type stubCache struct {
	cleared bool
}

func (s *stubCache) Statistics() cache.Statistics {
	return cache.Statistics{EntryCount: 3, Hits: 7}
}
func (s *stubCache) CleanupExpired() int { return 2 }
func (s *stubCache) Clear() error {
	s.cleared = true
	return nil
}

type stubTemplates struct {
	saved *domain.Template
}

func (s *stubTemplates) Upsert(_ context.Context, t *domain.Template) error {
	s.saved = t
	return nil
}
func (s *stubTemplates) GetByID(context.Context, string) (*domain.Template, error) {
	return nil, domain.ErrNotFound
}
func (s *stubTemplates) List(context.Context) ([]domain.Template, error) { return nil, nil }

type stubSets struct{}

func (stubSets) Upsert(context.Context, *domain.QuestionSet) error { return nil }
func (stubSets) Delete(_ context.Context, id string) error {
	if id == "algebra" {
		return nil
	}
	return fmt.Errorf("question set %s: %w", id, domain.ErrNotFound)
}
func (stubSets) GetByID(_ context.Context, id string) (*domain.QuestionSet, error) {
	return nil, fmt.Errorf("question set %s: %w", id, domain.ErrNotFound)
}
func (stubSets) List(context.Context, int, int) ([]domain.QuestionSet, error) { return nil, nil }

func newTestRouter(t *testing.T, deps RouterDeps) (http.Handler, *service.BatchService) {
	t.Helper()
	svc, err := service.NewBatchService(service.BatchDependencies{
		Renderer: stubRenderer{},
		Logger:   logger.Discard(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	deps.Batches = svc
	deps.Logger = logger.Discard()
	return SetupRouter(deps, "test"), svc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestBatchRoutes_SubmitAndTrack(t *testing.T) {
	h, svc := newTestRouter(t, RouterDeps{})

	w := doJSON(t, h, http.MethodPost, "/api/v1/batches", domain.BatchRequest{
		QuestionSetIDs: []string{"algebra"},
		Count:          2,
		OutputDir:      t.TempDir(),
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	var submitted handler.SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.BatchID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := svc.Wait(ctx, submitted.BatchID)
	require.NoError(t, err)

	w = doJSON(t, h, http.MethodGet, "/api/v1/batches/"+submitted.BatchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p domain.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, domain.BatchStatusCompleted, p.Status)
	assert.Equal(t, 2, p.Completed)

	w = doJSON(t, h, http.MethodGet, "/api/v1/batches/"+submitted.BatchID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report domain.BatchReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Len(t, report.Files, 2)

	w = doJSON(t, h, http.MethodGet, "/api/v1/batches?page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history domain.PagedResult[domain.BatchSummary]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Total)
	assert.Equal(t, 5, history.PageSize)

	w = doJSON(t, h, http.MethodGet, "/api/v1/batches/archive", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/v1/batches?older_than_days=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":1,"older_than_days":0}`, w.Body.String())
}

func TestBatchRoutes_ErrorMapping(t *testing.T) {
	h, svc := newTestRouter(t, RouterDeps{})

	w := doJSON(t, h, http.MethodPost, "/api/v1/batches", domain.BatchRequest{
		QuestionSetIDs: []string{"algebra"},
		Count:          0,
		OutputDir:      t.TempDir(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "count", body.Field)

	w = doJSON(t, h, http.MethodPost, "/api/v1/batches", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/batches/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/v1/batches/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id, err := svc.Submit(context.Background(), &domain.BatchRequest{
		QuestionSetIDs: []string{"algebra"},
		Count:          1,
		OutputDir:      t.TempDir(),
	})
	require.NoError(t, err)
	w = doJSON(t, h, http.MethodPost, "/api/v1/batches/"+id+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/v1/batches?older_than_days=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheRoutes(t *testing.T) {
	c := &stubCache{}
	h, _ := newTestRouter(t, RouterDeps{Cache: c})

	w := doJSON(t, h, http.MethodGet, "/api/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats cache.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.EntryCount)
	assert.Equal(t, uint64(7), stats.Hits)

	w = doJSON(t, h, http.MethodPost, "/api/v1/cache/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":2}`, w.Body.String())

	w = doJSON(t, h, http.MethodDelete, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, c.cleared)
}

func TestCacheRoutes_NotRegisteredWithoutCache(t *testing.T) {
	h, _ := newTestRouter(t, RouterDeps{})
	w := doJSON(t, h, http.MethodGet, "/api/v1/cache/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLibraryRoutes(t *testing.T) {
	templates := &stubTemplates{}
	h, _ := newTestRouter(t, RouterDeps{QuestionSets: stubSets{}, Templates: templates})

	w := doJSON(t, h, http.MethodPut, "/api/v1/templates/plain", domain.Template{Name: "Plain", Body: "{{.Title}}"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, templates.saved)
	assert.Equal(t, "plain", templates.saved.ID)
	assert.Equal(t, domain.FormatMarkdown, templates.saved.Format)

	w = doJSON(t, h, http.MethodPut, "/api/v1/templates/broken", domain.Template{Name: "Broken", Body: "{{.Title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/question-sets/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPut, "/api/v1/question-sets/empty", domain.QuestionSet{Title: "Empty"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/v1/question-sets/algebra", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/v1/question-sets/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, RouterDeps{})
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	h, _ = newTestRouter(t, RouterDeps{HealthChecks: map[string]handler.HealthCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
	}})
	w = doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestCORS(t *testing.T) {
	h, _ := newTestRouter(t, RouterDeps{CORS: middleware.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/batches", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsReused(t *testing.T) {
	h, _ := newTestRouter(t, RouterDeps{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIDHeader))
}
