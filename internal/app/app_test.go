package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/examforge/internal/config"
	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			Path:        filepath.Join(dir, "examforge.db"),
			AutoMigrate: true,
			LogLevel:    "silent",
		},
		Cache: config.CacheConfig{
			Dir:              filepath.Join(dir, "cache"),
			MaxMemoryEntries: 10,
			MaxDiskMB:        16,
			TTL:              24 * time.Hour,
		},
		Batch: config.BatchConfig{
			DefaultParallelism: 2,
			MaxParallelism:     4,
			FilePrefix:         "exam",
		},
		Render: config.RenderConfig{DefaultFormat: "md", DefaultTemplate: "default"},
	}
}

func TestApp_GeneratesFromStoredQuestionSet(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.Discard())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(ctx)) }()

	require.NoError(t, a.QuestionSets.Upsert(ctx, &domain.QuestionSet{
		ID:    "algebra",
		Title: "Algebra Midterm",
		Questions: domain.QuestionList{
			{ID: "1", Type: domain.QuestionSingleChoice, Stem: "2+2?", Options: []string{"3", "4"}, Answer: "B", Points: 2},
			{ID: "2", Type: domain.QuestionShortAnswer, Stem: "Define a monoid.", Points: 5},
		},
	}))

	out := t.TempDir()
	id, err := a.Batches.Submit(ctx, &domain.BatchRequest{
		QuestionSetIDs: []string{"algebra"},
		Count:          3,
		OutputDir:      out,
	})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	p, err := a.Batches.Wait(waitCtx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, p.Status)
	assert.Equal(t, 3, p.Completed)

	data, err := os.ReadFile(filepath.Join(out, "exam_001.md"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Algebra Midterm"))

	rec, err := a.Archive.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.Completed)

	report, err := a.Batches.GetReport(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 21.0, report.TotalPoints, 0.001)
	assert.Greater(t, a.Cache.Statistics().Hits, uint64(0))

	checks := a.HealthChecks()
	require.Contains(t, checks, "database")
	assert.NoError(t, checks["database"](ctx))
}

func TestApp_MissingQuestionSetFailsItems(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.Discard())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(ctx)) }()

	id, err := a.Batches.Submit(ctx, &domain.BatchRequest{
		QuestionSetIDs: []string{"ghost"},
		Count:          2,
		OutputDir:      t.TempDir(),
	})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	p, err := a.Batches.Wait(waitCtx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, p.Status)
	assert.Equal(t, 2, p.Failed)
}

func TestApp_RunMaintenanceStopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.CleanupInterval = 10 * time.Millisecond
	cfg.Batch.CleanupInterval = 10 * time.Millisecond

	a, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(context.Background())) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.RunMaintenance(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance loop did not stop")
	}
}
