package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "examforge-test"})

	ctx := l.WithContext(context.Background())
	ctx = SetBatchID(ctx, "batch-1")
	ctx = SetComponent(ctx, "worker_pool")

	CtxInfo(ctx, "item %d done", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "item 3 done", line["message"])
	assert.Equal(t, "batch-1", line[FieldBatchID])
	assert.Equal(t, "worker_pool", line[FieldComponent])
	assert.Equal(t, "examforge-test", line["service"])
	assert.Equal(t, "batch-1", GetBatchID(ctx))
}

func TestEntryMetricFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "t"})
	ctx := l.WithContext(context.Background())

	With(Fields{FieldCount: 5}).WithStatus("completed").Info(ctx, "batch finished")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.EqualValues(t, 5, line[FieldCount])
	assert.Equal(t, "completed", line[FieldStatus])
}

func TestFromContextOrFallsBack(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))
	assert.Same(t, GetDefault(), FromContextOr(context.Background(), nil))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_AGE", "3")

	cfg := LoadFromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 3, cfg.MaxAge)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "examforge", cfg.ServiceName)
}
