package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/examforge/internal/domain"
)

func TestFileName(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	testCases := []struct {
		name    string
		pattern string
		vars    NameVars
		want    string
	}{
		{
			name: "default pattern",
			vars: NameVars{Prefix: "exam", Index: 7},
			want: "exam_007",
		},
		{
			name: "index widens with batch size",
			vars: NameVars{Prefix: "exam", Index: 42, Width: 4},
			want: "exam_0042",
		},
		{
			name:    "index appended when missing",
			pattern: "{set}",
			vars:    NameVars{Set: "algebra", Index: 1},
			want:    "algebra_001",
		},
		{
			name:    "all placeholders",
			pattern: "{prefix}-{set}-{template}-{batch}-{date}-{time}-{index}",
			vars: NameVars{
				Prefix: "mid", Set: "geo", Template: "tpl", Batch: "0123456789abcdef",
				Index: 3, Now: now,
			},
			want: "mid-geo-tpl-01234567-20260314-092653-003",
		},
		{
			name:    "empty template reads as default",
			pattern: "{template}_{index}",
			vars:    NameVars{Index: 1},
			want:    "default_001",
		},
		{
			name:    "unsafe characters replaced",
			pattern: "{set} final_{index}",
			vars:    NameVars{Set: "a:b*c", Index: 1},
			want:    "a_b_c_final_001",
		},
		{
			name:    "unicode letters kept",
			pattern: "{set}_{index}",
			vars:    NameVars{Set: "数学", Index: 2},
			want:    "数学_002",
		},
		{
			name:    "leading dots stripped",
			pattern: "..{index}",
			vars:    NameVars{Index: 5},
			want:    "005",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FileName(tc.pattern, tc.vars))
		})
	}
}

func TestLayoutDir(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	base := filepath.Join("out", "exams")

	assert.Equal(t, base, layoutDir(base, domain.LayoutFlat, "algebra", "b1", now))
	assert.Equal(t, base, layoutDir(base, "", "algebra", "b1", now))
	assert.Equal(t, filepath.Join(base, "algebra"), layoutDir(base, domain.LayoutByQuestionSet, "algebra", "b1", now))
	assert.Equal(t, filepath.Join(base, "2026-03-14"), layoutDir(base, domain.LayoutByDate, "algebra", "b1", now))
	assert.Equal(t, filepath.Join(base, "b1"), layoutDir(base, domain.LayoutByBatch, "algebra", "b1", now))
}

func TestBuildItems(t *testing.T) {
	now := time.Now()
	req := &domain.BatchRequest{
		QuestionSetIDs: []string{"a", "b"},
		TemplateID:     "default",
		Count:          5,
		OutputDir:      "out",
		FilePrefix:     "quiz",
		Format:         domain.FormatLaTeX,
	}

	items := buildItems("batch-1", req, now)
	require.Len(t, items, 5)

	wantSets := []string{"a", "b", "a", "b", "a"}
	seen := make(map[string]bool)
	for i, item := range items {
		assert.Equal(t, i+1, item.Index)
		assert.Equal(t, wantSets[i], item.QuestionSetID)
		assert.Equal(t, domain.FormatLaTeX, item.Format)
		assert.Empty(t, item.AnswerKeyPath)
		assert.False(t, item.Publish)
		assert.NotEmpty(t, item.DocumentID)
		assert.False(t, seen[item.OutputPath], "duplicate path %s", item.OutputPath)
		seen[item.OutputPath] = true
	}
	assert.Equal(t, filepath.Join("out", "quiz_001.tex"), items[0].OutputPath)
	assert.Equal(t, "quiz_005.tex", items[4].FileName)
}

func TestBuildItems_Advanced(t *testing.T) {
	req := &domain.BatchRequest{
		QuestionSetIDs: []string{"a"},
		Count:          2,
		OutputDir:      "out",
		FilePrefix:     "exam",
		Format:         domain.FormatMarkdown,
		Advanced: &domain.AdvancedOptions{
			Organization: domain.OrganizationRule{Layout: domain.LayoutByBatch, Publish: true, PublishPrefix: "p"},
			Variation:    domain.VariationOptions{ShuffleOptions: true, Seed: 100, IncludeAnswerKey: true},
		},
	}

	items := buildItems("b7", req, time.Now())
	require.Len(t, items, 2)
	assert.Equal(t, filepath.Join("out", "b7", "exam_001.md"), items[0].OutputPath)
	assert.Equal(t, filepath.Join("out", "b7", "exam_001_answer_key.md"), items[0].AnswerKeyPath)
	assert.Equal(t, int64(101), items[0].Seed)
	assert.Equal(t, int64(102), items[1].Seed)
	assert.True(t, items[1].Publish)
	assert.Equal(t, "p", items[1].PublishPrefix)

	req0 := items[0].renderRequest(items[0].OutputPath, false)
	req1 := items[1].renderRequest(items[1].OutputPath, false)
	assert.NotEqual(t, req0.Options.Seed, req1.Options.Seed)
	assert.True(t, req0.Options.ShuffleOptions)
}
