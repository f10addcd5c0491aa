package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
)

type memSets map[string]*domain.QuestionSet

func (m memSets) GetByID(_ context.Context, id string) (*domain.QuestionSet, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("question set %s: %w", id, domain.ErrNotFound)
}

type memTemplates map[string]*domain.Template

func (m memTemplates) GetByID(_ context.Context, id string) (*domain.Template, error) {
	if t, ok := m[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
}

func sampleSets() memSets {
	return memSets{
		"algebra": {
			ID:      "algebra",
			Title:   "Algebra Midterm",
			Subject: "Math",
			Questions: domain.QuestionList{
				{ID: "q1", Type: domain.QuestionSingleChoice, Stem: "2+2?", Options: []string{"3", "4", "5", "6"}, Answer: "B", Points: 2},
				{ID: "q2", Type: domain.QuestionSingleChoice, Stem: "3*3?", Options: []string{"6", "8", "9", "12"}, Answer: "C", Points: 2},
				{ID: "q3", Type: domain.QuestionTrueFalse, Stem: "0 is even.", Answer: "True", Points: 1},
				{ID: "q4", Type: domain.QuestionEssay, Stem: "Explain 50% of x_1.", Points: 10},
			},
		},
	}
}

func TestTemplateRendererMarkdown(t *testing.T) {
	r := NewTemplateRenderer(nil, sampleSets(), logger.Discard())

	res, err := r.Render(context.Background(), &Request{QuestionSetID: "algebra", Format: domain.FormatMarkdown, OutputPath: "/out/a.md"})
	require.NoError(t, err)
	assert.Equal(t, "/out/a.md", res.OutputPath)

	out := string(res.Data)
	assert.Contains(t, out, "# Algebra Midterm")
	assert.Contains(t, out, "Total points: 15")
	assert.Contains(t, out, "## Single Choice")
	assert.Contains(t, out, "1. 2+2? (2 pts)")
	assert.Contains(t, out, "   B. 4")
	assert.Contains(t, out, "4. Explain 50% of x_1.")
	assert.NotContains(t, out, "Answer")
	assert.Less(t, strings.Index(out, "## Single Choice"), strings.Index(out, "## True or False"))
	assert.Less(t, strings.Index(out, "## True or False"), strings.Index(out, "## Essay"))
}

func TestTemplateRendererAnswerKey(t *testing.T) {
	r := NewTemplateRenderer(nil, sampleSets(), logger.Discard())

	res, err := r.Render(context.Background(), &Request{
		QuestionSetID: "algebra",
		Format:        domain.FormatText,
		Options:       Options{AnswerKey: true},
	})
	require.NoError(t, err)

	out := string(res.Data)
	assert.Contains(t, out, "ALGEBRA MIDTERM - ANSWER KEY")
	assert.Contains(t, out, "Answer: B")
	assert.Contains(t, out, "Answer: True")
}

func TestTemplateRendererLaTeXEscapes(t *testing.T) {
	r := NewTemplateRenderer(nil, sampleSets(), logger.Discard())

	src, err := r.BuildSource(context.Background(), &Request{QuestionSetID: "algebra", Format: domain.FormatLaTeX})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, `\documentclass{article}`))
	assert.Contains(t, src, `\title{Algebra Midterm}`)
	assert.Contains(t, src, `Explain 50\% of x\_1.`)
	assert.Contains(t, src, `\end{document}`)
}

func TestTemplateRendererShuffleKeepsAnswersConsistent(t *testing.T) {
	sets := sampleSets()
	r := NewTemplateRenderer(nil, sets, logger.Discard())
	ctx := context.Background()

	opts := Options{ShuffleQuestions: true, ShuffleOptions: true, Seed: 42, AnswerKey: true}
	a, err := r.BuildSource(ctx, &Request{QuestionSetID: "algebra", Format: domain.FormatText, Options: opts})
	require.NoError(t, err)
	b, err := r.BuildSource(ctx, &Request{QuestionSetID: "algebra", Format: domain.FormatText, Options: opts})
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed renders identically")

	doc := buildDocument(sets["algebra"], &Request{Options: opts})
	correct := map[string]string{"2+2?": "4", "3*3?": "9"}
	for _, sec := range doc.Sections {
		for _, q := range sec.Questions {
			want, ok := correct[q.Stem]
			if !ok {
				continue
			}
			require.Len(t, q.Answer, 1)
			assert.Equal(t, want, q.Options[q.Answer[0]-'A'], q.Stem)
		}
	}
}

func TestRemapAnswer(t *testing.T) {
	perm := []int{2, 0, 3, 1} // new A = old C, new B = old A, new C = old D, new D = old B
	tests := []struct {
		in   string
		want string
	}{
		{"A", "B"},
		{"C", "A"},
		{"b", "D"},
		{"A,C", "AB"},
		{"True", "True"},
		{"", ""},
		{"Z", "Z"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, remapAnswer(tc.in, perm))
		})
	}
}

func TestTemplateRendererStoredTemplate(t *testing.T) {
	templates := memTemplates{
		"compact": {ID: "compact", Name: "Compact", Body: `{{.Title}}|{{range .Sections}}{{range .Questions}}{{.Number}};{{end}}{{end}}`, UpdatedAt: time.Unix(1, 0)},
	}
	r := NewTemplateRenderer(templates, sampleSets(), logger.Discard())

	res, err := r.Render(context.Background(), &Request{TemplateID: "compact", QuestionSetID: "algebra", Format: domain.FormatText})
	require.NoError(t, err)
	assert.Equal(t, "Algebra Midterm|1;2;3;4;", string(res.Data))

	_, err = r.Render(context.Background(), &Request{TemplateID: "missing", QuestionSetID: "algebra", Format: domain.FormatText})
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplateRendererErrors(t *testing.T) {
	r := NewTemplateRenderer(nil, sampleSets(), logger.Discard())
	ctx := context.Background()

	_, err := r.Render(ctx, &Request{QuestionSetID: "nope", Format: domain.FormatMarkdown})
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nope", re.QuestionSetID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Render(ctx, &Request{QuestionSetID: "algebra", Format: domain.FormatPDF})
	assert.ErrorAs(t, err, &re)
}

func TestDescriptorIgnoresItemIdentity(t *testing.T) {
	a := &Request{DocumentID: "d1", ItemIndex: 1, TemplateID: "t", QuestionSetID: "s", Format: domain.FormatMarkdown, OutputPath: "/a"}
	b := &Request{DocumentID: "d2", ItemIndex: 2, TemplateID: "t", QuestionSetID: "s", Format: domain.FormatMarkdown, OutputPath: "/b"}
	assert.Equal(t, Descriptor(a), Descriptor(b))

	b.Options.AnswerKey = true
	assert.NotEqual(t, Descriptor(a), Descriptor(b))

	b.Options = Options{ShuffleQuestions: true, Seed: 7}
	assert.Contains(t, Descriptor(b), "seed=7")
}

type plainRenderer struct{}

func (plainRenderer) Render(_ context.Context, req *Request) (*Result, error) {
	return &Result{Data: []byte("x"), OutputPath: req.OutputPath}, nil
}

func TestCanonicalContent(t *testing.T) {
	ctx := context.Background()
	req := &Request{QuestionSetID: "algebra", Format: domain.FormatMarkdown}

	content, err := CanonicalContent(ctx, plainRenderer{}, req)
	require.NoError(t, err)
	assert.Equal(t, Descriptor(req), content)

	tr := NewTemplateRenderer(nil, sampleSets(), logger.Discard())
	content, err = CanonicalContent(ctx, tr, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "md\n# Algebra Midterm"))

	_, err = CanonicalContent(ctx, tr, &Request{QuestionSetID: "nope", Format: domain.FormatMarkdown})
	assert.Error(t, err)
}

type countingSets struct {
	memSets
	loads int
}

func (c *countingSets) GetByID(ctx context.Context, id string) (*domain.QuestionSet, error) {
	c.loads++
	return c.memSets.GetByID(ctx, id)
}

func TestCanonicalContentSourceIsRenderedOnce(t *testing.T) {
	ctx := context.Background()
	sets := &countingSets{memSets: sampleSets()}
	tr := NewTemplateRenderer(nil, sets, logger.Discard())

	req := &Request{QuestionSetID: "algebra", Format: domain.FormatMarkdown}
	content, err := CanonicalContent(ctx, tr, req)
	require.NoError(t, err)
	require.NotEmpty(t, req.Source)

	res, err := tr.Render(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, sets.loads)
	assert.Equal(t, "md\n"+string(res.Data), content)

	var got compileRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	router := NewFormatRouter(tr).Handle(domain.FormatPDF,
		NewRemoteRenderer(&RemoteConfig{Endpoint: srv.URL}, tr, logger.Discard()))
	pdfReq := &Request{QuestionSetID: "algebra", Format: domain.FormatPDF}
	_, err = CanonicalContent(ctx, router, pdfReq)
	require.NoError(t, err)
	_, err = router.Render(ctx, pdfReq)
	require.NoError(t, err)
	assert.Equal(t, 2, sets.loads)
	assert.Equal(t, pdfReq.Source, got.Source)
	assert.True(t, strings.HasPrefix(got.Source, `\documentclass`))
}

func TestFormatRouter(t *testing.T) {
	tr := NewTemplateRenderer(nil, sampleSets(), logger.Discard())
	router := NewFormatRouter(tr).Handle(domain.FormatPDF, plainRenderer{})
	ctx := context.Background()

	res, err := router.Render(ctx, &Request{QuestionSetID: "algebra", Format: domain.FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, "x", string(res.Data))

	res, err = router.Render(ctx, &Request{QuestionSetID: "algebra", Format: domain.FormatMarkdown})
	require.NoError(t, err)
	assert.Contains(t, string(res.Data), "# Algebra Midterm")

	src, err := router.BuildSource(ctx, &Request{QuestionSetID: "algebra", Format: domain.FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, Descriptor(&Request{QuestionSetID: "algebra", Format: domain.FormatPDF}), src)
}

func TestRemoteRenderer(t *testing.T) {
	var got compileRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	tr := NewTemplateRenderer(nil, sampleSets(), logger.Discard())
	rr := NewRemoteRenderer(&RemoteConfig{Endpoint: srv.URL, APIKey: "secret"}, tr, logger.Discard())

	res, err := rr.Render(context.Background(), &Request{DocumentID: "doc-1", QuestionSetID: "algebra", Format: domain.FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(res.Data))
	assert.Equal(t, "xelatex", got.Engine)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.True(t, strings.HasPrefix(got.Source, `\documentclass`))
}

func TestRemoteRendererServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"undefined control sequence"}`))
	}))
	defer srv.Close()

	tr := NewTemplateRenderer(nil, sampleSets(), logger.Discard())
	rr := NewRemoteRenderer(&RemoteConfig{Endpoint: srv.URL}, tr, logger.Discard())

	_, err := rr.Render(context.Background(), &Request{QuestionSetID: "algebra", Format: domain.FormatPDF})
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "undefined control sequence")

	rr = NewRemoteRenderer(&RemoteConfig{}, tr, logger.Discard())
	_, err = rr.Render(context.Background(), &Request{QuestionSetID: "algebra", Format: domain.FormatPDF})
	assert.True(t, errors.As(err, &re))
}
