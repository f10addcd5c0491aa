// Package render turns one (template, question set) pair into document bytes.
package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/timmy/examforge/internal/domain"
)

// Options vary one document of a batch.
type Options struct {
	ShuffleQuestions bool
	ShuffleOptions   bool
	Seed             int64
	AnswerKey        bool
	Title            string
}

// Request describes one document to render.
type Request struct {
	DocumentID    string
	ItemIndex     int
	TemplateID    string
	QuestionSetID string
	Format        domain.OutputFormat
	OutputPath    string
	Options       Options

	// Source is a document source already built for this request. Source
	// building renderers render it as is instead of building it again.
	Source string
}

// Result is the outcome of a successful render.
// Renderers either return the bytes in Data or write them to OutputPath themselves.
type Result struct {
	Data       []byte
	OutputPath string
}

// Renderer produces a document for a request.
type Renderer interface {
	Render(ctx context.Context, req *Request) (*Result, error)
}

// SourceBuilder is implemented by renderers that can produce the canonical
// document source without rendering it. The source is used as cache content.
type SourceBuilder interface {
	BuildSource(ctx context.Context, req *Request) (string, error)
}

// RenderError is returned when a document cannot be produced.
type RenderError struct {
	TemplateID    string
	QuestionSetID string
	Err           error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %q with question set %q: %v", e.TemplateID, e.QuestionSetID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func newRenderError(req *Request, err error) *RenderError {
	return &RenderError{TemplateID: req.TemplateID, QuestionSetID: req.QuestionSetID, Err: err}
}

// Descriptor returns a canonical description of everything that determines the
// rendered bytes of req. Output path and item identity are deliberately left out
// so identical documents share a cache key.
func Descriptor(req *Request) string {
	var b strings.Builder
	b.WriteString("template=")
	b.WriteString(req.TemplateID)
	b.WriteString(";set=")
	b.WriteString(req.QuestionSetID)
	b.WriteString(";format=")
	b.WriteString(string(req.Format))
	if req.Options.ShuffleQuestions || req.Options.ShuffleOptions {
		b.WriteString(";shuffle=")
		if req.Options.ShuffleQuestions {
			b.WriteString("q")
		}
		if req.Options.ShuffleOptions {
			b.WriteString("o")
		}
		b.WriteString(";seed=")
		b.WriteString(strconv.FormatInt(req.Options.Seed, 10))
	}
	if req.Options.AnswerKey {
		b.WriteString(";answer_key")
	}
	if req.Options.Title != "" {
		b.WriteString(";title=")
		b.WriteString(req.Options.Title)
	}
	return b.String()
}

// CanonicalContent returns the cache content for req: the renderer's source when
// it can build one, otherwise the request descriptor. A built source is kept in
// req.Source so a following Render of req does not build it again.
func CanonicalContent(ctx context.Context, r Renderer, req *Request) (string, error) {
	if sb, ok := r.(SourceBuilder); ok {
		src, err := sb.BuildSource(ctx, req)
		if err != nil {
			return "", err
		}
		req.Source = src
		return string(req.Format) + "\n" + src, nil
	}
	return Descriptor(req), nil
}

// FormatRouter dispatches requests to a renderer per output format.
type FormatRouter struct {
	fallback Renderer
	byFormat map[domain.OutputFormat]Renderer
}

// NewFormatRouter creates a router that uses fallback for unregistered formats.
func NewFormatRouter(fallback Renderer) *FormatRouter {
	return &FormatRouter{
		fallback: fallback,
		byFormat: make(map[domain.OutputFormat]Renderer),
	}
}

// Handle registers r for format.
func (f *FormatRouter) Handle(format domain.OutputFormat, r Renderer) *FormatRouter {
	f.byFormat[format] = r
	return f
}

func (f *FormatRouter) pick(format domain.OutputFormat) Renderer {
	if r, ok := f.byFormat[format]; ok {
		return r
	}
	return f.fallback
}

// Render implements Renderer.
func (f *FormatRouter) Render(ctx context.Context, req *Request) (*Result, error) {
	r := f.pick(req.Format)
	if r == nil {
		return nil, newRenderError(req, fmt.Errorf("no renderer for format %q", req.Format))
	}
	return r.Render(ctx, req)
}

// BuildSource implements SourceBuilder when the selected renderer does.
func (f *FormatRouter) BuildSource(ctx context.Context, req *Request) (string, error) {
	r := f.pick(req.Format)
	if sb, ok := r.(SourceBuilder); ok {
		return sb.BuildSource(ctx, req)
	}
	return Descriptor(req), nil
}
