package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
)

// RemoteConfig holds configuration for the remote compile service.
type RemoteConfig struct {
	Endpoint string
	APIKey   string
	Engine   string
	Timeout  time.Duration
}

// RemoteRenderer builds LaTeX source locally and compiles it to PDF through an
// HTTP compile service.
type RemoteRenderer struct {
	client   *resty.Client
	source   SourceBuilder
	endpoint string
	engine   string
	log      *logger.Logger
}

type compileRequest struct {
	Source     string `json:"source"`
	Engine     string `json:"engine"`
	DocumentID string `json:"document_id,omitempty"`
}

type compileError struct {
	Error string `json:"error"`
	Log   string `json:"log,omitempty"`
}

// NewRemoteRenderer creates a RemoteRenderer.
// Parameters:
//   - cfg: compile service endpoint, credentials and timeout.
//   - source: builder producing the LaTeX source for a request.
//   - log: logger, may be nil.
//
// Returns:
//   - *RemoteRenderer: renderer for PDF output.
func NewRemoteRenderer(cfg *RemoteConfig, source SourceBuilder, log *logger.Logger) *RemoteRenderer {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/pdf")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	engine := cfg.Engine
	if engine == "" {
		engine = "xelatex"
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &RemoteRenderer{
		client:   client,
		source:   source,
		endpoint: cfg.Endpoint,
		engine:   engine,
		log:      log.WithField(logger.FieldComponent, "remote_renderer"),
	}
}

// BuildSource returns the LaTeX source that would be compiled for req.
func (r *RemoteRenderer) BuildSource(ctx context.Context, req *Request) (string, error) {
	texReq := *req
	texReq.Format = domain.FormatLaTeX
	return r.source.BuildSource(ctx, &texReq)
}

// Render implements Renderer.
func (r *RemoteRenderer) Render(ctx context.Context, req *Request) (*Result, error) {
	if r.endpoint == "" {
		return nil, newRenderError(req, errors.New("remote render endpoint is not configured"))
	}

	src := req.Source
	if src == "" {
		var err error
		if src, err = r.BuildSource(ctx, req); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var apiErr compileError
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetBody(compileRequest{Source: src, Engine: r.engine, DocumentID: req.DocumentID}).
		SetError(&apiErr).
		Post(r.endpoint)
	if err != nil {
		return nil, newRenderError(req, fmt.Errorf("failed to call compile service: %w", err))
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if apiErr.Error != "" {
			msg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), apiErr.Error)
		}
		return nil, newRenderError(req, fmt.Errorf("compile service returned error: %s", msg))
	}

	body := httpResp.Body()
	if len(body) == 0 {
		return nil, newRenderError(req, errors.New("compile service returned an empty document"))
	}

	r.log.WithFields(logger.Fields{
		"document_id":          req.DocumentID,
		logger.FieldSize:       len(body),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug("Document compiled")

	return &Result{Data: body, OutputPath: req.OutputPath}, nil
}
