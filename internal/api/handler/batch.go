package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/service"
)

// BatchHandler exposes the batch orchestrator over HTTP.
type BatchHandler struct {
	batches          *service.BatchService
	defaultRetention int
}

// NewBatchHandler creates a new batch handler.
// Parameters:
//   - batches: orchestrator instance.
//   - defaultRetention: days used by cleanup when the query omits older_than_days.
//
// Returns:
//   - *BatchHandler: initialized handler.
func NewBatchHandler(batches *service.BatchService, defaultRetention int) *BatchHandler {
	return &BatchHandler{batches: batches, defaultRetention: defaultRetention}
}

// SubmitResponse is returned by both submit endpoints.
type SubmitResponse struct {
	BatchID string `json:"batch_id"`
}

// Submit handles POST /api/v1/batches.
func (h *BatchHandler) Submit(c *gin.Context) {
	h.submit(c, false)
}

// SubmitAdvanced handles POST /api/v1/batches/advanced.
func (h *BatchHandler) SubmitAdvanced(c *gin.Context) {
	h.submit(c, true)
}

func (h *BatchHandler) submit(c *gin.Context, advanced bool) {
	var req domain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	submit := h.batches.Submit
	if advanced {
		submit = h.batches.SubmitAdvanced
	}
	id, err := submit(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SubmitResponse{BatchID: id})
}

// List handles GET /api/v1/batches?page_size=&page=.
func (h *BatchHandler) List(c *gin.Context) {
	size, page := pageParams(c)
	c.JSON(http.StatusOK, h.batches.GetHistory(size, page))
}

// Archive handles GET /api/v1/batches/archive.
func (h *BatchHandler) Archive(c *gin.Context) {
	size, page := pageParams(c)
	res, err := h.batches.GetArchived(c.Request.Context(), size, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Progress handles GET /api/v1/batches/:id.
func (h *BatchHandler) Progress(c *gin.Context) {
	p, err := h.batches.GetProgress(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Report handles GET /api/v1/batches/:id/report.
func (h *BatchHandler) Report(c *gin.Context) {
	r, err := h.batches.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Cancel handles POST /api/v1/batches/:id/cancel.
func (h *BatchHandler) Cancel(c *gin.Context) {
	h.control(c, h.batches.Cancel)
}

// Pause handles POST /api/v1/batches/:id/pause.
func (h *BatchHandler) Pause(c *gin.Context) {
	h.control(c, h.batches.Pause)
}

// Resume handles POST /api/v1/batches/:id/resume.
func (h *BatchHandler) Resume(c *gin.Context) {
	h.control(c, h.batches.Resume)
}

func (h *BatchHandler) control(c *gin.Context, op func(id string) error) {
	id := c.Param("id")
	if err := op(id); err != nil {
		respondError(c, err)
		return
	}
	p, err := h.batches.GetProgress(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Cleanup handles DELETE /api/v1/batches?older_than_days=N.
func (h *BatchHandler) Cleanup(c *gin.Context) {
	days := h.defaultRetention
	if raw := c.Query("older_than_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "older_than_days must be a non-negative integer")
			return
		}
		days = n
	}
	removed := h.batches.Cleanup(c.Request.Context(), days)
	c.JSON(http.StatusOK, gin.H{"removed": removed, "older_than_days": days})
}

// pageParams reads page_size and page; invalid values fall back to the
// service defaults.
func pageParams(c *gin.Context) (int, int) {
	size, _ := strconv.Atoi(c.Query("page_size"))
	page, _ := strconv.Atoi(c.Query("page"))
	return size, page
}
