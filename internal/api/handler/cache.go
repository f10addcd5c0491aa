package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/examforge/internal/cache"
	"github.com/timmy/examforge/internal/logger"
)

// CacheAdmin is the maintenance surface of the content cache.
type CacheAdmin interface {
	Statistics() cache.Statistics
	CleanupExpired() int
	Clear() error
}

// CacheHandler handles content cache endpoints.
type CacheHandler struct {
	cache CacheAdmin
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(c CacheAdmin) *CacheHandler {
	return &CacheHandler{cache: c}
}

// Stats handles GET /api/v1/cache/stats.
func (h *CacheHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Statistics())
}

// Cleanup handles POST /api/v1/cache/cleanup.
func (h *CacheHandler) Cleanup(c *gin.Context) {
	removed := h.cache.CleanupExpired()
	logger.CtxInfo(c.Request.Context(), "Cache cleanup removed %d expired entries", removed)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Clear handles DELETE /api/v1/cache.
func (h *CacheHandler) Clear(c *gin.Context) {
	if err := h.cache.Clear(); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
