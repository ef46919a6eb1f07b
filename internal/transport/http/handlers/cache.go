package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/usecase"
)

// CacheService is the request cache invalidation surface.
type CacheService interface {
	Invalidate() int
	InvalidateTable(table string) int
	InvalidatePattern(pattern string) (int, error)
}

var _ CacheService = (*usecase.RequestCache)(nil)

// CacheHandler lets other read paths drop cached responses after a write.
type CacheHandler struct {
	cache CacheService
}

// NewCacheHandler constructs a cache handler.
func NewCacheHandler(cache CacheService) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// RegisterRoutes binds cache routes to the provided router group.
func (h *CacheHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}
	r.DELETE("", h.Invalidate)
}

// Invalidate removes entries for ?table=, ?pattern= (a regular expression) or everything.
func (h *CacheHandler) Invalidate(c *gin.Context) {
	table := strings.TrimSpace(c.Query("table"))
	pattern := c.Query("pattern")

	switch {
	case table != "" && pattern != "":
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "table and pattern are mutually exclusive"))
	case table != "":
		c.JSON(http.StatusOK, CacheInvalidateResponse{Removed: h.cache.InvalidateTable(table)})
	case pattern != "":
		removed, err := h.cache.InvalidatePattern(pattern)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid pattern"))
			return
		}
		c.JSON(http.StatusOK, CacheInvalidateResponse{Removed: removed})
	default:
		c.JSON(http.StatusOK, CacheInvalidateResponse{Removed: h.cache.Invalidate()})
	}
}
