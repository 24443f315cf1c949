package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	health   HealthChecker
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		health:   health,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Health(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp})
			return
		}
	}

	respond(c, http.StatusOK, resp)
}

// actor is only called behind actorMiddleware
func (h *Handlers) actor(c *gin.Context) entity.Actor {
	actor, _ := actorFrom(c)
	return actor
}

func (h *Handlers) paramID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		abortWith(c, http.StatusBadRequest, string(domainwf.KindValidation), "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

// page reads limit/offset query parameters with defaults
func (h *Handlers) page(c *gin.Context) (limit, offset int, valid bool) {
	limit, offset = defaultLimit, 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWith(c, http.StatusBadRequest, string(domainwf.KindValidation), "invalid limit")
			return 0, 0, false
		}
		limit = min(n, maxLimit)
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWith(c, http.StatusBadRequest, string(domainwf.KindValidation), "invalid offset")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// parseTime accepts RFC 3339 timestamps and plain dates, interpreted as UTC
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func badRequest(c *gin.Context, message string) {
	abortWith(c, http.StatusBadRequest, string(domainwf.KindValidation), message)
}
