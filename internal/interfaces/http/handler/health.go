package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/erp/vendorsync/internal/interfaces/http/dto"
	"github.com/erp/vendorsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Health statuses
const (
	StatusUp   = "up"
	StatusDown = "down"
)

const defaultHealthTimeout = 2 * time.Second

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Pinger is satisfied by *persistence.Database and *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingCheck adapts a Pinger
func PingCheck(p Pinger) HealthCheck {
	return p.PingContext
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	checks  map[string]HealthCheck
	timeout time.Duration
	now     func() time.Time
}

// HealthOption configures a HealthHandler
type HealthOption func(*HealthHandler)

// WithCheck adds a named readiness check
func WithCheck(name string, check HealthCheck) HealthOption {
	return func(h *HealthHandler) {
		h.checks[name] = check
	}
}

// WithHealthTimeout bounds every readiness probe
func WithHealthTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		h.timeout = d
	}
}

// NewHealthHandler creates a health handler
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		checks:  make(map[string]HealthCheck),
		timeout: defaultHealthTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes implements router.RouteRegistrar
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	router.NewDomainGroup("health", "/health").
		GET("", h.Ready).
		GET("/live", h.Live).
		GET("/ready", h.Ready).
		RegisterRoutes(rg)
}

// Live reports that the process is serving
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: StatusUp, Timestamp: h.now().UTC()})
}

// Ready runs every check concurrently and answers 503 if any fails
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if err := h.checks[name](ctx); err != nil {
				results[i] = StatusDown + ": " + err.Error()
				return nil
			}
			results[i] = StatusUp
			return nil
		})
	}
	_ = g.Wait()

	resp := dto.HealthResponse{Status: StatusUp, Checks: make(map[string]string, len(names)), Timestamp: h.now().UTC()}
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i] != StatusUp {
			resp.Status = StatusDown
		}
	}

	status := http.StatusOK
	if resp.Status != StatusUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
