// Package handlers exposes the compliance tracker over HTTP with gin
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/audit"
	"github.com/aegisshield/compliance-tracker/internal/catalog"
	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/metrics"
	"github.com/aegisshield/compliance-tracker/internal/portfolio"
	"github.com/aegisshield/compliance-tracker/internal/scheduler"
	"github.com/aegisshield/compliance-tracker/internal/tracker"
)

// ComplianceHandler handles compliance tracking HTTP requests
type ComplianceHandler struct {
	tracker   *tracker.Tracker
	catalog   *catalog.Catalog
	portfolio *portfolio.Service
	scheduler *scheduler.Scheduler
	audit     *audit.Logger
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// Deps are the components served by the handler. Scheduler, Audit and
// Metrics are optional.
type Deps struct {
	Tracker   *tracker.Tracker
	Portfolio *portfolio.Service
	Scheduler *scheduler.Scheduler
	Audit     *audit.Logger
	Metrics   *metrics.Collector
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(deps Deps, logger *zap.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		tracker:   deps.Tracker,
		catalog:   deps.Tracker.Catalog(),
		portfolio: deps.Portfolio,
		scheduler: deps.Scheduler,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// RegisterRoutes registers all compliance tracking routes
func (h *ComplianceHandler) RegisterRoutes(router *gin.Engine) {
	if h.metrics != nil {
		router.Use(h.instrument())
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/v1")

	// Framework catalog endpoints
	api.GET("/frameworks", h.ListFrameworks)
	api.GET("/frameworks/:framework_id", h.GetFramework)
	api.POST("/frameworks", h.RegisterFramework)

	// Compliance status endpoints
	api.POST("/statuses", h.CreateStatus)
	api.GET("/statuses", h.ListStatuses)
	api.GET("/statuses/:status_id", h.GetStatus)
	api.DELETE("/statuses/:status_id", h.DeleteStatus)
	api.PUT("/statuses/:status_id/status", h.MarkStatus)
	api.PATCH("/statuses/:status_id/requirements/:requirement_id", h.UpdateRequirement)
	api.GET("/statuses/:status_id/analysis", h.AnalyzeStatus)

	// Evidence endpoints
	api.POST("/evidence", h.AddEvidence)
	api.GET("/evidence", h.ListEvidence)
	api.GET("/evidence/:evidence_id", h.GetEvidence)
	api.PUT("/evidence/:evidence_id/review", h.ReviewEvidence)

	// Portfolio and risk endpoints
	api.GET("/organizations/:organization_id/overview", h.GetOverview)
	api.GET("/risk/high", h.GetHighRisk)
	if h.scheduler != nil {
		api.GET("/risk/scan", h.GetScanStats)
		api.POST("/risk/scan", h.RunScan)
	}

	// Audit endpoints
	if h.audit != nil {
		api.GET("/audit/logs", h.GetAuditLogs)
	}
}

// HealthCheck reports service liveness
func (h *ComplianceHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"frameworks": h.catalog.Len(),
	})
}

// instrument records request counts and latency by route
func (h *ComplianceHandler) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		h.metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// respondError maps compliance error kinds to HTTP status codes
func (h *ComplianceHandler) respondError(c *gin.Context, msg string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, compliance.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, compliance.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, compliance.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, compliance.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// actor identifies the caller for audit fields
func actor(c *gin.Context, fallback string) string {
	if user := c.GetHeader("X-User-ID"); user != "" {
		return user
	}
	return fallback
}
