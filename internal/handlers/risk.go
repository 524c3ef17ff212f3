package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aegisshield/compliance-tracker/internal/audit"
	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/portfolio"
)

// Portfolio and risk endpoints

func (h *ComplianceHandler) GetOverview(c *gin.Context) {
	overview, err := h.portfolio.Overview(c.Request.Context(), c.Param("organization_id"))
	if err != nil {
		h.respondError(c, "Failed to build overview", err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GetHighRisk scans statuses for risk at or above min_level (default high)
func (h *ComplianceHandler) GetHighRisk(c *gin.Context) {
	opts := portfolio.ScanOptions{
		OrganizationID: c.Query("organization_id"),
		MinLevel:       compliance.RiskLevel(c.Query("min_level")),
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		opts.Limit = limit
	}

	findings, err := h.portfolio.HighRisk(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, "Failed to scan for high risk", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"findings": findings,
		"count":    len(findings),
	})
}

func (h *ComplianceHandler) GetScanStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Stats())
}

// RunScan runs the scheduled risk scan immediately
func (h *ComplianceHandler) RunScan(c *gin.Context) {
	published, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to run risk scan", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": published})
}

// Audit endpoints

func (h *ComplianceHandler) GetAuditLogs(c *gin.Context) {
	filter := audit.Filter{
		OrganizationID: c.Query("organization_id"),
		EntityID:       c.Query("entity_id"),
		EventType:      compliance.EventType(c.Query("event_type")),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		filter.Since = t
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	logs, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "Failed to query audit logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}
