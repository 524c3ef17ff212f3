package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/tracker"
)

// Compliance status endpoints

func (h *ComplianceHandler) CreateStatus(c *gin.Context) {
	var request struct {
		OrganizationID  string               `json:"organizationId" binding:"required"`
		FrameworkID     string               `json:"frameworkId" binding:"required"`
		PeriodEndDate   compliance.Timestamp `json:"periodEndDate"`
		InitialAssignee []string             `json:"assignedTo"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if request.PeriodEndDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodEndDate is required"})
		return
	}

	id, err := h.tracker.Create(c.Request.Context(), request.OrganizationID, request.FrameworkID,
		request.PeriodEndDate, request.InitialAssignee)
	if err != nil {
		h.respondError(c, "Failed to create compliance status", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// ListStatuses returns the statuses of an organization, optionally for one framework
func (h *ComplianceHandler) ListStatuses(c *gin.Context) {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id is required"})
		return
	}

	var (
		statuses []*compliance.ComplianceStatus
		err      error
	)
	if frameworkID := c.Query("framework_id"); frameworkID != "" {
		statuses, err = h.tracker.ByFrameworkAndOrganization(c.Request.Context(), organizationID, frameworkID)
	} else {
		statuses, err = h.tracker.ByOrganization(c.Request.Context(), organizationID)
	}
	if err != nil {
		h.respondError(c, "Failed to list compliance statuses", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses": statuses,
		"count":    len(statuses),
	})
}

func (h *ComplianceHandler) GetStatus(c *gin.Context) {
	status, err := h.tracker.Get(c.Request.Context(), c.Param("status_id"))
	if err != nil {
		h.respondError(c, "Failed to get compliance status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ComplianceHandler) DeleteStatus(c *gin.Context) {
	if err := h.tracker.Delete(c.Request.Context(), c.Param("status_id")); err != nil {
		h.respondError(c, "Failed to delete compliance status", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkStatus sets the overall status directly, e.g. non-compliant or exempt
func (h *ComplianceHandler) MarkStatus(c *gin.Context) {
	var request struct {
		Status compliance.OverallStatus `json:"status" binding:"required"`
		Notes  string                   `json:"notes"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.tracker.MarkStatus(c.Request.Context(), c.Param("status_id"), request.Status,
		request.Notes, actor(c, "api"))
	if err != nil {
		h.respondError(c, "Failed to mark compliance status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ComplianceHandler) UpdateRequirement(c *gin.Context) {
	var update tracker.RequirementUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.tracker.UpdateRequirementStatus(c.Request.Context(), c.Param("status_id"),
		c.Param("requirement_id"), update, actor(c, "api"))
	if err != nil {
		h.respondError(c, "Failed to update requirement status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ComplianceHandler) AnalyzeStatus(c *gin.Context) {
	result, err := h.portfolio.Analyze(c.Request.Context(), c.Param("status_id"))
	if err != nil {
		h.respondError(c, "Failed to analyze compliance status", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
