package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// Evidence endpoints

func (h *ComplianceHandler) AddEvidence(c *gin.Context) {
	var doc compliance.EvidenceDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if doc.UploadedBy == "" {
		doc.UploadedBy = actor(c, "")
	}

	stored, err := h.tracker.AddEvidence(c.Request.Context(), doc.OrganizationID, doc)
	if err != nil {
		h.respondError(c, "Failed to add evidence", err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *ComplianceHandler) ListEvidence(c *gin.Context) {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id is required"})
		return
	}

	docs, err := h.tracker.EvidenceByOrganization(c.Request.Context(), organizationID)
	if err != nil {
		h.respondError(c, "Failed to list evidence", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"evidence": docs,
		"count":    len(docs),
	})
}

func (h *ComplianceHandler) GetEvidence(c *gin.Context) {
	doc, err := h.tracker.GetEvidence(c.Request.Context(), c.Param("evidence_id"))
	if err != nil {
		h.respondError(c, "Failed to get evidence", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *ComplianceHandler) ReviewEvidence(c *gin.Context) {
	var request struct {
		Status     compliance.ReviewStatus `json:"status" binding:"required"`
		ReviewedBy string                  `json:"reviewedBy"`
		Comments   string                  `json:"comments"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reviewer := request.ReviewedBy
	if reviewer == "" {
		reviewer = actor(c, "")
	}

	doc, err := h.tracker.ReviewEvidence(c.Request.Context(), c.Param("evidence_id"), request.Status,
		reviewer, request.Comments)
	if err != nil {
		h.respondError(c, "Failed to review evidence", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
