package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// ListFrameworks returns the registered frameworks, optionally filtered by
// region, category or sector
func (h *ComplianceHandler) ListFrameworks(c *gin.Context) {
	var frameworks []*compliance.Framework
	switch {
	case c.Query("region") != "":
		frameworks = h.catalog.ByRegion(c.Query("region"))
	case c.Query("category") != "":
		frameworks = h.catalog.ByCategory(c.Query("category"))
	case c.Query("sector") != "":
		frameworks = h.catalog.BySector(c.Query("sector"))
	default:
		frameworks = h.catalog.All()
	}

	c.JSON(http.StatusOK, gin.H{
		"frameworks": frameworks,
		"count":      len(frameworks),
	})
}

func (h *ComplianceHandler) GetFramework(c *gin.Context) {
	framework, err := h.catalog.Get(c.Param("framework_id"))
	if err != nil {
		h.respondError(c, "Failed to get framework", err)
		return
	}
	c.JSON(http.StatusOK, framework)
}

func (h *ComplianceHandler) RegisterFramework(c *gin.Context) {
	var framework compliance.Framework
	if err := c.ShouldBindJSON(&framework); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.catalog.Register(framework); err != nil {
		h.respondError(c, "Failed to register framework", err)
		return
	}

	h.logger.Info("Framework registered via API",
		zap.String("framework_id", framework.ID),
		zap.String("user", actor(c, "")))
	c.JSON(http.StatusCreated, gin.H{"id": framework.ID})
}
