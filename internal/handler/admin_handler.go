package handler

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/identity-api/internal/service"
)

// AdminHandler serves the administrative link inventory endpoints.
type AdminHandler struct {
	reportService *service.ReportService
	linkService   *service.LinkService
}

func NewAdminHandler(reportService *service.ReportService, linkService *service.LinkService) *AdminHandler {
	return &AdminHandler{
		reportService: reportService,
		linkService:   linkService,
	}
}

// ExportLinksXLSX streams the full link inventory as an Excel workbook.
func (h *AdminHandler) ExportLinksXLSX(c *gin.Context) {
	filename := fmt.Sprintf("federated-links-%s", time.Now().Format("2006-01-02"))

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	if err := h.reportService.WriteLinksXLSX(c.Writer); err != nil {
		log.Printf("[AdminHandler] xlsx export failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export links", "error_type": "internal_error"})
	}
}

// AccountLinks lists the federated links of one account (support lookup).
func (h *AdminHandler) AccountLinks(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account id is required", "error_type": "invalid_request"})
		return
	}

	links, err := h.linkService.Links(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list links", "error_type": "internal_error"})
		return
	}

	out := make([]LinkResponse, 0, len(links))
	for i := range links {
		out = append(out, newLinkResponse(&links[i]))
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "links": out})
}

// DisconnectAccount removes every link of an account (support tooling for
// takeover recovery).
func (h *AdminHandler) DisconnectAccount(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account id is required", "error_type": "invalid_request"})
		return
	}

	if err := h.linkService.DisconnectAll(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect account", "error_type": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all connections removed"})
}
