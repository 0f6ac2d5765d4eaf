package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/service"
	"github.com/smiict/course-api/pkg/response"
)

// ReportHandler exposes admin reporting endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Stats godoc
// @Summary Payment dashboard figures
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reports/stats [get]
func (h *ReportHandler) Stats(c *gin.Context) {
	stats, err := h.reports.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// PaymentsExport godoc
// @Summary Export the payment ledger
// @Tags Reports
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Filter by payment status"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /admin/reports/payments [get]
func (h *ReportHandler) PaymentsExport(c *gin.Context) {
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	status := models.PaymentStatus(c.Query("status"))

	out, filename, err := h.reports.PaymentsExport(c.Request.Context(), status, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if format == service.ReportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, out)
}
