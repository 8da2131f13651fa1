package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/unireg-ph/prereg-api/internal/models"
	"github.com/unireg-ph/prereg-api/internal/service"
	"github.com/unireg-ph/prereg-api/pkg/response"
)

// ExportHandler serves printable and downloadable artifacts.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// TicketSlip godoc
// @Summary Printable PDF slip for a ticket
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Ticket ID"
// @Success 200 {file} binary
// @Router /exports/tickets/{id}/slip [get]
func (h *ExportHandler) TicketSlip(c *gin.Context) {
	rendered, err := h.service.TicketSlip(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ticket-slip.pdf"`)
	c.Data(http.StatusOK, "application/pdf", rendered)
}

// TicketsCSV godoc
// @Summary Ticket report as CSV
// @Tags Exports
// @Produce text/csv
// @Param status query string false "Filter by status"
// @Param destination query string false "Filter by destination"
// @Param archived query bool false "Include archived"
// @Success 200 {file} binary
// @Router /exports/tickets [get]
func (h *ExportHandler) TicketsCSV(c *gin.Context) {
	var filter models.TicketFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Status = c.Query("status")
	filter.Destination = c.Query("destination")
	if archived, err := strconv.ParseBool(c.Query("archived")); err == nil {
		filter.Archived = &archived
	}

	rendered, err := h.service.TicketsCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="tickets.csv"`)
	c.Data(http.StatusOK, "text/csv", rendered)
}

// StudentsCSV godoc
// @Summary Student masterlist as CSV
// @Tags Exports
// @Produce text/csv
// @Param search query string false "Search keyword"
// @Param program_id query string false "Filter by program"
// @Success 200 {file} binary
// @Router /exports/students [get]
func (h *ExportHandler) StudentsCSV(c *gin.Context) {
	var filter models.UserFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.ProgramID = c.Query("program_id")

	rendered, err := h.service.StudentsCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="students.csv"`)
	c.Data(http.StatusOK, "text/csv", rendered)
}

// TicketsPDF godoc
// @Summary Ticket masterlist as PDF
// @Tags Exports
// @Produce application/pdf
// @Param status query string false "Filter by status"
// @Param destination query string false "Filter by destination"
// @Param archived query bool false "Include archived"
// @Success 200 {file} binary
// @Router /exports/tickets/masterlist [get]
func (h *ExportHandler) TicketsPDF(c *gin.Context) {
	var filter models.TicketFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Status = c.Query("status")
	filter.Destination = c.Query("destination")
	if archived, err := strconv.ParseBool(c.Query("archived")); err == nil {
		filter.Archived = &archived
	}

	rendered, err := h.service.TicketsPDF(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ticket-masterlist.pdf"`)
	c.Data(http.StatusOK, "application/pdf", rendered)
}
