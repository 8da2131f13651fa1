package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/unireg-ph/prereg-api/internal/models"
	"github.com/unireg-ph/prereg-api/internal/service"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/response"
)

// QueueHandler handles queue ticket endpoints.
type QueueHandler struct {
	service *service.QueueService
}

// NewQueueHandler constructs a queue handler.
func NewQueueHandler(svc *service.QueueService) *QueueHandler {
	return &QueueHandler{service: svc}
}

// CreateTicket godoc
// @Summary Issue a queue ticket for a student
// @Tags Queue
// @Accept json
// @Produce json
// @Param payload body service.CreateTicketRequest true "Ticket payload"
// @Success 201 {object} response.Envelope
// @Router /queue/tickets [post]
func (h *QueueHandler) CreateTicket(c *gin.Context) {
	var req service.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	ticket, err := h.service.CreateForStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ticket)
}

// CreateTransaction godoc
// @Summary Issue a walk-in transaction ticket
// @Tags Queue
// @Accept json
// @Produce json
// @Param payload body service.CreateTransactionRequest true "Transaction payload"
// @Success 201 {object} response.Envelope
// @Router /queue/transactions [post]
func (h *QueueHandler) CreateTransaction(c *gin.Context) {
	var req service.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	ticket, err := h.service.CreateTransaction(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ticket)
}

// List godoc
// @Summary List tickets
// @Tags Queue
// @Produce json
// @Param search query string false "Search keyword"
// @Param status query string false "Filter by status"
// @Param destination query string false "Filter by destination"
// @Param archived query bool false "Include archived"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /queue/tickets [get]
func (h *QueueHandler) List(c *gin.Context) {
	var filter models.TicketFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Status = c.Query("status")
	filter.Destination = c.Query("destination")
	if archived, err := strconv.ParseBool(c.Query("archived")); err == nil {
		filter.Archived = &archived
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	tickets, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, pagination)
}

// Get godoc
// @Summary Get ticket by id
// @Tags Queue
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Router /queue/tickets/{id} [get]
func (h *QueueHandler) Get(c *gin.Context) {
	ticket, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Current godoc
// @Summary Waiting tickets at a destination
// @Tags Queue
// @Produce json
// @Param destination path string true "Destination"
// @Success 200 {object} response.Envelope
// @Router /queue/current/{destination} [get]
func (h *QueueHandler) Current(c *gin.Context) {
	current, err := h.service.Current(c.Request.Context(), c.Param("destination"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, current, nil)
}

// Advance godoc
// @Summary Move a ticket to the next destination
// @Tags Queue
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Router /queue/tickets/{id}/advance [post]
func (h *QueueHandler) Advance(c *gin.Context) {
	ticket, err := h.service.Advance(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Done godoc
// @Summary Complete a ticket
// @Tags Queue
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Router /queue/tickets/{id}/done [post]
func (h *QueueHandler) Done(c *gin.Context) {
	ticket, err := h.service.Done(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Cancel godoc
// @Summary Mark a ticket as missed
// @Tags Queue
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Router /queue/tickets/{id}/cancel [post]
func (h *QueueHandler) Cancel(c *gin.Context) {
	ticket, err := h.service.Cancel(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Reset godoc
// @Summary Reset the queue for a new enrollment cycle
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/reset [post]
func (h *QueueHandler) Reset(c *gin.Context) {
	closed, err := h.service.Reset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"closed_tickets": closed}, nil)
}

// Destinations godoc
// @Summary Configured destination sequence
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/destinations [get]
func (h *QueueHandler) Destinations(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Destinations(), nil)
}
