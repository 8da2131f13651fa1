package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unireg-ph/prereg-api/internal/service"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/response"
)

// SemesterHandler handles active term endpoints.
type SemesterHandler struct {
	service *service.SemesterService
}

// NewSemesterHandler constructs a semester handler.
func NewSemesterHandler(svc *service.SemesterService) *SemesterHandler {
	return &SemesterHandler{service: svc}
}

type setSemesterRequest struct {
	Name string `json:"name" binding:"required"`
}

// Active godoc
// @Summary Current active semester
// @Tags Semesters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /semesters/active [get]
func (h *SemesterHandler) Active(c *gin.Context) {
	semester, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// SetActive godoc
// @Summary Switch the active semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param payload body setSemesterRequest true "Semester name"
// @Success 200 {object} response.Envelope
// @Router /semesters/active [put]
func (h *SemesterHandler) SetActive(c *gin.Context) {
	var req setSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.service.SetActive(c.Request.Context(), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Advance godoc
// @Summary Advance to the next semester in the cycle
// @Tags Semesters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /semesters/advance [post]
func (h *SemesterHandler) Advance(c *gin.Context) {
	semester, err := h.service.Advance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}
