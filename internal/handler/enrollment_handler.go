package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unireg-ph/prereg-api/internal/service"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/response"
)

// EnrollmentHandler exposes the eligibility engine and course plan
// endpoints.
type EnrollmentHandler struct {
	service *service.EligibilityService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc *service.EligibilityService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

type acknowledgeRequest struct {
	CourseIDs []string `json:"course_ids"`
}

// Evaluate godoc
// @Summary Evaluate course selection against prerequisites
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body service.EvaluateRequest true "Selection payload"
// @Success 200 {object} response.Envelope
// @Router /enrollment/evaluate [post]
func (h *EnrollmentHandler) Evaluate(c *gin.Context) {
	var req service.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Evaluate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AcknowledgeIncomplete godoc
// @Summary Record agreement to complete INC prerequisites concurrently
// @Tags Enrollment
// @Accept json
// @Param id path string true "Student ID"
// @Param payload body acknowledgeRequest true "INC prerequisite course IDs"
// @Success 204
// @Router /enrollment/students/{id}/acknowledge-inc [post]
func (h *EnrollmentHandler) AcknowledgeIncomplete(c *gin.Context) {
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.AcknowledgeIncomplete(c.Request.Context(), c.Param("id"), req.CourseIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EnrollRegular godoc
// @Summary Assign the curriculum plan for a regular student
// @Tags Enrollment
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /enrollment/students/{id}/regular [post]
func (h *EnrollmentHandler) EnrollRegular(c *gin.Context) {
	courses, err := h.service.EnrollRegular(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// RemoveFromPlan godoc
// @Summary Remove one course from a student's plan
// @Tags Enrollment
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 204
// @Router /enrollment/students/{id}/plan/{courseId} [delete]
func (h *EnrollmentHandler) RemoveFromPlan(c *gin.Context) {
	if err := h.service.RemoveFromPlan(c.Request.Context(), c.Param("id"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RestoreToPlan godoc
// @Summary Restore a previously removed plan course
// @Tags Enrollment
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 204
// @Router /enrollment/students/{id}/plan/{courseId}/restore [post]
func (h *EnrollmentHandler) RestoreToPlan(c *gin.Context) {
	if err := h.service.RestoreToPlan(c.Request.Context(), c.Param("id"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
