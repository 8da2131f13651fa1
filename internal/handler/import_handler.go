package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unireg-ph/prereg-api/internal/service"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/response"
)

// ImportHandler handles bulk workbook uploads.
type ImportHandler struct {
	service     *service.ImportService
	maxFileSize int64
}

// NewImportHandler constructs an import handler.
func NewImportHandler(svc *service.ImportService, maxFileSize int64) *ImportHandler {
	if maxFileSize <= 0 {
		maxFileSize = 8 << 20
	}
	return &ImportHandler{service: svc, maxFileSize: maxFileSize}
}

// Schedules godoc
// @Summary Import section schedules from a workbook
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook"
// @Success 200 {object} response.Envelope
// @Router /imports/schedules [post]
func (h *ImportHandler) Schedules(c *gin.Context) {
	src, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer src.Close()

	report, err := h.service.ImportSchedules(c.Request.Context(), src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Roster godoc
// @Summary Import a student roster with grades from a workbook
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook"
// @Success 200 {object} response.Envelope
// @Router /imports/roster [post]
func (h *ImportHandler) Roster(c *gin.Context) {
	src, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer src.Close()

	report, err := h.service.ImportRoster(c.Request.Context(), src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

func (h *ImportHandler) openUpload(c *gin.Context) (multipart.File, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "no file uploaded"))
		return nil, false
	}
	if header.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds upload limit"))
		return nil, false
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return nil, false
	}
	return src, true
}
