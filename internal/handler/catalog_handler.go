package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unishare/unishare-api/internal/models"
	"github.com/unishare/unishare-api/pkg/response"
)

type catalogService interface {
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error)
}

// CatalogHandler serves the reference data used to populate upload forms.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListSubjects godoc
// @Summary List all subjects
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *CatalogHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.service.ListSubjects(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects)
}

// ListAcademicYears godoc
// @Summary List academic years, most recent first
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *CatalogHandler) ListAcademicYears(c *gin.Context) {
	years, err := h.service.ListAcademicYears(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years)
}
