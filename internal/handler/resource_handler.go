package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/unishare/unishare-api/internal/dto"
	"github.com/unishare/unishare-api/internal/facet"
	"github.com/unishare/unishare-api/internal/models"
	"github.com/unishare/unishare-api/internal/service"
	appErrors "github.com/unishare/unishare-api/pkg/errors"
	"github.com/unishare/unishare-api/pkg/response"
)

type resourceService interface {
	List(ctx context.Context) ([]models.ResourceView, error)
	Latest(ctx context.Context) ([]models.ResourceView, error)
	CreateLink(ctx context.Context, req dto.CreateLinkResourceRequest, actor *models.JWTClaims) (*models.Resource, error)
	CreateFile(ctx context.Context, req dto.CreateFileResourceRequest, upload service.FileUpload, actor *models.JWTClaims) (*models.Resource, error)
	SignedURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error)
	Download(ctx context.Context, id, token string) (*service.ResourceDownload, error)
	Update(ctx context.Context, id string, req dto.UpdateResourceRequest, actor *models.JWTClaims) (*models.Resource, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// ResourceHandler manages resource HTTP endpoints.
type ResourceHandler struct {
	service resourceService
	metrics *service.MetricsService
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(svc resourceService, metrics *service.MetricsService) *ResourceHandler {
	return &ResourceHandler{service: svc, metrics: metrics}
}

// List godoc
// @Summary List all resources, newest first
// @Tags Resources
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /resources [get]
func (h *ResourceHandler) List(c *gin.Context) {
	rows, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

// Latest godoc
// @Summary List the three newest resources
// @Tags Resources
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /resources/latest [get]
func (h *ResourceHandler) Latest(c *gin.Context) {
	rows, err := h.service.Latest(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

// Facets godoc
// @Summary Derive filter facets from the resource list
// @Tags Resources
// @Produce json
// @Param course query string false "Selected course"
// @Param unit query string false "Selected unit id"
// @Router /resources/facets [get]
func (h *ResourceHandler) Facets(c *gin.Context) {
	rows, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	var sel facet.Selection
	if course := strings.TrimSpace(c.Query("course")); course != "" {
		sel.SetCourse(course)
	}
	if unit := strings.TrimSpace(c.Query("unit")); unit != "" {
		sel.SetUnit(unit)
	}
	narrowed := facet.Apply(rows, sel)

	response.JSON(c, http.StatusOK, gin.H{
		"courses": facet.Courses(rows),
		"units":   facet.Units(rows, sel.Course),
		"years":   facet.Years(narrowed),
		"types":   facet.Types(narrowed),
	})
}

// CreateLink godoc
// @Summary Create an external-link resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param payload body dto.CreateLinkResourceRequest true "Resource metadata"
// @Success 201 {object} response.Envelope
// @Router /resources [post]
func (h *ResourceHandler) CreateLink(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateLinkResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resource payload"))
		return
	}
	res, err := h.service.CreateLink(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordUpload(string(models.KindExternalLink))
	response.Created(c, res)
}

// CreateFile godoc
// @Summary Upload a PDF resource
// @Tags Resources
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param subject_code formData string true "Subject code"
// @Param start_year formData integer true "Academic year start"
// @Param end_year formData integer true "Academic year end"
// @Param unit_number formData integer false "Unit number"
// @Param resource_type formData string false "Presentation type"
// @Param file formData file true "PDF document"
// @Success 201 {object} response.Envelope
// @Router /resources/file [post]
func (h *ResourceHandler) CreateFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateFileResourceRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resource payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	var reader io.Reader = src
	if _, ok := src.(io.ReadSeeker); !ok {
		buf, readErr := io.ReadAll(src)
		if readErr != nil {
			response.Error(c, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
			return
		}
		reader = bytes.NewReader(buf)
	}

	upload := service.FileUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  reader,
	}
	res, err := h.service.CreateFile(c.Request.Context(), req, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordUpload(string(models.KindFile))
	response.Created(c, res)
}

// SignedURL godoc
// @Summary Issue a time-limited download URL for a file resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} dto.SignedURLResponse
// @Router /resources/signed-url/{id} [get]
func (h *ResourceHandler) SignedURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	url, err := h.service.SignedURL(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SignedURLResponse{Success: true, SignedURL: url})
}

// Download godoc
// @Summary Download a stored file via signed token
// @Tags Resources
// @Produce octet-stream
// @Param id path string true "Resource ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /resources/{id}/download [get]
func (h *ResourceHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, "application/pdf", result.File, nil)
}

// Update godoc
// @Summary Update a resource's title and description
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.UpdateResourceRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /resources/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid update payload"))
		return
	}
	res, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Delete godoc
// @Summary Soft-delete a resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}
