package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kennangle/studio-insights-api/internal/dto"
	"github.com/kennangle/studio-insights-api/internal/models"
	appErrors "github.com/kennangle/studio-insights-api/pkg/errors"
	"github.com/kennangle/studio-insights-api/pkg/response"
)

type importService interface {
	Start(ctx context.Context, req dto.StartImportRequest) (*dto.ImportJobResponse, error)
	Resume(ctx context.Context, jobID string) (*dto.ImportJobResponse, error)
	Pause(ctx context.Context, jobID string) (*dto.ImportJobResponse, error)
	Cancel(ctx context.Context, jobID string) (*dto.ImportJobResponse, error)
	CancelAllActive(ctx context.Context, organizationID string) (int, error)
	Status(ctx context.Context, jobID string) (*dto.ImportStatusResponse, error)
	List(ctx context.Context, organizationID string, limit int) ([]dto.ImportJobResponse, error)
	ListSkipped(ctx context.Context, jobID string, page, limit int) (*dto.SkippedRecordsResponse, error)
}

// ImportHandler exposes the import job endpoints.
type ImportHandler struct {
	imports importService
}

// NewImportHandler constructs the handler.
func NewImportHandler(imports importService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// RegisterRoutes mounts the import endpoints on the router group.
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/imports")
	imports.POST("", h.Start)
	imports.GET("", h.List)
	imports.POST("/cancel-all", h.CancelAll)
	imports.GET("/:id/status", h.Status)
	imports.POST("/:id/pause", h.Pause)
	imports.POST("/:id/resume", h.Resume)
	imports.POST("/:id/cancel", h.Cancel)
	imports.GET("/:id/skipped", h.Skipped)
}

// Start creates and enqueues a new import job.
func (h *ImportHandler) Start(c *gin.Context) {
	var req dto.StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	job, err := h.imports.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// List returns recent import jobs for an organization.
func (h *ImportHandler) List(c *gin.Context) {
	orgID := c.Query("organization_id")
	if orgID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "organization_id required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.imports.List(c.Request.Context(), orgID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Status returns the live view of one job.
func (h *ImportHandler) Status(c *gin.Context) {
	status, err := h.imports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Pause requests a stop at the next page boundary.
func (h *ImportHandler) Pause(c *gin.Context) {
	job, err := h.imports.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Resume re-queues a paused or failed job from its checkpoint.
func (h *ImportHandler) Resume(c *gin.Context) {
	job, err := h.imports.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Cancel terminally stops a job.
func (h *ImportHandler) Cancel(c *gin.Context) {
	job, err := h.imports.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// CancelAll force-cancels every active job for an organization.
func (h *ImportHandler) CancelAll(c *gin.Context) {
	orgID := c.Query("organization_id")
	if orgID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "organization_id required"))
		return
	}
	count, err := h.imports.CancelAllActive(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelled": count}, nil)
}

// Skipped returns the paged skipped-record audit trail for a job.
func (h *ImportHandler) Skipped(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.imports.ListSkipped(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records.Records, models.NewPagination(records.Page, records.Limit, records.Total))
}
