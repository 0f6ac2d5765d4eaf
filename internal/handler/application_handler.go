package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smiict/course-api/internal/middleware"
	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/service"
	appErrors "github.com/smiict/course-api/pkg/errors"
	"github.com/smiict/course-api/pkg/response"
)

// ApplicationHandler exposes application endpoints.
type ApplicationHandler struct {
	applications *service.ApplicationService
}

// NewApplicationHandler constructs ApplicationHandler.
func NewApplicationHandler(applications *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

type reviewRequest struct {
	Status string `json:"status" binding:"required"`
}

// Apply godoc
// @Summary Apply for a course
// @Tags Applications
// @Produce json
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/apply [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	app, err := h.applications.Apply(c.Request.Context(), claims.UserID, claims.FullName, claims.Email, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// ListOwn godoc
// @Summary List the caller's applications
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications [get]
func (h *ApplicationHandler) ListOwn(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := applicationFilterFromQuery(c)
	apps, total, err := h.applications.ListOwn(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, paginationFor(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.applications.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Receipt godoc
// @Summary Download the payment receipt PDF
// @Tags Applications
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /applications/{id}/receipt [get]
func (h *ApplicationHandler) Receipt(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pdf, err := h.applications.Receipt(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// List godoc
// @Summary List applications (back office)
// @Tags Applications
// @Produce json
// @Param status query string false "Review status"
// @Param payment_status query string false "Payment status"
// @Param course_id query string false "Filter by course"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	filter := applicationFilterFromQuery(c)
	filter.UserID = c.Query("user_id")
	filter.CourseID = c.Query("course_id")

	apps, total, err := h.applications.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, paginationFor(filter.Page, filter.PageSize, total))
}

// Review godoc
// @Summary Approve or reject an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body reviewRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/applications/{id}/review [put]
func (h *ApplicationHandler) Review(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	app, err := h.applications.Review(c.Request.Context(), c.Param("id"), models.ApplicationStatus(req.Status), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

func applicationFilterFromQuery(c *gin.Context) models.ApplicationFilter {
	var filter models.ApplicationFilter
	filter.Status = models.ApplicationStatus(c.Query("status"))
	filter.PaymentStatus = models.PaymentStatus(c.Query("payment_status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
