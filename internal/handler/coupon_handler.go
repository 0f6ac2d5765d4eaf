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

// CouponHandler exposes coupon endpoints.
type CouponHandler struct {
	coupons *service.CouponService
	courses *service.CourseService
}

// NewCouponHandler constructs CouponHandler.
func NewCouponHandler(coupons *service.CouponService, courses *service.CourseService) *CouponHandler {
	return &CouponHandler{coupons: coupons, courses: courses}
}

type validateCouponRequest struct {
	Code     string `json:"code" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
}

type couponValidation struct {
	Valid          bool    `json:"valid"`
	Reason         string  `json:"reason,omitempty"`
	Code           string  `json:"code,omitempty"`
	DiscountAmount float64 `json:"discount_amount,omitempty"`
	FinalAmount    float64 `json:"final_amount,omitempty"`
}

// Validate godoc
// @Summary Preview a coupon against a course price
// @Tags Coupons
// @Accept json
// @Produce json
// @Param payload body validateCouponRequest true "Validation payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /coupons/validate [post]
func (h *CouponHandler) Validate(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req validateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	// The price comes from the catalog, never from the client.
	course, err := h.courses.Get(c.Request.Context(), req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}

	eval, err := h.coupons.Evaluate(c.Request.Context(), req.Code, claims.UserID, course.Price)
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status >= http.StatusInternalServerError {
			response.Error(c, err)
			return
		}
		// Rejections are an expected answer for this endpoint.
		response.JSON(c, http.StatusOK, couponValidation{Valid: false, Reason: appErr.Message}, nil)
		return
	}

	response.JSON(c, http.StatusOK, couponValidation{
		Valid:          true,
		Code:           eval.Coupon.Code,
		DiscountAmount: eval.DiscountAmount,
		FinalAmount:    eval.FinalAmount,
	}, nil)
}

// List godoc
// @Summary List coupons
// @Tags Coupons
// @Produce json
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Search code or description"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/coupons [get]
func (h *CouponHandler) List(c *gin.Context) {
	var filter models.CouponFilter
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	coupons, total, err := h.coupons.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coupons, paginationFor(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get a coupon with its redemption history
// @Tags Coupons
// @Produce json
// @Param id path string true "Coupon ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/coupons/{id} [get]
func (h *CouponHandler) Get(c *gin.Context) {
	coupon, usages, err := h.coupons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"coupon": coupon, "usages": usages}, nil)
}

// Create godoc
// @Summary Create a coupon
// @Tags Coupons
// @Accept json
// @Produce json
// @Param payload body models.CreateCouponRequest true "Coupon payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/coupons [post]
func (h *CouponHandler) Create(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	coupon, err := h.coupons.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coupon)
}

// Update godoc
// @Summary Update a coupon
// @Tags Coupons
// @Accept json
// @Produce json
// @Param id path string true "Coupon ID"
// @Param payload body models.UpdateCouponRequest true "Coupon payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/coupons/{id} [put]
func (h *CouponHandler) Update(c *gin.Context) {
	var req models.UpdateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	coupon, err := h.coupons.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coupon, nil)
}

// Toggle godoc
// @Summary Toggle a coupon's active flag
// @Tags Coupons
// @Accept json
// @Produce json
// @Param id path string true "Coupon ID"
// @Success 204
// @Security BearerAuth
// @Router /admin/coupons/{id}/toggle [put]
func (h *CouponHandler) Toggle(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.coupons.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a coupon
// @Tags Coupons
// @Param id path string true "Coupon ID"
// @Success 204
// @Security BearerAuth
// @Router /admin/coupons/{id} [delete]
func (h *CouponHandler) Delete(c *gin.Context) {
	if err := h.coupons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
