package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smiict/course-api/internal/middleware"
	"github.com/smiict/course-api/internal/service"
	appErrors "github.com/smiict/course-api/pkg/errors"
	"github.com/smiict/course-api/pkg/response"
)

// PaymentHandler exposes payment endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initializePaymentRequest struct {
	ApplicationID string `json:"application_id" binding:"required"`
	CouponCode    string `json:"coupon_code"`
}

// Initialize godoc
// @Summary Create a payment session for an application
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body initializePaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/initialize [post]
func (h *PaymentHandler) Initialize(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	session, err := h.payments.Initialize(c.Request.Context(), req.ApplicationID, claims.UserID, req.CouponCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Verify godoc
// @Summary Verify a payment reference with the gateway
// @Tags Payments
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/verify/{reference} [get]
func (h *PaymentHandler) Verify(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payment reference is required"))
		return
	}

	outcome, err := h.payments.Verify(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Callback godoc
// @Summary Gateway redirect callback
// @Tags Payments
// @Produce json
// @Param reference query string true "Payment reference"
// @Success 200 {object} response.Envelope
// @Router /payments/callback [get]
func (h *PaymentHandler) Callback(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reference query parameter is required"))
		return
	}

	outcome, err := h.payments.Verify(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}
