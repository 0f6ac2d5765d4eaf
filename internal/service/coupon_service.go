package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

// Coupon rejection errors. Each variant carries a stable code so
// clients can distinguish why a code was refused.
var (
	ErrCouponNotFound    = appErrors.New("COUPON_NOT_FOUND", 404, "invalid coupon code")
	ErrCouponInactive    = appErrors.New("COUPON_INACTIVE", 400, "coupon is not active")
	ErrCouponNotStarted  = appErrors.New("COUPON_NOT_STARTED", 400, "coupon is not yet valid")
	ErrCouponExpired     = appErrors.New("COUPON_EXPIRED", 400, "coupon has expired")
	ErrCouponMinAmount   = appErrors.New("COUPON_MIN_AMOUNT", 400, "order amount below coupon minimum")
	ErrCouponExhausted   = appErrors.New("COUPON_EXHAUSTED", 400, "coupon usage limit reached")
	ErrCouponUserLimit   = appErrors.New("COUPON_USER_LIMIT", 400, "coupon already used by this account")
)

type couponRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id string) (*models.Coupon, error)
	Create(ctx context.Context, coupon *models.Coupon) error
	Update(ctx context.Context, coupon *models.Coupon) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	CountUsageByUser(ctx context.Context, couponID, userID string) (int, error)
	ListUsages(ctx context.Context, couponID string) ([]models.CouponUsage, error)
	List(ctx context.Context, filter models.CouponFilter) ([]models.Coupon, int, error)
}

// CouponService owns coupon administration and discount evaluation.
// Evaluation never mutates state: redemption happens inside the payment
// completion transaction, not here.
type CouponService struct {
	repo     couponRepository
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewCouponService creates a CouponService.
func NewCouponService(repo couponRepository, logger *zap.Logger) *CouponService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouponService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks a coupon code against an order amount for a user and
// computes the discount. Codes match case-insensitively. Checks run in
// a fixed order so the caller always gets the most fundamental
// rejection first.
func (s *CouponService) Evaluate(ctx context.Context, code, userID string, amount float64) (*models.CouponEvaluation, error) {
	coupon, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up coupon")
	}

	if !coupon.IsActive {
		return nil, ErrCouponInactive
	}

	now := s.now()
	if now.Before(coupon.ValidFrom) {
		return nil, ErrCouponNotStarted
	}
	if coupon.ValidUntil != nil && now.After(*coupon.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if amount < coupon.MinAmount {
		return nil, appErrors.Clone(ErrCouponMinAmount,
			fmt.Sprintf("order amount below coupon minimum of %.2f", coupon.MinAmount))
	}

	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, ErrCouponExhausted
	}

	used, err := s.repo.CountUsageByUser(ctx, coupon.ID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check coupon usage")
	}
	if used >= coupon.UserLimit {
		return nil, ErrCouponUserLimit
	}

	discount := computeDiscount(coupon, amount)
	return &models.CouponEvaluation{
		Coupon:         coupon,
		OriginalAmount: amount,
		DiscountAmount: discount,
		FinalAmount:    amount - discount,
	}, nil
}

// computeDiscount applies the coupon's discount rule to an amount.
// The discount never exceeds the amount itself.
func computeDiscount(coupon *models.Coupon, amount float64) float64 {
	var discount float64
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		discount = amount * coupon.DiscountValue / 100
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
	case models.DiscountTypeFixed:
		discount = coupon.DiscountValue
	}
	discount = math.Min(discount, amount)
	return math.Round(discount*100) / 100
}

// Create registers a new coupon from an admin request.
func (s *CouponService) Create(ctx context.Context, req models.CreateCouponRequest, createdBy string) (*models.Coupon, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coupon payload")
	}
	if req.DiscountType == string(models.DiscountTypePercentage) && req.DiscountValue > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "percentage discount cannot exceed 100")
	}

	validFrom := s.now()
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	if req.ValidUntil != nil && !req.ValidUntil.After(validFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "valid_until must be after valid_from")
	}

	// Omitting user_limit means one redemption per account, not unlimited.
	userLimit := req.UserLimit
	if userLimit == 0 {
		userLimit = 1
	}

	coupon := &models.Coupon{
		Code:          req.Code,
		Description:   req.Description,
		DiscountType:  models.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		MinAmount:     req.MinAmount,
		MaxDiscount:   req.MaxDiscount,
		UsageLimit:    req.UsageLimit,
		UserLimit:     userLimit,
		IsActive:      true,
		ValidFrom:     validFrom,
		ValidUntil:    req.ValidUntil,
		CreatedBy:     createdBy,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create coupon")
	}

	s.logger.Sugar().Infow("coupon created", "coupon_id", coupon.ID, "code", coupon.Code, "created_by", createdBy)
	return coupon, nil
}

// Update modifies an existing coupon. The code itself is immutable once
// issued so redeemed references stay meaningful.
func (s *CouponService) Update(ctx context.Context, id string, req models.UpdateCouponRequest) (*models.Coupon, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coupon payload")
	}

	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coupon not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon")
	}

	if req.Description != nil {
		coupon.Description = *req.Description
	}
	if req.DiscountType != nil {
		coupon.DiscountType = models.DiscountType(*req.DiscountType)
	}
	if req.DiscountValue != nil {
		coupon.DiscountValue = *req.DiscountValue
	}
	if req.MinAmount != nil {
		coupon.MinAmount = *req.MinAmount
	}
	if req.MaxDiscount != nil {
		coupon.MaxDiscount = req.MaxDiscount
	}
	if req.UsageLimit != nil {
		coupon.UsageLimit = req.UsageLimit
	}
	if req.UserLimit != nil {
		coupon.UserLimit = *req.UserLimit
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		coupon.ValidUntil = req.ValidUntil
	}
	if coupon.DiscountType == models.DiscountTypePercentage && coupon.DiscountValue > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "percentage discount cannot exceed 100")
	}

	if err := s.repo.Update(ctx, coupon); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update coupon")
	}
	return coupon, nil
}

// SetActive toggles a coupon without touching its other fields.
func (s *CouponService) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coupon not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle coupon")
	}
	return nil
}

// Delete removes a coupon.
func (s *CouponService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coupon not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete coupon")
	}
	return nil
}

// Get returns a coupon with its redemption history.
func (s *CouponService) Get(ctx context.Context, id string) (*models.Coupon, []models.CouponUsage, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "coupon not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon")
	}
	usages, err := s.repo.ListUsages(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon usages")
	}
	return coupon, usages, nil
}

// List returns coupons for the admin listing.
func (s *CouponService) List(ctx context.Context, filter models.CouponFilter) ([]models.Coupon, int, error) {
	coupons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list coupons")
	}
	return coupons, total, nil
}
