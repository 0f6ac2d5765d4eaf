package models

import "time"

// DiscountType distinguishes percentage and fixed-amount coupons.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Coupon is an admin-created discount code. Codes are stored upper-cased
// and matched case-insensitively. used_count never exceeds usage_limit
// when the limit is set.
type Coupon struct {
	ID            string       `db:"id" json:"id"`
	Code          string       `db:"code" json:"code"`
	Description   string       `db:"description" json:"description"`
	DiscountType  DiscountType `db:"discount_type" json:"discount_type"`
	DiscountValue float64      `db:"discount_value" json:"discount_value"`
	MinAmount     float64      `db:"min_amount" json:"min_amount"`
	MaxDiscount   *float64     `db:"max_discount" json:"max_discount,omitempty"`
	UsageLimit    *int         `db:"usage_limit" json:"usage_limit,omitempty"`
	UsedCount     int          `db:"used_count" json:"used_count"`
	UserLimit     int          `db:"user_limit" json:"user_limit"`
	IsActive      bool         `db:"is_active" json:"is_active"`
	ValidFrom     time.Time    `db:"valid_from" json:"valid_from"`
	ValidUntil    *time.Time   `db:"valid_until" json:"valid_until,omitempty"`
	CreatedBy     string       `db:"created_by" json:"created_by"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// CouponUsage records one redemption. At most one row exists per
// (coupon, application); rows are only written on confirmed payment.
type CouponUsage struct {
	ID             string    `db:"id" json:"id"`
	CouponID       string    `db:"coupon_id" json:"coupon_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ApplicationID  string    `db:"application_id" json:"application_id"`
	DiscountAmount float64   `db:"discount_amount" json:"discount_amount"`
	UsedAt         time.Time `db:"used_at" json:"used_at"`
}

// CouponEvaluation is the outcome of applying a coupon to an amount.
// It is a pure computation; nothing is consumed until payment confirms.
type CouponEvaluation struct {
	Coupon         *Coupon `json:"coupon"`
	OriginalAmount float64 `json:"original_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`
}

// CreateCouponRequest is the admin payload for creating a coupon.
type CreateCouponRequest struct {
	Code          string     `json:"code" validate:"required,min=3,max=32"`
	Description   string     `json:"description"`
	DiscountType  string     `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue float64    `json:"discount_value" validate:"required,gt=0"`
	MinAmount     float64    `json:"min_amount" validate:"gte=0"`
	MaxDiscount   *float64   `json:"max_discount" validate:"omitempty,gt=0"`
	UsageLimit    *int       `json:"usage_limit" validate:"omitempty,gt=0"`
	UserLimit     int        `json:"user_limit" validate:"gte=0"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
}

// UpdateCouponRequest is the admin payload for editing a coupon.
type UpdateCouponRequest struct {
	Description   *string    `json:"description"`
	DiscountType  *string    `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue *float64   `json:"discount_value" validate:"omitempty,gt=0"`
	MinAmount     *float64   `json:"min_amount" validate:"omitempty,gte=0"`
	MaxDiscount   *float64   `json:"max_discount" validate:"omitempty,gt=0"`
	UsageLimit    *int       `json:"usage_limit" validate:"omitempty,gt=0"`
	UserLimit     *int       `json:"user_limit" validate:"omitempty,gte=0"`
	IsActive      *bool      `json:"is_active"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
}

// CouponFilter provides filters for the admin coupon listing.
type CouponFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
