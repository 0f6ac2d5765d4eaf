package models

import "time"

// ApplicationStatus is the administrative review state.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// PaymentStatus is the payment lifecycle state. completed and failed are
// terminal for Verify; a failed application may still be re-initialized.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Application is a user's request to enroll in a course, carrying its
// pricing snapshot and payment lifecycle. The snapshot fields are copied
// from the course and coupon at payment-initialization time so later
// edits never change the charged amount.
type Application struct {
	ID               string            `db:"id" json:"id"`
	UserID           string            `db:"user_id" json:"user_id"`
	CourseID         string            `db:"course_id" json:"course_id"`
	Status           ApplicationStatus `db:"status" json:"status"`
	AppliedAt        time.Time         `db:"applied_at" json:"applied_at"`
	PaymentStatus    PaymentStatus     `db:"payment_status" json:"payment_status"`
	PaymentReference *string           `db:"payment_reference" json:"payment_reference,omitempty"`
	PaidAt           *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
	CouponID         *string           `db:"coupon_id" json:"coupon_id,omitempty"`
	OriginalPrice    float64           `db:"original_price" json:"original_price"`
	DiscountAmount   float64           `db:"discount_amount" json:"discount_amount"`
	FinalPrice       float64           `db:"final_price" json:"final_price"`
}

// ApplicationDetail enriches Application with user, course and coupon info.
type ApplicationDetail struct {
	Application
	UserName    string  `db:"user_name" json:"user_name"`
	UserEmail   string  `db:"user_email" json:"user_email"`
	CourseTitle string  `db:"course_title" json:"course_title"`
	CouponCode  *string `db:"coupon_code" json:"coupon_code,omitempty"`
}

// PaymentStats aggregates payment figures for the admin dashboard.
type PaymentStats struct {
	CompletedCount int     `db:"completed_count" json:"completed_count"`
	PendingCount   int     `db:"pending_count" json:"pending_count"`
	FailedCount    int     `db:"failed_count" json:"failed_count"`
	TotalRevenue   float64 `db:"total_revenue" json:"total_revenue"`
	TotalDiscounts float64 `db:"total_discounts" json:"total_discounts"`
}

// ApplicationFilter provides filters for listing applications.
type ApplicationFilter struct {
	UserID        string
	CourseID      string
	Status        ApplicationStatus
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
