package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/gateway"
	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/notify"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

type paymentApplicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByReference(ctx context.Context, reference string) (*models.Application, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	UpdatePricing(ctx context.Context, id string, couponID *string, original, discount, final float64) error
	SetReference(ctx context.Context, id, reference string) error
	MarkFailed(ctx context.Context, id string) error
	CompleteWithRedemption(ctx context.Context, app *models.Application, paidAt time.Time) (bool, error)
}

type paymentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type couponEvaluator interface {
	Evaluate(ctx context.Context, code, userID string, amount float64) (*models.CouponEvaluation, error)
}

type paymentGateway interface {
	CreateSession(ctx context.Context, email string, amountMinor int64, reference string, metadata map[string]interface{}) (*gateway.Session, error)
	ConfirmTransaction(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

type paymentNotifier interface {
	NotifyPaymentConfirmed(n notify.PaymentConfirmed)
}

// PaymentSession is returned from Initialize for the client redirect.
type PaymentSession struct {
	AuthorizationURL string  `json:"authorization_url"`
	Reference        string  `json:"reference"`
	OriginalPrice    float64 `json:"original_price"`
	DiscountAmount   float64 `json:"discount_amount"`
	FinalPrice       float64 `json:"final_price"`
	CouponCode       string  `json:"coupon_code,omitempty"`
}

// VerifyOutcome reports the reconciled payment state for a reference.
type VerifyOutcome struct {
	ApplicationID string               `json:"application_id"`
	Reference     string               `json:"reference"`
	Status        models.PaymentStatus `json:"status"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	AmountPaid    float64              `json:"amount_paid"`
}

// PaymentService drives the payment lifecycle: it snapshots pricing at
// initialization and reconciles state against the gateway's answer at
// verification. Coupons are consumed only inside the completion
// transaction, never at evaluation or initialization time.
type PaymentService struct {
	apps    paymentApplicationRepository
	courses paymentCourseRepository
	coupons couponEvaluator
	gateway paymentGateway
	notify  paymentNotifier
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(apps paymentApplicationRepository, courses paymentCourseRepository, coupons couponEvaluator, gw paymentGateway, notifier paymentNotifier, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		apps:    apps,
		courses: courses,
		coupons: coupons,
		gateway: gw,
		notify:  notifier,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches payment counters to the service.
func (s *PaymentService) WithMetrics(m *MetricsService) *PaymentService {
	s.metrics = m
	return s
}

// newReference produces a fresh gateway reference.
func newReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PAY_" + strings.ToUpper(raw[:10])
}

// Initialize starts a payment attempt for an application. The pricing
// snapshot is persisted before the gateway is contacted so a gateway
// outage never loses the quoted price; the reference is only stored
// once the gateway has accepted the session. Completed applications
// cannot be re-initialized; pending and failed ones can, which lets a
// student retry after an abandoned or declined attempt.
func (s *PaymentService) Initialize(ctx context.Context, applicationID, userID, couponCode string) (*PaymentSession, error) {
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another user")
	}
	if app.PaymentStatus == models.PaymentStatusCompleted {
		return nil, appErrors.ErrPaymentCompleted
	}

	course, err := s.courses.FindByID(ctx, app.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	original := course.Price
	discount := 0.0
	final := original
	var couponID *string
	var couponCodeUsed string

	if couponCode != "" {
		eval, err := s.coupons.Evaluate(ctx, couponCode, userID, original)
		if err != nil {
			return nil, err
		}
		discount = eval.DiscountAmount
		final = eval.FinalAmount
		couponID = &eval.Coupon.ID
		couponCodeUsed = eval.Coupon.Code
	}

	if err := s.apps.UpdatePricing(ctx, app.ID, couponID, original, discount, final); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store pricing")
	}

	detail, err := s.apps.FindDetailByID(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}

	reference := newReference()
	amountMinor := int64(final * 100)

	session, err := s.gateway.CreateSession(ctx, detail.UserEmail, amountMinor, reference, map[string]interface{}{
		"application_id": app.ID,
		"course_id":      app.CourseID,
		"user_id":        app.UserID,
		"course_title":   detail.CourseTitle,
	})
	if err != nil {
		// Transport failures and authoritative rejections both surface
		// as a retryable gateway error; neither has stored a reference.
		s.metrics.GatewayError()
		s.logger.Sugar().Warnw("gateway error during initialization", "application_id", app.ID, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, appErrors.ErrGatewayUnavailable.Message)
	}

	if err := s.apps.SetReference(ctx, app.ID, reference); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payment reference")
	}

	s.metrics.PaymentInitialized()
	s.logger.Sugar().Infow("payment initialized",
		"application_id", app.ID, "reference", reference,
		"original", original, "discount", discount, "final", final)

	return &PaymentSession{
		AuthorizationURL: session.AuthorizationURL,
		Reference:        reference,
		OriginalPrice:    original,
		DiscountAmount:   discount,
		FinalPrice:       final,
		CouponCode:       couponCodeUsed,
	}, nil
}

// Verify reconciles an application's payment state with the gateway's
// answer for a reference. The call is idempotent: a reference that has
// already been confirmed reports completed without touching the coupon
// again, and a transport failure leaves all state untouched.
func (s *PaymentService) Verify(ctx context.Context, reference string) (*VerifyOutcome, error) {
	app, err := s.apps.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown payment reference")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	if app.PaymentStatus == models.PaymentStatusCompleted {
		return &VerifyOutcome{
			ApplicationID: app.ID,
			Reference:     reference,
			Status:        models.PaymentStatusCompleted,
			PaidAt:        app.PaidAt,
			AmountPaid:    app.FinalPrice,
		}, nil
	}

	result, err := s.gateway.ConfirmTransaction(ctx, reference)
	if err != nil {
		// An error here carries no verdict on the transaction, so the
		// stored status stays untouched and the caller may retry.
		s.metrics.GatewayError()
		s.logger.Sugar().Warnw("gateway error during verification", "reference", reference, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, appErrors.ErrGatewayUnavailable.Message)
	}

	if !result.Succeeded {
		if err := s.apps.MarkFailed(ctx, app.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment failure")
		}
		s.metrics.PaymentFailed()
		s.logger.Sugar().Infow("payment failed", "reference", reference, "gateway_status", result.RawStatus)
		return &VerifyOutcome{
			ApplicationID: app.ID,
			Reference:     reference,
			Status:        models.PaymentStatusFailed,
		}, nil
	}

	paidAt := s.now()
	if result.PaidAt != nil {
		paidAt = result.PaidAt.UTC()
	}

	flipped, err := s.apps.CompleteWithRedemption(ctx, app, paidAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete payment")
	}

	if flipped {
		s.metrics.PaymentCompleted(app.CouponID != nil)
		s.logger.Sugar().Infow("payment completed", "reference", reference, "application_id", app.ID)
		s.notifyConfirmed(ctx, app, reference)
	}

	return &VerifyOutcome{
		ApplicationID: app.ID,
		Reference:     reference,
		Status:        models.PaymentStatusCompleted,
		PaidAt:        &paidAt,
		AmountPaid:    app.FinalPrice,
	}, nil
}

func (s *PaymentService) notifyConfirmed(ctx context.Context, app *models.Application, reference string) {
	detail, err := s.apps.FindDetailByID(ctx, app.ID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load detail for payment notification", "application_id", app.ID, "error", err)
		return
	}
	n := notify.PaymentConfirmed{
		StudentName:  detail.UserName,
		StudentEmail: detail.UserEmail,
		CourseTitle:  detail.CourseTitle,
		Reference:    reference,
		AmountPaid:   detail.FinalPrice,
		Discount:     detail.DiscountAmount,
	}
	if detail.CouponCode != nil {
		n.CouponCode = *detail.CouponCode
	}
	s.notify.NotifyPaymentConfirmed(n)
}
