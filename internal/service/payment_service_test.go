package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smiict/course-api/internal/gateway"
	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/notify"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

type mockPaymentAppRepo struct {
	apps        map[string]*models.Application
	byReference map[string]*models.Application
	details     map[string]*models.ApplicationDetail

	pricingStored   bool
	storedCouponID  *string
	storedFinal     float64
	referenceStored string
	markedFailed    bool
	completed       bool
	completePaidAt  time.Time
	flipResult      bool
	completeErr     error
}

func newMockPaymentAppRepo() *mockPaymentAppRepo {
	return &mockPaymentAppRepo{
		apps:        make(map[string]*models.Application),
		byReference: make(map[string]*models.Application),
		details:     make(map[string]*models.ApplicationDetail),
		flipResult:  true,
	}
}

func (m *mockPaymentAppRepo) FindByID(_ context.Context, id string) (*models.Application, error) {
	if app, ok := m.apps[id]; ok {
		return app, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentAppRepo) FindByReference(_ context.Context, ref string) (*models.Application, error) {
	if app, ok := m.byReference[ref]; ok {
		return app, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentAppRepo) FindDetailByID(_ context.Context, id string) (*models.ApplicationDetail, error) {
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentAppRepo) UpdatePricing(_ context.Context, id string, couponID *string, original, discount, final float64) error {
	m.pricingStored = true
	m.storedCouponID = couponID
	m.storedFinal = final
	if app, ok := m.apps[id]; ok {
		app.CouponID = couponID
		app.OriginalPrice = original
		app.DiscountAmount = discount
		app.FinalPrice = final
	}
	return nil
}

func (m *mockPaymentAppRepo) SetReference(_ context.Context, id, reference string) error {
	m.referenceStored = reference
	return nil
}

func (m *mockPaymentAppRepo) MarkFailed(_ context.Context, id string) error {
	m.markedFailed = true
	return nil
}

func (m *mockPaymentAppRepo) CompleteWithRedemption(_ context.Context, app *models.Application, paidAt time.Time) (bool, error) {
	if m.completeErr != nil {
		return false, m.completeErr
	}
	m.completed = true
	m.completePaidAt = paidAt
	return m.flipResult, nil
}

type mockPaymentCourseRepo struct {
	courses map[string]*models.Course
}

func (m *mockPaymentCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockCouponEvaluator struct {
	eval *models.CouponEvaluation
	err  error
}

func (m *mockCouponEvaluator) Evaluate(_ context.Context, _, _ string, _ float64) (*models.CouponEvaluation, error) {
	return m.eval, m.err
}

type mockGateway struct {
	session    *gateway.Session
	sessionErr error

	verifyResult *gateway.VerifyResult
	verifyErr    error

	sessionCalls int
	lastAmount   int64
	lastRef      string
	lastMetadata map[string]interface{}
}

func (m *mockGateway) CreateSession(_ context.Context, _ string, amountMinor int64, reference string, metadata map[string]interface{}) (*gateway.Session, error) {
	m.sessionCalls++
	m.lastAmount = amountMinor
	m.lastRef = reference
	m.lastMetadata = metadata
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockGateway) ConfirmTransaction(_ context.Context, _ string) (*gateway.VerifyResult, error) {
	return m.verifyResult, m.verifyErr
}

type mockPaymentNotifier struct {
	confirmed []notify.PaymentConfirmed
}

func (m *mockPaymentNotifier) NotifyPaymentConfirmed(n notify.PaymentConfirmed) {
	m.confirmed = append(m.confirmed, n)
}

func paymentFixture() (*mockPaymentAppRepo, *mockPaymentCourseRepo, *mockCouponEvaluator, *mockGateway, *mockPaymentNotifier) {
	apps := newMockPaymentAppRepo()
	apps.apps["app-1"] = &models.Application{
		ID:            "app-1",
		UserID:        "user-1",
		CourseID:      "course-1",
		Status:        models.ApplicationStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	apps.details["app-1"] = &models.ApplicationDetail{
		Application: models.Application{ID: "app-1", UserID: "user-1", FinalPrice: 100},
		UserName:    "Ada Obi",
		UserEmail:   "ada@example.com",
		CourseTitle: "Data Analysis",
	}
	courses := &mockPaymentCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Data Analysis", Price: 100},
	}}
	coupons := &mockCouponEvaluator{}
	gw := &mockGateway{session: &gateway.Session{AuthorizationURL: "https://checkout.example.com/abc"}}
	notifier := &mockPaymentNotifier{}
	return apps, courses, coupons, gw, notifier
}

func TestPaymentInitialize(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	session, err := svc.Initialize(context.Background(), "app-1", "user-1", "")
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example.com/abc", session.AuthorizationURL)
	require.True(t, strings.HasPrefix(session.Reference, "PAY_"))
	require.Len(t, session.Reference, 14)
	require.Equal(t, 100.0, session.FinalPrice)
	require.Equal(t, int64(10000), gw.lastAmount)
	require.Equal(t, session.Reference, apps.referenceStored)
}

func TestPaymentInitializeWithCoupon(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	coupons.eval = &models.CouponEvaluation{
		Coupon:         &models.Coupon{ID: "coupon-1", Code: "WELCOME10"},
		OriginalAmount: 100,
		DiscountAmount: 10,
		FinalAmount:    90,
	}
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	session, err := svc.Initialize(context.Background(), "app-1", "user-1", "welcome10")
	require.NoError(t, err)
	require.Equal(t, 10.0, session.DiscountAmount)
	require.Equal(t, 90.0, session.FinalPrice)
	require.Equal(t, "WELCOME10", session.CouponCode)
	require.Equal(t, int64(9000), gw.lastAmount)
	require.NotNil(t, apps.storedCouponID)
	require.Equal(t, "coupon-1", *apps.storedCouponID)
}

func TestPaymentInitializeCouponRejectionPropagates(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	coupons.err = ErrCouponExpired
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Initialize(context.Background(), "app-1", "user-1", "OLD")
	require.ErrorIs(t, err, ErrCouponExpired)
	require.Zero(t, gw.sessionCalls)
	require.False(t, apps.pricingStored)
}

func TestPaymentInitializeCompletedConflict(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	apps.apps["app-1"].PaymentStatus = models.PaymentStatusCompleted
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Initialize(context.Background(), "app-1", "user-1", "")
	require.ErrorIs(t, err, appErrors.ErrPaymentCompleted)
	require.Zero(t, gw.sessionCalls)
}

func TestPaymentInitializeWrongOwner(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Initialize(context.Background(), "app-1", "user-2", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestPaymentInitializeGatewayDownKeepsSnapshotNotReference(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	gw.sessionErr = &gateway.TransportError{Err: errors.New("dial tcp: timeout")}
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Initialize(context.Background(), "app-1", "user-1", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErr.Code)
	require.True(t, apps.pricingStored)
	require.Empty(t, apps.referenceStored)
}

func TestPaymentInitializeGatewayRejectionIsRetryable(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	gw.sessionErr = errors.New("gateway rejected the session")
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Initialize(context.Background(), "app-1", "user-1", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErr.Code)
	require.Empty(t, apps.referenceStored)
}

func TestPaymentInitializeMetadataIdentifiesOrder(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Initialize(context.Background(), "app-1", "user-1", "")
	require.NoError(t, err)
	require.Equal(t, "app-1", gw.lastMetadata["application_id"])
	require.Equal(t, "course-1", gw.lastMetadata["course_id"])
	require.Equal(t, "user-1", gw.lastMetadata["user_id"])
}

func TestPaymentVerifySuccess(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	ref := "PAY_ABCDEF1234"
	app := apps.apps["app-1"]
	app.PaymentReference = &ref
	app.FinalPrice = 90
	app.DiscountAmount = 10
	apps.byReference[ref] = app
	code := "WELCOME10"
	apps.details["app-1"].CouponCode = &code
	apps.details["app-1"].DiscountAmount = 10
	apps.details["app-1"].FinalPrice = 90

	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw.verifyResult = &gateway.VerifyResult{Succeeded: true, RawStatus: "success", PaidAt: &paidAt}
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	outcome, err := svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, outcome.Status)
	require.Equal(t, paidAt, *outcome.PaidAt)
	require.True(t, apps.completed)
	require.Equal(t, paidAt, apps.completePaidAt)
	require.Len(t, notifier.confirmed, 1)
	require.Equal(t, "WELCOME10", notifier.confirmed[0].CouponCode)
}

func TestPaymentVerifyAlreadyCompletedIsIdempotent(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	ref := "PAY_ABCDEF1234"
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	app := apps.apps["app-1"]
	app.PaymentReference = &ref
	app.PaymentStatus = models.PaymentStatusCompleted
	app.PaidAt = &paidAt
	app.FinalPrice = 90
	apps.byReference[ref] = app
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	outcome, err := svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, outcome.Status)
	require.False(t, apps.completed, "no transition should run for an already completed payment")
	require.Empty(t, notifier.confirmed)
}

func TestPaymentVerifyConcurrentLoserSkipsNotification(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	ref := "PAY_ABCDEF1234"
	app := apps.apps["app-1"]
	app.PaymentReference = &ref
	apps.byReference[ref] = app
	apps.flipResult = false
	gw.verifyResult = &gateway.VerifyResult{Succeeded: true, RawStatus: "success"}
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	outcome, err := svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, outcome.Status)
	require.Empty(t, notifier.confirmed)
}

func TestPaymentVerifyGatewayFailureMarksFailed(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	ref := "PAY_ABCDEF1234"
	app := apps.apps["app-1"]
	app.PaymentReference = &ref
	apps.byReference[ref] = app
	gw.verifyResult = &gateway.VerifyResult{Succeeded: false, RawStatus: "failed"}
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	outcome, err := svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, outcome.Status)
	require.True(t, apps.markedFailed)
	require.False(t, apps.completed)
	require.Empty(t, notifier.confirmed)
}

func TestPaymentVerifyTransportErrorLeavesStateUntouched(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	ref := "PAY_ABCDEF1234"
	app := apps.apps["app-1"]
	app.PaymentReference = &ref
	apps.byReference[ref] = app
	gw.verifyErr = &gateway.TransportError{Err: errors.New("connection reset")}
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Verify(context.Background(), ref)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErr.Code)
	require.False(t, apps.markedFailed)
	require.False(t, apps.completed)
}

func TestPaymentVerifyGatewayRejectionIsRetryable(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	ref := "PAY_ABCDEF1234"
	app := apps.apps["app-1"]
	app.PaymentReference = &ref
	apps.byReference[ref] = app
	gw.verifyErr = errors.New("gateway rejected verification")
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Verify(context.Background(), ref)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErr.Code)
	require.False(t, apps.markedFailed)
	require.False(t, apps.completed)
}

func TestPaymentVerifyUnknownReference(t *testing.T) {
	apps, courses, coupons, gw, notifier := paymentFixture()
	svc := NewPaymentService(apps, courses, coupons, gw, notifier, nil)

	_, err := svc.Verify(context.Background(), "PAY_UNKNOWN123")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestNewReferenceFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := newReference()
		require.True(t, strings.HasPrefix(ref, "PAY_"))
		require.Len(t, ref, 14)
		require.Equal(t, strings.ToUpper(ref), ref)
		require.False(t, seen[ref], "references must not repeat")
		seen[ref] = true
	}
}
