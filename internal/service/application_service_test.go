package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/notify"
	appErrors "github.com/smiict/course-api/pkg/errors"
	"github.com/smiict/course-api/pkg/export"
)

type mockApplicationRepo struct {
	apps    map[string]*models.Application
	details map[string]*models.ApplicationDetail
	byPair  map[string]*models.Application

	created       *models.Application
	statusUpdates map[string]models.ApplicationStatus
}

func newMockApplicationRepo() *mockApplicationRepo {
	return &mockApplicationRepo{
		apps:          make(map[string]*models.Application),
		details:       make(map[string]*models.ApplicationDetail),
		byPair:        make(map[string]*models.Application),
		statusUpdates: make(map[string]models.ApplicationStatus),
	}
}

func (m *mockApplicationRepo) FindByID(_ context.Context, id string) (*models.Application, error) {
	if a, ok := m.apps[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) FindByUserAndCourse(_ context.Context, userID, courseID string) (*models.Application, error) {
	if a, ok := m.byPair[userID+"/"+courseID]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) FindDetailByID(_ context.Context, id string) (*models.ApplicationDetail, error) {
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) Create(_ context.Context, app *models.Application) error {
	app.ID = "app-new"
	app.AppliedAt = time.Now().UTC()
	m.created = app
	m.apps[app.ID] = app
	return nil
}

func (m *mockApplicationRepo) UpdateStatus(_ context.Context, id string, status models.ApplicationStatus) error {
	m.statusUpdates[id] = status
	return nil
}

func (m *mockApplicationRepo) List(_ context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	var out []models.ApplicationDetail
	for _, d := range m.details {
		if filter.UserID != "" && d.UserID != filter.UserID {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

type mockAppNotifier struct {
	created []notify.ApplicationCreated
}

func (m *mockAppNotifier) NotifyApplicationCreated(n notify.ApplicationCreated) {
	m.created = append(m.created, n)
}

type mockAuditor struct {
	logs []*models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type stubReceipts struct {
	data export.ReceiptData
}

func (s *stubReceipts) RenderReceipt(data export.ReceiptData, _ string) ([]byte, error) {
	s.data = data
	return []byte("%PDF-1.4 receipt"), nil
}

func newApplicationServiceFixture() (*ApplicationService, *mockApplicationRepo, *mockAppNotifier, *mockAuditor, *stubReceipts) {
	repo := newMockApplicationRepo()
	courses := &mockPaymentCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Data Analysis", Price: 100},
	}}
	notifier := &mockAppNotifier{}
	auditor := &mockAuditor{}
	receipts := &stubReceipts{}
	svc := NewApplicationService(repo, courses, auditor, notifier, receipts, "Example Institute", nil)
	return svc, repo, notifier, auditor, receipts
}

func TestApplicationApply(t *testing.T) {
	svc, repo, notifier, _, _ := newApplicationServiceFixture()

	app, err := svc.Apply(context.Background(), "user-1", "Ada Obi", "ada@example.com", "course-1")
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusPending, app.Status)
	require.Equal(t, models.PaymentStatusPending, app.PaymentStatus)
	require.Equal(t, 100.0, app.OriginalPrice)
	require.Equal(t, 100.0, app.FinalPrice)
	require.NotNil(t, repo.created)
	require.Len(t, notifier.created, 1)
	require.Equal(t, "Data Analysis", notifier.created[0].CourseTitle)
}

func TestApplicationApplyDuplicate(t *testing.T) {
	svc, repo, _, _, _ := newApplicationServiceFixture()
	repo.byPair["user-1/course-1"] = &models.Application{ID: "app-1"}

	_, err := svc.Apply(context.Background(), "user-1", "Ada Obi", "ada@example.com", "course-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplicationApplyUnknownCourse(t *testing.T) {
	svc, _, _, _, _ := newApplicationServiceFixture()

	_, err := svc.Apply(context.Background(), "user-1", "Ada Obi", "ada@example.com", "missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApplicationGetEnforcesOwnership(t *testing.T) {
	svc, repo, _, _, _ := newApplicationServiceFixture()
	repo.details["app-1"] = &models.ApplicationDetail{
		Application: models.Application{ID: "app-1", UserID: "user-1"},
	}

	_, err := svc.Get(context.Background(), "app-1", "user-2", models.RoleStudent)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Staff can read any application.
	detail, err := svc.Get(context.Background(), "app-1", "user-2", models.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, "app-1", detail.ID)
}

func TestApplicationReview(t *testing.T) {
	svc, repo, _, auditor, _ := newApplicationServiceFixture()
	repo.apps["app-1"] = &models.Application{ID: "app-1", Status: models.ApplicationStatusPending}

	app, err := svc.Review(context.Background(), "app-1", models.ApplicationStatusApproved, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusApproved, app.Status)
	require.Equal(t, models.ApplicationStatusApproved, repo.statusUpdates["app-1"])
	require.Len(t, auditor.logs, 1)
	require.Equal(t, "application", auditor.logs[0].Resource)
}

func TestApplicationReviewRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _, _ := newApplicationServiceFixture()

	_, err := svc.Review(context.Background(), "app-1", models.ApplicationStatus("bogus"), "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationReceipt(t *testing.T) {
	svc, repo, _, _, receipts := newApplicationServiceFixture()
	ref := "PAY_ABCDEF1234"
	code := "WELCOME10"
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.details["app-1"] = &models.ApplicationDetail{
		Application: models.Application{
			ID:               "app-1",
			UserID:           "user-1",
			PaymentStatus:    models.PaymentStatusCompleted,
			PaymentReference: &ref,
			PaidAt:           &paidAt,
			OriginalPrice:    100,
			DiscountAmount:   10,
			FinalPrice:       90,
		},
		UserName:    "Ada Obi",
		UserEmail:   "ada@example.com",
		CourseTitle: "Data Analysis",
		CouponCode:  &code,
	}

	pdf, err := svc.Receipt(context.Background(), "app-1", "user-1", models.RoleStudent)
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	require.Equal(t, ref, receipts.data.Reference)
	require.Equal(t, "WELCOME10", receipts.data.CouponCode)
	require.Equal(t, 90.0, receipts.data.FinalPrice)
}

func TestApplicationReceiptRequiresCompletedPayment(t *testing.T) {
	svc, repo, _, _, _ := newApplicationServiceFixture()
	repo.details["app-1"] = &models.ApplicationDetail{
		Application: models.Application{ID: "app-1", UserID: "user-1", PaymentStatus: models.PaymentStatusPending},
	}

	_, err := svc.Receipt(context.Background(), "app-1", "user-1", models.RoleStudent)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
