package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/notify"
	appErrors "github.com/smiict/course-api/pkg/errors"
	"github.com/smiict/course-api/pkg/export"
)

type applicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Application, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	Create(ctx context.Context, app *models.Application) error
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
}

type applicationCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type applicationAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type applicationNotifier interface {
	NotifyApplicationCreated(n notify.ApplicationCreated)
}

type receiptRenderer interface {
	RenderReceipt(data export.ReceiptData, institute string) ([]byte, error)
}

// ApplicationService manages course applications and admin review.
type ApplicationService struct {
	repo      applicationRepository
	courses   applicationCourseRepository
	audit     applicationAuditor
	notifier  applicationNotifier
	receipts  receiptRenderer
	institute string
	logger    *zap.Logger
}

// NewApplicationService creates an ApplicationService.
func NewApplicationService(repo applicationRepository, courses applicationCourseRepository, audit applicationAuditor, notifier applicationNotifier, receipts receiptRenderer, institute string, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:      repo,
		courses:   courses,
		audit:     audit,
		notifier:  notifier,
		receipts:  receipts,
		institute: institute,
		logger:    logger,
	}
}

// Apply creates a pending application for a course. A user can hold at
// most one application per course.
func (s *ApplicationService) Apply(ctx context.Context, userID, userName, userEmail, courseID string) (*models.Application, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if _, err := s.repo.FindByUserAndCourse(ctx, userID, courseID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you have already applied for this course")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}

	app := &models.Application{
		UserID:        userID,
		CourseID:      courseID,
		Status:        models.ApplicationStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		OriginalPrice: course.Price,
		FinalPrice:    course.Price,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	if s.notifier != nil {
		s.notifier.NotifyApplicationCreated(notify.ApplicationCreated{
			StudentName:  userName,
			StudentEmail: userEmail,
			CourseTitle:  course.Title,
			AppliedAt:    app.AppliedAt,
		})
	}

	s.logger.Sugar().Infow("application created", "application_id", app.ID, "user_id", userID, "course_id", courseID)
	return app, nil
}

// Get returns an application detail, enforcing ownership for non-staff
// callers.
func (s *ApplicationService) Get(ctx context.Context, id, callerID string, callerRole models.UserRole) (*models.ApplicationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if callerRole == models.RoleStudent && detail.UserID != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another user")
	}
	return detail, nil
}

// ListOwn returns the caller's applications.
func (s *ApplicationService) ListOwn(ctx context.Context, userID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	filter.UserID = userID
	return s.List(ctx, filter)
}

// List returns applications for the admin back office.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, total, nil
}

// Review sets the administrative status of an application.
func (s *ApplicationService) Review(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string) (*models.Application, error) {
	switch status {
	case models.ApplicationStatusApproved, models.ApplicationStatusRejected, models.ApplicationStatusPending:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}

	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}
	app.Status = status

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &reviewerID,
			Action:     models.AuditActionUpdate,
			Resource:   "application",
			ResourceID: &id,
			NewValues:  []byte(`{"status":"` + string(status) + `"}`),
		}); err != nil {
			s.logger.Warn("failed to record review audit log", zap.Error(err))
		}
	}
	return app, nil
}

// Receipt renders the payment receipt PDF for a completed application.
func (s *ApplicationService) Receipt(ctx context.Context, id, callerID string, callerRole models.UserRole) ([]byte, error) {
	detail, err := s.Get(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if detail.PaymentStatus != models.PaymentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt is only available for completed payments")
	}

	data := export.ReceiptData{
		StudentName:   detail.UserName,
		StudentEmail:  detail.UserEmail,
		CourseTitle:   detail.CourseTitle,
		OriginalPrice: detail.OriginalPrice,
		Discount:      detail.DiscountAmount,
		FinalPrice:    detail.FinalPrice,
	}
	if detail.PaymentReference != nil {
		data.Reference = *detail.PaymentReference
	}
	if detail.CouponCode != nil {
		data.CouponCode = *detail.CouponCode
	}
	if detail.PaidAt != nil {
		data.PaidAt = *detail.PaidAt
	}

	pdf, err := s.receipts.RenderReceipt(data, s.institute)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return pdf, nil
}
