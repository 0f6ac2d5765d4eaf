package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService provides the admin back office for accounts.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
}

// NewUserService creates a UserService.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users for the admin listing.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// ApproveAdmin unlocks a pending admin account.
func (s *UserService) ApproveAdmin(ctx context.Context, id, approverID string) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not an admin")
	}
	if user.AdminApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admin is already approved")
	}

	user.AdminApproved = true
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve admin")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &approverID,
		Action:     models.AuditActionApprove,
		Resource:   "user",
		ResourceID: &id,
		NewValues:  []byte(`{"admin_approved":true}`),
	}); err != nil {
		s.logger.Warn("failed to record approval audit log", zap.Error(err))
	}

	s.logger.Sugar().Infow("admin approved", "user_id", id, "approved_by", approverID)
	return user, nil
}

// RejectAdmin removes a pending admin account.
func (s *UserService) RejectAdmin(ctx context.Context, id, reviewerID string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role != models.RoleAdmin || user.AdminApproved {
		return appErrors.Clone(appErrors.ErrValidation, "user is not a pending admin")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject admin")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionDelete,
		Resource:   "user",
		ResourceID: &id,
		NewValues:  []byte(`{"reason":"admin_rejected"}`),
	}); err != nil {
		s.logger.Warn("failed to record rejection audit log", zap.Error(err))
	}
	return nil
}

// SetActive toggles an account. Deactivation also revokes live
// sessions so the account is locked out immediately.
func (s *UserService) SetActive(ctx context.Context, id string, active bool, actorID string) (*models.User, error) {
	if id == actorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot change your own account status")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Active = active
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if !active {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke sessions for deactivated user", zap.Error(err))
		}
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUpdate,
		Resource:   "user",
		ResourceID: &id,
		NewValues:  []byte(`{"active":` + boolJSON(active) + `}`),
	}); err != nil {
		s.logger.Warn("failed to record status audit log", zap.Error(err))
	}
	return user, nil
}

// Delete removes a user account.
func (s *UserService) Delete(ctx context.Context, id, actorID string) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionDelete,
		Resource:   "user",
		ResourceID: &id,
	}); err != nil {
		s.logger.Warn("failed to record deletion audit log", zap.Error(err))
	}
	return nil
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
