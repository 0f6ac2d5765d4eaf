package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

type messageRepository interface {
	FindByID(ctx context.Context, id string) (*models.ContactMessage, error)
	Create(ctx context.Context, msg *models.ContactMessage) error
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.MessageFilter) ([]models.ContactMessage, int, error)
}

type messageNotifier interface {
	NotifyContactMessage(msg *models.ContactMessage)
}

// SubmitMessageRequest is the public contact form payload.
type SubmitMessageRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required,min=10"`
}

// MessageService handles the public contact form and its admin inbox.
type MessageService struct {
	repo     messageRepository
	notifier messageNotifier
	validate *validator.Validate
	logger   *zap.Logger
}

// NewMessageService creates a MessageService.
func NewMessageService(repo messageRepository, notifier messageNotifier, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		repo:     repo,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

// Submit stores a contact message and alerts the admins.
func (s *MessageService) Submit(ctx context.Context, req SubmitMessageRequest) (*models.ContactMessage, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}

	msg := &models.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Subject: strings.TrimSpace(req.Subject),
		Message: req.Message,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store message")
	}

	if s.notifier != nil {
		s.notifier.NotifyContactMessage(msg)
	}
	return msg, nil
}

// Get returns a message and marks it read.
func (s *MessageService) Get(ctx context.Context, id string) (*models.ContactMessage, error) {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}

	if !msg.IsRead {
		if err := s.repo.MarkRead(ctx, id); err != nil {
			s.logger.Sugar().Warnw("failed to mark message read", "message_id", id, "error", err)
		} else {
			msg.IsRead = true
		}
	}
	return msg, nil
}

// List returns the admin inbox.
func (s *MessageService) List(ctx context.Context, filter models.MessageFilter) ([]models.ContactMessage, int, error) {
	messages, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, total, nil
}

// Delete removes a message.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	return nil
}
