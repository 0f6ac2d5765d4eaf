package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smiict/course-api/internal/models"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

type mockMessageRepo struct {
	messages map[string]*models.ContactMessage
	read     []string
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: make(map[string]*models.ContactMessage)}
}

func (m *mockMessageRepo) FindByID(_ context.Context, id string) (*models.ContactMessage, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *msg
	return &copied, nil
}

func (m *mockMessageRepo) Create(_ context.Context, msg *models.ContactMessage) error {
	if msg.ID == "" {
		msg.ID = "msg-generated"
	}
	m.messages[msg.ID] = msg
	return nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, id string) error {
	m.read = append(m.read, id)
	if msg, ok := m.messages[id]; ok {
		msg.IsRead = true
	}
	return nil
}

func (m *mockMessageRepo) Delete(_ context.Context, id string) error {
	delete(m.messages, id)
	return nil
}

func (m *mockMessageRepo) List(context.Context, models.MessageFilter) ([]models.ContactMessage, int, error) {
	return nil, 0, nil
}

type mockMessageNotifier struct {
	notified []*models.ContactMessage
}

func (m *mockMessageNotifier) NotifyContactMessage(msg *models.ContactMessage) {
	m.notified = append(m.notified, msg)
}

func TestSubmitMessage(t *testing.T) {
	repo := newMockMessageRepo()
	notifier := &mockMessageNotifier{}
	svc := NewMessageService(repo, notifier, nil)

	msg, err := svc.Submit(context.Background(), SubmitMessageRequest{
		Name:    "  Ada Obi  ",
		Email:   "ADA@Example.com",
		Subject: "Course question",
		Message: "Do evening classes run on weekends too?",
	})
	require.NoError(t, err)
	require.Equal(t, "Ada Obi", msg.Name)
	require.Equal(t, "ada@example.com", msg.Email)
	require.Len(t, notifier.notified, 1)
}

func TestSubmitMessageRejectsShortBody(t *testing.T) {
	svc := NewMessageService(newMockMessageRepo(), nil, nil)

	_, err := svc.Submit(context.Background(), SubmitMessageRequest{
		Name:    "Ada",
		Email:   "ada@example.com",
		Subject: "Hi",
		Message: "Too short",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetMessageMarksRead(t *testing.T) {
	repo := newMockMessageRepo()
	repo.messages["msg-1"] = &models.ContactMessage{ID: "msg-1", Name: "Ada", IsRead: false}
	svc := NewMessageService(repo, nil, nil)

	msg, err := svc.Get(context.Background(), "msg-1")
	require.NoError(t, err)
	require.True(t, msg.IsRead)
	require.Equal(t, []string{"msg-1"}, repo.read)

	// A second read does not mark again.
	_, err = svc.Get(context.Background(), "msg-1")
	require.NoError(t, err)
	require.Len(t, repo.read, 1)
}

func TestDeleteUnknownMessage(t *testing.T) {
	svc := NewMessageService(newMockMessageRepo(), nil, nil)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
