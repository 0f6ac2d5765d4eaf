package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/pkg/config"
	"github.com/smiict/course-api/pkg/mailer"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (m *recordingMailer) Send(msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailer.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

type staticAdmins struct {
	emails []string
}

func (s *staticAdmins) ListApprovedAdminEmails(_ context.Context) ([]string, error) {
	return s.emails, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestDispatcher(m mailer.Mailer, admins adminEmailLister) *Dispatcher {
	return NewDispatcher(m, admins, config.NotifyConfig{
		Workers:    1,
		BufferSize: 8,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	}, "https://courses.example.com", "Example Institute", nil)
}

func TestDispatcherApplicationCreated(t *testing.T) {
	sink := &recordingMailer{}
	d := newTestDispatcher(sink, &staticAdmins{emails: []string{"admin@example.com"}})
	d.Start(context.Background())
	defer d.Stop()

	d.NotifyApplicationCreated(ApplicationCreated{
		StudentName:  "Ada Obi",
		StudentEmail: "ada@example.com",
		CourseTitle:  "Data Analysis",
		AppliedAt:    time.Now(),
	})

	waitFor(t, func() bool { return len(sink.sent()) == 2 })

	msgs := sink.sent()
	require.Equal(t, []string{"ada@example.com"}, msgs[0].To)
	require.Contains(t, msgs[0].Subject, "Data Analysis")
	require.Equal(t, []string{"admin@example.com"}, msgs[1].To)
}

func TestDispatcherPaymentConfirmedIncludesDiscount(t *testing.T) {
	sink := &recordingMailer{}
	d := newTestDispatcher(sink, &staticAdmins{})
	d.Start(context.Background())
	defer d.Stop()

	d.NotifyPaymentConfirmed(PaymentConfirmed{
		StudentName:  "Ada Obi",
		StudentEmail: "ada@example.com",
		CourseTitle:  "Data Analysis",
		Reference:    "PAY_ABCDEF1234",
		AmountPaid:   90,
		Discount:     10,
		CouponCode:   "WELCOME10",
	})

	waitFor(t, func() bool { return len(sink.sent()) == 1 })

	msg := sink.sent()[0]
	require.Contains(t, msg.Body, "PAY_ABCDEF1234")
	require.Contains(t, msg.Body, "WELCOME10")
}

func TestDispatcherContactMessageSkipsWithoutAdmins(t *testing.T) {
	sink := &recordingMailer{}
	d := newTestDispatcher(sink, &staticAdmins{})
	d.Start(context.Background())
	defer d.Stop()

	d.NotifyContactMessage(&models.ContactMessage{
		Name:    "Visitor",
		Email:   "visitor@example.com",
		Subject: "Hello",
		Message: "Question about fees",
	})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, sink.sent())
}

func TestDispatcherPasswordResetLink(t *testing.T) {
	sink := &recordingMailer{}
	d := newTestDispatcher(sink, &staticAdmins{})
	d.Start(context.Background())
	defer d.Stop()

	d.SendPasswordReset(PasswordReset{
		Email:    "ada@example.com",
		FullName: "Ada Obi",
		Token:    "tok-123",
	})

	waitFor(t, func() bool { return len(sink.sent()) == 1 })
	require.Contains(t, sink.sent()[0].Body, "https://courses.example.com/reset-password?token=tok-123")
}
