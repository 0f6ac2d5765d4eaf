// Package notify delivers transactional email off the request path.
// Delivery runs on a background worker pool; failures are retried a
// few times and then logged, never surfaced to API callers.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/pkg/config"
	"github.com/smiict/course-api/pkg/jobs"
	"github.com/smiict/course-api/pkg/mailer"
)

const (
	jobApplicationCreated = "application_created"
	jobPaymentConfirmed   = "payment_confirmed"
	jobContactMessage     = "contact_message"
	jobPasswordReset      = "password_reset"
)

type adminEmailLister interface {
	ListApprovedAdminEmails(ctx context.Context) ([]string, error)
}

// Dispatcher queues and delivers notification email.
type Dispatcher struct {
	queue     *jobs.Queue
	mailer    mailer.Mailer
	admins    adminEmailLister
	baseURL   string
	institute string
	logger    *zap.Logger
}

// NewDispatcher builds a dispatcher backed by an in-memory worker queue.
func NewDispatcher(m mailer.Mailer, admins adminEmailLister, cfg config.NotifyConfig, baseURL, institute string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		mailer:    m,
		admins:    admins,
		baseURL:   baseURL,
		institute: institute,
		logger:    logger,
	}
	d.queue = jobs.NewQueue("notifications", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

func (d *Dispatcher) enqueue(jobType string, payload interface{}) {
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
	if err != nil {
		d.logger.Sugar().Warnw("failed to enqueue notification", "type", jobType, "error", err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobApplicationCreated:
		return d.sendApplicationCreated(ctx, job.Payload.(ApplicationCreated))
	case jobPaymentConfirmed:
		return d.sendPaymentConfirmed(job.Payload.(PaymentConfirmed))
	case jobContactMessage:
		return d.sendContactMessage(ctx, job.Payload.(*models.ContactMessage))
	case jobPasswordReset:
		return d.sendPasswordReset(job.Payload.(PasswordReset))
	default:
		d.logger.Sugar().Warnw("unknown notification type", "type", job.Type)
		return nil
	}
}

// ApplicationCreated notifies the student and the admins of a new
// course application.
type ApplicationCreated struct {
	StudentName  string
	StudentEmail string
	CourseTitle  string
	AppliedAt    time.Time
}

// NotifyApplicationCreated queues the new-application emails.
func (d *Dispatcher) NotifyApplicationCreated(n ApplicationCreated) {
	d.enqueue(jobApplicationCreated, n)
}

func (d *Dispatcher) sendApplicationCreated(ctx context.Context, n ApplicationCreated) error {
	student := mailer.Message{
		To:      []string{n.StudentEmail},
		Subject: fmt.Sprintf("Application received: %s", n.CourseTitle),
		Body: fmt.Sprintf("Dear %s,\n\nWe have received your application for %s. "+
			"You can complete payment from your dashboard to secure your spot.\n\n%s",
			n.StudentName, n.CourseTitle, d.institute),
	}
	if err := d.mailer.Send(student); err != nil {
		return err
	}

	admins, err := d.admins.ListApprovedAdminEmails(ctx)
	if err != nil || len(admins) == 0 {
		if err != nil {
			d.logger.Sugar().Warnw("failed to load admin recipients", "error", err)
		}
		return nil
	}
	return d.mailer.Send(mailer.Message{
		To:      admins,
		Subject: fmt.Sprintf("New application: %s", n.CourseTitle),
		Body: fmt.Sprintf("%s (%s) applied for %s on %s.",
			n.StudentName, n.StudentEmail, n.CourseTitle, n.AppliedAt.Format("02 Jan 2006 15:04")),
	})
}

// PaymentConfirmed notifies the student that their payment cleared.
type PaymentConfirmed struct {
	StudentName  string
	StudentEmail string
	CourseTitle  string
	Reference    string
	AmountPaid   float64
	Discount     float64
	CouponCode   string
}

// NotifyPaymentConfirmed queues the payment receipt email.
func (d *Dispatcher) NotifyPaymentConfirmed(n PaymentConfirmed) {
	d.enqueue(jobPaymentConfirmed, n)
}

func (d *Dispatcher) sendPaymentConfirmed(n PaymentConfirmed) error {
	body := fmt.Sprintf("Dear %s,\n\nYour payment for %s has been confirmed.\n\nReference: %s\nAmount paid: %.2f\n",
		n.StudentName, n.CourseTitle, n.Reference, n.AmountPaid)
	if n.Discount > 0 {
		body += fmt.Sprintf("Discount applied: %.2f (coupon %s)\n", n.Discount, n.CouponCode)
	}
	body += fmt.Sprintf("\nYou can download your receipt from your dashboard.\n\n%s", d.institute)

	return d.mailer.Send(mailer.Message{
		To:      []string{n.StudentEmail},
		Subject: fmt.Sprintf("Payment confirmed: %s", n.CourseTitle),
		Body:    body,
	})
}

// NotifyContactMessage queues the admin alert for a contact submission.
func (d *Dispatcher) NotifyContactMessage(msg *models.ContactMessage) {
	d.enqueue(jobContactMessage, msg)
}

func (d *Dispatcher) sendContactMessage(ctx context.Context, msg *models.ContactMessage) error {
	admins, err := d.admins.ListApprovedAdminEmails(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		return nil
	}
	return d.mailer.Send(mailer.Message{
		To:      admins,
		Subject: fmt.Sprintf("Contact form: %s", msg.Subject),
		Body: fmt.Sprintf("From: %s <%s>\n\n%s", msg.Name, msg.Email, msg.Message),
	})
}

// PasswordReset carries a reset link for delivery.
type PasswordReset struct {
	Email    string
	FullName string
	Token    string
}

// SendPasswordReset queues the reset-link email.
func (d *Dispatcher) SendPasswordReset(n PasswordReset) {
	d.enqueue(jobPasswordReset, n)
}

func (d *Dispatcher) sendPasswordReset(n PasswordReset) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", d.baseURL, n.Token)
	return d.mailer.Send(mailer.Message{
		To:      []string{n.Email},
		Subject: "Password reset request",
		Body: fmt.Sprintf("Dear %s,\n\nA password reset was requested for your account. "+
			"Use the link below within one hour to choose a new password:\n\n%s\n\n"+
			"If you did not request this, you can ignore this email.\n\n%s",
			n.FullName, link, d.institute),
	})
}
