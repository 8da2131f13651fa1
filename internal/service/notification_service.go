package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	"github.com/unireg-ph/prereg-api/pkg/jobs"
)

// Notifier queues student-facing emails. Delivery happens off the
// request path.
type Notifier interface {
	QueueEnrollmentConfirmation(user models.User)
	QueueGradeConcern(user models.User, flaggedCourses []string)
	QueueIncAgreementNotice(user models.User, courseCodes []string)
	QueueRegistrationRejection(user models.User)
}

// Mailer delivers a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type emailFlagWriter interface {
	MarkEmailSent(ctx context.Context, id string) error
}

const (
	jobEnrollmentConfirmation = "enrollment_confirmation"
	jobGradeConcern           = "grade_concern"
	jobIncAgreement           = "inc_agreement"
	jobRegistrationRejection  = "registration_rejection"
)

type emailJob struct {
	UserID  string
	To      string
	Subject string
	Body    string
}

// EmailNotifier renders notification emails and hands them to a worker
// queue for delivery with retries.
type EmailNotifier struct {
	queue  *jobs.Queue
	mailer Mailer
	users  emailFlagWriter
	logger *zap.Logger
}

// NewEmailNotifier wires the notifier. Call Start before queueing and
// Stop on shutdown.
func NewEmailNotifier(mailer Mailer, users emailFlagWriter, cfg jobs.QueueConfig, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &EmailNotifier{mailer: mailer, users: users, logger: logger}
	cfg.Logger = logger
	n.queue = jobs.NewQueue("notifications", n.handle, cfg)
	return n
}

// Start launches the delivery workers.
func (n *EmailNotifier) Start(ctx context.Context) { n.queue.Start(ctx) }

// Stop drains the workers.
func (n *EmailNotifier) Stop() { n.queue.Stop() }

// QueueEnrollmentConfirmation emails a student that their pre-enrollment
// went through.
func (n *EmailNotifier) QueueEnrollmentConfirmation(user models.User) {
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your pre-enrollment has been processed. Your course plan for the upcoming term is ready; log in to review it and claim your queue ticket at the registrar.</p>",
		displayName(user))
	n.enqueue(jobEnrollmentConfirmation, emailJob{
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Pre-enrollment confirmed",
		Body:    body,
	})
}

// QueueGradeConcern emails a student whose imported grades block regular
// enrollment.
func (n *EmailNotifier) QueueGradeConcern(user models.User, flaggedCourses []string) {
	var courses string
	if len(flaggedCourses) > 0 {
		courses = fmt.Sprintf("<p>Subjects needing attention: %s.</p>", strings.Join(flaggedCourses, ", "))
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Some of your grades require attention before you can enroll as a regular student. Please visit the registrar to settle your records.</p>%s",
		displayName(user), courses)
	n.enqueue(jobGradeConcern, emailJob{
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Action needed on your academic records",
		Body:    body,
	})
}

// QueueIncAgreementNotice confirms a student's agreement to retake INC
// courses alongside their dependents.
func (n *EmailNotifier) QueueIncAgreementNotice(user models.User, courseCodes []string) {
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>We recorded your agreement to complete the following incomplete subjects alongside the courses that depend on them: %s.</p><p>Re-run your eligibility check to commit your plan.</p>",
		displayName(user), strings.Join(courseCodes, ", "))
	n.enqueue(jobIncAgreement, emailJob{
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Incomplete-grade agreement recorded",
		Body:    body,
	})
}

// QueueRegistrationRejection informs a student their pending account was
// turned down.
func (n *EmailNotifier) QueueRegistrationRejection(user models.User) {
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your registration could not be approved. Please visit the registrar's office with your enrollment documents to resolve this.</p>",
		displayName(user))
	n.enqueue(jobRegistrationRejection, emailJob{
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Registration not approved",
		Body:    body,
	})
}

func (n *EmailNotifier) enqueue(kind string, payload emailJob) {
	if payload.To == "" {
		n.logger.Warn("notification skipped, no email on file", zap.String("user_id", payload.UserID), zap.String("type", kind))
		return
	}
	err := n.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Kind: kind, Payload: payload})
	if err != nil {
		n.logger.Error("failed to queue notification", zap.String("user_id", payload.UserID), zap.String("type", kind), zap.Error(err))
	}
}

func (n *EmailNotifier) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailJob)
	if !ok {
		n.logger.Error("dropping notification with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := n.mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		return fmt.Errorf("send %s to %s: %w", job.Kind, payload.To, err)
	}
	if err := n.users.MarkEmailSent(ctx, payload.UserID); err != nil {
		n.logger.Warn("email delivered but flag update failed", zap.String("user_id", payload.UserID), zap.Error(err))
	}
	return nil
}

func displayName(user models.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	if user.Username != "" {
		return user.Username
	}
	return "student"
}
