package email

import (
	"context"

	"dispatch_backend/platform/config"
)

// JobAssignedMail is what a technician is told about a new assignment.
type JobAssignedMail struct {
	TechnicianName string
	JobTitle       string
	Address        string
	ScheduledTime  string
	Interrupted    string
}

// JobUnassignedMail tells a technician a job was taken back.
type JobUnassignedMail struct {
	TechnicianName string
	JobTitle       string
	Reason         string
}

// ProfileReviewMail tells a technician how their profile change was decided.
type ProfileReviewMail struct {
	TechnicianName string
	Approved       bool
	Notes          string
}

// Sender delivers technician notifications.
type Sender interface {
	SendJobAssigned(ctx context.Context, toEmail string, m JobAssignedMail) error
	SendJobUnassigned(ctx context.Context, toEmail string, m JobUnassignedMail) error
	SendProfileReview(ctx context.Context, toEmail string, m ProfileReviewMail) error
}

// NoopSender drops every message. Used when email is disabled.
type NoopSender struct{}

func (NoopSender) SendJobAssigned(context.Context, string, JobAssignedMail) error     { return nil }
func (NoopSender) SendJobUnassigned(context.Context, string, JobUnassignedMail) error { return nil }
func (NoopSender) SendProfileReview(context.Context, string, ProfileReviewMail) error { return nil }

// NewSender returns an SMTP sender when email is enabled, otherwise a NoopSender.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
