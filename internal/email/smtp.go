package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) message(toEmail, subject, htmlContent string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)
	return msg, nil
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg, err := s.message(toEmail, subject, htmlContent)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendJobAssigned(ctx context.Context, toEmail string, m JobAssignedMail) error {
	content, err := renderEmailTemplate("job_assigned.html", jobAssignedEmailData{
		baseEmailData: baseEmailData{
			Title:   "New job assigned",
			Heading: "New job assigned",
		},
		JobAssignedMail: m,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectJobAssignedFmt, m.JobTitle), content)
}

func (s *SMTPSender) SendJobUnassigned(ctx context.Context, toEmail string, m JobUnassignedMail) error {
	content, err := renderEmailTemplate("job_unassigned.html", jobUnassignedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Job withdrawn",
			Heading: "Job withdrawn",
		},
		JobUnassignedMail: m,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectJobUnassignedFmt, m.JobTitle), content)
}

func (s *SMTPSender) SendProfileReview(ctx context.Context, toEmail string, m ProfileReviewMail) error {
	subject, heading := subjectProfileRejected, "Profile change not approved"
	if m.Approved {
		subject, heading = subjectProfileApproved, "Profile change approved"
	}
	content, err := renderEmailTemplate("profile_review.html", profileReviewEmailData{
		baseEmailData: baseEmailData{
			Title:   heading,
			Heading: heading,
		},
		ProfileReviewMail: m,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}
