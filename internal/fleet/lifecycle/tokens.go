package lifecycle

import (
	"context"
	"strings"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// IssueToken creates (or replaces) a capability token on the job.
func (s *Service) IssueToken(ctx context.Context, companyID, jobID uuid.UUID, kind domain.TokenKind) (transport.TokenResponse, error) {
	if !kind.Valid() {
		return transport.TokenResponse{}, apperr.ValidationFields(apperr.FieldError{Field: "kind", Message: "must be one of [tracking triage]"})
	}
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return transport.TokenResponse{}, err
	}

	ttl := s.policy.TrackingTokenTTL
	if kind == domain.TokenTriage {
		ttl = s.policy.TriageTokenTTL
	}
	token, err := domain.NewCapabilityToken(s.now(), ttl)
	if err != nil {
		return transport.TokenResponse{}, apperr.Internal("could not create link").WithOp("IssueToken")
	}
	job.SetToken(kind, &token)

	b := repository.NewBatch()
	b.PutJob(&job)
	if err := s.commit(ctx, "IssueToken", b); err != nil {
		return transport.TokenResponse{}, err
	}
	return transport.TokenResponse{
		Kind:      kind,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		URL:       s.publicURL(kind, token.Value),
	}, nil
}

// RevokeToken removes the token field; the old value stops working at once.
func (s *Service) RevokeToken(ctx context.Context, companyID, jobID uuid.UUID, kind domain.TokenKind) error {
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return err
	}
	if job.Token(kind) == nil {
		return nil
	}
	job.SetToken(kind, nil)

	b := repository.NewBatch()
	b.PutJob(&job)
	return s.commit(ctx, "RevokeToken", b)
}

// ValidateToken resolves a public token to its job. A token matches only
// while now is before its expiry.
func (s *Service) ValidateToken(ctx context.Context, kind domain.TokenKind, value string) (domain.Job, error) {
	if !kind.Valid() || strings.TrimSpace(value) == "" {
		return domain.Job{}, apperr.NotFound(MsgInvalidLink)
	}
	job, err := s.store.FindJobByToken(ctx, kind, value)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Job{}, apperr.NotFound(MsgInvalidLink)
	}
	if err != nil {
		return domain.Job{}, apperr.Unavailable(err)
	}
	if !job.Token(kind).Valid(value, s.now()) {
		return domain.Job{}, apperr.Gone(MsgExpiredLink)
	}
	return job, nil
}

// PublicTrackingView is what a customer sees behind a tracking link. The
// technician's position is shared only while they are on the way.
func (s *Service) PublicTrackingView(ctx context.Context, value string) (transport.PublicTrackingResponse, error) {
	job, err := s.ValidateToken(ctx, domain.TokenTracking, value)
	if err != nil {
		return transport.PublicTrackingResponse{}, err
	}

	view := transport.PublicTrackingResponse{
		JobTitle:      job.Title,
		Status:        job.Status,
		ScheduledTime: job.ScheduledTime,
		Address:       job.Location.Address,
		EnRouteAt:     job.EnRouteAt,
		CompletedAt:   job.CompletedAt,
		ExpiresAt:     job.TrackingToken.ExpiresAt,
	}
	if job.AssignedTechnicianID != nil {
		tech, err := s.store.GetTechnician(ctx, job.CompanyID, *job.AssignedTechnicianID)
		switch {
		case err == nil:
			view.TechnicianName = firstName(tech.Name)
			if job.Status == domain.StatusEnRoute {
				loc := tech.Location
				view.TechnicianLocation = &loc
			}
		case !errors.Is(err, repository.ErrNotFound):
			return transport.PublicTrackingResponse{}, apperr.Unavailable(err)
		}
	}
	return view, nil
}

// PublicTriageView is the job summary behind a triage link, shared with a
// technician who has not been assigned yet.
func (s *Service) PublicTriageView(ctx context.Context, value string) (transport.PublicTriageResponse, error) {
	job, err := s.ValidateToken(ctx, domain.TokenTriage, value)
	if err != nil {
		return transport.PublicTriageResponse{}, err
	}
	return transport.PublicTriageResponse{
		JobTitle:       job.Title,
		Description:    job.Description,
		Priority:       job.Priority,
		Status:         job.Status,
		ScheduledTime:  job.ScheduledTime,
		Address:        job.Location.Address,
		RequiredSkills: append([]string{}, job.RequiredSkills...),
		ExpiresAt:      job.TriageToken.ExpiresAt,
	}, nil
}

// TrackingQRCode renders the tracking link of a valid token as a PNG.
func (s *Service) TrackingQRCode(ctx context.Context, value string) ([]byte, error) {
	if _, err := s.ValidateToken(ctx, domain.TokenTracking, value); err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(s.publicURL(domain.TokenTracking, value), qrcode.Medium, qrSize)
	if err != nil {
		return nil, apperr.Internal("could not render QR code").WithOp("TrackingQRCode")
	}
	return png, nil
}

func (s *Service) publicURL(kind domain.TokenKind, value string) string {
	base := strings.TrimRight(s.publicBase, "/")
	if kind == domain.TokenTriage {
		return base + "/triage/" + value
	}
	return base + "/track/" + value
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
