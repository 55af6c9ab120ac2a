package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"
)

// CapabilityToken grants time-boxed access to one job's public view.
// Revocation removes the token from the job rather than rotating it.
type CapabilityToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewCapabilityToken returns a random 32-byte URL-safe token.
func NewCapabilityToken(now time.Time, ttl time.Duration) (CapabilityToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return CapabilityToken{}, err
	}
	return CapabilityToken{
		Value:     base64.RawURLEncoding.EncodeToString(raw),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Valid reports whether candidate matches and the token has not expired.
func (t *CapabilityToken) Valid(candidate string, now time.Time) bool {
	if t == nil || t.Value == "" || candidate == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(t.Value), []byte(candidate)) != 1 {
		return false
	}
	return now.Before(t.ExpiresAt)
}

// TokenKind selects which capability token on a job an operation targets.
type TokenKind string

const (
	TokenTracking TokenKind = "tracking"
	TokenTriage   TokenKind = "triage"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool { return k == TokenTracking || k == TokenTriage }

// Token returns the job's token of the given kind, or nil.
func (j *Job) Token(kind TokenKind) *CapabilityToken {
	switch kind {
	case TokenTracking:
		return j.TrackingToken
	case TokenTriage:
		return j.TriageToken
	default:
		return nil
	}
}

// SetToken stores (or with nil, removes) the job's token of the given kind.
func (j *Job) SetToken(kind TokenKind, token *CapabilityToken) {
	switch kind {
	case TokenTracking:
		j.TrackingToken = token
	case TokenTriage:
		j.TriageToken = token
	}
}
