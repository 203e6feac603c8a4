package domain

import (
	"maps"
	"time"
)

// RevokeReason records why a session stopped being usable.
type RevokeReason string

const (
	// ReasonRotated marks a session superseded by a refresh. Presenting its token again is a replay.
	ReasonRotated      RevokeReason = "rotated"
	ReasonLogout       RevokeReason = "logout"
	ReasonLogoutAll    RevokeReason = "logout_all"
	ReasonManualRevoke RevokeReason = "manual_revoke"
	ReasonSessionLimit RevokeReason = "session_limit"
)

// Session is a refresh-token-backed login grant. Only the SHA-256 hash of the
// refresh secret is stored.
type Session struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	TokenHash     string            `json:"tokenHash"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	ExpiresAt     time.Time         `json:"expiresAt"`
	RevokedAt     *time.Time        `json:"revokedAt"`
	RevokeReason  *RevokeReason     `json:"revokeReason"`
	ReplacedBy    *string           `json:"replacedBy"`
	LastUsedAt    *time.Time        `json:"lastUsedAt"`
	LastIP        string            `json:"lastIp,omitempty"`
	LastUserAgent string            `json:"lastUserAgent,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// IsActive reports whether the session is neither revoked nor expired at now.
func (s *Session) IsActive(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// IsStale reports whether the session was revoked, or expired, at or before cutoff.
func (s *Session) IsStale(cutoff time.Time) bool {
	if s.RevokedAt != nil && !s.RevokedAt.After(cutoff) {
		return true
	}
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(cutoff)
}

// LastActivity is LastUsedAt, falling back to CreatedAt.
func (s *Session) LastActivity() time.Time {
	if s.LastUsedAt != nil {
		return *s.LastUsedAt
	}
	return s.CreatedAt
}

// Revoke marks the session revoked for reason at now. It does not check whether
// the session is still active.
func (s *Session) Revoke(reason RevokeReason, now time.Time) {
	at := now
	r := reason
	s.RevokedAt = &at
	s.RevokeReason = &r
	s.UpdatedAt = now
}

// Touch records use of the session. Empty ip or userAgent keep the previous value.
func (s *Session) Touch(now time.Time, ip, userAgent string) {
	at := now
	s.LastUsedAt = &at
	if ip != "" {
		s.LastIP = ip
	}
	if userAgent != "" {
		s.LastUserAgent = userAgent
	}
	s.UpdatedAt = now
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.RevokedAt = clonePtr(s.RevokedAt)
	c.RevokeReason = clonePtr(s.RevokeReason)
	c.ReplacedBy = clonePtr(s.ReplacedBy)
	c.LastUsedAt = clonePtr(s.LastUsedAt)
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// View is the client-facing projection of a session.
type View struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
	RevokedAt     *time.Time    `json:"revokedAt"`
	RevokeReason  *RevokeReason `json:"revokeReason"`
	LastUsedAt    *time.Time    `json:"lastUsedAt"`
	LastIP        string        `json:"lastIp,omitempty"`
	LastUserAgent string        `json:"lastUserAgent,omitempty"`
	IsCurrent     bool          `json:"isCurrent"`
}

// View projects s; IsCurrent is set when s.ID equals currentID.
func (s *Session) View(currentID string) View {
	return View{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		ExpiresAt:     s.ExpiresAt,
		RevokedAt:     clonePtr(s.RevokedAt),
		RevokeReason:  clonePtr(s.RevokeReason),
		LastUsedAt:    clonePtr(s.LastUsedAt),
		LastIP:        s.LastIP,
		LastUserAgent: s.LastUserAgent,
		IsCurrent:     currentID != "" && s.ID == currentID,
	}
}
