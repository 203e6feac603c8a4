// Package service implements the read-only admin views over the document.
package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	auditdomain "layoutaria/internal/audit/domain"
	"layoutaria/internal/platform/pagination"
	"layoutaria/internal/store"
	userdomain "layoutaria/internal/user/domain"
)

const (
	defaultLimit    = 20
	maxLimit        = 100
	maxActionLength = 80
)

// UserPage is one page of users, newest first.
type UserPage struct {
	Items      []userdomain.PublicUser `json:"items"`
	Pagination pagination.Page         `json:"pagination"`
}

// AuditQuery filters the audit log. Empty filters match everything.
type AuditQuery struct {
	pagination.Query
	Action  string
	ActorID string
}

// AuditPage is one page of audit entries, newest first.
type AuditPage struct {
	Items      []*auditdomain.AuditLog `json:"items"`
	Pagination pagination.Page         `json:"pagination"`
}

// Stats summarizes the document.
type Stats struct {
	Users           int       `json:"users"`
	Sessions        int       `json:"sessions"`
	ActiveSessions  int       `json:"activeSessions"`
	Layouts         int       `json:"layouts"`
	PublicLayouts   int       `json:"publicLayouts"`
	PrivateLayouts  int       `json:"privateLayouts"`
	LayoutRevisions int       `json:"layoutRevisions"`
	AuditEvents     int       `json:"auditEvents"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Service serves the admin endpoints. Callers must have checked the admin role.
type Service struct {
	store *store.Store
	clock clockwork.Clock
}

func NewService(st *store.Store, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: st, clock: clock}
}

// ListUsers lists users, most recently created first.
func (s *Service) ListUsers(ctx context.Context, q pagination.Query) (*UserPage, error) {
	page, err := pagination.Normalize(q, defaultLimit, maxLimit)
	if err != nil {
		return nil, err
	}
	users := s.store.Read(ctx).Users
	slices.SortStableFunc(users, func(a, b *userdomain.User) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	paged, p := pagination.Slice(users, page)
	items := make([]userdomain.PublicUser, len(paged))
	for i, u := range paged {
		items[i] = u.Public()
	}
	return &UserPage{Items: items, Pagination: p}, nil
}

// ListAuditLogs lists audit entries matching q, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, q AuditQuery) (*AuditPage, error) {
	page, err := pagination.Normalize(q.Query, defaultLimit, maxLimit)
	if err != nil {
		return nil, err
	}
	action := strings.TrimSpace(q.Action)
	if len(action) > maxActionLength {
		action = action[:maxActionLength]
	}
	logs := slices.DeleteFunc(s.store.Read(ctx).AuditLogs, func(l *auditdomain.AuditLog) bool {
		return (action != "" && l.Action != action) || (q.ActorID != "" && l.ActorID != q.ActorID)
	})
	slices.SortStableFunc(logs, func(a, b *auditdomain.AuditLog) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	items, p := pagination.Slice(logs, page)
	return &AuditPage{Items: items, Pagination: p}, nil
}

// Stats counts the document's contents. A session is active if it is neither
// revoked nor expired.
func (s *Service) Stats(ctx context.Context) Stats {
	doc := s.store.Read(ctx)
	now := s.clock.Now()
	st := Stats{
		Users:           len(doc.Users),
		Sessions:        len(doc.Sessions),
		Layouts:         len(doc.Layouts),
		LayoutRevisions: len(doc.LayoutRevisions),
		AuditEvents:     len(doc.AuditLogs),
		UpdatedAt:       doc.Meta.UpdatedAt,
	}
	for _, sess := range doc.Sessions {
		if sess.IsActive(now) {
			st.ActiveSessions++
		}
	}
	for _, l := range doc.Layouts {
		if l.IsPublic {
			st.PublicLayouts++
		}
	}
	st.PrivateLayouts = st.Layouts - st.PublicLayouts
	return st
}
