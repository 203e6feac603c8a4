package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditdomain "layoutaria/internal/audit/domain"
	layoutdomain "layoutaria/internal/layout/domain"
	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/pagination"
	sessiondomain "layoutaria/internal/session/domain"
	"layoutaria/internal/store"
	userdomain "layoutaria/internal/user/domain"
)

var base = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(base)
	st := store.NewMemory(store.WithClock(clock))
	t.Cleanup(func() { _ = st.Close() })

	revoked := base.Add(-time.Hour)
	_, err := st.Update(context.Background(), func(d *store.Document) error {
		d.Users = append(d.Users,
			&userdomain.User{ID: "u-old", Email: "old@example.com", PasswordHash: "x", Role: userdomain.RoleAdmin, CreatedAt: base.Add(-48 * time.Hour)},
			&userdomain.User{ID: "u-new", Email: "new@example.com", PasswordHash: "x", Role: userdomain.RoleUser, CreatedAt: base.Add(-time.Hour)},
			&userdomain.User{ID: "u-mid", Email: "mid@example.com", PasswordHash: "x", Role: userdomain.RoleUser, CreatedAt: base.Add(-24 * time.Hour)},
		)
		d.Sessions = append(d.Sessions,
			&sessiondomain.Session{ID: "s1", UserID: "u-new", ExpiresAt: base.Add(time.Hour)},
			&sessiondomain.Session{ID: "s2", UserID: "u-new", ExpiresAt: base.Add(-time.Minute)},
			&sessiondomain.Session{ID: "s3", UserID: "u-mid", ExpiresAt: base.Add(time.Hour), RevokedAt: &revoked},
		)
		d.Layouts = append(d.Layouts,
			&layoutdomain.Layout{ID: "l1", IsPublic: true, Version: 1},
			&layoutdomain.Layout{ID: "l2", Version: 2},
		)
		d.LayoutRevisions = append(d.LayoutRevisions,
			&layoutdomain.Revision{ID: "r1", LayoutID: "l1", Version: 1},
			&layoutdomain.Revision{ID: "r2", LayoutID: "l2", Version: 1},
			&layoutdomain.Revision{ID: "r3", LayoutID: "l2", Version: 2},
		)
		d.AuditLogs = append(d.AuditLogs,
			&auditdomain.AuditLog{ID: "a1", ActorID: "u-new", Action: "auth.login", Timestamp: base.Add(-3 * time.Minute)},
			&auditdomain.AuditLog{ID: "a2", ActorID: "u-mid", Action: "auth.login", Timestamp: base.Add(-2 * time.Minute)},
			&auditdomain.AuditLog{ID: "a3", ActorID: "u-new", Action: "layout.create", Timestamp: base.Add(-time.Minute)},
		)
		return nil
	})
	require.NoError(t, err)
	return NewService(st, clock), st
}

func TestListUsers_NewestFirst(t *testing.T) {
	svc, _ := seeded(t)

	page, err := svc.ListUsers(context.Background(), pagination.Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "u-new", page.Items[0].ID)
	assert.Equal(t, "u-mid", page.Items[1].ID)
	assert.Equal(t, "u-old", page.Items[2].ID)
	assert.Equal(t, pagination.Page{Page: 1, Limit: 20, Total: 3, TotalPages: 1}, page.Pagination)

	page, err = svc.ListUsers(context.Background(), pagination.Query{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u-old", page.Items[0].ID)

	_, err = svc.ListUsers(context.Background(), pagination.Query{Limit: 101})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListAuditLogs_Filters(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	all, err := svc.ListAuditLogs(ctx, AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "a2", "a1"}, auditIDs(all))

	logins, err := svc.ListAuditLogs(ctx, AuditQuery{Action: " auth.login "})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, auditIDs(logins))

	byActor, err := svc.ListAuditLogs(ctx, AuditQuery{ActorID: "u-new"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "a1"}, auditIDs(byActor))

	both, err := svc.ListAuditLogs(ctx, AuditQuery{Action: "auth.login", ActorID: "u-new"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, auditIDs(both))

	none, err := svc.ListAuditLogs(ctx, AuditQuery{Action: "layout.delete"})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Equal(t, 1, none.Pagination.TotalPages)
}

func TestStats(t *testing.T) {
	svc, st := seeded(t)

	stats := svc.Stats(context.Background())
	assert.Equal(t, Stats{
		Users:           3,
		Sessions:        3,
		ActiveSessions:  1,
		Layouts:         2,
		PublicLayouts:   1,
		PrivateLayouts:  1,
		LayoutRevisions: 3,
		AuditEvents:     3,
		UpdatedAt:       st.Read(context.Background()).Meta.UpdatedAt,
	}, stats)
}

func auditIDs(p *AuditPage) []string {
	out := make([]string, len(p.Items))
	for i, l := range p.Items {
		out[i] = l.ID
	}
	return out
}
