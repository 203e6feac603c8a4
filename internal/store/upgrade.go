package store

import (
	"time"

	auditdomain "layoutaria/internal/audit/domain"
	layoutdomain "layoutaria/internal/layout/domain"
	sessiondomain "layoutaria/internal/session/domain"
	userdomain "layoutaria/internal/user/domain"
)

// Upgrade normalizes a document written by an older build (or edited by hand)
// to the current schema and reports whether anything changed.
//
// Missing collections become empty, missing meta is filled in, and layouts get
// a version of at least 1 and a star count that matches StarredBy.
func Upgrade(doc *Document, now time.Time) bool {
	changed := false

	if doc.Users == nil {
		doc.Users, changed = []*userdomain.User{}, true
	}
	if doc.Sessions == nil {
		doc.Sessions, changed = []*sessiondomain.Session{}, true
	}
	if doc.Layouts == nil {
		doc.Layouts, changed = []*layoutdomain.Layout{}, true
	}
	if doc.LayoutRevisions == nil {
		doc.LayoutRevisions, changed = []*layoutdomain.Revision{}, true
	}
	if doc.AuditLogs == nil {
		doc.AuditLogs, changed = []*auditdomain.AuditLog{}, true
	}

	doc.Users = dropNil(doc.Users, &changed)
	doc.Sessions = dropNil(doc.Sessions, &changed)
	doc.Layouts = dropNil(doc.Layouts, &changed)
	doc.LayoutRevisions = dropNil(doc.LayoutRevisions, &changed)
	doc.AuditLogs = dropNil(doc.AuditLogs, &changed)

	if doc.Meta.SchemaVersion < SchemaVersion {
		doc.Meta.SchemaVersion, changed = SchemaVersion, true
	}
	if doc.Meta.CreatedAt.IsZero() {
		doc.Meta.CreatedAt, changed = now, true
	}
	if doc.Meta.UpdatedAt.IsZero() {
		doc.Meta.UpdatedAt, changed = now, true
	}

	for _, l := range doc.Layouts {
		if l.Version < 1 {
			l.Version, changed = 1, true
		}
		if l.Tags == nil {
			l.Tags, changed = []string{}, true
		}
		if l.StarredBy == nil {
			l.StarredBy, changed = []string{}, true
		}
		if l.Stars != len(l.StarredBy) {
			l.Stars, changed = len(l.StarredBy), true
		}
	}
	return changed
}

func dropNil[T any](in []*T, changed *bool) []*T {
	out := in[:0]
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	if len(out) != len(in) {
		*changed = true
	}
	return out
}
