package store

import (
	"strings"
	"time"

	auditdomain "layoutaria/internal/audit/domain"
	layoutdomain "layoutaria/internal/layout/domain"
	"layoutaria/internal/security"
	sessiondomain "layoutaria/internal/session/domain"
	userdomain "layoutaria/internal/user/domain"
)

// SchemaVersion is the document layout written by this build.
const SchemaVersion = 1

// Meta describes the document itself.
type Meta struct {
	SchemaVersion int       `json:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Document is the whole application state. It is the unit of durability and
// of locking: the Store owns exactly one committed Document and hands out copies.
type Document struct {
	Users           []*userdomain.User       `json:"users"`
	Sessions        []*sessiondomain.Session `json:"sessions"`
	Layouts         []*layoutdomain.Layout   `json:"layouts"`
	LayoutRevisions []*layoutdomain.Revision `json:"layoutRevisions"`
	AuditLogs       []*auditdomain.AuditLog  `json:"auditLogs"`
	Meta            Meta                     `json:"meta"`
}

// NewDocument returns an empty document created at now.
func NewDocument(now time.Time) *Document {
	return &Document{
		Users:           []*userdomain.User{},
		Sessions:        []*sessiondomain.Session{},
		Layouts:         []*layoutdomain.Layout{},
		LayoutRevisions: []*layoutdomain.Revision{},
		AuditLogs:       []*auditdomain.AuditLog{},
		Meta: Meta{
			SchemaVersion: SchemaVersion,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

// Clone returns a deep copy of d that shares no memory with it.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		Users:           cloneAll(d.Users, (*userdomain.User).Clone),
		Sessions:        cloneAll(d.Sessions, (*sessiondomain.Session).Clone),
		Layouts:         cloneAll(d.Layouts, (*layoutdomain.Layout).Clone),
		LayoutRevisions: cloneAll(d.LayoutRevisions, (*layoutdomain.Revision).Clone),
		AuditLogs:       cloneAll(d.AuditLogs, (*auditdomain.AuditLog).Clone),
		Meta:            d.Meta,
	}
}

func cloneAll[T any](in []*T, clone func(*T) *T) []*T {
	out := make([]*T, len(in))
	for i, v := range in {
		out[i] = clone(v)
	}
	return out
}

func (d *Document) UserByID(id string) *userdomain.User {
	for _, u := range d.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// UserByEmail matches case-insensitively.
func (d *Document) UserByEmail(email string) *userdomain.User {
	for _, u := range d.Users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (d *Document) SessionByID(id string) *sessiondomain.Session {
	for _, s := range d.Sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (d *Document) SessionByTokenHash(hash string) *sessiondomain.Session {
	for _, s := range d.Sessions {
		if security.TokenHashEqual(s.TokenHash, hash) {
			return s
		}
	}
	return nil
}

func (d *Document) LayoutByID(id string) *layoutdomain.Layout {
	for _, l := range d.Layouts {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// RevisionByID returns the revision only if it belongs to layoutID.
func (d *Document) RevisionByID(layoutID, revisionID string) *layoutdomain.Revision {
	for _, r := range d.LayoutRevisions {
		if r.ID == revisionID && r.LayoutID == layoutID {
			return r
		}
	}
	return nil
}

// RemoveLayout deletes the layout and every revision of it. It returns the
// number of revisions removed, and false if no layout had that id.
func (d *Document) RemoveLayout(id string) (int, bool) {
	idx := -1
	for i, l := range d.Layouts {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false
	}
	d.Layouts = append(d.Layouts[:idx], d.Layouts[idx+1:]...)

	kept := d.LayoutRevisions[:0]
	for _, r := range d.LayoutRevisions {
		if r.LayoutID != id {
			kept = append(kept, r)
		}
	}
	removed := len(d.LayoutRevisions) - len(kept)
	clear(d.LayoutRevisions[len(kept):])
	d.LayoutRevisions = kept
	return removed, true
}

// AppendAudit appends entries to the audit trail.
func (d *Document) AppendAudit(entries ...*auditdomain.AuditLog) {
	d.AuditLogs = append(d.AuditLogs, entries...)
}
