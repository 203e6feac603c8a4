// Package seed creates the first admin user and a demo public layout in an
// empty document. Running it again changes nothing.
package seed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"layoutaria/internal/audit"
	auditdomain "layoutaria/internal/audit/domain"
	layoutdomain "layoutaria/internal/layout/domain"
	"layoutaria/internal/store"
	userdomain "layoutaria/internal/user/domain"
)

// ActionAdminCreated is audited when the admin user is created.
const ActionAdminCreated = "seed.admin.created"

const (
	adminName         = "System Admin"
	demoLayoutName    = "Shared starter layout"
	demoLayoutDetails = "Base preset showing off the layouts API."
)

var demoTags = []string{"demo", "flexbox"}

var demoConfig = json.RawMessage(`{"direction":"row","justifyContent":"center","alignItems":"center","alignContent":"stretch","wrap":"nowrap","gapPx":20,"minHeightVh":72,"itemSizePx":152,"itemCount":3,"showIndex":true,"showAxes":true}`)

// PasswordHasher hashes the admin password.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Options are the admin credentials.
type Options struct {
	AdminEmail    string
	AdminPassword string
}

// Result reports what was created.
type Result struct {
	AdminID      string `json:"adminId,omitempty"`
	DemoLayoutID string `json:"demoLayoutId,omitempty"`
}

// Seeder seeds one store.
type Seeder struct {
	store  *store.Store
	hasher PasswordHasher
	clock  clockwork.Clock
	logger *slog.Logger
}

func New(st *store.Store, hasher PasswordHasher, clock clockwork.Clock, logger *slog.Logger) *Seeder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: st, hasher: hasher, clock: clock, logger: logger}
}

// Run seeds in a single mutation. The admin is created only when there are no
// users; the demo layout only when no layout is public, and it is owned by
// the first user.
func (s *Seeder) Run(ctx context.Context, opts Options) (Result, error) {
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))

	// Hash outside the writer; bcrypt is slow and the hash is discarded if
	// another process seeded first.
	var hash string
	if len(s.store.Read(ctx).Users) == 0 {
		h, err := s.hasher.Hash(opts.AdminPassword)
		if err != nil {
			return Result{}, err
		}
		hash = h
	}

	res, err := store.Mutate(ctx, s.store, func(d *store.Document) (Result, error) {
		var res Result
		now := s.clock.Now().UTC()
		if len(d.Users) == 0 && hash != "" {
			admin := &userdomain.User{
				ID:           uuid.New().String(),
				Name:         adminName,
				Email:        email,
				PasswordHash: hash,
				Role:         userdomain.RoleAdmin,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := admin.Validate(); err != nil {
				return Result{}, err
			}
			d.Users = append(d.Users, admin)
			d.AppendAudit(audit.NewLog(audit.Entry{
				ActorID:      admin.ID,
				ActorRole:    string(userdomain.RoleSystem),
				Action:       ActionAdminCreated,
				ResourceType: auditdomain.ResourceUser,
				ResourceID:   admin.ID,
			}, audit.RequestInfo{}, now))
			res.AdminID = admin.ID
		}

		if len(d.Users) > 0 && !hasPublicLayout(d) {
			owner := d.Users[0].ID
			l := &layoutdomain.Layout{
				ID:          uuid.New().String(),
				OwnerID:     owner,
				Name:        demoLayoutName,
				Description: demoLayoutDetails,
				Tags:        append([]string(nil), demoTags...),
				Config:      append(json.RawMessage(nil), demoConfig...),
				IsPublic:    true,
				StarredBy:   []string{},
				CreatedAt:   now,
				UpdatedAt:   now,
				Version:     1,
			}
			d.Layouts = append(d.Layouts, l)
			d.LayoutRevisions = append(d.LayoutRevisions,
				layoutdomain.NewRevision(uuid.New().String(), l, layoutdomain.ActionSeed, owner, now))
			res.DemoLayoutID = l.ID
		}
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.AdminID != "" {
		s.logger.WarnContext(ctx, "seed: default admin user created; change its credentials", "email", email, "user_id", res.AdminID)
	}
	if res.DemoLayoutID != "" {
		s.logger.InfoContext(ctx, "seed: demo layout created", "layout_id", res.DemoLayoutID)
	}
	return res, nil
}

func hasPublicLayout(d *store.Document) bool {
	for _, l := range d.Layouts {
		if l.IsPublic {
			return true
		}
	}
	return false
}
