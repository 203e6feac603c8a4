// Package service implements layout versioning: optimistic concurrency on
// writes, the append-only revision log and restore, plus the read queries.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"layoutaria/internal/audit"
	auditdomain "layoutaria/internal/audit/domain"
	"layoutaria/internal/layout/cache"
	"layoutaria/internal/layout/domain"
	"layoutaria/internal/metrics"
	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/sanitize"
	"layoutaria/internal/policy/engine"
	"layoutaria/internal/store"
	userdomain "layoutaria/internal/user/domain"
)

// Audit actions that do not produce revisions.
const (
	ActionDelete = "layout.delete"
	ActionStar   = "layout.star"
	ActionUnstar = "layout.unstar"
)

const (
	minNameLength        = 3
	maxNameLength        = 120
	maxDescriptionLength = 800
	cloneSuffix          = " (clone)"
)

var (
	errLayoutNotFound   = apperr.NotFound("Layout not found")
	errRevisionNotFound = apperr.NotFound("Revision not found")
	errCannotRead       = apperr.Forbidden("You cannot access this layout")
	errCannotWrite      = apperr.Forbidden("You cannot change this layout")
	errAuthRequired     = apperr.Unauthorized("Authentication required")
)

// CreateInput is the content of a new layout.
type CreateInput struct {
	Name        string
	Description string
	Tags        []string
	Config      json.RawMessage
	IsPublic    bool
}

// UpdateInput holds the fields to change; nil fields are left as they are.
// ExpectedVersion, when set, must equal the layout's current version.
type UpdateInput struct {
	Name            *string
	Description     *string
	Tags            *[]string
	Config          json.RawMessage
	IsPublic        *bool
	ExpectedVersion *int
}

// changedFields lists the provided fields in a fixed order.
func (in UpdateInput) changedFields() []string {
	var out []string
	if in.Name != nil {
		out = append(out, "name")
	}
	if in.Description != nil {
		out = append(out, "description")
	}
	if in.Tags != nil {
		out = append(out, "tags")
	}
	if in.Config != nil {
		out = append(out, "config")
	}
	if in.IsPublic != nil {
		out = append(out, "isPublic")
	}
	return out
}

// StarResult is returned by ToggleStar.
type StarResult struct {
	Starred bool `json:"starred"`
	Stars   int  `json:"stars"`
}

// DeleteResult is returned by Remove.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Service is the layout versioning engine. All writes run inside one store
// mutation each; the version check happens before anything is changed.
type Service struct {
	store  *store.Store
	authz  engine.Authorizer
	cache  *cache.Cache
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service. A nil cache disables caching of public listings.
func NewService(st *store.Store, authz engine.Authorizer, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		store:  st,
		authz:  authz,
		cache:  c,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New(0, s.clock)
	}
	return s
}

// layoutTx is the state of one layout mutation.
type layoutTx struct {
	ctx   context.Context
	doc   *store.Document
	now   time.Time
	actor userdomain.Actor
	info  audit.RequestInfo
}

// mutate runs fn in a store mutation. The public cache is cleared afterwards
// whether or not the mutation committed.
func mutate[T any](ctx context.Context, s *Service, actor userdomain.Actor, info audit.RequestInfo, fn func(tx *layoutTx) (T, error)) (T, error) {
	if actor.Anonymous() {
		var zero T
		return zero, errAuthRequired
	}
	defer s.cache.Invalidate()
	return store.Mutate(ctx, s.store, func(d *store.Document) (T, error) {
		return fn(&layoutTx{
			ctx:   ctx,
			doc:   d,
			now:   s.clock.Now().UTC(),
			actor: actor,
			info:  info,
		})
	})
}

// Create stores a new layout at version 1 with a layout.create revision.
func (s *Service) Create(ctx context.Context, actor userdomain.Actor, in CreateInput, info audit.RequestInfo) (domain.View, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return domain.View{}, err
	}
	if err := validateConfig(in.Config); err != nil {
		return domain.View{}, err
	}
	if len(in.Tags) > sanitize.MaxTags {
		return domain.View{}, apperr.Validationf("at most %d tags are allowed", sanitize.MaxTags)
	}
	description := sanitize.MultilineText(in.Description, maxDescriptionLength)
	tags := sanitize.Tags(in.Tags)

	return mutate(ctx, s, actor, info, func(tx *layoutTx) (domain.View, error) {
		l := &domain.Layout{
			ID:          uuid.New().String(),
			OwnerID:     tx.actor.ID,
			Name:        name,
			Description: description,
			Tags:        tags,
			Config:      append(json.RawMessage(nil), in.Config...),
			IsPublic:    in.IsPublic,
			StarredBy:   []string{},
			CreatedAt:   tx.now,
			UpdatedAt:   tx.now,
			Version:     1,
		}
		tx.doc.Layouts = append(tx.doc.Layouts, l)
		tx.appendRevision(l, domain.ActionCreate)
		tx.appendAudit(domain.ActionCreate, l.ID, map[string]any{"version": l.Version})
		return l.View(), nil
	})
}

// Update changes the provided fields, bumps the version and appends a
// layout.update revision.
func (s *Service) Update(ctx context.Context, actor userdomain.Actor, id string, in UpdateInput, info audit.RequestInfo) (domain.View, error) {
	changed := in.changedFields()
	if len(changed) == 0 {
		return domain.View{}, apperr.Validation("At least one mutable field must be provided")
	}
	if err := validateExpectedVersion(in.ExpectedVersion); err != nil {
		return domain.View{}, err
	}
	var name, description string
	var tags []string
	if in.Name != nil {
		n, err := normalizeName(*in.Name)
		if err != nil {
			return domain.View{}, err
		}
		name = n
	}
	if in.Description != nil {
		description = sanitize.MultilineText(*in.Description, maxDescriptionLength)
	}
	if in.Tags != nil {
		if len(*in.Tags) > sanitize.MaxTags {
			return domain.View{}, apperr.Validationf("at most %d tags are allowed", sanitize.MaxTags)
		}
		tags = sanitize.Tags(*in.Tags)
	}
	if in.Config != nil {
		if err := validateConfig(in.Config); err != nil {
			return domain.View{}, err
		}
	}

	return mutate(ctx, s, actor, info, func(tx *layoutTx) (domain.View, error) {
		l, err := s.writable(tx, id, in.ExpectedVersion)
		if err != nil {
			return domain.View{}, err
		}
		if in.Name != nil {
			l.Name = name
		}
		if in.Description != nil {
			l.Description = description
		}
		if in.Tags != nil {
			l.Tags = tags
		}
		if in.Config != nil {
			l.Config = append(json.RawMessage(nil), in.Config...)
		}
		if in.IsPublic != nil {
			l.IsPublic = *in.IsPublic
		}
		l.Version++
		l.UpdatedAt = tx.now
		tx.appendRevision(l, domain.ActionUpdate)
		tx.appendAudit(domain.ActionUpdate, l.ID, map[string]any{
			"changedFields": changed,
			"version":       l.Version,
		})
		return l.View(), nil
	})
}

// SetPublishStatus sets the visibility. The version only moves, and a
// revision is only appended, when the visibility actually changes; the audit
// entry is always written.
func (s *Service) SetPublishStatus(ctx context.Context, actor userdomain.Actor, id string, isPublic bool, expectedVersion *int, info audit.RequestInfo) (domain.View, error) {
	if err := validateExpectedVersion(expectedVersion); err != nil {
		return domain.View{}, err
	}
	return mutate(ctx, s, actor, info, func(tx *layoutTx) (domain.View, error) {
		l, err := s.writable(tx, id, expectedVersion)
		if err != nil {
			return domain.View{}, err
		}
		action := domain.ActionUnpublish
		if isPublic {
			action = domain.ActionPublish
		}
		changed := l.IsPublic != isPublic
		if changed {
			l.IsPublic = isPublic
			l.Version++
			l.UpdatedAt = tx.now
			tx.appendRevision(l, action)
		}
		tx.appendAudit(action, l.ID, map[string]any{
			"changed": changed,
			"version": l.Version,
		})
		return l.View(), nil
	})
}

// ToggleStar stars or unstars the layout for the actor. Stars are not versioned.
func (s *Service) ToggleStar(ctx context.Context, actor userdomain.Actor, id string, info audit.RequestInfo) (StarResult, error) {
	return mutate(ctx, s, actor, info, func(tx *layoutTx) (StarResult, error) {
		l, err := s.readable(tx, id)
		if err != nil {
			return StarResult{}, err
		}
		starred := l.ToggleStar(tx.actor.ID)
		l.UpdatedAt = tx.now
		action := ActionUnstar
		if starred {
			action = ActionStar
		}
		tx.appendAudit(action, l.ID, map[string]any{"stars": l.Stars})
		return StarResult{Starred: starred, Stars: l.Stars}, nil
	})
}

// Clone copies a readable layout into a new private layout owned by the actor,
// at version 1 with a layout.clone revision. The source is not touched.
func (s *Service) Clone(ctx context.Context, actor userdomain.Actor, id string, info audit.RequestInfo) (domain.View, error) {
	return mutate(ctx, s, actor, info, func(tx *layoutTx) (domain.View, error) {
		src, err := s.readable(tx, id)
		if err != nil {
			return domain.View{}, err
		}
		l := &domain.Layout{
			ID:        uuid.New().String(),
			OwnerID:   tx.actor.ID,
			StarredBy: []string{},
			CreatedAt: tx.now,
			UpdatedAt: tx.now,
			Version:   1,
		}
		l.Apply(src.Snapshot())
		l.Name = src.Name + cloneSuffix
		l.IsPublic = false
		tx.doc.Layouts = append(tx.doc.Layouts, l)
		tx.appendRevision(l, domain.ActionClone)
		tx.appendAudit(domain.ActionClone, l.ID, map[string]any{
			"sourceLayoutId": src.ID,
			"version":        l.Version,
		})
		return l.View(), nil
	})
}

// RestoreRevision copies the content of one of the layout's revisions back
// onto it as a new version. Later revisions are kept.
func (s *Service) RestoreRevision(ctx context.Context, actor userdomain.Actor, id, revisionID string, expectedVersion *int, info audit.RequestInfo) (domain.View, error) {
	if err := validateExpectedVersion(expectedVersion); err != nil {
		return domain.View{}, err
	}
	return mutate(ctx, s, actor, info, func(tx *layoutTx) (domain.View, error) {
		l, err := s.writable(tx, id, expectedVersion)
		if err != nil {
			return domain.View{}, err
		}
		rev := tx.doc.RevisionByID(id, revisionID)
		if rev == nil {
			return domain.View{}, errRevisionNotFound
		}
		l.Apply(rev.Snapshot)
		l.Version++
		l.UpdatedAt = tx.now
		tx.appendRevision(l, domain.ActionRestore)
		tx.appendAudit(domain.ActionRestore, l.ID, map[string]any{
			"restoredFromRevisionId": rev.ID,
			"restoredFromVersion":    rev.Version,
			"version":                l.Version,
		})
		return l.View(), nil
	})
}

// Remove deletes the layout and all of its revisions.
func (s *Service) Remove(ctx context.Context, actor userdomain.Actor, id string, info audit.RequestInfo) (DeleteResult, error) {
	return mutate(ctx, s, actor, info, func(tx *layoutTx) (DeleteResult, error) {
		if _, err := s.writable(tx, id, nil); err != nil {
			return DeleteResult{}, err
		}
		removed, _ := tx.doc.RemoveLayout(id)
		tx.appendAudit(ActionDelete, id, map[string]any{"removedRevisions": removed})
		return DeleteResult{Deleted: true, ID: id}, nil
	})
}

// readable resolves id and checks read access.
func (s *Service) readable(tx *layoutTx, id string) (*domain.Layout, error) {
	l := tx.doc.LayoutByID(id)
	if l == nil {
		return nil, errLayoutNotFound
	}
	if err := s.assertCanRead(tx.ctx, tx.actor, l); err != nil {
		return nil, err
	}
	return l, nil
}

// writable resolves id, checks write access and then the expected version.
func (s *Service) writable(tx *layoutTx, id string, expectedVersion *int) (*domain.Layout, error) {
	l := tx.doc.LayoutByID(id)
	if l == nil {
		return nil, errLayoutNotFound
	}
	d, err := s.decide(tx.ctx, tx.actor, l)
	if err != nil {
		return nil, err
	}
	if !d.Write {
		return nil, errCannotWrite
	}
	if expectedVersion != nil && *expectedVersion != l.Version {
		metrics.LayoutVersionConflictsTotal.Inc()
		return nil, apperr.Conflict(fmt.Sprintf("Version mismatch. Expected %d, current %d", *expectedVersion, l.Version))
	}
	return l, nil
}

func (s *Service) assertCanRead(ctx context.Context, actor userdomain.Actor, l *domain.Layout) error {
	d, err := s.decide(ctx, actor, l)
	if err != nil {
		return err
	}
	if !d.Read {
		return errCannotRead
	}
	return nil
}

func (s *Service) decide(ctx context.Context, actor userdomain.Actor, l *domain.Layout) (engine.Decision, error) {
	d, err := s.authz.Authorize(ctx, actor, l)
	if err != nil {
		s.logger.ErrorContext(ctx, "layout: authorization failed", "layout_id", l.ID, "user_id", actor.ID, "error", err)
		return engine.Decision{}, apperr.Internal("authorize layout access", err)
	}
	return d, nil
}

func (tx *layoutTx) appendRevision(l *domain.Layout, action string) {
	tx.doc.LayoutRevisions = append(tx.doc.LayoutRevisions,
		domain.NewRevision(uuid.New().String(), l, action, tx.actor.ID, tx.now))
}

func (tx *layoutTx) appendAudit(action, layoutID string, metadata map[string]any) {
	tx.doc.AppendAudit(audit.NewLog(audit.Entry{
		ActorID:      tx.actor.ID,
		ActorRole:    string(tx.actor.Role),
		Action:       action,
		ResourceType: auditdomain.ResourceLayout,
		ResourceID:   layoutID,
		Metadata:     metadata,
	}, tx.info, tx.now))
}

func normalizeName(raw string) (string, error) {
	name := sanitize.Text(raw, maxNameLength)
	if utf8.RuneCountInString(name) < minNameLength {
		return "", apperr.Validationf("name must be at least %d characters", minNameLength)
	}
	return name, nil
}

func validateConfig(cfg json.RawMessage) error {
	trimmed := strings.TrimSpace(string(cfg))
	if trimmed == "" || trimmed == "null" {
		return apperr.Validation("config is required")
	}
	if !json.Valid(cfg) || !strings.HasPrefix(trimmed, "{") {
		return apperr.Validation("config must be a JSON object")
	}
	return nil
}

func validateExpectedVersion(v *int) error {
	if v != nil && *v < 1 {
		return apperr.Validation("expectedVersion must be at least 1")
	}
	return nil
}
