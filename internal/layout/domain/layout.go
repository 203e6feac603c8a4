// Package domain holds the layout entities and their revision log.
package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// Revision actions. Every version-incrementing mutation appends exactly one revision.
const (
	ActionCreate    = "layout.create"
	ActionUpdate    = "layout.update"
	ActionPublish   = "layout.publish"
	ActionUnpublish = "layout.unpublish"
	ActionRestore   = "layout.restore"
	ActionClone     = "layout.clone"
	// ActionSeed is the revision recorded for the demo layout created on first run.
	ActionSeed = "layout.seed"
)

// Layout is a shareable flexbox layout. Version starts at 1 and is the
// optimistic-lock token for writers; stars are not part of it.
type Layout struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Config      json.RawMessage `json:"config"`
	IsPublic    bool            `json:"isPublic"`
	Stars       int             `json:"stars"`
	StarredBy   []string        `json:"starredBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Version     int             `json:"version"`
}

func (l *Layout) Clone() *Layout {
	if l == nil {
		return nil
	}
	c := *l
	c.Tags = cloneStrings(l.Tags)
	c.Config = cloneRaw(l.Config)
	c.StarredBy = cloneStrings(l.StarredBy)
	return &c
}

// HasStar reports whether userID starred the layout.
func (l *Layout) HasStar(userID string) bool {
	return slices.Contains(l.StarredBy, userID)
}

// ToggleStar adds or removes userID from StarredBy and returns whether the
// layout is starred by userID afterwards. Stars is kept equal to len(StarredBy).
func (l *Layout) ToggleStar(userID string) bool {
	starred := !l.HasStar(userID)
	if starred {
		l.StarredBy = append(l.StarredBy, userID)
	} else {
		l.StarredBy = slices.DeleteFunc(l.StarredBy, func(id string) bool { return id == userID })
	}
	l.Stars = len(l.StarredBy)
	return starred
}

// Snapshot copies the versioned content of the layout.
func (l *Layout) Snapshot() Snapshot {
	return Snapshot{
		Name:        l.Name,
		Description: l.Description,
		Tags:        cloneStrings(l.Tags),
		Config:      cloneRaw(l.Config),
		IsPublic:    l.IsPublic,
	}
}

// Apply overwrites the versioned content of the layout with s. Version and
// timestamps are left to the caller.
func (l *Layout) Apply(s Snapshot) {
	l.Name = s.Name
	l.Description = s.Description
	l.Tags = cloneStrings(s.Tags)
	l.Config = cloneRaw(s.Config)
	l.IsPublic = s.IsPublic
}

// View is the client-facing projection of a layout; it omits StarredBy.
type View struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Config      json.RawMessage `json:"config"`
	IsPublic    bool            `json:"isPublic"`
	Stars       int             `json:"stars"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Version     int             `json:"version"`
}

func (l *Layout) View() View {
	return View{
		ID:          l.ID,
		OwnerID:     l.OwnerID,
		Name:        l.Name,
		Description: l.Description,
		Tags:        cloneStrings(l.Tags),
		Config:      cloneRaw(l.Config),
		IsPublic:    l.IsPublic,
		Stars:       l.Stars,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
		Version:     l.Version,
	}
}

// Clone returns a copy of v that shares no slices with it.
func (v View) Clone() View {
	v.Tags = cloneStrings(v.Tags)
	v.Config = cloneRaw(v.Config)
	return v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return slices.Clone(r)
}
