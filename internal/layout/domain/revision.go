package domain

import (
	"encoding/json"
	"time"
)

// Snapshot is the versioned content of a layout at one version.
type Snapshot struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Config      json.RawMessage `json:"config"`
	IsPublic    bool            `json:"isPublic"`
}

func (s Snapshot) Clone() Snapshot {
	s.Tags = cloneStrings(s.Tags)
	s.Config = cloneRaw(s.Config)
	return s
}

// Revision is an immutable record of a layout at Version, appended by the
// mutation that produced that version.
type Revision struct {
	ID        string    `json:"id"`
	LayoutID  string    `json:"layoutId"`
	Version   int       `json:"version"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	Snapshot  Snapshot  `json:"snapshot"`
}

// NewRevision records l's current version and content.
func NewRevision(id string, l *Layout, action, actorID string, at time.Time) *Revision {
	return &Revision{
		ID:        id,
		LayoutID:  l.ID,
		Version:   l.Version,
		Action:    action,
		CreatedAt: at,
		CreatedBy: actorID,
		Snapshot:  l.Snapshot(),
	}
}

func (r *Revision) Clone() *Revision {
	if r == nil {
		return nil
	}
	c := *r
	c.Snapshot = r.Snapshot.Clone()
	return &c
}
