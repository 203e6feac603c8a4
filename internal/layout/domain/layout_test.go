package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLayout_ToggleStarKeepsCountInSync(t *testing.T) {
	l := &Layout{ID: "l1", StarredBy: []string{}}

	assert.True(t, l.ToggleStar("u1"))
	assert.True(t, l.ToggleStar("u2"))
	assert.Equal(t, 2, l.Stars)

	assert.False(t, l.ToggleStar("u1"))
	assert.Equal(t, 1, l.Stars)
	assert.Equal(t, []string{"u2"}, l.StarredBy)
}

func TestLayout_SnapshotApplyRoundTrip(t *testing.T) {
	l := &Layout{
		ID:          "l1",
		Name:        "Hero",
		Description: "centered",
		Tags:        []string{"hero"},
		Config:      json.RawMessage(`{"direction":"row"}`),
		IsPublic:    true,
		Version:     4,
	}
	snap := l.Snapshot()

	l.Name = "Changed"
	l.Tags[0] = "mutated"
	l.Config = json.RawMessage(`{"direction":"column"}`)
	l.IsPublic = false

	assert.Equal(t, []string{"hero"}, snap.Tags, "snapshot must not alias live tags")

	l.Apply(snap)
	assert.Equal(t, "Hero", l.Name)
	assert.Equal(t, []string{"hero"}, l.Tags)
	assert.JSONEq(t, `{"direction":"row"}`, string(l.Config))
	assert.True(t, l.IsPublic)
	assert.Equal(t, 4, l.Version, "Apply leaves the version alone")
}

func TestNewRevision_CopiesVersionAndContent(t *testing.T) {
	now := time.Now().UTC()
	l := &Layout{ID: "l1", Name: "Grid", Tags: []string{"a"}, Version: 3}
	rev := NewRevision("r1", l, ActionUpdate, "u1", now)

	l.Tags[0] = "b"
	assert.Equal(t, 3, rev.Version)
	assert.Equal(t, "l1", rev.LayoutID)
	assert.Equal(t, []string{"a"}, rev.Snapshot.Tags)
}

func TestLayout_CloneIsIndependent(t *testing.T) {
	l := &Layout{Tags: []string{"a"}, StarredBy: []string{"u1"}, Config: json.RawMessage(`{}`)}
	c := l.Clone()
	c.Tags[0] = "z"
	c.StarredBy = append(c.StarredBy, "u2")
	c.Config[0] = '['

	assert.Equal(t, "a", l.Tags[0])
	assert.Len(t, l.StarredBy, 1)
	assert.Equal(t, byte('{'), l.Config[0])
}
