package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLog_FoldsRequestInfo(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLog(Entry{
		ActorID:  "u1",
		Action:   "auth.login",
		Metadata: map[string]any{"sessionId": "s1"},
	}, RequestInfo{IP: "203.0.113.9"}, now)

	assert.NotEmpty(t, l.ID)
	assert.Equal(t, now, l.Timestamp)
	assert.Equal(t, map[string]any{"ip": "203.0.113.9", "userAgent": nil, "sessionId": "s1"}, l.Metadata)
}

func TestNewLog_MetadataIsCopied(t *testing.T) {
	md := map[string]any{"k": "v"}
	l := NewLog(Entry{Action: "x", Metadata: md}, RequestInfo{}, time.Now())
	md["k"] = "changed"
	assert.Equal(t, "v", l.Metadata["k"])
}
