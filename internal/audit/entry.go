package audit

import (
	"time"

	"github.com/google/uuid"

	"layoutaria/internal/audit/domain"
)

// RequestInfo is the caller context recorded on audit entries. It never
// affects control flow.
type RequestInfo struct {
	IP        string
	UserAgent string
}

// Entry describes one audit event before it is stamped with an id and time.
type Entry struct {
	ActorID      string
	ActorRole    string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
}

// NewLog builds the stored audit entry for e. The caller's ip and user agent
// are folded into the metadata; an empty value is recorded as null.
func NewLog(e Entry, info RequestInfo, now time.Time) *domain.AuditLog {
	md := make(map[string]any, len(e.Metadata)+2)
	md["ip"] = nullable(info.IP)
	md["userAgent"] = nullable(info.UserAgent)
	for k, v := range e.Metadata {
		md[k] = v
	}
	return &domain.AuditLog{
		ID:           uuid.New().String(),
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     md,
		Timestamp:    now,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
