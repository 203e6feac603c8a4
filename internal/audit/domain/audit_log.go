package domain

import "time"

// Resource types recorded on audit entries.
const (
	ResourceUser   = "user"
	ResourceLayout = "layout"
)

// AuditLog represents an audit event. Entries are append-only.
type AuditLog struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actorId"`
	ActorRole    string         `json:"actorRole"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Metadata     map[string]any `json:"metadata"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (a *AuditLog) Clone() *AuditLog {
	if a == nil {
		return nil
	}
	c := *a
	c.Metadata = cloneMap(a.Metadata)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
