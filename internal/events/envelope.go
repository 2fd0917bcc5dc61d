package events

import (
	"strings"
)

type Target struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

type Envelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	ActorID    string         `json:"actor_id"`
	Target     Target         `json:"target"`
	TargetID   string         `json:"target_id"`
	TargetType string         `json:"target_type"`
	Payload    map[string]any `json:"payload"`
	Timestamp  string         `json:"timestamp"`
	Version    int            `json:"version"`
}

type Kind int

const (
	KindUnknown Kind = iota
	KindStructural
	KindLayout
	KindACL
	KindPresence
	KindNotification
	KindExport
)

func NormalizeEnvelope(raw map[string]any) Envelope {
	env := Envelope{
		EventID:    rawString(raw, "event_id", "id"),
		EventType:  rawString(raw, "event_type", "type"),
		ActorID:    rawString(raw, "actor_id", "actorId"),
		TargetID:   rawString(raw, "target_id", "targetId"),
		TargetType: rawString(raw, "target_type", "targetType"),
		Timestamp:  rawString(raw, "timestamp"),
		Version:    1,
	}
	if target, ok := raw["target"].(map[string]any); ok {
		env.Target = Target{
			ID:   rawString(target, "id"),
			Type: rawString(target, "type"),
		}
	} else {
		env.Target = Target{ID: env.TargetID, Type: env.TargetType}
	}
	if env.TargetID == "" {
		env.TargetID = env.Target.ID
	}
	if env.TargetType == "" {
		env.TargetType = env.Target.Type
	}
	if payload, ok := raw["payload"].(map[string]any); ok {
		env.Payload = payload
	} else {
		env.Payload = map[string]any{}
	}
	if version, ok := rawInt(raw, "version"); ok {
		env.Version = version
	}
	return env
}

func (e Envelope) Kind() Kind {
	entity, op := e.splitType()
	if entity == "" || op == "" {
		return KindUnknown
	}
	switch entity {
	case "workspace", "folder", "study", "node":
		switch op {
		case "created", "updated", "moved", "deleted", "soft_deleted", "permanently_deleted":
			return KindStructural
		}
		return KindUnknown
	case "layout":
		if op == "updated" {
			return KindLayout
		}
		return KindUnknown
	case "acl":
		return KindACL
	case "presence":
		return KindPresence
	case "notification":
		if op == "created" {
			return KindNotification
		}
		return KindUnknown
	case "export":
		switch op {
		case "created", "updated", "progress", "completed", "failed":
			return KindExport
		}
		return KindUnknown
	}
	return KindUnknown
}

func (e Envelope) splitType() (entity, op string) {
	parts := strings.SplitN(e.EventType, ".", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func rawString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := raw[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func rawInt(raw map[string]any, key string) (int, bool) {
	switch v := raw[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
