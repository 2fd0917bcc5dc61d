package events

import (
	"sync"

	"github.com/castlelab/studysync/internal/state"
)

const DefaultMaxSeen = 5000

type Dispatcher interface {
	Dispatch(state.Action)
}

type Logger interface {
	Printf(format string, args ...any)
}

type RouterOptions struct {
	Dispatcher Dispatcher
	MaxSeen    int
	Logger     Logger
}

type Router struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	seen       map[string]struct{}
	order      []string
	maxSeen    int
	logger     Logger
}

func NewRouter(dispatcher Dispatcher) *Router {
	return NewRouterWithOptions(RouterOptions{Dispatcher: dispatcher})
}

func NewRouterWithOptions(opts RouterOptions) *Router {
	maxSeen := opts.MaxSeen
	if maxSeen <= 0 {
		maxSeen = DefaultMaxSeen
	}
	return &Router{
		dispatcher: opts.Dispatcher,
		seen:       map[string]struct{}{},
		order:      make([]string, 0, maxSeen),
		maxSeen:    maxSeen,
		logger:     opts.Logger,
	}
}

func (r *Router) RouteEvent(raw map[string]any) {
	if r == nil || r.dispatcher == nil || raw == nil {
		return
	}
	env := NormalizeEnvelope(raw)
	if env.EventID == "" {
		return
	}
	if !r.remember(env.EventID) {
		return
	}

	switch env.Kind() {
	case KindStructural:
		r.routeStructural(env)
	case KindLayout:
		layouts := env.Payload["layout"]
		if layouts == nil {
			layouts = env.Payload["layouts"]
		}
		if layouts == nil {
			layouts = env.Payload
		}
		r.dispatcher.Dispatch(state.Action{
			Type:    state.ActionNodeLayoutMerge,
			Payload: map[string]any{"layout": layouts},
		})
	case KindACL:
		r.routeACL(env)
	case KindPresence:
		r.routePresence(env)
	case KindNotification:
		r.dispatcher.Dispatch(state.Action{
			Type: state.ActionNotificationAdd,
			Payload: map[string]any{
				"id":      env.EventID,
				"message": payloadString(env.Payload, "message"),
			},
		})
	case KindExport:
		r.routeExport(env)
	default:
		r.logf("ignoring event type %q (id %s)", env.EventType, env.EventID)
	}
}

func (r *Router) remember(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[eventID]; dup {
		return false
	}
	r.seen[eventID] = struct{}{}
	r.order = append(r.order, eventID)
	if len(r.order) > r.maxSeen {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	if cap(r.order) > 2*r.maxSeen {
		compacted := make([]string, len(r.order), r.maxSeen)
		copy(compacted, r.order)
		r.order = compacted
	}
	return true
}

func (r *Router) routeStructural(env Envelope) {
	entity, op := env.splitType()
	targetID := env.TargetID
	if targetID == "" {
		targetID = payloadString(env.Payload, "id", "node_id")
	}
	if targetID == "" {
		return
	}

	switch op {
	case "deleted", "soft_deleted", "permanently_deleted":
		r.dispatcher.Dispatch(state.Action{
			Type:    state.ActionNodeRemove,
			Payload: map[string]any{"id": targetID},
		})
		return
	case "moved":
		r.dispatcher.Dispatch(state.Action{
			Type: state.ActionNodeMove,
			Payload: map[string]any{
				"id":        targetID,
				"parent_id": payloadString(env.Payload, "parent_id", "parentId"),
			},
		})
		return
	}

	nodeType := entity
	if entity == "node" {
		nodeType = payloadString(env.Payload, "type", "node_type")
	}
	payload := map[string]any{"id": targetID}
	if nodeType != "" {
		payload["type"] = nodeType
	}
	if title := payloadString(env.Payload, "title", "name"); title != "" {
		payload["title"] = title
	}
	if parent, ok := env.Payload["parent_id"]; ok {
		payload["parent_id"] = parent
	} else if parent, ok := env.Payload["parentId"]; ok {
		payload["parent_id"] = parent
	}
	if meta, ok := env.Payload["meta"].(map[string]any); ok {
		payload["meta"] = meta
	}
	r.dispatcher.Dispatch(state.Action{Type: state.ActionNodeUpsert, Payload: payload})

	if entity == "study" {
		r.dispatcher.Dispatch(state.Action{
			Type: state.ActionStudyUpsert,
			Payload: map[string]any{
				"id":          targetID,
				"title":       payloadString(env.Payload, "title", "name"),
				"description": payloadString(env.Payload, "description"),
			},
		})
	}
}

func (r *Router) routeACL(env Envelope) {
	nodeID := env.TargetID
	if nodeID == "" {
		return
	}
	role := payloadString(env.Payload, "role", "permission")
	if role == "" {
		role = "viewer"
	}
	r.dispatcher.Dispatch(state.Action{
		Type:    state.ActionACLSetRole,
		Payload: map[string]any{"node_id": nodeID, "role": role},
	})
}

func (r *Router) routePresence(env Envelope) {
	_, op := env.splitType()
	studyID := env.TargetID
	if studyID == "" {
		studyID = payloadString(env.Payload, "study_id", "studyId")
	}
	userID := env.ActorID
	if userID == "" {
		userID = payloadString(env.Payload, "user_id", "userId")
	}
	if studyID == "" || userID == "" {
		return
	}

	if op == "user_left" {
		r.dispatcher.Dispatch(state.Action{
			Type:    state.ActionPresenceRemove,
			Payload: map[string]any{"study_id": studyID, "user_id": userID},
		})
		return
	}

	status := state.PresenceActive
	switch op {
	case "user_idle":
		status = state.PresenceIdle
	case "user_away":
		status = state.PresenceAway
	}
	r.dispatcher.Dispatch(state.Action{
		Type: state.ActionPresenceUpsert,
		Payload: map[string]any{
			"study_id":   studyID,
			"user_id":    userID,
			"status":     status,
			"chapter_id": payloadString(env.Payload, "chapter_id", "chapterId"),
			"move_path":  payloadString(env.Payload, "move_path", "movePath"),
		},
	})
}

func (r *Router) routeExport(env Envelope) {
	jobID := env.TargetID
	if jobID == "" {
		jobID = payloadString(env.Payload, "job_id", "id")
	}
	if jobID == "" {
		return
	}
	payload := map[string]any{"id": jobID}
	if status := payloadString(env.Payload, "status"); status != "" {
		payload["status"] = status
	}
	if progress, ok := env.Payload["progress"]; ok {
		payload["progress"] = progress
	}
	if downloadURL := payloadString(env.Payload, "download_url", "downloadUrl"); downloadURL != "" {
		payload["download_url"] = downloadURL
	}
	r.dispatcher.Dispatch(state.Action{Type: state.ActionJobExportUpsert, Payload: payload})
}

func (r *Router) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}

func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
