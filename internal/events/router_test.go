package events

import (
	"fmt"
	"testing"

	"github.com/castlelab/studysync/internal/state"
)

type recordingDispatcher struct {
	actions []state.Action
}

func (d *recordingDispatcher) Dispatch(action state.Action) {
	d.actions = append(d.actions, action)
}

func TestRouteEventDropsDuplicates(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)

	raw := map[string]any{
		"event_id":   "e1",
		"event_type": "study.created",
		"target":     map[string]any{"id": "s1", "type": "study"},
		"payload":    map[string]any{"title": "Endgame Studies"},
	}
	r.RouteEvent(raw)
	r.RouteEvent(raw)

	if len(d.actions) != 2 {
		t.Fatalf("expected node+study upsert once, got %d actions", len(d.actions))
	}
	if d.actions[0].Type != state.ActionNodeUpsert || d.actions[1].Type != state.ActionStudyUpsert {
		t.Fatalf("unexpected action types %s, %s", d.actions[0].Type, d.actions[1].Type)
	}
}

func TestRouteEventDropsEmptyEventID(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_type": "study.created",
		"target":     map[string]any{"id": "s1"},
	})
	if len(d.actions) != 0 {
		t.Fatalf("expected no dispatch for missing event id, got %d", len(d.actions))
	}
}

func TestRouteEventUnknownTypeIgnored(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "chat.message",
		"payload":    map[string]any{"body": "gg"},
	})
	if len(d.actions) != 0 {
		t.Fatalf("expected unknown type ignored, got %d actions", len(d.actions))
	}

	// The id is still remembered so a later replay stays a no-op.
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "node.created",
		"target":     map[string]any{"id": "n1"},
	})
	if len(d.actions) != 0 {
		t.Fatalf("expected remembered id to suppress replay, got %d actions", len(d.actions))
	}
}

func TestDedupWindowEvictsOldestFirst(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouterWithOptions(RouterOptions{Dispatcher: d, MaxSeen: 3})

	event := func(id string) map[string]any {
		return map[string]any{
			"event_id":   id,
			"event_type": "notification.created",
			"payload":    map[string]any{"message": "m"},
		}
	}
	for i := 0; i < 4; i++ {
		r.RouteEvent(event(fmt.Sprintf("e%d", i)))
	}
	if len(d.actions) != 4 {
		t.Fatalf("expected 4 dispatches, got %d", len(d.actions))
	}

	// e0 was evicted, so it dispatches again and its reinsertion pushes e1 out.
	r.RouteEvent(event("e0"))
	if len(d.actions) != 5 {
		t.Fatalf("expected evicted id to dispatch again, got %d", len(d.actions))
	}
	r.RouteEvent(event("e3"))
	if len(d.actions) != 5 {
		t.Fatalf("expected tracked id to stay deduplicated, got %d", len(d.actions))
	}
	r.RouteEvent(event("e1"))
	if len(d.actions) != 6 {
		t.Fatalf("expected id evicted by the replay to dispatch again, got %d", len(d.actions))
	}
}

func TestDedupWindowDefaultBound(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	for i := 0; i <= DefaultMaxSeen; i++ {
		r.RouteEvent(map[string]any{
			"event_id":   fmt.Sprintf("e%d", i),
			"event_type": "notification.created",
			"payload":    map[string]any{"message": "m"},
		})
	}
	before := len(d.actions)
	r.RouteEvent(map[string]any{
		"event_id":   "e0",
		"event_type": "notification.created",
		"payload":    map[string]any{"message": "m"},
	})
	if len(d.actions) != before+1 {
		t.Fatal("expected first id to fall out of the window and dispatch again")
	}
}

func TestRouteStructuralDeleted(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "node.soft_deleted",
		"target":     map[string]any{"id": "n1"},
	})
	if len(d.actions) != 1 || d.actions[0].Type != state.ActionNodeRemove {
		t.Fatalf("expected node remove, got %+v", d.actions)
	}
	if d.actions[0].Payload["id"] != "n1" {
		t.Fatalf("unexpected payload %+v", d.actions[0].Payload)
	}
}

func TestRouteStructuralMoved(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "folder.moved",
		"target":     map[string]any{"id": "f1"},
		"payload":    map[string]any{"parent_id": "w2"},
	})
	if len(d.actions) != 1 || d.actions[0].Type != state.ActionNodeMove {
		t.Fatalf("expected node move, got %+v", d.actions)
	}
	if d.actions[0].Payload["parent_id"] != "w2" {
		t.Fatalf("unexpected payload %+v", d.actions[0].Payload)
	}
}

func TestRouteLayoutUpdated(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "layout.updated",
		"payload": map[string]any{
			"layout": map[string]any{"n1": map[string]any{"x": 1.0, "y": 2.0, "w": 3.0, "h": 4.0}},
		},
	})
	if len(d.actions) != 1 || d.actions[0].Type != state.ActionNodeLayoutMerge {
		t.Fatalf("expected layout merge, got %+v", d.actions)
	}
	layouts, ok := d.actions[0].Payload["layout"].(map[string]any)
	if !ok || layouts["n1"] == nil {
		t.Fatalf("unexpected layout payload %+v", d.actions[0].Payload)
	}
}

func TestRoutePresenceLifecycle(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	base := func(id, op string) map[string]any {
		return map[string]any{
			"event_id":   id,
			"event_type": "presence." + op,
			"actor_id":   "u1",
			"target":     map[string]any{"id": "s1", "type": "study"},
			"payload":    map[string]any{"move_path": "1.d4"},
		}
	}
	r.RouteEvent(base("e1", "user_joined"))
	r.RouteEvent(base("e2", "user_idle"))
	r.RouteEvent(base("e3", "user_left"))

	if len(d.actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(d.actions))
	}
	if d.actions[0].Payload["status"] != state.PresenceActive {
		t.Fatalf("expected active status, got %v", d.actions[0].Payload["status"])
	}
	if d.actions[1].Payload["status"] != state.PresenceIdle {
		t.Fatalf("expected idle status, got %v", d.actions[1].Payload["status"])
	}
	if d.actions[2].Type != state.ActionPresenceRemove {
		t.Fatalf("expected presence remove, got %s", d.actions[2].Type)
	}
}

func TestRouteACLDefaultsRole(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "acl.granted",
		"target":     map[string]any{"id": "n1"},
	})
	if len(d.actions) != 1 || d.actions[0].Payload["role"] != "viewer" {
		t.Fatalf("expected viewer role, got %+v", d.actions)
	}
}

func TestRouteExportProgress(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d)
	r.RouteEvent(map[string]any{
		"event_id":   "e1",
		"event_type": "export.progress",
		"target":     map[string]any{"id": "j1"},
		"payload":    map[string]any{"status": "running", "progress": 40.0},
	})
	if len(d.actions) != 1 || d.actions[0].Type != state.ActionJobExportUpsert {
		t.Fatalf("expected export upsert, got %+v", d.actions)
	}
	if d.actions[0].Payload["status"] != "running" || d.actions[0].Payload["progress"] != 40.0 {
		t.Fatalf("unexpected payload %+v", d.actions[0].Payload)
	}
}

func TestRouterAgainstRealStore(t *testing.T) {
	store := state.NewStore()
	r := NewRouter(store)

	created := map[string]any{
		"event_id":   "e1",
		"event_type": "study.created",
		"actor_id":   "u1",
		"target":     map[string]any{"id": "s1", "type": "study"},
		"payload":    map[string]any{"title": "Caro-Kann Repertoire", "parent_id": "f1"},
	}
	r.RouteEvent(created)
	r.RouteEvent(created)

	s := store.GetState()
	if len(s.Nodes.ByID) != 1 {
		t.Fatalf("expected a single node, got %d", len(s.Nodes.ByID))
	}
	if got := s.Nodes.ChildrenByParent["f1"]; len(got) != 1 || got[0] != "s1" {
		t.Fatalf("expected children [s1], got %v", got)
	}
	if s.Studies.ByID["s1"].Title != "Caro-Kann Repertoire" {
		t.Fatalf("unexpected study %+v", s.Studies.ByID["s1"])
	}
}
