package relayserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

type Logger interface {
	Printf(format string, args ...any)
}

type ServerConfig struct {
	Journal      EventJournal
	Logger       Logger
	MaxBodyBytes int64
	Replay       bool
	SendBuffer   int
}

type PublishRequest struct {
	Scope string         `json:"scope"`
	Event map[string]any `json:"event"`
}

type PublishResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

type subscription struct {
	scope    string
	presence bool
	send     chan []byte
}

type Server struct {
	cfg     ServerConfig
	journal EventJournal
	logger  Logger
	schema  *envelopeSchema

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func NewServer(cfg ServerConfig) (*Server, error) {
	journal := cfg.Journal
	if journal == nil {
		journal = NewMemoryJournal(0)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	schema, err := compileEnvelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &Server{
		cfg:     cfg,
		journal: journal,
		logger:  cfg.Logger,
		schema:  schema,
		subs:    map[*subscription]struct{}{},
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/v1/publish" && r.Method == http.MethodPost:
		s.handlePublish(w, r)
	case r.URL.Path == "/events" && r.Method == http.MethodGet:
		scope := strings.TrimSpace(r.URL.Query().Get("scope"))
		if scope == "" {
			writeError(w, http.StatusBadRequest, "invalid_scope", "scope query parameter is required")
			return
		}
		s.handleSocket(w, r, scope, false)
	case r.URL.Path == "/ws/presence" && r.Method == http.MethodGet:
		studyID := strings.TrimSpace(r.URL.Query().Get("study_id"))
		if studyID == "" {
			writeError(w, http.StatusBadRequest, "invalid_scope", "study_id query parameter is required")
			return
		}
		s.handleSocket(w, r, "study:"+studyID, true)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds limit")
		return
	}
	var req PublishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	req.Scope = strings.TrimSpace(req.Scope)
	if req.Scope == "" {
		writeError(w, http.StatusBadRequest, "invalid_scope", "scope is required")
		return
	}
	if req.Event == nil {
		writeError(w, http.StatusBadRequest, "invalid_event", "event is required")
		return
	}
	if err := s.schema.Validate(req.Event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	eventID := eventIDOf(req.Event)
	if eventID == "" {
		eventID = uuid.NewString()
		req.Event["event_id"] = eventID
	}

	if err := s.journal.Append(req.Scope, req.Event); err != nil {
		s.logf("journal append failed: %v", err)
		writeError(w, http.StatusInternalServerError, "journal_failed", "event could not be journaled")
		return
	}

	data, err := json.Marshal(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event", "event is not serializable")
		return
	}
	s.broadcast(req.Scope, data, nil)

	writeJSON(w, http.StatusAccepted, PublishResponse{Status: "accepted", EventID: eventID})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request, scope string, presence bool) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logf("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	sub := &subscription{
		scope:    scope,
		presence: presence,
		send:     make(chan []byte, s.cfg.SendBuffer),
	}
	s.register(sub)
	defer s.unregister(sub)

	if s.cfg.Replay {
		replayed, replayErr := s.journal.Replay(scope)
		if replayErr != nil {
			s.logf("journal replay failed for %s: %v", scope, replayErr)
		}
		for _, event := range replayed {
			if data, marshalErr := json.Marshal(event); marshalErr == nil {
				sub.enqueue(data)
			}
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-sub.send:
				if writeErr := conn.Write(ctx, websocket.MessageText, data); writeErr != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, readErr := conn.Read(ctx)
		if readErr != nil {
			return
		}
		if !presence {
			continue
		}
		if !json.Valid(data) {
			s.logf("dropping malformed presence frame on %s", scope)
			continue
		}
		s.broadcast(scope, data, sub)
	}
}

func (s *Server) register(sub *subscription) {
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

func (s *Server) broadcast(scope string, data []byte, exclude *subscription) {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		if sub.scope == scope && sub != exclude {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range targets {
		sub.enqueue(data)
	}
}

func (sub *subscription) enqueue(data []byte) {
	select {
	case sub.send <- data:
	default:
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func eventIDOf(event map[string]any) string {
	if id, ok := event["event_id"].(string); ok && id != "" {
		return id
	}
	if id, ok := event["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
