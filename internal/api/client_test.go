package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type capturedRequest struct {
	method         string
	path           string
	authorization  string
	idempotencyKey string
	contentType    string
	body           map[string]any
}

type captureServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	respond  func(w http.ResponseWriter, r *http.Request, attempt int)
}

func (s *captureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		method:         r.Method,
		path:           r.URL.EscapedPath(),
		authorization:  r.Header.Get("Authorization"),
		idempotencyKey: r.Header.Get("X-Idempotency-Key"),
		contentType:    r.Header.Get("Content-Type"),
		body:           body,
	})
	attempt := len(s.requests)
	s.mu.Unlock()
	if s.respond != nil {
		s.respond(w, r, attempt)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{}`))
}

func (s *captureServer) all() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest{}, s.requests...)
}

func newTestClient(t *testing.T, capture *captureServer, opts ClientOptions) *Client {
	t.Helper()
	srv := httptest.NewServer(capture)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	return NewClientWithOptions(opts)
}

func TestMutatingRequestCarriesIdempotencyKey(t *testing.T) {
	capture := &captureServer{}
	client := newTestClient(t, capture, ClientOptions{Token: "tok"})

	if _, err := client.CreateNode(context.Background(), "study", "London System", "f1"); err != nil {
		t.Fatalf("create node: %v", err)
	}

	reqs := capture.all()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.method != http.MethodPost || req.path != "/v1/nodes" {
		t.Fatalf("unexpected request %s %s", req.method, req.path)
	}
	if req.idempotencyKey == "" {
		t.Fatal("expected idempotency key on POST")
	}
	if req.authorization != "Bearer tok" {
		t.Fatalf("unexpected authorization %q", req.authorization)
	}
	if req.contentType != "application/json" {
		t.Fatalf("unexpected content type %q", req.contentType)
	}
	if req.body["title"] != "London System" || req.body["parent_id"] != "f1" {
		t.Fatalf("unexpected body %+v", req.body)
	}
}

func TestGetAndDeleteOmitIdempotencyKey(t *testing.T) {
	capture := &captureServer{}
	client := newTestClient(t, capture, ClientOptions{})

	if err := client.Request(context.Background(), http.MethodGet, "/v1/nodes", nil, nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := client.DeleteNode(context.Background(), "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, req := range capture.all() {
		if req.idempotencyKey != "" {
			t.Fatalf("unexpected idempotency key on %s", req.method)
		}
	}
}

func TestIdempotencyKeyReusedAcrossRetries(t *testing.T) {
	capture := &captureServer{}
	capture.respond = func(w http.ResponseWriter, r *http.Request, attempt int) {
		if attempt == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"s1","title":"Rook Endings"}`))
	}
	client := newTestClient(t, capture, ClientOptions{})

	study, err := client.CreateStudy(context.Background(), "Rook Endings", "")
	if err != nil {
		t.Fatalf("create study: %v", err)
	}
	if study.ID != "s1" {
		t.Fatalf("unexpected study %+v", study)
	}

	reqs := capture.all()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(reqs))
	}
	if reqs[0].idempotencyKey == "" || reqs[0].idempotencyKey != reqs[1].idempotencyKey {
		t.Fatalf("expected identical keys, got %q and %q", reqs[0].idempotencyKey, reqs[1].idempotencyKey)
	}
}

func TestRetriesOn429ThenSucceeds(t *testing.T) {
	capture := &captureServer{}
	capture.respond = func(w http.ResponseWriter, r *http.Request, attempt int) {
		if attempt == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
	client := newTestClient(t, capture, ClientOptions{})

	if err := client.MoveNode(context.Background(), "n1", "f2"); err != nil {
		t.Fatalf("move node: %v", err)
	}
	if got := len(capture.all()); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestNonRetryableStatusReturnsHTTPError(t *testing.T) {
	capture := &captureServer{}
	capture.respond = func(w http.ResponseWriter, r *http.Request, attempt int) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":"forbidden","message":"viewer role cannot edit"}`))
	}
	client := newTestClient(t, capture, ClientOptions{})

	err := client.MoveNode(context.Background(), "n1", "f2")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusForbidden || httpErr.Code != "forbidden" {
		t.Fatalf("unexpected error %+v", httpErr)
	}
	if got := len(capture.all()); got != 1 {
		t.Fatalf("expected no retries on 403, got %d attempts", got)
	}
}

func TestRetriesExhaustedSurfacesLastError(t *testing.T) {
	capture := &captureServer{}
	capture.respond = func(w http.ResponseWriter, r *http.Request, attempt int) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"unavailable","message":"try later"}`))
	}
	client := newTestClient(t, capture, ClientOptions{MaxRetries: 2})

	err := client.Request(context.Background(), http.MethodPost, "/v1/studies", map[string]any{"title": "x"}, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", httpErr.StatusCode)
	}
	if got := len(capture.all()); got != 3 {
		t.Fatalf("expected initial try plus 2 retries, got %d", got)
	}
}

func TestSetTokenAppliesToLaterRequests(t *testing.T) {
	capture := &captureServer{}
	client := newTestClient(t, capture, ClientOptions{})

	_ = client.Request(context.Background(), http.MethodGet, "/v1/nodes", nil, nil)
	client.SetToken("fresh")
	_ = client.Request(context.Background(), http.MethodGet, "/v1/nodes", nil, nil)

	reqs := capture.all()
	if reqs[0].authorization != "" {
		t.Fatalf("expected no auth header before login, got %q", reqs[0].authorization)
	}
	if reqs[1].authorization != "Bearer fresh" {
		t.Fatalf("expected refreshed token, got %q", reqs[1].authorization)
	}
}

func TestCreateExportJobDecodesResponse(t *testing.T) {
	capture := &captureServer{}
	capture.respond = func(w http.ResponseWriter, r *http.Request, attempt int) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"j1","status":"pending"}`))
	}
	client := newTestClient(t, capture, ClientOptions{})

	job, err := client.CreateExportJob(context.Background(), "s1", "pgn")
	if err != nil {
		t.Fatalf("create export: %v", err)
	}
	if job.ID != "j1" || job.Status != "pending" {
		t.Fatalf("unexpected job %+v", job)
	}
	req := capture.all()[0]
	if req.body["study_id"] != "s1" || req.body["format"] != "pgn" {
		t.Fatalf("unexpected body %+v", req.body)
	}
}

func TestInjectableKeyGenerator(t *testing.T) {
	capture := &captureServer{}
	client := newTestClient(t, capture, ClientOptions{
		NewKey: func() string { return "fixed-key" },
	})

	_ = client.MarkNotificationRead(context.Background(), "n/1")
	req := capture.all()[0]
	if req.idempotencyKey != "fixed-key" {
		t.Fatalf("expected injected key, got %q", req.idempotencyKey)
	}
	if req.path != "/v1/notifications/n%2F1/read" {
		t.Fatalf("expected escaped path, got %q", req.path)
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{" 3 ", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tc := range cases {
		if got := parseRetryAfterSeconds(tc.header); got != tc.want {
			t.Errorf("parseRetryAfterSeconds(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestNewIdempotencyKeyIsUnique(t *testing.T) {
	a := NewIdempotencyKey()
	b := NewIdempotencyKey()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty keys, got %q and %q", a, b)
	}
}
