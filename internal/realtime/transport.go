package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

const (
	DefaultBaseDelay  = 1000 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
	DefaultMaxRetries = 5
)

type Logger interface {
	Printf(format string, args ...any)
}

type EventSink interface {
	RouteEvent(raw map[string]any)
}

type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

type Timer interface {
	Stop() bool
}

type AfterFunc func(delay time.Duration, fn func()) Timer

type TransportOptions struct {
	URL        string
	Sink       EventSink
	Logger     Logger
	Dial       DialFunc
	After      AfterFunc
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	WriteWait  time.Duration
}

type statusSubscriber struct {
	id      int
	handler func(Status)
}

type statusNotice struct {
	status   Status
	handlers []func(Status)
}

type Transport struct {
	url        string
	sink       EventSink
	logger     Logger
	dial       DialFunc
	after      AfterFunc
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
	writeWait  time.Duration

	mu            sync.Mutex
	status        Status
	conn          Conn
	connCancel    context.CancelFunc
	retryCount    int
	generation    int
	explicitClose bool
	pendingTimer  Timer
	subs          []statusSubscriber
	nextSubID     int
	notices       []statusNotice

	noticeMu sync.Mutex
}

func NewTransport(opts TransportOptions) *Transport {
	dial := opts.Dial
	if dial == nil {
		dial = dialWebsocket
	}
	after := opts.After
	if after == nil {
		after = func(delay time.Duration, fn func()) Timer {
			return time.AfterFunc(delay, fn)
		}
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	writeWait := opts.WriteWait
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	return &Transport{
		url:        opts.URL,
		sink:       opts.Sink,
		logger:     opts.Logger,
		dial:       dial,
		after:      after,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		maxRetries: maxRetries,
		writeWait:  writeWait,
		status:     StatusDisconnected,
	}
}

func (t *Transport) URL() string {
	return t.url
}

func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transport) Connect() {
	t.mu.Lock()
	if t.status == StatusConnected || t.status == StatusConnecting {
		t.mu.Unlock()
		return
	}
	t.explicitClose = false
	t.generation++
	generation := t.generation
	t.setStatusLocked(StatusConnecting)
	t.mu.Unlock()
	t.flushNotices()

	go t.run(generation)
}

func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.explicitClose = true
	t.generation++
	if t.pendingTimer != nil {
		t.pendingTimer.Stop()
		t.pendingTimer = nil
	}
	conn := t.conn
	cancel := t.connCancel
	t.conn = nil
	t.connCancel = nil
	t.setStatusLocked(StatusDisconnected)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	t.flushNotices()
}

func (t *Transport) SendJSON(payload any) {
	t.mu.Lock()
	conn := t.conn
	connected := t.status == StatusConnected
	t.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.logf("send skipped, marshal failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.writeWait)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		t.logf("send failed: %v", err)
	}
}

func (t *Transport) SubscribeStatus(handler func(Status)) func() {
	if handler == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subs = append(t.subs, statusSubscriber{id: id, handler: handler})
	current := t.status
	t.mu.Unlock()

	handler(current)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, sub := range t.subs {
			if sub.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

func (t *Transport) run(generation int) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := t.dial(ctx, t.url)

	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		cancel()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		t.logf("connect to %s failed: %v", t.url, err)
		t.setStatusLocked(StatusError)
		t.setStatusLocked(StatusDisconnected)
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		t.flushNotices()
		cancel()
		return
	}
	t.conn = conn
	t.connCancel = cancel
	t.retryCount = 0
	t.setStatusLocked(StatusConnected)
	t.mu.Unlock()
	t.flushNotices()

	t.readLoop(ctx, generation, conn)
}

func (t *Transport) readLoop(ctx context.Context, generation int, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var raw map[string]any
		if unmarshalErr := json.Unmarshal(data, &raw); unmarshalErr != nil {
			t.logf("discarding malformed frame: %v", unmarshalErr)
			continue
		}
		if t.sink != nil {
			t.sink.RouteEvent(raw)
		}
	}

	_ = conn.Close()

	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.connCancel = nil
	t.setStatusLocked(StatusDisconnected)
	if !t.explicitClose {
		t.scheduleReconnectLocked()
	}
	t.mu.Unlock()
	t.flushNotices()
}

func (t *Transport) scheduleReconnectLocked() {
	if t.retryCount >= t.maxRetries {
		return
	}
	delay := t.baseDelay
	for i := 0; i < t.retryCount; i++ {
		delay *= 2
		if delay >= t.maxDelay {
			delay = t.maxDelay
			break
		}
	}
	t.retryCount++
	t.pendingTimer = t.after(delay, func() {
		t.mu.Lock()
		t.pendingTimer = nil
		t.mu.Unlock()
		t.Connect()
	})
}

func (t *Transport) setStatusLocked(status Status) {
	if t.status == status {
		return
	}
	t.status = status
	handlers := make([]func(Status), 0, len(t.subs))
	for _, sub := range t.subs {
		handlers = append(handlers, sub.handler)
	}
	t.notices = append(t.notices, statusNotice{status: status, handlers: handlers})
}

func (t *Transport) flushNotices() {
	for {
		if !t.noticeMu.TryLock() {
			return
		}
		for {
			t.mu.Lock()
			if len(t.notices) == 0 {
				t.mu.Unlock()
				break
			}
			notice := t.notices[0]
			t.notices = t.notices[1:]
			t.mu.Unlock()
			for _, handler := range notice.handlers {
				handler(notice.status)
			}
		}
		t.noticeMu.Unlock()

		// A notice queued while the drain lock was held must not wait for
		// the next status transition.
		t.mu.Lock()
		drained := len(t.notices) == 0
		t.mu.Unlock()
		if drained {
			return
		}
	}
}

func (t *Transport) logf(format string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Printf(format, args...)
}
