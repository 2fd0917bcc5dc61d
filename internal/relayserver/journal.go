package relayserver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type EventJournal interface {
	Append(scope string, event map[string]any) error
	Replay(scope string) ([]map[string]any, error)
	Close() error
}

type memoryJournal struct {
	mu          sync.Mutex
	maxPerScope int
	byScope     map[string][]json.RawMessage
}

func NewMemoryJournal(maxPerScope int) EventJournal {
	if maxPerScope <= 0 {
		maxPerScope = 1000
	}
	return &memoryJournal{
		maxPerScope: maxPerScope,
		byScope:     map[string][]json.RawMessage{},
	}
}

func (j *memoryJournal) Append(scope string, event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entries := append(j.byScope[scope], json.RawMessage(data))
	if len(entries) > j.maxPerScope {
		entries = entries[len(entries)-j.maxPerScope:]
	}
	j.byScope[scope] = entries
	return nil
}

func (j *memoryJournal) Replay(scope string) ([]map[string]any, error) {
	j.mu.Lock()
	entries := append([]json.RawMessage{}, j.byScope[scope]...)
	j.mu.Unlock()

	events := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		var event map[string]any
		if err := json.Unmarshal(entry, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (j *memoryJournal) Close() error {
	return nil
}

func BuildJournalFromDSN(dsn string) (EventJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryJournal(0), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "", "memory", "mem", "inmem":
		return NewMemoryJournal(0), nil
	case "postgres", "postgresql":
		return NewPostgresJournal(dsn)
	default:
		return nil, fmt.Errorf("unsupported journal scheme: %s", scheme)
	}
}
