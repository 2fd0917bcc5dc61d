package state

import (
	"sync"
)

type Logger interface {
	Printf(format string, args ...any)
}

type Action struct {
	Type    string
	Payload map[string]any
}

type StoreOptions struct {
	InitialState *AppState
	Logger       Logger
}

type subscriber struct {
	id      int
	handler func(*AppState)
}

type Store struct {
	mu     sync.Mutex
	state  *AppState
	reduce func(*AppState, Action) *AppState
	subs   []subscriber
	nextID int
	logger Logger
}

func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	initial := opts.InitialState
	if initial == nil {
		initial = NewInitialState()
	}
	return &Store{
		state:  initial,
		reduce: Reduce,
		logger: opts.Logger,
	}
}

func (s *Store) GetState() *AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	next, ok := s.safeReduce(s.state, action)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.state = next
	handlers := make([]func(*AppState), 0, len(s.subs))
	for _, sub := range s.subs {
		handlers = append(handlers, sub.handler)
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(next)
	}
}

func (s *Store) Subscribe(handler func(*AppState)) func() {
	if handler == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, handler: handler})
	current := s.state
	s.mu.Unlock()

	handler(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) safeReduce(current *AppState, action Action) (next *AppState, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("reducer recovered on %s: %v", action.Type, r)
			next = current
			ok = false
		}
	}()
	return s.reduce(current, action), true
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
