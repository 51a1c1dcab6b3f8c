package store

import (
	"log/slog"
	"sync"
)

// Action is anything a reducer understands. Type names the action for logs.
type Action interface {
	Type() string
}

// State is the whole client state.
type State struct {
	Auth AuthState
	User UserState
}

func reduce(s State, a Action) State {
	return State{
		Auth: reduceAuth(s.Auth, a),
		User: reduceUser(s.User, a),
	}
}

// Store holds State and fans out snapshots to subscribers.
type Store struct {
	log *slog.Logger

	mu     sync.RWMutex
	state  State
	subs   map[uint64]func(State)
	nextID uint64
}

// New constructs an empty Store.
func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:  log,
		subs: make(map[uint64]func(State)),
	}
}

// State returns the current snapshot. Reducers never mutate in place, so the
// snapshot stays valid after later dispatches.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch reduces a and notifies subscribers with the resulting state.
// Subscribers run on the dispatching goroutine, outside the store lock.
func (s *Store) Dispatch(a Action) {
	if a == nil {
		return
	}

	s.mu.Lock()
	s.state = reduce(s.state, a)
	next := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.log.Debug("store.dispatch", "action", a.Type(), "authenticated", next.Auth.IsAuthenticated)
	for _, fn := range subs {
		fn(next)
	}
}

// Subscribe registers fn and returns its unsubscribe function.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetAccessToken dispatches SetAccessToken; it lets the API client write refreshed tokens.
func (s *Store) SetAccessToken(token string) {
	s.Dispatch(SetAccessToken{Token: token})
}
