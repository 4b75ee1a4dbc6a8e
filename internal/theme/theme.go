// Package theme keeps the light/dark preference of each client.
package theme

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"

	Default = Light
)

var ErrUnknownTheme = errors.New("unknown theme")

func Parse(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case Light:
		return Light, nil
	case Dark:
		return Dark, nil
	}
	return "", ErrUnknownTheme
}

func (t Theme) Opposite() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Persister loads and stores the raw preference of one client. An empty
// value means nothing has been stored yet.
type Persister interface {
	LoadTheme(ctx context.Context, clientID string) (string, error)
	SaveTheme(ctx context.Context, clientID string, value string) error
}

// Store is the preference of a single client. The value is read from the
// persister on first use and written back on every change.
type Store struct {
	clientID string
	persist  Persister

	mu          sync.Mutex
	loaded      bool
	current     Theme
	nextID      int
	subscribers map[int]func(Theme)
}

func NewStore(clientID string, persist Persister) *Store {
	return &Store{
		clientID:    clientID,
		persist:     persist,
		subscribers: make(map[int]func(Theme)),
	}
}

func (s *Store) Get(ctx context.Context) (Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return Default, err
	}
	return s.current, nil
}

func (s *Store) Set(ctx context.Context, t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.current == t {
		s.mu.Unlock()
		return nil
	}
	if err := s.persist.SaveTheme(ctx, s.clientID, string(t)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = t
	subs := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
	return nil
}

func (s *Store) Toggle(ctx context.Context) (Theme, error) {
	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return Default, err
	}
	next := s.current.Opposite()
	if err := s.persist.SaveTheme(ctx, s.clientID, string(next)); err != nil {
		s.mu.Unlock()
		return s.current, err
	}
	s.current = next
	subs := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

// Subscribe registers fn for future changes. The returned func removes it.
func (s *Store) Subscribe(fn func(Theme)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	raw, err := s.persist.LoadTheme(ctx, s.clientID)
	if err != nil {
		return err
	}
	t, err := Parse(raw)
	if err != nil {
		t = Default
	}
	s.current = t
	s.loaded = true
	return nil
}

func (s *Store) snapshotLocked() []func(Theme) {
	subs := make([]func(Theme), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func (s *Store) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0
}

// Registry hands out one Store per client id. Stores without subscribers
// that were not used since the sweep cutoff are evicted.
type Registry struct {
	persist Persister

	mu       sync.Mutex
	stores   map[string]*Store
	lastUsed map[string]time.Time
}

func NewRegistry(persist Persister) *Registry {
	return &Registry{
		persist:  persist,
		stores:   make(map[string]*Store),
		lastUsed: make(map[string]time.Time),
	}
}

func (r *Registry) For(clientID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[clientID]
	if !ok {
		store = NewStore(clientID, r.persist)
		r.stores[clientID] = store
	}
	r.lastUsed[clientID] = time.Now()
	return store
}

// Current reads the client's theme without caching a store for it.
func (r *Registry) Current(ctx context.Context, clientID string) (Theme, error) {
	r.mu.Lock()
	store, ok := r.stores[clientID]
	if ok {
		r.lastUsed[clientID] = time.Now()
	}
	r.mu.Unlock()
	if ok {
		return store.Get(ctx)
	}

	raw, err := r.persist.LoadTheme(ctx, clientID)
	if err != nil {
		return Default, err
	}
	if t, err := Parse(raw); err == nil {
		return t, nil
	}
	return Default, nil
}

// Forget drops the cached store so the next For reloads from the persister.
func (r *Registry) Forget(clientID string) {
	r.mu.Lock()
	delete(r.stores, clientID)
	delete(r.lastUsed, clientID)
	r.mu.Unlock()
}

// Sweep evicts idle stores last used before cutoff.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, store := range r.stores {
		if r.lastUsed[id].Before(cutoff) && store.idle() {
			delete(r.stores, id)
			delete(r.lastUsed, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
