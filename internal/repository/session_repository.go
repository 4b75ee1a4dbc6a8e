package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pubdetect/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps client-state records keyed by session id.
type SessionStore interface {
	Get(ctx context.Context, id string) (models.ClientSession, error)
	Save(ctx context.Context, session models.ClientSession) error
	Delete(ctx context.Context, id string) error
}

const sessionKeyPrefix = "dashboard:session:"

type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionRepository(client *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{client: client, ttl: ttl}
}

func (r *SessionRepository) Get(ctx context.Context, id string) (models.ClientSession, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ClientSession{}, ErrSessionNotFound
		}
		return models.ClientSession{}, err
	}

	var session models.ClientSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return models.ClientSession{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// Save writes the record and restarts its TTL.
func (r *SessionRepository) Save(ctx context.Context, session models.ClientSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, sessionKeyPrefix+session.ID, raw, r.ttl).Err()
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKeyPrefix+id).Err()
}

// MemorySessionStore is a process-local SessionStore for single-instance
// runs and tests. Expired records are dropped lazily on Get.
type MemorySessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	session   models.ClientSession
	expiresAt time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, now: time.Now, records: make(map[string]memoryRecord)}
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (models.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return models.ClientSession{}, ErrSessionNotFound
	}
	if m.ttl > 0 && m.now().After(rec.expiresAt) {
		delete(m.records, id)
		return models.ClientSession{}, ErrSessionNotFound
	}
	return rec.session, nil
}

func (m *MemorySessionStore) Save(_ context.Context, session models.ClientSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[session.ID] = memoryRecord{session: session, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// SessionThemes stores the theme preference inside the client session
// record so it survives reloads and logout.
type SessionThemes struct {
	store SessionStore
}

func NewSessionThemes(store SessionStore) *SessionThemes {
	return &SessionThemes{store: store}
}

func (t *SessionThemes) LoadTheme(ctx context.Context, clientID string) (string, error) {
	session, err := t.store.Get(ctx, clientID)
	if errors.Is(err, ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return session.Theme, nil
}

func (t *SessionThemes) SaveTheme(ctx context.Context, clientID string, value string) error {
	session, err := t.store.Get(ctx, clientID)
	if errors.Is(err, ErrSessionNotFound) {
		now := time.Now().UTC()
		session = models.ClientSession{ID: clientID, CreatedAt: now}
	} else if err != nil {
		return err
	}
	session.Theme = value
	session.LastSeenAt = time.Now().UTC()
	return t.store.Save(ctx, session)
}
