package store

import (
	"context"
	"sync"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/google/uuid"
)

// MemorySessionStore is the SessionStore used when Redis is not configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]types.Session
}

var _ types.SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{ttl: ttl, sessions: make(map[string]types.Session)}
}

func (s *MemorySessionStore) CreateSession(_ context.Context, accountID string) (*types.Session, error) {
	now := time.Now().UTC()
	session := types.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return &session, nil
}

func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	if !session.ExpiresAt.After(time.Now()) {
		delete(s.sessions, sessionID)
		return nil, types.ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) TakeSession(_ context.Context, sessionID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	if !session.ExpiresAt.After(time.Now()) {
		return nil, types.ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

type MemoryPreferenceStore struct {
	mu      sync.Mutex
	options map[int64]map[string]interface{}
}

var _ types.PreferenceStore = (*MemoryPreferenceStore)(nil)

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{options: make(map[int64]map[string]interface{})}
}

func (s *MemoryPreferenceStore) GetUserOptions(_ context.Context, telegramID int64) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.options[telegramID]))
	for k, v := range s.options[telegramID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryPreferenceStore) SetUserOptions(_ context.Context, telegramID int64, options map[string]interface{}) error {
	cp := make(map[string]interface{}, len(options))
	for k, v := range options {
		cp[k] = v
	}
	s.mu.Lock()
	s.options[telegramID] = cp
	s.mu.Unlock()
	return nil
}
