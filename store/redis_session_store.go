package store

import (
	"context"
	"errors"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/google/uuid"
)

// RedisSessionStore maps short-lived tokens to account ids. namespace keeps
// login sessions and one-time link codes apart.
type RedisSessionStore struct {
	client    *RedisClient
	namespace string
	ttl       time.Duration
}

var _ types.SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(redisClient *RedisClient, namespace string, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if namespace == "" {
		namespace = "session"
	}
	return &RedisSessionStore{
		client:    redisClient,
		namespace: namespace,
		ttl:       ttl,
	}
}

func (s *RedisSessionStore) CreateSession(ctx context.Context, accountID string) (*types.Session, error) {
	now := time.Now().UTC()
	session := &types.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.client.Set(ctx, s.client.generateKey(s.namespace, session.ID), session, s.ttl); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	if err := s.client.Get(ctx, s.client.generateKey(s.namespace, sessionID), &session); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, types.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.client.generateKey(s.namespace, sessionID))
}

func (s *RedisSessionStore) TakeSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	if err := s.client.GetDel(ctx, s.client.generateKey(s.namespace, sessionID), &session); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, types.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}
