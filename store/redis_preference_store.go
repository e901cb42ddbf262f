package store

import (
	"context"
	"strconv"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
)

// RedisPreferenceStore keeps per Telegram user options such as the
// interface language.
type RedisPreferenceStore struct {
	client *RedisClient
	ttl    time.Duration
}

var _ types.PreferenceStore = (*RedisPreferenceStore)(nil)

func NewRedisPreferenceStore(redisClient *RedisClient, ttlHours int) *RedisPreferenceStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisPreferenceStore{
		client: redisClient,
		ttl:    ttl,
	}
}

func (s *RedisPreferenceStore) GetUserOptions(ctx context.Context, telegramID int64) (map[string]interface{}, error) {
	key := s.client.generateKey("user_options", strconv.FormatInt(telegramID, 10))
	var options map[string]interface{}
	if err := s.client.Get(ctx, key, &options); err != nil {
		return make(map[string]interface{}), nil
	}
	if options == nil {
		return make(map[string]interface{}), nil
	}
	return options, nil
}

func (s *RedisPreferenceStore) SetUserOptions(ctx context.Context, telegramID int64, options map[string]interface{}) error {
	key := s.client.generateKey("user_options", strconv.FormatInt(telegramID, 10))
	return s.client.Set(ctx, key, options, s.ttl)
}
