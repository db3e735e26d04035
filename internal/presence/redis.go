package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "hubtalk:presence:"

// RedisStore keeps one hash per conversation: field = user id, value = JSON entry.
// It lets several server processes share typing state.
type RedisStore struct {
	rdb    *redis.Client
	window time.Duration
	log    *zap.Logger
}

type redisEntry struct {
	UserName    string              `json:"n"`
	State       model.PresenceState `json:"s"`
	LastUpdated int64               `json:"t"` // unix millis
}

func NewRedisStore(rdb *redis.Client, window time.Duration, log *zap.Logger) *RedisStore {
	if window <= 0 {
		window = DefaultStaleAfter
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, window: window, log: log}
}

func conversationKey(conversationID uuid.UUID) string {
	return keyPrefix + conversationID.String()
}

func (s *RedisStore) Set(ctx context.Context, entry model.PresenceEntry) error {
	data, err := json.Marshal(redisEntry{
		UserName:    entry.UserName,
		State:       entry.State,
		LastUpdated: entry.LastUpdated.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, conversationKey(entry.ConversationID), entry.UserID.String(), data).Err(); err != nil {
		return fmt.Errorf("presence hset: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context, conversationID, excludeUserID uuid.UUID, now time.Time) ([]model.PresenceEntry, error) {
	raw, err := s.rdb.HGetAll(ctx, conversationKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence hgetall: %w", err)
	}

	entries := make([]model.PresenceEntry, 0, len(raw))
	for field, value := range raw {
		userID, err := uuid.Parse(field)
		if err != nil {
			s.log.Warn("skipping malformed presence field", zap.String("field", field))
			continue
		}
		var re redisEntry
		if err := json.Unmarshal([]byte(value), &re); err != nil {
			s.log.Warn("skipping malformed presence entry", zap.String("user_id", field), zap.Error(err))
			continue
		}
		entries = append(entries, model.PresenceEntry{
			UserID:         userID,
			UserName:       re.UserName,
			ConversationID: conversationID,
			State:          re.State,
			LastUpdated:    time.UnixMilli(re.LastUpdated).UTC(),
		})
	}
	return filterActive(entries, excludeUserID, now, s.window), nil
}
