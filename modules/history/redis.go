package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "studio:history:"

// RedisStore keeps a session's records in a Redis list that expires with
// the session. Clear deletes the key when the session ends.
type RedisStore struct {
	rdb   redis.Cmdable
	key   string
	limit int
	ttl   time.Duration
}

// NewRedisStore - ttl <= 0 means the key never expires on its own
func NewRedisStore(rdb redis.Cmdable, sessionID string, limit int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb:   rdb,
		key:   keyPrefix + sessionID,
		limit: normalizeLimit(limit),
		ttl:   ttl,
	}
}

func (s *RedisStore) Append(ctx context.Context, rec Record) (int, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}

	var push *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, int64(-s.limit), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append history %s: %w", s.key, err)
	}

	evicted := int(push.Val()) - s.limit
	if evicted < 0 {
		evicted = 0
	}
	if evicted > 0 {
		log.Debug().Str("key", s.key).Int("evicted", evicted).Msg("🗑️ [History] Evicted oldest records")
	}
	return evicted, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	values, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("list history %s: %w", s.key, err)
	}

	records := make([]Record, 0, len(values))
	for _, v := range values {
		rec, err := decodeRecord([]byte(v))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count history %s: %w", s.key, err)
	}
	return int(n), nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear history %s: %w", s.key, err)
	}
	return nil
}
