package history

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"art-studio-server/modules/common/config"
)

// Factory builds the store for a new session.
type Factory func(sessionID string) Store

// NewFactory picks the backend named by HISTORY_BACKEND. rdb is only
// required for the redis backend.
func NewFactory(cfg *config.Config, rdb redis.Cmdable) (Factory, error) {
	limit := cfg.HistoryLimit
	switch cfg.HistoryBackend {
	case "", config.HistoryMemory:
		return func(string) Store { return NewMemoryStore(limit) }, nil
	case config.HistoryRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis history backend needs a redis client")
		}
		ttl := cfg.SessionMaxAge
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return func(sessionID string) Store {
			return NewRedisStore(rdb, sessionID, limit, ttl)
		}, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}
