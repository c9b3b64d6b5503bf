package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"appointly/backend/internal/domain"
)

const (
	cacheKeyPrefix  = "identity:user:"
	defaultCacheTTL = 5 * time.Minute
)

type cachedUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// CachedResolver puts a redis read-through cache in front of another
// Resolver. Redis failures are logged and the lookup falls through to next.
// Unknown users are not cached.
type CachedResolver struct {
	next   Resolver
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{next: next, rdb: rdb, ttl: ttl, logger: logger.With("component", "identity_cache")}
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

func (c *CachedResolver) ResolveUser(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, ErrUnknownUser
	}

	raw, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if jerr := json.Unmarshal(raw, &cu); jerr == nil && cu.ID == id {
			return domain.User{ID: cu.ID, Role: domain.Role(cu.Role)}, nil
		}
		c.logger.Warn("discarding malformed cache entry", "user_id", id)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("identity cache read failed", "user_id", id, "err", err)
	}

	u, err := c.next.ResolveUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	payload, err := json.Marshal(cachedUser{ID: u.ID, Role: string(u.Role)})
	if err == nil {
		err = c.rdb.Set(ctx, cacheKey(id), payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("identity cache write failed", "user_id", id, "err", err)
	}
	return u, nil
}
