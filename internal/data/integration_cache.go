package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/publora/publora/internal/core"
	"github.com/publora/publora/internal/domain/model"
)

const integrationCacheKeyPrefix = "publora:integrations:"

// cachedIntegration is the cache wire form. The model keeps credentials out
// of its JSON encoding, so the cache carries them explicitly.
type cachedIntegration struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Platform    string            `json:"platform"`
	IsActive    bool              `json:"is_active"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
}

func toCacheForm(in map[string]model.Integration) map[string]cachedIntegration {
	out := make(map[string]cachedIntegration, len(in))
	for k, v := range in {
		out[k] = cachedIntegration{
			ID:          v.ID,
			UserID:      v.UserID,
			Platform:    v.Platform,
			IsActive:    v.IsActive,
			Credentials: v.Credentials,
			Config:      v.Config,
		}
	}
	return out
}

func fromCacheForm(in map[string]cachedIntegration) map[string]model.Integration {
	out := make(map[string]model.Integration, len(in))
	for k, v := range in {
		out[k] = model.Integration{
			ID:          v.ID,
			UserID:      v.UserID,
			Platform:    v.Platform,
			IsActive:    v.IsActive,
			Credentials: v.Credentials,
			Config:      v.Config,
		}
	}
	return out
}

// IntegrationCache is a read-through Redis cache in front of an
// IntegrationSource. Staleness is bounded by the TTL; lookups stay read-only
// so dispatch semantics are unchanged when the cache is in play.
type IntegrationCache struct {
	source core.IntegrationSource
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// IntegrationCacheOptions configures an IntegrationCache.
type IntegrationCacheOptions struct {
	Source core.IntegrationSource
	Client redis.UniversalClient
	TTL    time.Duration
	Logger *slog.Logger
}

// NewIntegrationCache wraps source with a Redis cache. TTL defaults to 60s.
func NewIntegrationCache(opts IntegrationCacheOptions) (*IntegrationCache, error) {
	if opts.Source == nil {
		return nil, errors.New("integration source is required")
	}
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrationCache{
		source: opts.Source,
		client: opts.Client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// ActiveForUser serves from cache when possible and falls through to the
// underlying source on miss or on any cache error. Cache failures never fail
// the lookup.
func (c *IntegrationCache) ActiveForUser(ctx context.Context, userID string) (map[string]model.Integration, error) {
	key := integrationCacheKeyPrefix + userID

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var entry map[string]cachedIntegration
		if decodeErr := json.Unmarshal(cached, &entry); decodeErr == nil {
			return fromCacheForm(entry), nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable integration cache entry", "user_id", userID)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "integration cache read failed", "user_id", userID, "error", err)
	}

	out, err := c.source.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if encoded, encodeErr := json.Marshal(toCacheForm(out)); encodeErr == nil {
		if setErr := c.client.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "integration cache write failed", "user_id", userID, "error", setErr)
		}
	}
	return out, nil
}

// Invalidate drops the cached entry for a user, for callers that know
// integrations changed ahead of the TTL.
func (c *IntegrationCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, integrationCacheKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("invalidate integration cache: %w", err)
	}
	return nil
}
