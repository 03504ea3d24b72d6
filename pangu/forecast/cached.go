package forecast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Cache is the subset of the harness cache port used for lookups.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
}

// CachedProvider memoizes successful lookups of another provider.
// Failures are never cached so a later import becomes visible.
type CachedProvider struct {
	next       StatisticProvider
	cache      Cache
	ttlSeconds int
	logger     zerolog.Logger
}

func NewCachedProvider(next StatisticProvider, cache Cache, ttlSeconds int, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		next:       next,
		cache:      cache,
		ttlSeconds: ttlSeconds,
		logger:     logger.With().Str("component", "forecast_cache").Logger(),
	}
}

// Statistic implements StatisticProvider.
func (p *CachedProvider) Statistic(ctx context.Context, interval string, step int) (Statistic, error) {
	key := fmt.Sprintf("forecast:%s:%d", interval, step)

	if raw, ok := p.cache.Get(ctx, key); ok {
		var s Statistic
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	}

	s, err := p.next.Statistic(ctx, interval, step)
	if err != nil {
		return Statistic{}, err
	}

	raw, err := json.Marshal(s)
	if err == nil {
		err = p.cache.Set(ctx, key, raw, p.ttlSeconds)
	}
	if err != nil {
		// Lookup still succeeds; the next one goes to the provider again.
		p.logger.Debug().Err(err).Str("key", key).Msg("Failed to cache forecast statistic")
	}
	return s, nil
}
