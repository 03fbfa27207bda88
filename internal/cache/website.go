package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	"go.uber.org/zap"
)

// WebsiteCache maps a domain to the last fetched website record. It is
// advisory: store failures are logged and read as misses.
type WebsiteCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewWebsiteCache wraps store. A ttl <= 0 disables caching.
func NewWebsiteCache(store Store, ttl time.Duration, logger *zap.Logger) *WebsiteCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsiteCache{store: store, ttl: ttl, logger: logger}
}

// Key derives the storage key for domain; empty domains have no key.
func Key(domain string) string {
	normalized := website.NormalizeDomain(domain)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return constants.WebsiteCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// TTL is the configured time-to-live.
func (c *WebsiteCache) TTL() time.Duration {
	return c.ttl
}

// Enabled reports whether records are cached at all.
func (c *WebsiteCache) Enabled() bool {
	return c != nil && c.ttl > 0 && c.store != nil
}

// Get returns the cached record for domain if present and unexpired.
func (c *WebsiteCache) Get(ctx context.Context, domain string) (*website.Record, bool) {
	key := Key(domain)
	if !c.Enabled() || key == "" {
		return nil, false
	}

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Debug("website cache read failed", zap.String("domain", domain), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var rec *website.Record
	if err := json.Unmarshal(data, &rec); err != nil || rec == nil {
		c.logger.Debug("discarding undecodable website cache entry", zap.String("domain", domain), zap.Error(err))
		c.Invalidate(ctx, domain)
		return nil, false
	}
	return rec, true
}

// Put stores rec for ttl; ttl <= 0 is a no-op.
func (c *WebsiteCache) Put(ctx context.Context, domain string, rec *website.Record, ttl time.Duration) {
	key := Key(domain)
	if c == nil || c.store == nil || ttl <= 0 || key == "" || rec == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Debug("website cache encode failed", zap.String("domain", domain), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Debug("website cache write failed", zap.String("domain", domain), zap.Error(err))
	}
}

// Invalidate removes any cached record for domain.
func (c *WebsiteCache) Invalidate(ctx context.Context, domain string) {
	key := Key(domain)
	if c == nil || c.store == nil || key == "" {
		return
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Debug("website cache invalidate failed", zap.String("domain", domain), zap.Error(err))
	}
}

// Purge removes every cached website record and returns the count.
func (c *WebsiteCache) Purge(ctx context.Context) (int, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	return c.store.DeletePrefix(ctx, constants.WebsiteCacheKeyPrefix)
}
