package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/nostradamus/internal/models"
)

const (
	keyPrefix = "nostradamus:"
	// memcached reads relative expirations above 30 days as unix timestamps.
	maxRelativeExp = 30 * 24 * 60 * 60
	defaultExp     = 60 * 60
)

// MemcachedConfig configures a MemcachedCache. Zero Timeout and MaxIdleConns keep
// the client defaults.
type MemcachedConfig struct {
	// Addrs is a comma-separated server list, e.g. "host1:11211,host2:11211".
	Addrs        string
	Timeout      time.Duration
	MaxIdleConns int
	// StaleFor keeps entries past their TTL so they can back a failed refresh.
	StaleFor time.Duration
}

// MemcachedCache implements Cache on memcached. Items hold the JSON-encoded Entry
// so freshness survives the round trip.
type MemcachedCache struct {
	client   *memcache.Client
	staleFor time.Duration
}

// NewMemcachedCache resolves the server list and creates the client. It does not
// dial; use Ping to check reachability.
func NewMemcachedCache(cfg MemcachedConfig) (*MemcachedCache, error) {
	servers := strings.FieldsFunc(cfg.Addrs, func(r rune) bool { return r == ',' || r == ' ' })
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	var selector memcache.ServerList
	if err := selector.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("memcached servers %q: %w", cfg.Addrs, err)
	}
	client := memcache.NewFromSelector(&selector)
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	if cfg.MaxIdleConns > 0 {
		client.MaxIdleConns = cfg.MaxIdleConns
	}
	return &MemcachedCache{client: client, staleFor: cfg.StaleFor}, nil
}

// Get returns (entry, true, nil) on hit and (_, false, nil) on miss. An undecodable
// item is dropped and reported as a miss with an error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	item, err := c.client.Get(keyPrefix + key)
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return Entry{}, false, nil
	case err != nil:
		return Entry{}, false, fmt.Errorf("memcached get %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		_ = c.client.Delete(item.Key)
		return Entry{}, false, fmt.Errorf("memcached decode %s: %w", key, err)
	}
	return entry, true, nil
}

// Set stores value as fresh for ttl; memcached keeps it for ttl plus StaleFor.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherPayload, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	raw, err := json.Marshal(Entry{Value: value, StoredAt: now, FreshUntil: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("memcached encode %s: %w", key, err)
	}
	item := &memcache.Item{Key: keyPrefix + key, Value: raw, Expiration: expirationSeconds(ttl + c.staleFor)}
	if err := c.client.Set(item); err != nil {
		return fmt.Errorf("memcached set %s: %w", key, err)
	}
	return nil
}

// expirationSeconds converts a retention to memcached's relative expiration,
// defaulting to an hour and capping at 30 days.
func expirationSeconds(d time.Duration) int32 {
	switch sec := int64(d / time.Second); {
	case sec <= 0:
		return defaultExp
	case sec > maxRelativeExp:
		return maxRelativeExp
	default:
		return int32(sec)
	}
}

// Ping checks that every server answers. Used by the health check.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
