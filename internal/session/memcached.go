package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

const keyPrefix = "widget:session:"

// maxRelativeExp is the longest expiration memcached treats as relative (30 days).
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedStore implements Store using memcached, so session state survives a restart
// and is shared between replicas.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(id string) string {
	return keyPrefix + id
}

// Load implements Store.Load.
func (s *MemcachedStore) Load(ctx context.Context, id string) (models.SessionState, bool, error) {
	if ctx.Err() != nil {
		return models.SessionState{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(id))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.SessionState{}, false, nil
		}
		return models.SessionState{}, false, err
	}
	var st models.SessionState
	if err := json.Unmarshal(item.Value, &st); err != nil {
		return models.SessionState{}, false, err
	}
	return st, true, nil
}

// Save implements Store.Save.
func (s *MemcachedStore) Save(ctx context.Context, id string, st models.SessionState, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(id),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// Delete implements Store.Delete. Deleting a missing key is not an error.
func (s *MemcachedStore) Delete(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.client.Delete(s.key(id)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

func expirationSeconds(ttl time.Duration) int32 {
	sec := int32(ttl.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}
