//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey         string
	SessionBackend string // "in_memory" or "memcached"
	MemcachedAddr  string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:         apiKey,
		SessionBackend: os.Getenv("INTEGRATION_SESSION_BACKEND"),
		MemcachedAddr:  memcachedAddr,
	}
}

// SetupIntegrationStore returns the configured session store. A memcached store that
// cannot be reached skips the test.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) session.Store {
	t.Helper()
	if cfg.SessionBackend != "memcached" {
		return session.NewInMemoryStore()
	}
	mc := session.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
	if err := mc.Ping(); err != nil {
		_ = mc.Close()
		t.Skipf("memcached not reachable at %s: %v", cfg.MemcachedAddr, err)
	}
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

// SetupIntegrationClient creates an OpenWeatherMap client against the real API.
func SetupIntegrationClient(t *testing.T) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient("", "", 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
