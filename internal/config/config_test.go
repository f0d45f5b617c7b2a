package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// chdirTemp writes config/dev.yaml into a temp dir and makes it the working directory.
func chdirTemp(t *testing.T, content string) string {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, content)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func clearOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "SERVER_PORT", "SESSION_BACKEND", "MEMCACHED_ADDRS", "WIDGET_DEFAULT_CITY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// TestLoad_NoAPIKeyRequired verifies the service starts without any credential configured.
func TestLoad_NoAPIKeyRequired(t *testing.T) {
	clearOverrides(t)
	t.Setenv("WEATHER_API_KEY", "")
	chdirTemp(t, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !filepath.IsAbs(cfg.DotenvPath) || filepath.Base(cfg.DotenvPath) != ".env" {
		t.Errorf("DotenvPath = %q, want absolute .env path", cfg.DotenvPath)
	}
	if !strings.HasSuffix(cfg.SecretsPath, filepath.Join("config", "secrets.yaml")) {
		t.Errorf("SecretsPath = %q", cfg.SecretsPath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "9090"},
		{"GeocodeURL", cfg.GeocodeURL, "https://api.openweathermap.org/geo/1.0/direct"},
		{"WeatherURL", cfg.WeatherURL, "https://api.openweathermap.org/data/2.5/weather"},
		{"IconURLTemplate", cfg.IconURLTemplate, "https://openweathermap.org/img/wn/%s@2x.png"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, time.Duration(0)},
		{"DefaultCity", cfg.DefaultCity, "New Delhi"},
		{"DefaultUnits", cfg.DefaultUnits, models.Metric},
		{"TimeFormat", cfg.TimeFormat, "15:04:05"},
		{"CityMaxLength", cfg.CityMaxLength, 100},
		{"SessionBackend", cfg.SessionBackend, BackendInMemory},
		{"SessionTTL", cfg.SessionTTL, 24 * time.Hour},
		{"SessionIdleTimeout", cfg.SessionIdleTimeout, 30 * time.Minute},
		{"SessionCookieName", cfg.SessionCookieName, "widget_session"},
		{"MemcachedAddrs", cfg.MemcachedAddrs, "localhost:11211"},
		{"MemcachedTimeout", cfg.MemcachedTimeout, 500 * time.Millisecond},
		{"MemcachedMaxIdleConns", cfg.MemcachedMaxIdleConns, 2},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
		{"InFlightTimeout", cfg.InFlightTimeout, 10 * time.Second},
		{"InFlightCheckInterval", cfg.InFlightCheckInterval, 100 * time.Millisecond},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.TimeZone != time.Local {
		t.Errorf("TimeZone = %v, want Local", cfg.TimeZone)
	}
}

func TestLoad_FileValues(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, minimalEnvYAML+`
widget:
  default_city: "Lisbon"
  default_units: "imperial"
  time_format: "15:04"
  time_zone: "UTC"
  city_max_length: 60
metrics:
  tracked_cities: ["Lisbon", "Porto"]
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultCity != "Lisbon" || cfg.DefaultUnits != models.Imperial || cfg.TimeFormat != "15:04" || cfg.CityMaxLength != 60 {
		t.Errorf("widget = %q %v %q %d", cfg.DefaultCity, cfg.DefaultUnits, cfg.TimeFormat, cfg.CityMaxLength)
	}
	if cfg.TimeZone.String() != "UTC" {
		t.Errorf("TimeZone = %v, want UTC", cfg.TimeZone)
	}
	if cfg.WeatherAPITimeout != 3*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 3s", cfg.WeatherAPITimeout)
	}
	if len(cfg.TrackedCities) != 2 || cfg.TrackedCities[0] != "Lisbon" {
		t.Errorf("TrackedCities = %v", cfg.TrackedCities)
	}
}

func TestLoad_EmptyDefaultCityDisablesInitialLookup(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, "widget:\n  default_city: \"\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultCity != "" {
		t.Errorf("DefaultCity = %q, want empty", cfg.DefaultCity)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, minimalEnvYAML)
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("SESSION_BACKEND", " Memcached ")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("WIDGET_DEFAULT_CITY", "Nairobi")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want 7000", cfg.ServerPort)
	}
	if cfg.SessionBackend != BackendMemcached {
		t.Errorf("SessionBackend = %q, want memcached", cfg.SessionBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.DefaultCity != "Nairobi" {
		t.Errorf("DefaultCity = %q, want Nairobi", cfg.DefaultCity)
	}
}

func TestLoad_EnvNameSelectsFile(t *testing.T) {
	clearOverrides(t)
	dir := chdirTemp(t, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, "config", "prod.yaml"), []byte("server:\n  port: \"80\"\n"), 0644); err != nil {
		t.Fatalf("write prod.yaml: %v", err)
	}
	t.Setenv("ENV_NAME", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "80" {
		t.Errorf("ServerPort = %q, want 80", cfg.ServerPort)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, minimalEnvYAML)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, `
weather_api:
  timeout: "not-a-duration"
session:
  ttl: "forever"
  idle_timeout: "-5m"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 0 {
		t.Errorf("WeatherAPITimeout = %v, want 0", cfg.WeatherAPITimeout)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want default 24h", cfg.SessionTTL)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want default 30m", cfg.SessionIdleTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative timeout", "weather_api:\n  timeout: \"-1s\"\n", "weather_api.timeout"},
		{"icon template", "weather_api:\n  icon_url: \"https://icons.example/icon.png\"\n", "icon_url"},
		{"backend", "session:\n  backend: \"redis\"\n", "session.backend"},
		{"units", "widget:\n  default_units: \"kelvin\"\n", "default_units"},
		{"time zone", "widget:\n  time_zone: \"Mars/Olympus\"\n", "time_zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOverrides(t)
			chdirTemp(t, tt.yaml)
			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, cfg = %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, "server: [unclosed\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_InFlightTimeoutCappedByShutdown(t *testing.T) {
	clearOverrides(t)
	chdirTemp(t, "shutdown:\n  timeout: \"5s\"\n  in_flight_timeout: \"20s\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InFlightTimeout != 5*time.Second {
		t.Errorf("InFlightTimeout = %v, want 5s", cfg.InFlightTimeout)
	}
}

// TestLoad_RepoDevConfig verifies the checked-in config/dev.yaml loads.
func TestLoad_RepoDevConfig(t *testing.T) {
	clearOverrides(t)
	origWd, _ := os.Getwd()
	if err := os.Chdir(findProjectRoot(t)); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionCookieName != "widget_session" {
		t.Errorf("SessionCookieName = %q", cfg.SessionCookieName)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  timeout: "3s"
session:
  backend: "in_memory"
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
