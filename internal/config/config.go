package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// Session backends.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
)

// Config holds service configuration loaded from YAML and env.
// The weather API key is deliberately absent: it is resolved per lookup by
// internal/credential so a key added after startup is picked up.
type Config struct {
	ServerPort string

	GeocodeURL      string
	WeatherURL      string
	IconURLTemplate string
	// WeatherAPITimeout of zero means no client timeout.
	WeatherAPITimeout time.Duration

	DefaultCity   string
	DefaultUnits  models.UnitSystem
	TimeFormat    string
	TimeZone      *time.Location
	CityMaxLength int

	SessionBackend     string // "in_memory" or "memcached"
	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration
	SessionCookieName  string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DotenvPath  string
	SecretsPath string

	ShutdownTimeout       time.Duration
	InFlightTimeout       time.Duration
	InFlightCheckInterval time.Duration

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		GeocodeURL string `yaml:"geocode_url"`
		WeatherURL string `yaml:"weather_url"`
		IconURL    string `yaml:"icon_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Widget struct {
		DefaultCity   *string `yaml:"default_city"`
		DefaultUnits  string  `yaml:"default_units"`
		TimeFormat    string  `yaml:"time_format"`
		TimeZone      string  `yaml:"time_zone"`
		CityMaxLength int     `yaml:"city_max_length"`
	} `yaml:"widget"`

	Session struct {
		Backend     string `yaml:"backend"`
		TTL         string `yaml:"ttl"`
		IdleTimeout string `yaml:"idle_timeout"`
		CookieName  string `yaml:"cookie_name"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"session"`

	Credentials struct {
		DotenvPath  string `yaml:"dotenv_path"`
		SecretsPath string `yaml:"secrets_path"`
	} `yaml:"credentials"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev). Call from project root.
// Env overrides: SERVER_PORT, SESSION_BACKEND, MEMCACHED_ADDRS, WIDGET_DEFAULT_CITY.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")

	cfg.GeocodeURL = firstNonEmpty(fc.WeatherAPI.GeocodeURL, "https://api.openweathermap.org/geo/1.0/direct")
	cfg.WeatherURL = firstNonEmpty(fc.WeatherAPI.WeatherURL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.IconURLTemplate = firstNonEmpty(fc.WeatherAPI.IconURL, "https://openweathermap.org/img/wn/%s@2x.png")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 0)

	// An explicit empty default_city disables the initial lookup.
	cfg.DefaultCity = "New Delhi"
	if fc.Widget.DefaultCity != nil {
		cfg.DefaultCity = strings.TrimSpace(*fc.Widget.DefaultCity)
	}
	if v, ok := os.LookupEnv("WIDGET_DEFAULT_CITY"); ok {
		cfg.DefaultCity = strings.TrimSpace(v)
	}
	units, err := models.ParseUnitSystem(fc.Widget.DefaultUnits)
	if err != nil {
		return nil, fmt.Errorf("widget.default_units: %w", err)
	}
	cfg.DefaultUnits = units
	cfg.TimeFormat = firstNonEmpty(fc.Widget.TimeFormat, "15:04:05")
	cfg.TimeZone = time.Local
	if tz := strings.TrimSpace(fc.Widget.TimeZone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("widget.time_zone: %w", err)
		}
		cfg.TimeZone = loc
	}
	cfg.CityMaxLength = fc.Widget.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}

	cfg.SessionBackend = strings.TrimSpace(strings.ToLower(os.Getenv("SESSION_BACKEND")))
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = strings.TrimSpace(strings.ToLower(fc.Session.Backend))
	}
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = BackendInMemory
	}
	cfg.SessionTTL = parseDuration(fc.Session.TTL, 24*time.Hour)
	cfg.SessionIdleTimeout = parseDuration(fc.Session.IdleTimeout, 30*time.Minute)
	cfg.SessionCookieName = firstNonEmpty(fc.Session.CookieName, "widget_session")
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Session.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Session.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Session.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.DotenvPath = resolvePath(cwd, firstNonEmpty(fc.Credentials.DotenvPath, ".env"))
	cfg.SecretsPath = resolvePath(cwd, firstNonEmpty(fc.Credentials.SecretsPath, filepath.Join("config", "secrets.yaml")))

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout < 0 {
		return fmt.Errorf("weather_api.timeout must not be negative")
	}
	if strings.Count(cfg.IconURLTemplate, "%s") != 1 {
		return fmt.Errorf("weather_api.icon_url must contain exactly one %%s, got %q", cfg.IconURLTemplate)
	}
	switch cfg.SessionBackend {
	case BackendInMemory, BackendMemcached:
		// valid
	default:
		return fmt.Errorf("session.backend must be in_memory or memcached, got %q", cfg.SessionBackend)
	}
	if cfg.InFlightTimeout > cfg.ShutdownTimeout {
		cfg.InFlightTimeout = cfg.ShutdownTimeout
	}
	return nil
}
