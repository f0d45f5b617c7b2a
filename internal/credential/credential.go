package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable holding the OpenWeatherMap API key.
const EnvVar = "WEATHER_API_KEY"

// ErrNotConfigured is the configuration error kind: no usable API key.
var ErrNotConfigured = errors.New("weather API key not configured")

// ErrMissing is returned when no source provides a key.
var ErrMissing = fmt.Errorf("%w: missing", ErrNotConfigured)

// ErrPlaceholder is returned when the key is a template value such as YOUR_API_KEY.
var ErrPlaceholder = fmt.Errorf("%w: placeholder value", ErrNotConfigured)

// Origin names where a key was found.
type Origin string

const (
	OriginNone    Origin = ""
	OriginEnv     Origin = "env"
	OriginDotenv  Origin = "dotenv"
	OriginSecrets Origin = "secrets_file"
	OriginStatic  Origin = "static"
)

// Result is the typed outcome of a credential check. Key is set only when Err is nil.
type Result struct {
	Key    string
	Origin Origin
	Err    error
}

// OK reports whether a usable key was found.
func (r Result) OK() bool {
	return r.Err == nil && r.Key != ""
}

// Source resolves the API key. Implementations are consulted once per workflow, so a key
// added after startup is picked up without a restart.
type Source interface {
	Resolve() Result
}

// LiveSource reads the key on every call: environment first, then a .env file, then the
// YAML secrets file. The first non-empty value wins and is checked for placeholders.
type LiveSource struct {
	dotenvPath  string
	secretsPath string
}

// NewLiveSource returns a LiveSource. Empty paths disable the corresponding file lookup.
func NewLiveSource(dotenvPath, secretsPath string) *LiveSource {
	return &LiveSource{dotenvPath: dotenvPath, secretsPath: secretsPath}
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Resolve implements Source.
func (s *LiveSource) Resolve() Result {
	if key := strings.TrimSpace(os.Getenv(EnvVar)); key != "" {
		return check(key, OriginEnv)
	}

	if s.dotenvPath != "" {
		vals, err := godotenv.Read(s.dotenvPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Result{Err: fmt.Errorf("%w: read %s: %v", ErrNotConfigured, s.dotenvPath, err)}
		}
		if key := strings.TrimSpace(vals[EnvVar]); key != "" {
			return check(key, OriginDotenv)
		}
	}

	if s.secretsPath != "" {
		data, err := os.ReadFile(s.secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Result{Err: fmt.Errorf("%w: read secrets file: %v", ErrNotConfigured, err)}
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(data, &sec); err != nil {
				return Result{Err: fmt.Errorf("%w: parse secrets file: %v", ErrNotConfigured, err)}
			}
			if key := strings.TrimSpace(sec.WeatherAPIKey); key != "" {
				return check(key, OriginSecrets)
			}
		}
	}

	return Result{Err: ErrMissing}
}

// StaticSource always yields the same key. Used by tests and embedders.
type StaticSource string

// Resolve implements Source.
func (s StaticSource) Resolve() Result {
	key := strings.TrimSpace(string(s))
	if key == "" {
		return Result{Err: ErrMissing}
	}
	return check(key, OriginStatic)
}

func check(key string, origin Origin) Result {
	if IsPlaceholder(key) {
		return Result{Origin: origin, Err: ErrPlaceholder}
	}
	return Result{Key: key, Origin: origin}
}

var placeholders = map[string]struct{}{
	"CHANGEME":   {},
	"CHANGE_ME":  {},
	"REPLACE_ME": {},
	"API_KEY":    {},
	"<API_KEY>":  {},
}

// IsPlaceholder reports whether key is a template value rather than a real key.
// Matching ignores case and surrounding space: any key containing YOUR_ or YOUR-, or
// equal to one of the known template values (CHANGEME, API_KEY, ...), is a placeholder.
func IsPlaceholder(key string) bool {
	upper := strings.ToUpper(strings.TrimSpace(key))
	if strings.Contains(upper, "YOUR_") || strings.Contains(upper, "YOUR-") {
		return true
	}
	_, ok := placeholders[upper]
	return ok
}
