package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
)

// WeatherProvider resolves places and current conditions. The API key is passed per call
// so a credential added at runtime takes effect on the next request.
type WeatherProvider interface {
	GeocodeCity(ctx context.Context, apiKey, city string) (models.Place, error)
	CurrentConditions(ctx context.Context, apiKey string, at models.Coordinates, units models.UnitSystem) (models.WeatherSnapshot, error)
}

var (
	ErrInvalidAPIKey    = errors.New("unauthorized, check your API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrNetwork          = errors.New("network error")
)

// Endpoint labels used in errors and metrics.
const (
	EndpointGeocode = "geocode"
	EndpointWeather = "weather"
)

// ProviderError is a non-success provider response other than 401.
type ProviderError struct {
	Endpoint   string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %d", e.Endpoint, e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrUpstreamFailure) match.
func (e *ProviderError) Unwrap() error {
	return ErrUpstreamFailure
}

const (
	DefaultGeocodeURL = "https://api.openweathermap.org/geo/1.0/direct"
	DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
)

// OpenWeatherClient talks to the OpenWeatherMap geocoding and current-weather APIs.
// It never retries.
type OpenWeatherClient struct {
	geocodeURL *url.URL
	weatherURL *url.URL
	client     *http.Client
}

// NewOpenWeatherClient returns a client for the given endpoints. A zero timeout leaves
// the http.Client default (no deadline) in place.
func NewOpenWeatherClient(geocodeURL, weatherURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if geocodeURL == "" {
		geocodeURL = DefaultGeocodeURL
	}
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}
	g, err := url.Parse(geocodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocode URL: %w", err)
	}
	w, err := url.Parse(weatherURL)
	if err != nil {
		return nil, fmt.Errorf("invalid weather URL: %w", err)
	}
	return &OpenWeatherClient{
		geocodeURL: g,
		weatherURL: w,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type geocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
}

// GeocodeCity returns the single best match for city. Zero matches is ErrLocationNotFound.
func (c *OpenWeatherClient) GeocodeCity(ctx context.Context, apiKey, city string) (models.Place, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")
	params.Set("appid", apiKey)

	var results []geocodeResult
	if err := c.getJSON(ctx, EndpointGeocode, c.geocodeURL, params, &results); err != nil {
		return models.Place{}, err
	}
	if len(results) == 0 {
		return models.Place{}, fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}
	r := results[0]
	return models.Place{
		Name:    r.Name,
		Country: r.Country,
		State:   r.State,
		Lat:     r.Lat,
		Lon:     r.Lon,
	}, nil
}

// CurrentConditions fetches the current observation at a point in the given unit system.
// ObservedAt is left zero; the caller stamps it.
func (c *OpenWeatherClient) CurrentConditions(ctx context.Context, apiKey string, at models.Coordinates, units models.UnitSystem) (models.WeatherSnapshot, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(at.Longitude, 'f', -1, 64))
	params.Set("appid", apiKey)
	params.Set("units", units.Token())

	var apiResp openWeatherResponse
	if err := c.getJSON(ctx, EndpointWeather, c.weatherURL, params, &apiResp); err != nil {
		return models.WeatherSnapshot{}, err
	}
	return mapResponse(apiResp), nil
}

func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint string, base *url.URL, params url.Values, out interface{}) error {
	start := time.Now()

	u := *base
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: %s request: %w", ErrNetwork, endpoint, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(endpoint, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", ErrNetwork, endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

func handleErrorResponse(endpoint string, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w (%s)", ErrInvalidAPIKey, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return nil
}

func mapResponse(apiResp openWeatherResponse) models.WeatherSnapshot {
	snap := models.WeatherSnapshot{
		Name:        apiResp.Name,
		Country:     apiResp.Sys.Country,
		Temperature: apiResp.Main.Temp,
		FeelsLike:   apiResp.Main.FeelsLike,
		Humidity:    apiResp.Main.Humidity,
		WindSpeed:   apiResp.Wind.Speed,
		Cloudiness:  apiResp.Clouds.All,
	}
	if len(apiResp.Weather) > 0 {
		snap.Description = apiResp.Weather[0].Description
		snap.IconCode = apiResp.Weather[0].Icon
	}
	return snap
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusUnauthorized {
		return "unauthorized"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
