package widget

import (
	"errors"
	"strconv"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/credential"
	"github.com/kjstillabower/weather-lookup-widget/internal/geolocation"
	"github.com/kjstillabower/weather-lookup-widget/internal/validation"
)

// ErrSuperseded is returned when a newer workflow started before this one finished.
// The result was discarded and the view left to the newer workflow.
var ErrSuperseded = errors.New("superseded by a newer lookup")

// Status texts shown in the status line.
const (
	StatusMissingKeyAtStartup = "ERROR: Missing or placeholder API key. Set WEATHER_API_KEY or add weather_api_key to config/secrets.yaml."
	StatusMissingKey          = "No API key. Set WEATHER_API_KEY or add weather_api_key to config/secrets.yaml."
	StatusCityRequired        = "Please enter a city name."
	StatusCityNotFound        = "City not found."
	StatusGeoUnsupported      = "Geolocation not supported by your browser."
	StatusLocating            = "Getting your location…"
	StatusLoading             = "Loading weather…"
	StatusUpdatedPrefix       = "Updated: "

	prefixGeocodeFailed = "Error fetching location data: "
	prefixWeatherFailed = "Failed to fetch weather: "
	prefixGeoFailed     = "Unable to get location. "
)

// stage names the workflow step an error came from.
type stage string

const (
	stageInput       stage = "input"
	stageCredential  stage = "credential"
	stageGeocode     stage = "geocode"
	stageWeather     stage = "weather"
	stageGeolocation stage = "geolocation"
)

// ErrorKind is the user-facing classification of a workflow error.
type ErrorKind string

const (
	KindConfiguration          ErrorKind = "configuration"
	KindValidation             ErrorKind = "validation"
	KindNotFound               ErrorKind = "not_found"
	KindAuth                   ErrorKind = "auth"
	KindProvider               ErrorKind = "provider"
	KindNetwork                ErrorKind = "network"
	KindGeolocationUnsupported ErrorKind = "geolocation_unsupported"
	KindGeolocation            ErrorKind = "geolocation"
	KindUnknown                ErrorKind = "unknown"
)

// Classify maps an error returned by a Controller operation to its ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, credential.ErrNotConfigured):
		return KindConfiguration
	case validation.IsValidationError(err):
		return KindValidation
	case errors.Is(err, client.ErrLocationNotFound):
		return KindNotFound
	case errors.Is(err, client.ErrInvalidAPIKey):
		return KindAuth
	case errors.Is(err, client.ErrUpstreamFailure):
		return KindProvider
	case errors.Is(err, client.ErrNetwork):
		return KindNetwork
	case errors.Is(err, geolocation.ErrUnsupported):
		return KindGeolocationUnsupported
	case errors.Is(err, geolocation.ErrFailed):
		return KindGeolocation
	default:
		return KindUnknown
	}
}

func statusMessage(st stage, err error) string {
	switch Classify(err) {
	case KindConfiguration:
		return StatusMissingKey
	case KindValidation:
		if errors.Is(err, validation.ErrCityEmpty) {
			return StatusCityRequired
		}
		return "Invalid input: " + err.Error() + "."
	case KindNotFound:
		return StatusCityNotFound
	case KindGeolocationUnsupported:
		return StatusGeoUnsupported
	}

	switch st {
	case stageGeocode:
		return prefixGeocodeFailed + describe(err)
	case stageGeolocation:
		return prefixGeoFailed + err.Error()
	default:
		return prefixWeatherFailed + describe(err)
	}
}

func describe(err error) string {
	var pe *client.ProviderError
	switch {
	case errors.Is(err, client.ErrInvalidAPIKey):
		return "Unauthorized, check your API key."
	case errors.As(err, &pe):
		if pe.Endpoint == client.EndpointGeocode {
			return "Geocoding API error: " + strconv.Itoa(pe.StatusCode)
		}
		return "Weather API error: " + strconv.Itoa(pe.StatusCode)
	case errors.Is(err, client.ErrNetwork):
		return "network error, check your connection."
	default:
		if msg := Capitalize(err.Error()); msg != "" {
			return msg
		}
		return "Unknown error"
	}
}
