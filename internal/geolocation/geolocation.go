package geolocation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// ErrUnsupported means the device or browser has no geolocation capability.
var ErrUnsupported = errors.New("geolocation not supported")

// ErrFailed is the geolocation error kind. The specific causes below wrap it.
var ErrFailed = errors.New("geolocation failed")

var (
	ErrDenied      = fmt.Errorf("%w: permission denied", ErrFailed)
	ErrUnavailable = fmt.Errorf("%w: position unavailable", ErrFailed)
	ErrTimeout     = fmt.Errorf("%w: timeout", ErrFailed)
)

// Locator returns the device position.
type Locator interface {
	Locate(ctx context.Context) (models.Coordinates, error)
}

// PositionError carries the platform's own message alongside the cause.
type PositionError struct {
	Cause   error
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *PositionError) Unwrap() error {
	return e.Cause
}

// Browser error codes, named after the GeolocationPositionError constants.
const (
	CodeUnsupported = "unsupported"
	CodeDenied      = "denied"
	CodeUnavailable = "unavailable"
	CodeTimeout     = "timeout"
)

// Report is the outcome of a browser geolocation request, posted back to the server.
// Either Code is set or the coordinates are.
type Report struct {
	Code     string
	Message  string
	Position models.Coordinates
}

// Locate implements Locator by replaying the reported outcome.
func (r Report) Locate(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	switch strings.ToLower(strings.TrimSpace(r.Code)) {
	case "":
		return r.Position, nil
	case CodeUnsupported:
		return models.Coordinates{}, ErrUnsupported
	case CodeDenied:
		return models.Coordinates{}, &PositionError{Cause: ErrDenied, Message: r.Message}
	case CodeUnavailable:
		return models.Coordinates{}, &PositionError{Cause: ErrUnavailable, Message: r.Message}
	case CodeTimeout:
		return models.Coordinates{}, &PositionError{Cause: ErrTimeout, Message: r.Message}
	default:
		return models.Coordinates{}, &PositionError{Cause: ErrFailed, Message: r.Message}
	}
}

// Fixed is a Locator that always returns the same point.
type Fixed models.Coordinates

// Locate implements Locator.
func (f Fixed) Locate(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	return models.Coordinates(f), nil
}
