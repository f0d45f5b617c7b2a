package validation

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// ErrInvalidInput is the kind shared by every validation failure.
var ErrInvalidInput = errors.New("invalid input")

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooLong is returned when the city exceeds the maximum length in runes.
	ErrCityTooLong = errors.New("city name too long")
	// ErrCityInvalidChars is returned when the city contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")
	// ErrCoordinatesOutOfRange is returned for latitude outside [-90, 90] or longitude outside [-180, 180].
	ErrCoordinatesOutOfRange = errors.New("coordinates out of range")
)

// DefaultCityMaxLength bounds free-text city queries.
const DefaultCityMaxLength = 100

// ValidateCity trims the input, enforces a maximum length in runes and restricts it to
// letters (Unicode), digits, marks, space and the punctuation found in place names.
// Returns the trimmed string.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'', '’', '(', ')':
		return true
	}
	return false
}

// ValidateCoordinates checks a WGS84 point is finite and in range.
func ValidateCoordinates(c models.Coordinates) error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) || math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return ErrCoordinatesOutOfRange
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return ErrCoordinatesOutOfRange
	}
	return nil
}

// IsValidationError reports whether err is one of this package's errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrCityEmpty) || errors.Is(err, ErrCityTooLong) ||
		errors.Is(err, ErrCityInvalidChars) || errors.Is(err, ErrCoordinatesOutOfRange) ||
		errors.Is(err, ErrInvalidInput)
}
