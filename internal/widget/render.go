package widget

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// DefaultIconURLTemplate is the OpenWeatherMap 2x icon URL; %s is the icon code.
const DefaultIconURLTemplate = "https://openweathermap.org/img/wn/%s@2x.png"

const noDescription = "—"

// RenderCard maps a snapshot to display text. Temperatures are rounded half up to whole
// degrees; humidity, wind and cloud cover pass through unchanged.
func RenderCard(snap models.WeatherSnapshot, displayName string, units models.UnitSystem, iconURLTemplate string) Card {
	desc := Capitalize(snap.Description)
	if desc == "" {
		desc = noDescription
	}

	card := Card{
		Location:    displayName,
		Description: desc,
		Temperature: fmt.Sprintf("%d° %s", RoundHalfUp(snap.Temperature), units.TemperatureSuffix()),
		FeelsLike:   fmt.Sprintf("Feels like %d°", RoundHalfUp(snap.FeelsLike)),
		Humidity:    strconv.Itoa(snap.Humidity),
		Wind:        strconv.FormatFloat(snap.WindSpeed, 'f', -1, 64),
		Clouds:      strconv.Itoa(snap.Cloudiness),
		Units:       units,
		ObservedAt:  snap.ObservedAt,
	}
	if snap.IconCode != "" {
		if iconURLTemplate == "" {
			iconURLTemplate = DefaultIconURLTemplate
		}
		card.IconURL = fmt.Sprintf(iconURLTemplate, snap.IconCode)
		card.IconAlt = desc
	}
	return card
}

// RoundHalfUp rounds to the nearest integer with halves going toward +Inf,
// so -2.5 becomes -2 and 2.5 becomes 3.
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Capitalize upper-cases the first rune and leaves the rest untouched.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
