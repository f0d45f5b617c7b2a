package widget

import (
	"time"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// View is the UI surface a Controller writes to. Calls for one Controller are serialized.
type View interface {
	SetStatus(text string, isError bool)
	ShowCard(card Card)
	HideCard()
}

// Card is a rendered WeatherSnapshot: every field is display-ready text.
type Card struct {
	Location    string            `json:"location"`
	Description string            `json:"description"`
	Temperature string            `json:"temperature"`
	FeelsLike   string            `json:"feelsLike"`
	Humidity    string            `json:"humidity"`
	Wind        string            `json:"wind"`
	Clouds      string            `json:"clouds"`
	IconURL     string            `json:"iconUrl,omitempty"`
	IconAlt     string            `json:"iconAlt,omitempty"`
	Units       models.UnitSystem `json:"units"`
	ObservedAt  time.Time         `json:"observedAt"`
}
