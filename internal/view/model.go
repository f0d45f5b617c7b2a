package view

import (
	"sync"

	"github.com/kjstillabower/weather-lookup-widget/internal/widget"
)

// State is what the widget shows right now: the status line and, when visible, the card.
type State struct {
	Status        string       `json:"status"`
	StatusIsError bool         `json:"statusIsError"`
	CardVisible   bool         `json:"cardVisible"`
	Card          *widget.Card `json:"card,omitempty"`
}

// Model is the server-side UI surface for one session. It implements widget.View and
// is safe for concurrent use by the controller and HTTP handlers.
type Model struct {
	mu      sync.RWMutex
	status  string
	isError bool
	visible bool
	card    widget.Card
}

// NewModel returns an empty Model: no status, card hidden.
func NewModel() *Model {
	return &Model{}
}

// SetStatus implements widget.View.
func (m *Model) SetStatus(text string, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = text
	m.isError = isError
}

// ShowCard implements widget.View.
func (m *Model) ShowCard(card widget.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.card = card
	m.visible = true
}

// HideCard implements widget.View. The last card is kept but not reported.
func (m *Model) HideCard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = false
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := State{
		Status:        m.status,
		StatusIsError: m.isError,
		CardVisible:   m.visible,
	}
	if m.visible {
		card := m.card
		st.Card = &card
	}
	return st
}
