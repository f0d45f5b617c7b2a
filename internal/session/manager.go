package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/view"
	"github.com/kjstillabower/weather-lookup-widget/internal/widget"
)

// ControllerFactory builds the controller for a new session. onChange must be passed as
// widget.Options.OnStateChange so state changes reach the store.
type ControllerFactory func(v widget.View, onChange func(models.SessionState)) *widget.Controller

// Origin tells the caller how a session was obtained.
type Origin int

const (
	// Live sessions were already held in memory.
	Live Origin = iota
	// Restored sessions were rebuilt from state found in the store.
	Restored
	// Created sessions are brand new.
	Created
)

// Session is one browser's widget: a controller and the view it writes to.
type Session struct {
	ID         string
	Controller *widget.Controller
	View       *view.Model

	lastSeen time.Time
	saves    saveLog
}

// saveLog serializes a session's writes to the store and remembers the newest version
// written, so a state that lost the race to the lock is not written over a newer one.
type saveLog struct {
	mu      sync.Mutex
	written uint64
}

// Config holds session lifetimes.
type Config struct {
	// TTL is how long stored state lives after its last change.
	TTL time.Duration
	// IdleTimeout evicts in-memory sessions not used for this long. Their state stays in the store.
	IdleTimeout time.Duration
	// StoreTimeout bounds a background save.
	StoreTimeout time.Duration
}

// Manager maps session ids to live sessions, hydrating them from a Store on first use
// and persisting every state change back to it.
type Manager struct {
	store   Store
	factory ControllerFactory
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(store Store, factory ControllerFactory, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = time.Second
	}
	return &Manager{
		store:    store,
		factory:  factory,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the session for id. An empty or unknown id with no stored state gets a
// new session (and a new id when id is not a valid uuid).
func (m *Manager) Acquire(ctx context.Context, id string) (*Session, Origin, error) {
	if _, err := uuid.Parse(id); err != nil {
		id = ""
	}

	if id != "" {
		m.mu.Lock()
		if s, ok := m.sessions[id]; ok {
			s.lastSeen = m.now()
			m.mu.Unlock()
			return s, Live, nil
		}
		m.mu.Unlock()
	}

	origin := Created
	var stored models.SessionState
	if id != "" {
		st, ok, err := m.store.Load(ctx, id)
		switch {
		case err != nil:
			observability.SessionStoreErrorsTotal.WithLabelValues("load").Inc()
			observability.LoggerFromContext(ctx, m.logger).Warn("session load failed",
				zap.String("session_id", id), zap.Error(err))
		case ok:
			origin = Restored
			stored = st
		}
	} else {
		id = uuid.New().String()
	}

	s := m.build(id)
	if origin == Restored {
		s.Controller.Restore(stored)
		s.saves.written = stored.Version
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request for the same id may have won the race.
	if existing, ok := m.sessions[id]; ok {
		existing.lastSeen = m.now()
		return existing, Live, nil
	}
	s.lastSeen = m.now()
	m.sessions[id] = s
	observability.ActiveSessions.Set(float64(len(m.sessions)))
	return s, origin, nil
}

func (m *Manager) build(id string) *Session {
	v := view.NewModel()
	s := &Session{ID: id, View: v}
	s.Controller = m.factory(v, func(st models.SessionState) {
		m.save(id, &s.saves, st)
	})
	return s
}

func (m *Manager) save(id string, saves *saveLog, st models.SessionState) {
	saves.mu.Lock()
	defer saves.mu.Unlock()
	if st.Version <= saves.written {
		m.logger.Debug("skipping stale session save",
			zap.String("session_id", id), zap.Uint64("version", st.Version), zap.Uint64("written", saves.written))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
	defer cancel()
	if err := m.store.Save(ctx, id, st, m.cfg.TTL); err != nil {
		observability.SessionStoreErrorsTotal.WithLabelValues("save").Inc()
		m.logger.Warn("session save failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	saves.written = st.Version
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle longer than IdleTimeout and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	n := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	observability.ActiveSessions.Set(float64(len(m.sessions)))
	return n
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.cfg.IdleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("evicted idle sessions", zap.Int("evicted", n), zap.Int("active", m.Len()))
			}
		}
	}
}
