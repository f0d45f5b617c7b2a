package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-lookup-widget/internal/credential"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/widget"
)

type stubProvider struct{}

func (stubProvider) GeocodeCity(ctx context.Context, apiKey, city string) (models.Place, error) {
	return models.Place{Name: city, Country: "US", Lat: 47.6062, Lon: -122.3321}, nil
}

func (stubProvider) CurrentConditions(ctx context.Context, apiKey string, at models.Coordinates, units models.UnitSystem) (models.WeatherSnapshot, error) {
	return models.WeatherSnapshot{Name: "Seattle", Country: "US", Description: "mist", Temperature: 11}, nil
}

func testFactory(v widget.View, onChange func(models.SessionState)) *widget.Controller {
	return widget.NewController(stubProvider{}, credential.StaticSource("k-123"), v, zap.NewNop(), widget.Options{
		OnStateChange: onChange,
	})
}

// failingStore fails every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Load(ctx context.Context, id string) (models.SessionState, bool, error) {
	return models.SessionState{}, false, errStoreDown
}

func (failingStore) Save(ctx context.Context, id string, st models.SessionState, ttl time.Duration) error {
	return errStoreDown
}

func (failingStore) Delete(ctx context.Context, id string) error { return errStoreDown }

func TestManager_AcquireCreatesAndReuses(t *testing.T) {
	m := NewManager(NewInMemoryStore(), testFactory, Config{}, nil)
	ctx := context.Background()

	s, origin, err := m.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if origin != Created {
		t.Errorf("origin = %v, want Created", origin)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session id %q is not a uuid: %v", s.ID, err)
	}

	again, origin, err := m.Acquire(ctx, s.ID)
	if err != nil {
		t.Fatalf("Acquire(id) error = %v", err)
	}
	if origin != Live || again != s {
		t.Errorf("Acquire(id) origin=%v same=%v, want Live and same session", origin, again == s)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManager_InvalidIDGetsNewSession(t *testing.T) {
	m := NewManager(NewInMemoryStore(), testFactory, Config{}, nil)
	s, origin, err := m.Acquire(context.Background(), "not-a-uuid")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if origin != Created || s.ID == "not-a-uuid" {
		t.Errorf("origin=%v id=%q, want Created with a fresh id", origin, s.ID)
	}
}

// TestManager_PersistsAndRestores verifies that state changes reach the store and a
// second manager sharing the store restores them.
func TestManager_PersistsAndRestores(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := NewManager(store, testFactory, Config{TTL: time.Hour}, nil)
	s, _, err := first.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := s.Controller.ResolveByCityName(ctx, "Seattle"); err != nil {
		t.Fatalf("ResolveByCityName() error = %v", err)
	}
	if err := s.Controller.OnUnitToggle(ctx, true); err != nil {
		t.Fatalf("OnUnitToggle() error = %v", err)
	}

	stored, ok, err := store.Load(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("store.Load() = ok %v, err %v", ok, err)
	}
	if stored.Units != models.Imperial || stored.Location == nil || stored.Location.SourceCityQuery != "Seattle" {
		t.Errorf("stored state = %+v", stored)
	}

	second := NewManager(store, testFactory, Config{TTL: time.Hour}, nil)
	restored, origin, err := second.Acquire(ctx, s.ID)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if origin != Restored {
		t.Errorf("origin = %v, want Restored", origin)
	}
	st := restored.Controller.State()
	if st.Units != models.Imperial || st.Location == nil || st.Location.DisplayName != "Seattle, US" {
		t.Errorf("restored state = %+v", st)
	}
	if restored.View.Snapshot().CardVisible {
		t.Error("restore should not touch the view")
	}
}

func TestManager_StoreFailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewManager(failingStore{}, testFactory, Config{}, zap.New(core))
	ctx := context.Background()

	id := uuid.New().String()
	s, origin, err := m.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if origin != Created || s.ID != id {
		t.Errorf("origin=%v id=%q, want Created keeping the requested id", origin, s.ID)
	}
	if logs.FilterMessage("session load failed").Len() != 1 {
		t.Error("missing session load failed log")
	}

	if err := s.Controller.ResolveByCityName(ctx, "Seattle"); err != nil {
		t.Fatalf("ResolveByCityName() error = %v", err)
	}
	if logs.FilterMessage("session save failed").Len() == 0 {
		t.Error("missing session save failed log")
	}
}

func TestManager_Sweep(t *testing.T) {
	m := NewManager(NewInMemoryStore(), testFactory, Config{IdleTimeout: time.Minute}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	old, _, _ := m.Acquire(ctx, "")
	now = now.Add(45 * time.Second)
	fresh, _, _ := m.Acquire(ctx, "")
	now = now.Add(30 * time.Second)

	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if s, origin, _ := m.Acquire(ctx, fresh.ID); origin != Live || s != fresh {
		t.Error("fresh session should still be live")
	}
	if _, origin, _ := m.Acquire(ctx, old.ID); origin == Live {
		t.Error("evicted session should not be live")
	}
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := NewManager(NewInMemoryStore(), testFactory, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

// gatedStore blocks the first Save until release is closed.
type gatedStore struct {
	*InMemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		InMemoryStore: NewInMemoryStore(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, id string, st models.SessionState, ttl time.Duration) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.InMemoryStore.Save(ctx, id, st, ttl)
}

// TestManager_OverlappingSavesKeepNewestState verifies that when an older state's save is
// slow, the store still ends up with the state the controller holds.
func TestManager_OverlappingSavesKeepNewestState(t *testing.T) {
	store := newGatedStore()
	m := NewManager(store, testFactory, Config{StoreTimeout: 5 * time.Second}, nil)
	ctx := context.Background()
	s, _, err := m.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.Controller.OnUnitToggle(ctx, true)
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		_ = s.Controller.OnUnitToggle(ctx, false)
	}()
	// Let the second toggle change controller state and queue its save.
	deadline := time.Now().Add(2 * time.Second)
	for s.Controller.State().Units != models.Metric || s.Controller.State().Version < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second toggle did not apply")
		}
		time.Sleep(time.Millisecond)
	}
	close(store.release)
	wg.Wait()

	live := s.Controller.State()
	stored, ok, err := store.Load(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("store.Load() = ok %v, err %v", ok, err)
	}
	if stored.Units != live.Units || stored.Version != live.Version {
		t.Errorf("stored units=%v version=%d, live units=%v version=%d", stored.Units, stored.Version, live.Units, live.Version)
	}
}

func TestManager_SkipsOlderVersion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store := NewInMemoryStore()
	m := NewManager(store, testFactory, Config{}, zap.New(core))
	ctx := context.Background()
	id := uuid.New().String()
	saves := &saveLog{}

	m.save(id, saves, models.SessionState{Units: models.Metric, Version: 2})
	m.save(id, saves, models.SessionState{Units: models.Imperial, Version: 1})

	stored, _, _ := store.Load(ctx, id)
	if stored.Units != models.Metric || stored.Version != 2 {
		t.Errorf("stored = %+v, want metric at version 2", stored)
	}
	if logs.FilterMessage("skipping stale session save").Len() != 1 {
		t.Error("missing stale save log")
	}
}

// TestManager_RestoredVersionContinues verifies a restored session's next change is
// written over the state it was restored from.
func TestManager_RestoredVersionContinues(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	id := uuid.New().String()
	if err := store.Save(ctx, id, models.SessionState{Units: models.Imperial, Version: 7}, time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	m := NewManager(store, testFactory, Config{}, nil)
	s, origin, err := m.Acquire(ctx, id)
	if err != nil || origin != Restored {
		t.Fatalf("Acquire() origin=%v err=%v, want Restored", origin, err)
	}
	if err := s.Controller.OnUnitToggle(ctx, false); err != nil {
		t.Fatalf("OnUnitToggle() error = %v", err)
	}
	stored, _, _ := store.Load(ctx, id)
	if stored.Units != models.Metric || stored.Version != 8 {
		t.Errorf("stored = %+v, want metric at version 8", stored)
	}
}
