package widget

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/credential"
	"github.com/kjstillabower/weather-lookup-widget/internal/geolocation"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/validation"
)

// Workflow kinds, used as the widgetWorkflowsTotal "kind" label.
const (
	WorkflowCity        = "city"
	WorkflowCoordinates = "coordinates"
	WorkflowUnits       = "units"
	WorkflowGeolocation = "geolocation"
	WorkflowRefresh     = "refresh"
)

// DefaultCity is looked up on Start when Options.DefaultCity is not set explicitly.
const DefaultCity = "New Delhi"

// DefaultTimeFormat renders the "Updated:" timestamp.
const DefaultTimeFormat = "15:04:05"

// Options configures a Controller. The zero value is usable.
type Options struct {
	// DefaultCity is resolved by Start. Empty disables the initial lookup.
	DefaultCity string
	// Units is the initial unit system.
	Units models.UnitSystem
	// IconURLTemplate formats icon codes into image URLs; see DefaultIconURLTemplate.
	IconURLTemplate string
	// TimeFormat and TimeZone render the "Updated:" status. Defaults: 15:04:05, time.Local.
	TimeFormat string
	TimeZone   *time.Location
	// CityMaxLength bounds city queries in runes (0 uses validation.DefaultCityMaxLength).
	CityMaxLength int
	// Clock stamps observations. Defaults to time.Now.
	Clock func() time.Time
	// OnStateChange is called, outside the controller lock, after the held location or
	// unit system changes. Calls from overlapping workflows may arrive out of order;
	// SessionState.Version orders them.
	OnStateChange func(models.SessionState)
}

// Controller is the weather lookup widget for one UI session. It owns the unit system
// and last-resolved location, runs geocode and current-conditions lookups, and writes
// results to its View.
//
// Every operation starts a workflow tagged with a sequence number. When a workflow
// finishes after a newer one has started, its result is discarded and ErrSuperseded is
// returned. Errors are always rendered to the status line and logged; the returned
// error is informational.
type Controller struct {
	provider client.WeatherProvider
	creds    credential.Source
	view     View
	logger   *zap.Logger
	opts     Options

	mu    sync.Mutex
	seq   uint64
	state models.SessionState
	dirty bool
}

// NewController returns a Controller writing to view.
func NewController(provider client.WeatherProvider, creds credential.Source, view View, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = DefaultTimeFormat
	}
	if opts.TimeZone == nil {
		opts.TimeZone = time.Local
	}
	if opts.IconURLTemplate == "" {
		opts.IconURLTemplate = DefaultIconURLTemplate
	}
	if opts.CityMaxLength <= 0 {
		opts.CityMaxLength = validation.DefaultCityMaxLength
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		provider: provider,
		creds:    creds,
		view:     view,
		logger:   logger,
		opts:     opts,
		state:    models.SessionState{Units: opts.Units},
	}
}

// State returns a copy of the session state.
func (c *Controller) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneStateLocked()
}

// Restore replaces the session state without touching the view or running a lookup.
func (c *Controller) Restore(st models.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Units = st.Units
	c.state.Version = st.Version
	c.state.Location = nil
	if st.Location != nil {
		loc := *st.Location
		c.state.Location = &loc
	}
}

// Start runs the initial-load behaviour: one credential check reported in the status
// line, then a lookup of the default city if one is configured.
func (c *Controller) Start(ctx context.Context) error {
	if res := c.creds.Resolve(); !res.OK() {
		observability.CredentialMissingTotal.Inc()
		err := res.Err
		if err == nil {
			err = credential.ErrMissing
		}
		observability.LoggerFromContext(ctx, c.logger).Warn("weather API key not configured",
			zap.String("origin", string(res.Origin)), zap.Error(err))
		c.mu.Lock()
		c.view.SetStatus(StatusMissingKeyAtStartup, true)
		c.mu.Unlock()
		return err
	}
	if c.opts.DefaultCity == "" {
		return nil
	}
	return c.ResolveByCityName(ctx, c.opts.DefaultCity)
}

// ResolveByCityName geocodes city (first match only) and fetches conditions for it.
// The resolved location is stored before the dependent fetch so a unit toggle can
// replay it without geocoding again.
func (c *Controller) ResolveByCityName(ctx context.Context, city string) error {
	seq := c.begin()
	logger := observability.LoggerFromContext(ctx, c.logger)

	city, err := validation.ValidateCity(city, c.opts.CityMaxLength)
	if err != nil {
		return c.fail(ctx, seq, WorkflowCity, stageInput, err)
	}
	key, err := c.apiKey()
	if err != nil {
		return c.fail(ctx, seq, WorkflowCity, stageCredential, err)
	}
	observability.RecordCityQuery(city)

	if !c.commit(seq, func() {
		c.view.SetStatus("Loading weather for "+city+"…", false)
		c.view.HideCard()
	}) {
		return c.superseded(ctx, WorkflowCity, nil)
	}

	place, err := c.provider.GeocodeCity(ctx, key, city)
	if err != nil {
		return c.fail(ctx, seq, WorkflowCity, stageGeocode, err)
	}
	name := place.DisplayName()
	logger.Debug("city resolved", zap.String("query", city), zap.String("name", name),
		zap.Float64("lat", place.Lat), zap.Float64("lon", place.Lon))

	if !c.commit(seq, func() {
		c.setLocationLocked(models.Location{
			DisplayName:     name,
			City:            place.Name,
			Latitude:        place.Lat,
			Longitude:       place.Lon,
			SourceCityQuery: city,
		})
	}) {
		return c.superseded(ctx, WorkflowCity, nil)
	}

	return c.fetch(ctx, seq, WorkflowCity, key, place.Coordinates(), name, city)
}

// ResolveByCoordinates fetches conditions at (lat, lon). An empty displayNameOverride
// uses the provider's "name, country".
func (c *Controller) ResolveByCoordinates(ctx context.Context, lat, lon float64, displayNameOverride string) error {
	seq := c.begin()
	at := models.Coordinates{Latitude: lat, Longitude: lon}
	if err := validation.ValidateCoordinates(at); err != nil {
		return c.fail(ctx, seq, WorkflowCoordinates, stageInput, err)
	}
	key, err := c.apiKey()
	if err != nil {
		return c.fail(ctx, seq, WorkflowCoordinates, stageCredential, err)
	}
	return c.fetch(ctx, seq, WorkflowCoordinates, key, at, displayNameOverride, "")
}

// OnUnitToggle switches to imperial when checked, metric otherwise, and re-fetches the
// held location by its stored coordinates and display name. No-op without a location.
func (c *Controller) OnUnitToggle(ctx context.Context, checked bool) error {
	units := models.Metric
	if checked {
		units = models.Imperial
	}
	var loc *models.Location
	c.update(func() {
		if c.state.Units != units {
			c.state.Units = units
			c.dirty = true
		}
		if c.state.Location != nil {
			l := *c.state.Location
			loc = &l
		}
	})
	if loc == nil {
		return nil
	}
	return c.refresh(ctx, WorkflowUnits, *loc)
}

// Refresh re-fetches conditions for the held location. No-op without a location.
func (c *Controller) Refresh(ctx context.Context) error {
	st := c.State()
	if st.Location == nil {
		return nil
	}
	return c.refresh(ctx, WorkflowRefresh, *st.Location)
}

// OnUseMyLocation asks locator for the device position and fetches conditions there,
// naming the location from the provider response. A nil locator means the capability
// is absent.
func (c *Controller) OnUseMyLocation(ctx context.Context, locator geolocation.Locator) error {
	seq := c.begin()
	if locator == nil {
		return c.fail(ctx, seq, WorkflowGeolocation, stageGeolocation, geolocation.ErrUnsupported)
	}
	key, err := c.apiKey()
	if err != nil {
		return c.fail(ctx, seq, WorkflowGeolocation, stageCredential, err)
	}

	if !c.commit(seq, func() { c.view.SetStatus(StatusLocating, false) }) {
		return c.superseded(ctx, WorkflowGeolocation, nil)
	}
	at, err := locator.Locate(ctx)
	if err != nil {
		return c.fail(ctx, seq, WorkflowGeolocation, stageGeolocation, err)
	}
	if err := validation.ValidateCoordinates(at); err != nil {
		return c.fail(ctx, seq, WorkflowGeolocation, stageInput, err)
	}
	return c.fetch(ctx, seq, WorkflowGeolocation, key, at, "", "")
}

func (c *Controller) refresh(ctx context.Context, kind string, loc models.Location) error {
	seq := c.begin()
	key, err := c.apiKey()
	if err != nil {
		return c.fail(ctx, seq, kind, stageCredential, err)
	}
	return c.fetch(ctx, seq, kind, key, loc.Coordinates(), loc.DisplayName, loc.SourceCityQuery)
}

// fetch is the current-conditions step shared by every workflow.
func (c *Controller) fetch(ctx context.Context, seq uint64, kind, key string, at models.Coordinates, displayName, sourceQuery string) error {
	var units models.UnitSystem
	if !c.commit(seq, func() {
		units = c.state.Units
		c.view.SetStatus(StatusLoading, false)
		c.view.HideCard()
	}) {
		return c.superseded(ctx, kind, nil)
	}

	snap, err := c.provider.CurrentConditions(ctx, key, at, units)
	if err != nil {
		return c.fail(ctx, seq, kind, stageWeather, err)
	}
	snap.ObservedAt = c.opts.Clock()

	name := displayName
	if name == "" {
		name = models.JoinDisplayName(snap.Name, snap.Country)
	}
	card := RenderCard(snap, name, units, c.opts.IconURLTemplate)
	status := StatusUpdatedPrefix + snap.ObservedAt.In(c.opts.TimeZone).Format(c.opts.TimeFormat)

	if !c.commit(seq, func() {
		c.setLocationLocked(models.Location{
			DisplayName:     name,
			City:            snap.Name,
			Latitude:        at.Latitude,
			Longitude:       at.Longitude,
			SourceCityQuery: sourceQuery,
		})
		c.view.SetStatus(status, false)
		c.view.ShowCard(card)
	}) {
		return c.superseded(ctx, kind, nil)
	}

	observability.WidgetWorkflowsTotal.WithLabelValues(kind, "success").Inc()
	observability.LoggerFromContext(ctx, c.logger).Debug("weather rendered",
		zap.String("kind", kind), zap.String("location", name), zap.String("units", units.Token()))
	return nil
}

// fail renders err to the status line if seq is still current. The card is left as the
// workflow's loading step put it.
func (c *Controller) fail(ctx context.Context, seq uint64, kind string, st stage, err error) error {
	if st == stageGeocode || st == stageWeather {
		observability.ProviderErrorsTotal.WithLabelValues(string(st), string(client.CategorizeError(err))).Inc()
	}
	msg := statusMessage(st, err)
	if !c.commit(seq, func() { c.view.SetStatus(msg, true) }) {
		return c.superseded(ctx, kind, err)
	}

	errKind := Classify(err)
	observability.WidgetWorkflowsTotal.WithLabelValues(kind, string(errKind)).Inc()
	logger := observability.LoggerFromContext(ctx, c.logger)
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("stage", string(st)),
		zap.String("error_kind", string(errKind)),
		zap.Error(err),
	}
	switch errKind {
	case KindValidation, KindNotFound, KindGeolocation, KindGeolocationUnsupported:
		logger.Info("lookup failed", fields...)
	default:
		logger.Warn("lookup failed", fields...)
	}
	return err
}

func (c *Controller) superseded(ctx context.Context, kind string, cause error) error {
	observability.WidgetWorkflowsTotal.WithLabelValues(kind, "superseded").Inc()
	fields := []zap.Field{zap.String("kind", kind)}
	if cause != nil {
		fields = append(fields, zap.NamedError("discarded_error", cause))
	}
	observability.LoggerFromContext(ctx, c.logger).Debug("discarding superseded result", fields...)
	return ErrSuperseded
}

// apiKey consults the credential source; called once per workflow.
func (c *Controller) apiKey() (string, error) {
	res := c.creds.Resolve()
	if res.OK() {
		return res.Key, nil
	}
	observability.CredentialMissingTotal.Inc()
	if res.Err == nil || !errors.Is(res.Err, credential.ErrNotConfigured) {
		return "", credential.ErrMissing
	}
	return "", res.Err
}

// begin starts a workflow and returns its sequence number.
func (c *Controller) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// commit runs fn under the lock only if seq is still the latest workflow.
func (c *Controller) commit(seq uint64, fn func()) bool {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return false
	}
	fn()
	st, changed := c.takeDirtyLocked()
	c.mu.Unlock()
	if changed {
		c.notify(st)
	}
	return true
}

// update runs fn under the lock regardless of sequence.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	st, changed := c.takeDirtyLocked()
	c.mu.Unlock()
	if changed {
		c.notify(st)
	}
}

func (c *Controller) setLocationLocked(loc models.Location) {
	if c.state.Location != nil && *c.state.Location == loc {
		return
	}
	c.state.Location = &loc
	c.dirty = true
}

func (c *Controller) takeDirtyLocked() (models.SessionState, bool) {
	if !c.dirty {
		return models.SessionState{}, false
	}
	c.dirty = false
	c.state.Version++
	return c.cloneStateLocked(), true
}

func (c *Controller) cloneStateLocked() models.SessionState {
	st := c.state
	if c.state.Location != nil {
		loc := *c.state.Location
		st.Location = &loc
	}
	return st
}

func (c *Controller) notify(st models.SessionState) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(st)
	}
}
