package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/credential"
	"github.com/kjstillabower/weather-lookup-widget/internal/geolocation"
	"github.com/kjstillabower/weather-lookup-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
	"github.com/kjstillabower/weather-lookup-widget/internal/view"
	"github.com/kjstillabower/weather-lookup-widget/internal/widget"
)

// maxFormBytes bounds event request bodies.
const maxFormBytes = 16 << 10

// HealthConfig holds the dependencies /health reports on.
type HealthConfig struct {
	// Credentials, when set, is checked live; a missing key reports degraded.
	Credentials credential.Source
	// StorePing, when set, is called to check session store reachability. Used when backend is memcached.
	StorePing func() error
	// ActiveSessions, when set, reports the number of live sessions.
	ActiveSessions func() int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// widgetResponse is the JSON form of a session's widget.
type widgetResponse struct {
	view.State
	Units    models.UnitSystem `json:"units"`
	Location *models.Location  `json:"location,omitempty"`
}

// GetPage handles GET /. A new session runs the initial load; a session restored from
// the store re-fetches its last location so the card reappears. A restored session that
// never resolved a location runs the initial load too, keeping its units.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	sess, origin := sessionFromRequest(r)
	if sess == nil {
		writeError(w, r, http.StatusInternalServerError, "NO_SESSION", "session unavailable")
		return
	}
	ctx := r.Context()
	if origin == session.Restored && sess.Controller.State().Location == nil {
		origin = session.Created
	}
	switch origin {
	case session.Created:
		h.logOutcome(r, "start", serverDrain.lookup(func() error { return sess.Controller.Start(ctx) }))
	case session.Restored:
		h.logOutcome(r, "refresh", serverDrain.lookup(func() error { return sess.Controller.Refresh(ctx) }))
	}

	st := sess.Controller.State()
	page := view.Page{
		State:    sess.View.Snapshot(),
		Imperial: st.Units == models.Imperial,
	}
	if st.Location != nil {
		page.City = st.Location.SourceCityQuery
	}

	var buf bytes.Buffer
	if err := view.RenderPage(&buf, page); err != nil {
		observability.LoggerFromContext(ctx, h.logger).Error("render page", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "unable to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetWidget handles GET /api/widget.
func (h *Handler) GetWidget(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromRequest(r)
	if sess == nil {
		writeError(w, r, http.StatusInternalServerError, "NO_SESSION", "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, buildWidgetResponse(sess))
}

// PostSearch handles POST /search with form field city.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromRequest(r)
	if sess == nil {
		writeError(w, r, http.StatusInternalServerError, "NO_SESSION", "session unavailable")
		return
	}
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	err = serverDrain.lookup(func() error {
		return sess.Controller.ResolveByCityName(r.Context(), fields["city"])
	})
	h.logOutcome(r, widget.WorkflowCity, err)
	h.respond(w, r, sess)
}

// PostUnits handles POST /units. imperial=on|true|1 selects imperial; anything else,
// including an absent field (an unchecked checkbox), selects metric.
func (h *Handler) PostUnits(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromRequest(r)
	if sess == nil {
		writeError(w, r, http.StatusInternalServerError, "NO_SESSION", "session unavailable")
		return
	}
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	err = serverDrain.lookup(func() error {
		return sess.Controller.OnUnitToggle(r.Context(), isChecked(fields["imperial"]))
	})
	h.logOutcome(r, widget.WorkflowUnits, err)
	h.respond(w, r, sess)
}

// PostGeolocation handles POST /geolocation: the browser's position (latitude, longitude)
// or its failure (error, message).
func (h *Handler) PostGeolocation(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromRequest(r)
	if sess == nil {
		writeError(w, r, http.StatusInternalServerError, "NO_SESSION", "session unavailable")
		return
	}
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	var locator geolocation.Locator
	code := strings.ToLower(strings.TrimSpace(fields["error"]))
	switch {
	case code == geolocation.CodeUnsupported:
		locator = nil
	case code != "":
		locator = geolocation.Report{Code: code, Message: fields["message"]}
	default:
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(fields["latitude"]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(fields["longitude"]), 64)
		if latErr != nil || lonErr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_POSITION", "latitude and longitude are required")
			return
		}
		locator = geolocation.Report{Position: models.Coordinates{Latitude: lat, Longitude: lon}}
	}
	err = serverDrain.lookup(func() error {
		return sess.Controller.OnUseMyLocation(r.Context(), locator)
	})
	h.logOutcome(r, widget.WorkflowGeolocation, err)
	h.respond(w, r, sess)
}

// respond answers an event: JSON state for API clients, otherwise a redirect back to the page.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, buildWidgetResponse(sess))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// logOutcome records how an event ended. The controller already rendered and logged the
// error; only superseded results are noted here.
func (h *Handler) logOutcome(r *http.Request, kind string, err error) {
	if errors.Is(err, widget.ErrSuperseded) {
		observability.LoggerFromContext(r.Context(), h.logger).Debug("event superseded by a newer one",
			zap.String("kind", kind))
	}
}

func buildWidgetResponse(sess *session.Session) widgetResponse {
	st := sess.Controller.State()
	return widgetResponse{
		State:    sess.View.Snapshot(),
		Units:    st.Units,
		Location: st.Location,
	}
}

// readFields reads a form-encoded or JSON body into a flat string map.
func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, errors.New("invalid JSON body")
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				out[k] = val
			case float64:
				out[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(val)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, errors.New("invalid form body")
	}
	out := make(map[string]string, len(r.Form))
	for k := range r.Form {
		out[k] = r.Form.Get(k)
	}
	return out, nil
}

func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1":
		return true
	}
	return false
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.ActiveSessions != nil {
		resp["activeSessions"] = h.healthConfig.ActiveSessions()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus determines the current health status.
// Decision order: shutting-down > session store unreachable > API key missing > healthy.
func (h *Handler) computeHealthStatus() (healthResult, map[string]string) {
	checks := make(map[string]string)
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}, checks
	}

	storeOK := true
	if h.healthConfig.StorePing != nil {
		storeOK = h.healthConfig.StorePing() == nil
		checks["sessionStore"] = healthyString(storeOK)
	}
	keyOK := true
	if h.healthConfig.Credentials != nil {
		keyOK = h.healthConfig.Credentials.Resolve().OK()
		checks["weatherApiKey"] = healthyString(keyOK)
	}

	switch {
	case !storeOK:
		return healthResult{"degraded", http.StatusServiceUnavailable, "session_store_unreachable"}, checks
	case !keyOK:
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_missing"}, checks
	}
	return healthResult{"healthy", http.StatusOK, ""}, checks
}

func healthyString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}
