package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
)

const (
	sessionKey       = "session"
	sessionOriginKey = "session_origin"
)

func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)
			next.ServeHTTP(w, r.WithContext(observability.WithCorrelationID(r.Context(), corrID, logger)))
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.HTTPRequestsInFlight.Inc()
		done := serverDrain.enter()
		defer func() {
			done()
			observability.HTTPRequestsInFlight.Dec()
		}()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		route := getRoute(r)
		method := r.Method
		statusCode := statusCodeString(recorder.statusCode)

		observability.HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
		observability.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
	})
}

// getRoute returns the matched route template so unmatched paths do not create label values.
func getRoute(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// SessionMiddleware attaches the caller's widget session to the request, creating one
// (and setting the cookie) when the request carries none.
func SessionMiddleware(manager *session.Manager, cookie CookieConfig) mux.MiddlewareFunc {
	if cookie.Name == "" {
		cookie.Name = "widget_session"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cookie.Name); err == nil {
				id = c.Value
			}
			sess, origin, err := manager.Acquire(r.Context(), id)
			if err != nil {
				observability.LoggerFromContext(r.Context(), zap.NewNop()).Error("acquire session", zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "NO_SESSION", "session unavailable")
				return
			}
			if sess.ID != id {
				http.SetCookie(w, &http.Cookie{
					Name:     cookie.Name,
					Value:    sess.ID,
					Path:     "/",
					MaxAge:   int(cookie.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   cookie.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			ctx = context.WithValue(ctx, sessionOriginKey, origin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFromRequest returns the session attached by SessionMiddleware, or nil.
func sessionFromRequest(r *http.Request) (*session.Session, session.Origin) {
	sess, _ := r.Context().Value(sessionKey).(*session.Session)
	origin, _ := r.Context().Value(sessionOriginKey).(session.Origin)
	return sess, origin
}
