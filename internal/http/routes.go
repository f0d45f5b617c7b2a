package http

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
)

// NewRouter wires the widget page, its event endpoints, health and metrics.
// Only widget routes carry a session.
func NewRouter(h *Handler, manager *session.Manager, cookie CookieConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	widgetRouter := router.NewRoute().Subrouter()
	widgetRouter.Use(SessionMiddleware(manager, cookie))
	widgetRouter.HandleFunc("/", h.GetPage).Methods("GET")
	widgetRouter.HandleFunc("/api/widget", h.GetWidget).Methods("GET")
	widgetRouter.HandleFunc("/search", h.PostSearch).Methods("POST")
	widgetRouter.HandleFunc("/units", h.PostUnits).Methods("POST")
	widgetRouter.HandleFunc("/geolocation", h.PostGeolocation).Methods("POST")
	return router
}
