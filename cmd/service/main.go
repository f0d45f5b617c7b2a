package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/config"
	"github.com/kjstillabower/weather-lookup-widget/internal/credential"
	httphandler "github.com/kjstillabower/weather-lookup-widget/internal/http"
	"github.com/kjstillabower/weather-lookup-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
	"github.com/kjstillabower/weather-lookup-widget/internal/widget"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	lifecycle.MarkStarted(time.Now())

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	provider, err := client.NewOpenWeatherClient(cfg.GeocodeURL, cfg.WeatherURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	creds := credential.NewLiveSource(cfg.DotenvPath, cfg.SecretsPath)
	if res := creds.Resolve(); res.OK() {
		logger.Info("weather API key found", zap.String("origin", string(res.Origin)))
	} else {
		// Not fatal: the key is re-checked on every lookup.
		logger.Warn("weather API key not configured; lookups will fail until it is set", zap.Error(res.Err))
	}

	var store session.Store
	var memcacheCloser *session.MemcachedStore
	switch cfg.SessionBackend {
	case config.BackendMemcached:
		mc := session.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		memcacheCloser = mc
		store = mc
		logger.Info("session backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = session.NewInMemoryStore()
		logger.Info("session backend: in_memory")
	}

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	factory := func(v widget.View, onChange func(models.SessionState)) *widget.Controller {
		return widget.NewController(provider, creds, v, logger, widget.Options{
			DefaultCity:     cfg.DefaultCity,
			Units:           cfg.DefaultUnits,
			IconURLTemplate: cfg.IconURLTemplate,
			TimeFormat:      cfg.TimeFormat,
			TimeZone:        cfg.TimeZone,
			CityMaxLength:   cfg.CityMaxLength,
			OnStateChange:   onChange,
		})
	}
	manager := session.NewManager(store, factory, session.Config{
		TTL:          cfg.SessionTTL,
		IdleTimeout:  cfg.SessionIdleTimeout,
		StoreTimeout: cfg.MemcachedTimeout,
	}, logger)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		if err := manager.Run(sweepCtx, 0); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session sweeper stopped", zap.Error(err))
		}
	}()

	healthConfig := &httphandler.HealthConfig{
		Credentials:    creds,
		ActiveSessions: manager.Len,
	}
	if memcacheCloser != nil {
		healthConfig.StorePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(healthConfig, logger)
	router := httphandler.NewRouter(handler, manager, httphandler.CookieConfig{
		Name:   cfg.SessionCookieName,
		MaxAge: cfg.SessionTTL,
	}, logger)

	// No WriteTimeout: provider calls carry no timeout by default and run inside the request.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight), zap.Int64("lookups", httphandler.InFlightLookups()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	stopSweep()

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete", zap.Int("sessions", manager.Len()))

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
