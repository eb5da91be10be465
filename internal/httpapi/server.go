// Package httpapi serves the Mini App API: Telegram login, prayer times and
// prayer settings, plus health and Prometheus endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mubarakway/internal/auth"
	"mubarakway/internal/config"
	"mubarakway/internal/notify"
	"mubarakway/internal/storage"
)

// Server is the HTTP API for the Mini App.
type Server struct {
	echo     *echo.Echo
	store    storage.Storage
	notified *notify.Store
	verifier *auth.Verifier
	cfg      *config.Config
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Server with all routes registered.
func New(cfg *config.Config, store storage.Storage, notified *notify.Store, log *slog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		store:    store,
		notified: notified,
		verifier: auth.NewVerifier(cfg.TelegramBotToken),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler(log)

	e.Use(RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(Metrics())

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	skipVerify := cfg.IsDevelopment() && cfg.TelegramBotToken == ""
	if skipVerify {
		log.Warn("telegram auth validation disabled: development mode without bot token")
	}

	api := e.Group("/api/v1", TelegramAuth(s.verifier, skipVerify, log))
	api.POST("/auth/login", s.login)
	api.GET("/prayer/times", s.prayerTimes)
	api.GET("/prayer/settings", s.getSettings)
	api.PUT("/prayer/settings", s.putSettings)

	return s
}

// SetClock overrides the time source for prayer times and initData freshness.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
	s.verifier.SetClock(now)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
