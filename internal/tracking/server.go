package tracking

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lucasrosati/mailramp/internal/metrics"
)

// 1x1 transparent PNG served for the open pixel
var pixelPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg==")

const defaultClickURL = "https://linkedin.com"

// OptOutFunc terminally excludes an identity from future sends
type OptOutFunc func(identity string) error

// Server receives the asynchronous tracking callbacks: open pixel, click
// redirect and unsubscribe. It runs concurrently with the scheduler; the
// store serializes updates per transaction.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      Store
	optOut     OptOutFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger
	listenAddr string
}

// NewServer creates a tracking callback server
func NewServer(store Store, optOut OptOutFunc, m *metrics.Metrics, listenAddr string, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		store:      store,
		optOut:     optOut,
		metrics:    m,
		logger:     logger,
		listenAddr: listenAddr,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/pixel/{token}.png", s.handlePixel)
	s.router.Get("/click/{token}", s.handleClick)
	s.router.Get("/unsubscribe/{token}", s.handleUnsubscribe)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}

// Router exposes the HTTP handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting tracking server", "addr", s.listenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down tracking server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handlePixel records an open event and always returns the pixel, so an
// unknown token is indistinguishable from a valid one.
func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	s.recordEvent(token, EventOpen, Meta{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if s.metrics != nil {
		s.metrics.OpensTotal.Inc()
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(pixelPNG)
}

// handleClick records a click event and redirects to the destination URL
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	dest := r.URL.Query().Get("url")
	if dest == "" || !validRedirect(dest) {
		dest = defaultClickURL
	}

	s.recordEvent(token, EventClick, Meta{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Extra:      dest,
	})
	if s.metrics != nil {
		s.metrics.ClicksTotal.Inc()
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// handleUnsubscribe records a terminal opt-out for the token's identity
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	rec := s.recordEvent(token, EventUnsubscribe, Meta{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if s.metrics != nil {
		s.metrics.UnsubscribesTotal.Inc()
	}

	if rec != nil && s.optOut != nil {
		if err := s.optOut(rec.Identity); err != nil {
			s.logger.Error("failed to record opt-out", "identity", rec.Identity, "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<h2>Descadastrado com sucesso!</h2><p>Você não receberá mais emails desta campanha.</p>")
}

// recordEvent stores the event, logging but hiding unknown tokens from the
// caller
func (s *Server) recordEvent(token string, typ EventType, meta Meta) *Record {
	rec, err := s.store.RecordEvent(token, typ, meta)
	if err != nil {
		if errors.Is(err, ErrUnknownToken) {
			s.logger.Warn("callback with unknown token", "token", token, "type", typ)
			if s.metrics != nil {
				s.metrics.UnknownTokenTotal.Inc()
			}
		} else {
			s.logger.Error("failed to record tracking event", "token", token, "type", typ, "error", err)
		}
		return nil
	}

	s.logger.Info("tracking event", "token", token, "type", typ, "identity", rec.Identity)
	return rec
}

// validRedirect only allows absolute http(s) destinations
func validRedirect(dest string) bool {
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Links builds the public callback URLs for one token
type Links struct {
	BaseURL string
}

// Pixel returns the open-pixel URL for a token
func (l Links) Pixel(token string) string {
	return fmt.Sprintf("%s/pixel/%s.png", l.BaseURL, token)
}

// Click returns the click-redirect URL for a token and destination
func (l Links) Click(token, dest string) string {
	return fmt.Sprintf("%s/click/%s?url=%s", l.BaseURL, token, url.QueryEscape(dest))
}

// Unsubscribe returns the unsubscribe URL for a token
func (l Links) Unsubscribe(token string) string {
	return fmt.Sprintf("%s/unsubscribe/%s", l.BaseURL, token)
}
