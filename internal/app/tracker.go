package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lucasrosati/mailramp/internal/config"
	"github.com/lucasrosati/mailramp/internal/ledger"
	"github.com/lucasrosati/mailramp/internal/metrics"
	"github.com/lucasrosati/mailramp/internal/storage"
	"github.com/lucasrosati/mailramp/internal/tracking"
)

// Tracker runs the tracking callback server on its own, without the
// scheduler. Opens and clicks trail the last send by hours or days, so the
// callback surface has to outlive campaign runs; this is the long-running
// process that keeps it up between and after them. The bbolt file lock
// makes track and run mutually exclusive over the same database.
type Tracker struct {
	config  *config.Config
	db      *bolt.DB
	server  *tracking.Server
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTracker creates the tracker from configuration
func NewTracker(cfg *config.Config) (*Tracker, error) {
	logger := SetupLogger(cfg.Logging)

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	led, err := ledger.NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	trk, err := tracking.NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tracking store: %w", err)
	}

	m := metrics.New()

	server := tracking.NewServer(
		trk,
		led.OptOut,
		m,
		cfg.Tracking.ListenAddr,
		logger.With("component", "tracking"),
	)

	return &Tracker{
		config:  cfg,
		db:      db,
		server:  server,
		metrics: m,
		logger:  logger,
	}, nil
}

// Server exposes the tracking server, mainly for tests
func (t *Tracker) Server() *tracking.Server {
	return t.server
}

// Run serves tracking callbacks until a signal arrives
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("starting tracker",
		"addr", t.config.Tracking.ListenAddr,
		"storage", t.config.Storage.Path,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("tracking server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		t.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		t.logger.Error("server error", "error", runErr)
	}

	if shutdownErr := t.Shutdown(context.Background()); runErr == nil {
		runErr = shutdownErr
	}
	return runErr
}

// Shutdown stops the server and closes storage
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.logger.Info("shutting down tracker")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := t.server.Shutdown(shutdownCtx); err != nil {
		t.logger.Error("tracking server shutdown error", "error", err)
	}

	if err := t.db.Close(); err != nil {
		t.logger.Error("storage close error", "error", err)
	}

	return nil
}
