package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lucasrosati/mailramp/internal/config"
	"github.com/lucasrosati/mailramp/internal/contacts"
	"github.com/lucasrosati/mailramp/internal/ledger"
	"github.com/lucasrosati/mailramp/internal/metrics"
	"github.com/lucasrosati/mailramp/internal/pacing"
	"github.com/lucasrosati/mailramp/internal/personalize"
	"github.com/lucasrosati/mailramp/internal/scheduler"
	"github.com/lucasrosati/mailramp/internal/smtpout"
	"github.com/lucasrosati/mailramp/internal/storage"
	"github.com/lucasrosati/mailramp/internal/tracking"
)

// App wires all campaign components together
type App struct {
	config    *config.Config
	db        *bolt.DB
	ledger    ledger.Store
	tracking  tracking.Store
	pause     *pacing.FlagFile
	policy    *pacing.Policy
	sched     *scheduler.Scheduler
	trkServer *tracking.Server
	metrics   *metrics.Metrics
	lock      *scheduler.Lock
	logger    *slog.Logger
	batch     []*contacts.Record
}

// New creates the application from configuration
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	batch, err := contacts.LoadFile(cfg.Campaign.ContactsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	tmpl, err := personalize.LoadTemplate(cfg.Campaign.TemplateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	lock, err := scheduler.Acquire(cfg.Storage.LockFile)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	led, err := ledger.NewBoltStore(db)
	if err != nil {
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	trk, err := tracking.NewBoltStore(db)
	if err != nil {
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("failed to create tracking store: %w", err)
	}

	pause, err := pacing.NewFlagFile(cfg.Pacing.PauseFile, logger.With("component", "pause"))
	if err != nil {
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("failed to watch pause flag: %w", err)
	}

	policy, err := pacing.New(cfg.Pacing, pause, db, logger.With("component", "pacing"))
	if err != nil {
		pause.Close()
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("failed to create pacing policy: %w", err)
	}

	m := metrics.New()

	relay := smtpout.NewRelay(cfg.SMTP, logger.With("component", "relay"))

	sched := scheduler.New(cfg, tmpl, led, trk, policy, relay, m, logger.With("component", "scheduler"))

	a := &App{
		config:   cfg,
		db:       db,
		ledger:   led,
		tracking: trk,
		pause:    pause,
		policy:   policy,
		sched:    sched,
		metrics:  m,
		lock:     lock,
		logger:   logger,
		batch:    batch,
	}

	if cfg.Tracking.Enabled {
		a.trkServer = tracking.NewServer(
			trk,
			led.OptOut,
			m,
			cfg.Tracking.ListenAddr,
			logger.With("component", "tracking"),
		)
	}

	return a, nil
}

// Run executes the campaign until the batch is exhausted or a signal arrives
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting mailramp",
		"campaign", a.config.Campaign.Name,
		"contacts", len(a.batch),
		"tracking", a.config.Tracking.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	if a.trkServer != nil {
		go func() {
			if err := a.trkServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tracking server: %w", err)
			}
		}()
	}

	runDone := make(chan error, 1)
	go func() {
		_, err := a.sched.Run(ctx, a.batch)
		runDone <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		runErr = <-runDone
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
		<-runDone
		runErr = err
	case runErr = <-runDone:
	}

	if shutdownErr := a.Shutdown(context.Background()); runErr == nil {
		runErr = shutdownErr
	}
	return runErr
}

// Shutdown releases all components in order
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.trkServer != nil {
		if err := a.trkServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("tracking server shutdown error", "error", err)
		}
	}

	if err := a.pause.Close(); err != nil {
		a.logger.Error("pause watcher close error", "error", err)
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	if err := a.lock.Release(); err != nil {
		a.logger.Error("lock release error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
