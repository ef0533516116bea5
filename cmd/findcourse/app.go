package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/findcourse-client/findcourse"
	"github.com/jrsteele09/findcourse-client/internal/config"
	"github.com/jrsteele09/findcourse-client/likes"
	"github.com/jrsteele09/findcourse-client/metrics"
	"github.com/jrsteele09/findcourse-client/notify"
	"github.com/jrsteele09/findcourse-client/sessions"
	"github.com/jrsteele09/findcourse-client/storage"
	"github.com/jrsteele09/findcourse-client/storage/repofake"
	"github.com/jrsteele09/findcourse-client/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// app holds everything a command needs, built from config.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	store    storage.Store
	client   *findcourse.Client
	session  *sessions.Manager
	likes    *likes.Service
	closers  []io.Closer
}

func newApp(configPath string, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   newLogger(cfg, os.Stderr),
		registry: prometheus.NewRegistry(),
	}

	if a.store, err = a.openStore(); err != nil {
		return nil, err
	}

	mt := metrics.New(a.registry)
	a.client = findcourse.New(cfg.GetBaseURL(),
		findcourse.WithTimeout(cfg.GetRequestTimeout()),
		findcourse.WithRateLimit(cfg.GetRateLimit(), cfg.GetRateBurst()),
		findcourse.WithCircuitBreaker(cfg.GetBreakerFailures(), cfg.GetBreakerCooldown()),
		findcourse.WithMetrics(mt),
		findcourse.WithLogger(a.logger),
	)

	notifier := notify.NewConsole(out, useColour())
	a.session, err = sessions.New(a.client, a.store,
		sessions.WithNotifier(notifier),
		sessions.WithMetrics(mt),
		sessions.WithLogger(a.logger),
		sessions.WithRefreshLeeway(cfg.GetRefreshLeeway()),
		sessions.WithRefreshTimeout(cfg.GetRefreshTimeout()),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.likes = likes.New(a.client, a.session, a.store,
		likes.WithNotifier(notifier),
		likes.WithLogger(a.logger),
	)
	return a, nil
}

func (a *app) openStore() (storage.Store, error) {
	if a.cfg.GetStorageDriver() == config.StorageDriverMemory {
		a.logger.Debug().Msg("using in-memory storage, the session ends with the process")
		return repofake.NewFakeStore(), nil
	}

	s, err := sqlite.Open(a.cfg.GetDatabaseFile())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s)
	return s, nil
}

// Close disarms the refresh timer and releases storage.
func (a *app) Close() {
	if a.session != nil {
		a.session.Stop()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close")
		}
	}
}

func newLogger(cfg config.EnvConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.GetEnv(), "DEV") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", cfg.GetAppName()).Logger()
}

func useColour() bool {
	_, noColour := os.LookupEnv("NO_COLOR")
	return !noColour
}
