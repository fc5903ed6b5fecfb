package main

import (
	"context"
	"database/sql"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mickamy/journeyoutbox"
	"github.com/mickamy/journeyoutbox/consumer"
	"github.com/mickamy/journeyoutbox/handlers"
	"github.com/mickamy/journeyoutbox/internal/config"
	"github.com/mickamy/journeyoutbox/internal/database"
	"github.com/mickamy/journeyoutbox/internal/logging"
	"github.com/mickamy/journeyoutbox/internal/transport"
	"github.com/mickamy/journeyoutbox/metrics"
	"github.com/mickamy/journeyoutbox/stores"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		boot := logging.New(logging.Options{})
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info().Str("config", cfg.String()).Msg("starting journey ingestor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("ingestor stopped")
	}
	log.Info().Msg("ingestor stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingAttempts:    cfg.Database.PingAttempts,
		Backoff:         journeyoutbox.Exponential(250*time.Millisecond, 2, 10*time.Second),
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database not reachable yet")
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := stores.New(cfg.Database.Driver, db)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(nil)
	if err := collector.Register(); err != nil {
		return err
	}
	observer := consumer.MultiObserver{metrics.NewStatsHook("journeyoutbox"), collector}

	wmLogger := logging.NewWatermillAdapter(log)
	factory, err := transport.NewFactory(cfg.Broker, wmLogger)
	if err != nil {
		return err
	}
	c := consumer.New(consumer.SubscriberFactory(factory), consumer.Options{
		Logger:       wmLogger,
		Observer:     observer,
		CloseTimeout: shutdownTimeout,
	})
	if err := register(c, cfg.Topics, db, store, log); err != nil {
		return err
	}

	srv := startMetricsServer(cfg.Metrics.Addr, log)

	if err := c.Start(ctx); err != nil {
		return err
	}
	log.Info().Str("consumer_id", c.ID()).Str("broker", cfg.Broker.System).Msg("consumer running")

	var runErr error
	select {
	case <-ctx.Done():
	case <-c.Done():
		runErr = c.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("consumer shutdown")
	}
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	return runErr
}

func register(c *consumer.Consumer, topics config.TopicsConfig, db *sql.DB, store journeyoutbox.Store, log zerolog.Logger) error {
	bindings := []struct {
		topic   string
		handler handlers.Handler
	}{
		{topics.JourneyCreated, handlers.NewJourneyCreated(db, store, log)},
		{topics.JourneyConfirmed, handlers.NewJourneyConfirmed(db, store, log)},
		{topics.SegmentsConfirmed, handlers.NewSegmentsConfirmed(db, store, log)},
	}
	for _, b := range bindings {
		if err := c.Register(b.topic, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func startMetricsServer(addr string, log zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("serving /metrics and /debug/vars")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
