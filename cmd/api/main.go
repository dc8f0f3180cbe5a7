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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/audit"
	"github.com/noah-isme/pos-terminal/internal/config"
	"github.com/noah-isme/pos-terminal/internal/health"
	"github.com/noah-isme/pos-terminal/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("gateway", cfg.TerminalName).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("gateway stopped")
	}
	logger.Info().Msg("gateway stopped")
}

// run connects the gateway's stores, serves HTTP until ctx is cancelled and
// then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	tracing := cfg.Obs.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    "pos-gateway",
			ServiceVersion: cfg.Obs.AppVersion,
			Gateway:        cfg.TerminalName,
			Endpoint:       cfg.Obs.OTLPEndpoint,
			Exporter:       cfg.Obs.TracingExporter,
			Insecure:       cfg.Obs.OTLPInsecure,
			SamplingRatio:  cfg.Obs.SamplingRatio,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer flush(logger, "tracer", shutdown)
		}
	}

	startup, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rdb, err := openRedis(startup, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis")
		}
	}()

	var pool *pgxpool.Pool
	if cfg.JournalEnabled() {
		if pool, err = openJournal(startup, cfg.DatabaseURL); err != nil {
			return err
		}
		defer pool.Close()
	}

	gw, err := assemble(cfg, logger, rdb, pool)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           gw.router(cfg, logger, tracing),
		ReadHeaderTimeout: 10 * time.Second,
	}

	served := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.BackendBaseURL).
			Bool("journal", pool != nil).
			Msg("gateway listening")
		served <- srv.ListenAndServe()
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("timeout", cfg.Health.ShutdownTimeout).Msg("draining")
	drain, cancelDrain := context.WithTimeout(context.Background(), cfg.Health.ShutdownTimeout)
	defer cancelDrain()
	return srv.Shutdown(drain)
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		return nil, fmt.Errorf("redis tracing: %w", err)
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			return nil, fmt.Errorf("redis metrics: %w", err)
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// openJournal migrates the sale journal schema and opens a traced pool.
func openJournal(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if err := audit.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrate sale journal: %w", err)
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	pc.ConnConfig.Tracer = obs.PGXTracer{}
	pc.ConnConfig.RuntimeParams["application_name"] = "pos-gateway"
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open sale journal: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping sale journal: %w", err)
	}
	return pool, nil
}

func flush(logger zerolog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn().Err(err).Str("component", name).Msg("flush on shutdown")
	}
}
