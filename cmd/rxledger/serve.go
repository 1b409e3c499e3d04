package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medrex/rxledger/internal/audit"
	"github.com/medrex/rxledger/internal/gateway"
	"github.com/medrex/rxledger/internal/ledger"
	"github.com/medrex/rxledger/internal/store"
	"github.com/medrex/rxledger/pkg/config"
	"github.com/medrex/rxledger/pkg/database"
	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/monitoring"
	"github.com/medrex/rxledger/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// closer runs shutdown steps in reverse order of registration
type closer struct {
	steps []func(ctx context.Context) error
	log   *logger.Logger
}

func (c *closer) add(name string, fn func(ctx context.Context) error) {
	c.steps = append(c.steps, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			c.log.WithComponent("shutdown").WithError(err).WithField("step", name).Error("Shutdown step failed")
			return err
		}
		return nil
	})
}

func (c *closer) close(ctx context.Context) {
	for i := len(c.steps) - 1; i >= 0; i-- {
		_ = c.steps[i](ctx)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel)
	entry := log.WithComponent("main")

	shutdown := &closer{log: log}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		shutdown.close(ctx)
	}()

	metrics := monitoring.NewMetricsCollector("rxledger", nil)
	health := monitoring.NewHealthManager("rxledger", version)

	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "rxledger",
		ServiceVersion: version,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Environment:    cfg.Tracing.Environment,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	shutdown.add("tracing", tracing.Shutdown)

	sinks, archive, err := openAuditSinks(ctx, cfg, log, health, shutdown)
	if err != nil {
		return err
	}

	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: time.Duration(cfg.Audit.WriteTimeout) * time.Second,
		MaxAttempts:  cfg.Audit.MaxAttempts,
		RetryBackoff: time.Duration(cfg.Audit.RetryBackoffMs) * time.Millisecond,
		Logger:       log,
		Metrics:      metrics,
		Tracing:      tracing,
	}, sinks...)
	dispatcher.Start()
	shutdown.add("audit dispatcher", dispatcher.Close)

	var persister ledger.Persister
	if cfg.Store.Path != "" {
		st, err := store.NewLevelDBStore(cfg.Store.Path, log)
		if err != nil {
			return err
		}
		shutdown.add("store", func(context.Context) error { return st.Close() })
		health.RegisterChecker("store", monitoring.NewPingHealthChecker(st, false))
		persister = st
	} else {
		entry.Warn("No store path configured; ledger state will not survive a restart")
	}

	admins := make([]types.Identity, 0, len(cfg.Ledger.Admins))
	for _, a := range cfg.Ledger.Admins {
		admins = append(admins, types.Identity(a))
	}

	l, err := ledger.New(ctx, ledger.Options{
		Admins:           admins,
		TokenBaseURI:     cfg.Ledger.TokenBaseURI,
		MaxPauseDuration: cfg.Ledger.MaxPause(),
		Persister:        persister,
		Publisher:        dispatcher,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	health.RegisterChecker("ledger", monitoring.NewCustomHealthChecker(func(ctx context.Context) monitoring.HealthCheck {
		check := monitoring.HealthCheck{
			Status: monitoring.HealthStatusHealthy,
			Details: map[string]interface{}{
				"events":        l.EventCount(),
				"prescriptions": l.GetPrescriptionCount(),
			},
		}
		if l.EffectivePause() {
			check.Status = monitoring.HealthStatusDegraded
			check.Message = "emergency pause in force"
		}
		return check
	}))
	metrics.SetPaused(l.EffectivePause())
	metrics.SetPrescriptionsIssued(l.GetPrescriptionCount())

	svc := gateway.NewService(&gateway.Config{
		JWTSecret:      cfg.JWT.SecretKey,
		JWTIssuer:      cfg.JWT.Issuer,
		JWTAudience:    cfg.JWT.Audience,
		RateLimit:      cfg.RateLimit.Requests,
		RatePeriod:     time.Duration(cfg.RateLimit.Period) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DisableMetrics: !cfg.Monitoring.Enabled,
	}, gateway.Dependencies{
		Ledger:  l,
		Logger:  log,
		Metrics: metrics,
		Tracing: tracing,
		Health:  health,
		Archive: archive,
	})
	svc.StartBackground(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      svc.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
	shutdown.add("http server", server.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		entry.WithField("addr", server.Addr).Info("Starting rxledger server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		entry.Info("Shutting down rxledger server")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
}

// openAuditSinks connects every enabled audit destination. The returned
// archive is non-nil when PostgreSQL is enabled.
func openAuditSinks(ctx context.Context, cfg *config.Config, log *logger.Logger, health *monitoring.HealthManager, shutdown *closer) ([]audit.Sink, gateway.AuditArchive, error) {
	var (
		sinks   []audit.Sink
		archive gateway.AuditArchive
	)

	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, &cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		shutdown.add("database", func(context.Context) error { return db.Close() })
		if err := db.CreateSchema(ctx); err != nil {
			return nil, nil, err
		}
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))

		pg := audit.NewPostgresSink(db.DB, log)
		sinks = append(sinks, pg)
		archive = pg
	}

	if cfg.Broker.Enabled {
		sink, err := audit.DialAMQPSink(cfg.Broker.URL, cfg.Broker.Queue)
		if err != nil {
			return nil, nil, err
		}
		shutdown.add("broker", func(context.Context) error { return sink.Close() })
		health.RegisterChecker("broker", monitoring.NewPingHealthChecker(sink, true))
		sinks = append(sinks, sink)
	}

	if cfg.Redis.Enabled {
		client, err := audit.NewRedisClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return nil, nil, err
		}
		shutdown.add("redis", func(context.Context) error { return client.Close() })
		sink := audit.NewRedisStreamSink(client, cfg.Redis.Stream, cfg.Redis.MaxLen)
		health.RegisterChecker("redis", monitoring.NewPingHealthChecker(sink, true))
		sinks = append(sinks, sink)
	}

	log.WithComponent("audit").WithField("sinks", len(sinks)).Info("Audit sinks configured")
	return sinks, archive, nil
}
