// Package app wires the compliance tracker components into an fx application
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/audit"
	"github.com/aegisshield/compliance-tracker/internal/catalog"
	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/config"
	"github.com/aegisshield/compliance-tracker/internal/events"
	"github.com/aegisshield/compliance-tracker/internal/gap"
	"github.com/aegisshield/compliance-tracker/internal/handlers"
	"github.com/aegisshield/compliance-tracker/internal/metrics"
	"github.com/aegisshield/compliance-tracker/internal/portfolio"
	"github.com/aegisshield/compliance-tracker/internal/scheduler"
	"github.com/aegisshield/compliance-tracker/internal/store"
	"github.com/aegisshield/compliance-tracker/internal/store/pgstore"
	"github.com/aegisshield/compliance-tracker/internal/store/redisstore"
	"github.com/aegisshield/compliance-tracker/internal/tracker"
)

// Core provides every component except the HTTP server
func Core(cfg *config.Config, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			newCollector,
			newStore,
			newCatalog,
			newAuditLogger,
			newEventSink,
			newTracker,
			newAnalyzer,
			newPortfolio,
			newScheduler,
		),
	)
}

// Server provides the full service: core components plus the HTTP server
func Server(cfg *config.Config, logger *zap.Logger) fx.Option {
	return fx.Options(
		Core(cfg, logger),
		fx.Provide(newHandler, newHTTPServer),
		fx.Invoke(func(*scheduler.Scheduler, *http.Server) {}),
	)
}

func newCollector() *metrics.Collector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

// newStore opens the configured backend and instruments it
func newStore(lc fx.Lifecycle, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (store.Store, error) {
	var s store.Store

	switch cfg.Store.Backend {
	case config.BackendMemory:
		s = store.NewMemoryStore()

	case config.BackendPostgres:
		pg, err := pgstore.Open(context.Background(), pgstore.Config{
			DSN:             cfg.GetDatabaseDSN(),
			MaxOpenConns:    cfg.Database.PoolSize,
			MaxIdleConns:    cfg.Database.PoolSize / 2,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.MigrationsEnabled {
			if err := pgstore.Migrate(pg.DB().DB, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return pg.Close() }})
		s = pg

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
			PoolSize: cfg.Redis.PoolSize,
		})
		rs := redisstore.New(client, cfg.Redis.KeyPrefix, logger)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := rs.Ping(ctx); err != nil {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}
				return nil
			},
			OnStop: func(context.Context) error { return client.Close() },
		})
		s = rs

	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}

	logger.Info("Document store ready", zap.String("backend", cfg.Store.Backend))
	return metrics.InstrumentStore(s, collector), nil
}

func newCatalog(lc fx.Lifecycle, cfg *config.Config, s store.Store, logger *zap.Logger) (*catalog.Catalog, error) {
	c := catalog.New(catalog.WithBuiltins(), catalog.WithLogger(logger))

	if path := cfg.Catalog.FrameworksFile; path != "" {
		n, err := c.LoadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Frameworks loaded from file", zap.String("path", path), zap.Int("count", n))
	}

	if cfg.Catalog.Persist {
		lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
			if _, err := c.LoadStored(ctx, s); err != nil {
				return err
			}
			return c.Persist(ctx, s)
		}})
	}
	return c, nil
}

// newAuditLogger returns nil when the audit trail is disabled
func newAuditLogger(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*audit.Logger, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	db, err := audit.Open(cfg.GetDatabaseDSN())
	if err != nil {
		return nil, err
	}
	al := audit.NewLogger(db, logger)
	if cfg.Audit.AutoMigrate {
		if err := al.AutoMigrate(); err != nil {
			return nil, err
		}
	}

	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}})
	return al, nil
}

// newEventSink fans events out to metrics, Kafka and the audit trail
func newEventSink(lc fx.Lifecycle, cfg *config.Config, collector *metrics.Collector, al *audit.Logger, logger *zap.Logger) (compliance.EventSink, error) {
	sinks := events.Multi{collector}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return publisher.Close() }})
		sinks = append(sinks, publisher)
	}

	if al != nil {
		sinks = append(sinks, al)
	}
	return sinks, nil
}

func newTracker(cfg *config.Config, s store.Store, c *catalog.Catalog, sink compliance.EventSink, logger *zap.Logger) *tracker.Tracker {
	return tracker.New(s, c, logger,
		tracker.WithEventSink(sink),
		tracker.WithCallTimeout(cfg.Store.CallTimeout),
		tracker.WithMaxConflictRetries(cfg.Store.MaxConflictRetries))
}

func newAnalyzer() *gap.Analyzer {
	return gap.NewAnalyzer()
}

func newPortfolio(t *tracker.Tracker, a *gap.Analyzer, collector *metrics.Collector, logger *zap.Logger) *portfolio.Service {
	return portfolio.NewService(t, a, logger, portfolio.WithObserver(collector))
}

func newScheduler(lc fx.Lifecycle, cfg *config.Config, svc *portfolio.Service, sink compliance.EventSink, logger *zap.Logger) (*scheduler.Scheduler, error) {
	s, err := scheduler.New(cfg.Scan, svc, sink, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
	return s, nil
}

func newHandler(t *tracker.Tracker, svc *portfolio.Service, sched *scheduler.Scheduler, al *audit.Logger, collector *metrics.Collector, logger *zap.Logger) *handlers.ComplianceHandler {
	return handlers.NewComplianceHandler(handlers.Deps{
		Tracker:   t,
		Portfolio: svc,
		Scheduler: sched,
		Audit:     al,
		Metrics:   collector,
	}, logger)
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, h *handlers.ComplianceHandler, logger *zap.Logger) *http.Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.HTTPPort)),
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
