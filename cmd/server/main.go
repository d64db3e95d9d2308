package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	httpapi "kycflow/internal/http"
	jwttoken "kycflow/internal/jwt_token"
	"kycflow/internal/kyc"
	"kycflow/internal/notification"
	orgcache "kycflow/internal/org/cache"
	orghandler "kycflow/internal/org/handler"
	orgmodels "kycflow/internal/org/models"
	orgservice "kycflow/internal/org/service"
	orgstore "kycflow/internal/org/store"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/httpserver"
	"kycflow/internal/platform/kafka"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/platform/postgres"
	redisclient "kycflow/internal/platform/redis"
	"kycflow/internal/platform/tracing"
	workflowhandler "kycflow/internal/workflow/handler"
	workflowmetrics "kycflow/internal/workflow/metrics"
	workflowservice "kycflow/internal/workflow/service"
	workflowstore "kycflow/internal/workflow/store"
)

const devSigningKey = "dev-secret-key-change-in-production"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("kycflow stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.IsProduction() && cfg.JWT.SigningKey == devSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flushing spans failed", "error", err)
		}
	}()

	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close(log)

	// The cache loads through the org service, and the org service invalidates
	// the cache after writes.
	var org *orgservice.Service
	snapshots := orgcache.New(orgcache.LoaderFunc(func(ctx context.Context) (*orgmodels.Snapshot, error) {
		return org.Snapshot(ctx)
	}), infra.cacheOptions(cfg, log)...)

	orgOpts := []orgservice.Option{
		orgservice.WithLogger(log),
		orgservice.WithInvalidator(snapshots),
	}
	if infra.db != nil {
		orgOpts = append(orgOpts, orgservice.WithTx(newOrgPostgresTx(infra.db)))
	}
	org = orgservice.New(infra.orgStore, infra.workflowStore, orgOpts...)
	if err := org.EnsureSuperAdmin(ctx, cfg.Org.SuperAdminOrder); err != nil {
		return err
	}

	dispatcher := notification.NewDispatcher(infra.sink,
		notification.WithBufferSize(cfg.Notification.BufferSize),
		notification.WithBatchSize(cfg.Notification.BatchSize),
		notification.WithFlushInterval(cfg.Notification.FlushInterval),
		notification.WithLogger(log),
	)

	engine := workflowservice.New(infra.workflowStore, snapshots, infra.records,
		workflowservice.WithLogger(log),
		workflowservice.WithMetrics(workflowmetrics.New()),
		workflowservice.WithNotifier(dispatcher),
	)

	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience),
	)

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Validator:      jwtValidator,
		Metrics:        metrics.New(nil),
		Workflows:      workflowhandler.New(engine, log),
		Admin:          orghandler.New(org, log),
		HealthChecks:   infra.healthChecks(),
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	srv := httpserver.New(cfg.Addr, router, cfg.HTTP, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting kycflow", "addr", srv.Addr(), "env", cfg.Environment)
		return srv.Run(gctx)
	})
	return g.Wait()
}

// infra holds the adapters selected by configuration. Every external system is
// optional so the service runs standalone in development.
type infra struct {
	db            *sql.DB
	redis         *redisclient.Client
	kafkaClose    func()
	orgStore      orgservice.Store
	workflowStore interface {
		workflowservice.Store
		orgservice.WorkflowCounter
	}
	records kyc.Records
	sink    notification.Sink
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		in.db = db
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				in.close(log)
				return nil, err
			}
		}
		in.orgStore = orgstore.NewPostgres(db)
		in.workflowStore = workflowstore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		in.orgStore = orgstore.NewInMemory()
		in.workflowStore = workflowstore.NewInMemory()
	}

	in.redis, err = redisclient.New(ctx, cfg.Redis)
	if err != nil {
		in.close(log)
		return nil, err
	}

	if cfg.KycRecords.BaseURL != "" {
		in.records = kyc.NewClient(cfg.KycRecords.BaseURL, cfg.KycRecords.APIKey, cfg.KycRecords.Timeout, kyc.WithLogger(log))
	} else {
		log.Warn("KYC_RECORDS_URL not set, using in-memory records")
		in.records = kyc.NewInMemory()
	}

	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		in.close(log)
		return nil, err
	}
	if kafkaClient != nil {
		in.kafkaClose = kafkaClient.Close
		if err := notification.EnsureTopic(ctx, kafkaClient, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			in.close(log)
			return nil, err
		}
		in.sink = notification.NewKafkaSink(kafkaClient, cfg.Kafka.Topic)
	} else {
		in.sink = notification.NewLogSink(log)
	}
	return in, nil
}

func (in *infra) cacheOptions(cfg config.Server, log *slog.Logger) []orgcache.Option {
	opts := []orgcache.Option{
		orgcache.WithTTL(cfg.Org.SnapshotTTL),
		orgcache.WithLogger(log),
	}
	if in.redis != nil {
		opts = append(opts, orgcache.WithRedis(in.redis.Client))
	}
	return opts
}

func (in *infra) healthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	return checks
}

func (in *infra) close(log *slog.Logger) {
	if in.kafkaClose != nil {
		in.kafkaClose()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			log.Warn("postgres close failed", "error", err)
		}
	}
}
