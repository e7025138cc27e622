package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bulkservice "credreg/internal/bulk/service"
	bulkmemory "credreg/internal/bulk/store/memory"
	bulkpostgres "credreg/internal/bulk/store/postgres"
	credhandler "credreg/internal/credential/handler"
	credservice "credreg/internal/credential/service"
	credmemory "credreg/internal/credential/store/memory"
	credpostgres "credreg/internal/credential/store/postgres"
	credredis "credreg/internal/credential/store/redis"
	"credreg/internal/issuance"
	"credreg/internal/platform/config"
	"credreg/internal/platform/httpserver"
	"credreg/internal/platform/logger"
	"credreg/internal/platform/metrics"
	"credreg/internal/platform/postgres"
	"credreg/internal/platform/redis"
	"credreg/internal/providers"
	"credreg/internal/providers/crypto"
	"credreg/internal/providers/identity"
	"credreg/internal/providers/ledger"
	ratelimit "credreg/internal/ratelimit/middleware"
	ratelimitmodels "credreg/internal/ratelimit/models"
	"credreg/internal/ratelimit/store/bucket"
	"credreg/internal/revocation"
	schemahandler "credreg/internal/schema/handler"
	schemamodels "credreg/internal/schema/models"
	schemaservice "credreg/internal/schema/service"
	schemamemory "credreg/internal/schema/store/memory"
	schemapostgres "credreg/internal/schema/store/postgres"
	httptransport "credreg/internal/transport/http"
	"credreg/internal/verification"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/audit/publisher"
	kafkasink "credreg/pkg/platform/audit/store/kafka"
	auditmemory "credreg/pkg/platform/audit/store/memory"
	auditpostgres "credreg/pkg/platform/audit/store/postgres"
)

// main wires dependencies, serves HTTP and shuts down on SIGINT/SIGTERM.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

type credentialStore interface {
	credservice.Store
	issuance.CredentialStore
	verification.CredentialReader
	revocation.CredentialStore
}

type backends struct {
	credentials credentialStore
	schemas     schemaservice.Store
	batches     bulkservice.BatchStore
	db          *sql.DB
	redis       *redis.Client
}

func (b *backends) close() {
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

// openBackends picks PostgreSQL, then Redis, then process memory.
func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("using postgres storage")
		return &backends{
			credentials: credpostgres.NewPostgres(db),
			schemas:     schemapostgres.NewPostgres(db),
			batches:     bulkpostgres.NewPostgres(db),
			db:          db,
		}, nil
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		log.Info("using redis credential storage")
		return &backends{
			credentials: credredis.NewRedis(rc.Client),
			schemas:     schemamemory.NewInMemory(),
			batches:     bulkmemory.NewInMemory(0),
			redis:       rc,
		}, nil
	}

	log.Info("using in-memory storage")
	return &backends{
		credentials: credmemory.NewInMemory(),
		schemas:     schemamemory.NewInMemory(),
		batches:     bulkmemory.NewInMemory(0),
	}, nil
}

// telemetrySink picks Kafka, then PostgreSQL, then an in-memory sink.
func telemetrySink(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) (audit.Sink, func(), error) {
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafkasink.New(ctx, kafkasink.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return nil, nil, err
		}
		log.Info("publishing telemetry to kafka", "topic", cfg.Kafka.Topic)
		return sink, sink.Close, nil
	}
	if db != nil {
		return auditpostgres.New(db), func() {}, nil
	}
	return auditmemory.NewInMemoryStore(), func() {}, nil
}

func cryptoProvider(cfg config.Config, client *http.Client) (providers.CryptoProvider, error) {
	if cfg.Provider.CryptoURL != "" {
		return crypto.NewHTTPProvider(cfg.Provider.CryptoURL, client), nil
	}
	return crypto.NewDevProvider(cfg.Provider.CryptoDevSecret)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	stores, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	sink, closeSink, err := telemetrySink(ctx, cfg, stores.db, log)
	if err != nil {
		return err
	}
	defer closeSink()
	telemetry := publisher.New(sink,
		publisher.WithLogger(log),
		publisher.WithDropCounter(m),
	)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Close(flushCtx); err != nil {
			log.Warn("telemetry flush incomplete", "error", err)
		}
	}()

	schemas := schemaservice.New(stores.schemas,
		schemaservice.WithLogger(log),
		schemaservice.WithAuditPublisher(telemetry),
	)
	if cfg.SeedSchemas {
		if err := schemas.Seed(ctx, schemamodels.Predefined()); err != nil {
			return fmt.Errorf("seed schemas: %w", err)
		}
	}

	accounts, err := identity.New(cfg.Identity.SigningKey, cfg.Identity.ServiceDID, cfg.Identity.TokenTTL, identity.WithLogger(log))
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	providerClient := &http.Client{Timeout: cfg.Provider.Timeout}
	proofs, err := cryptoProvider(cfg, providerClient)
	if err != nil {
		return fmt.Errorf("crypto provider: %w", err)
	}

	issuanceOpts := []issuance.Option{
		issuance.WithLogger(log),
		issuance.WithAuditPublisher(telemetry),
		issuance.WithMetrics(m),
		issuance.WithProviderTimeout(cfg.Provider.Timeout),
	}
	if cfg.Provider.LedgerURL != "" {
		issuanceOpts = append(issuanceOpts, issuance.WithLedger(ledger.New(cfg.Provider.LedgerURL, cfg.Provider.LedgerContractRef, providerClient)))
	}
	orchestrator, err := issuance.New(schemas, stores.credentials, accounts, proofs, issuanceOpts...)
	if err != nil {
		return err
	}
	verifier, err := verification.New(stores.credentials, accounts, proofs,
		verification.WithLogger(log),
		verification.WithAuditPublisher(telemetry),
		verification.WithMetrics(m),
		verification.WithProviderTimeout(cfg.Provider.Timeout),
	)
	if err != nil {
		return err
	}
	revoker := revocation.New(stores.credentials,
		revocation.WithLogger(log),
		revocation.WithAuditPublisher(telemetry),
		revocation.WithMetrics(m),
	)
	bulk := bulkservice.New(orchestrator, stores.batches,
		bulkservice.WithLogger(log),
		bulkservice.WithAuditPublisher(telemetry),
		bulkservice.WithMetrics(m),
		bulkservice.WithMaxConcurrency(cfg.Bulk.MaxConcurrency),
		bulkservice.WithMaxRecords(cfg.Bulk.MaxRecords),
	)

	registry := httptransport.NewHandler(orchestrator, verifier, revoker, bulk, schemas, log)
	registry.AddHealthCheck("credential_store", stores.credentials.Health)

	var buckets ratelimit.BucketStore
	if stores.redis != nil {
		buckets = bucket.NewRedisBucketStore(stores.redis.Client)
	} else {
		mem := bucket.NewInMemoryBucketStore()
		go sweepBuckets(ctx, mem, time.Minute)
		buckets = mem
	}
	limiter := ratelimit.New(buckets, log,
		ratelimit.WithDisabled(!cfg.Limits.Enabled),
		ratelimit.WithMetrics(m),
		ratelimit.WithLimit(ratelimitmodels.ClassWrite, ratelimitmodels.Limit{Requests: cfg.Limits.WritePerMinute, Window: time.Minute}),
		ratelimit.WithLimit(ratelimitmodels.ClassBulk, ratelimitmodels.Limit{Requests: cfg.Limits.BulkPerMinute, Window: time.Minute}),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Registry:    registry,
		Schemas:     schemahandler.New(schemas, log),
		Credentials: credhandler.New(credservice.New(stores.credentials, credservice.WithLogger(log)), log),
		Logger:      log,
		Metrics:     m,
		Tokens:      accounts,
		RequireAuth: cfg.Server.RequireAuth,
		Limiter:     limiter,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting credreg", "addr", cfg.Server.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func sweepBuckets(ctx context.Context, store *bucket.InMemoryBucketStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}
