package main

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

	"golang.org/x/sync/errgroup"

	"foodlink/internal/attributes"
	attrmemory "foodlink/internal/attributes/memory"
	"foodlink/internal/attributes/sparql"
	claimhandler "foodlink/internal/claim/handler"
	claimservice "foodlink/internal/claim/service"
	claimstore "foodlink/internal/claim/store"
	donationhandler "foodlink/internal/donation/handler"
	donationservice "foodlink/internal/donation/service"
	donationstore "foodlink/internal/donation/store"
	jwttoken "foodlink/internal/jwt_token"
	"foodlink/internal/mirror"
	mirrorhandler "foodlink/internal/mirror/handler"
	"foodlink/internal/notify"
	"foodlink/internal/outbox"
	outboxstore "foodlink/internal/outbox/store"
	"foodlink/internal/platform/config"
	"foodlink/internal/platform/httpserver"
	"foodlink/internal/platform/logger"
	"foodlink/internal/platform/metrics"
	"foodlink/internal/platform/postgres"
	"foodlink/internal/platform/redis"
	lockoutservice "foodlink/internal/ratelimit/service"
	lockoutstore "foodlink/internal/ratelimit/store"
	"foodlink/internal/reaper"
	searchhandler "foodlink/internal/search/handler"
	searchservice "foodlink/internal/search/service"
	httptransport "foodlink/internal/transport/http"
	"foodlink/migrations"
	"foodlink/pkg/platform/circuit"
	"foodlink/pkg/platform/tx"
)

// stores groups the record store implementations picked for this process.
type stores struct {
	donations interface {
		donationservice.Store
		claimservice.DonationStore
		mirror.Records
		searchservice.Records
	}
	claims interface {
		claimservice.ClaimStore
		donationservice.ClaimHistory
	}
	outbox interface {
		outbox.Store
		donationservice.Outbox
		claimservice.Outbox
	}
	runner       tx.Runner
	workerRunner tx.Runner
}

// main wires high-level dependencies, exposes the HTTP router, and runs the
// background workers until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("foodlink stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthCheck{}

	st, closeDB, err := openStores(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeDB()

	attrs, err := openAttributes(cfg, log, checks)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
	}

	publisher, closePublisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	donations, err := donationservice.New(st.donations, st.claims, st.outbox, st.runner,
		donationservice.WithLogger(log))
	if err != nil {
		return err
	}
	var lockouts lockoutservice.Store = lockoutstore.NewInMemory()
	if redisClient != nil {
		lockouts = lockoutstore.NewRedis(redisClient.Client)
	}
	limiter, err := lockoutservice.New(lockouts,
		lockoutservice.WithLogger(log),
		lockoutservice.WithMetrics(lockoutservice.NewMetrics()),
		lockoutservice.WithConfig(lockoutservice.Config{
			MaxAttempts:  cfg.Verify.MaxAttempts,
			Window:       cfg.Verify.Window,
			LockDuration: cfg.Verify.LockDuration,
		}))
	if err != nil {
		return err
	}
	claims, err := claimservice.New(st.claims, st.donations, st.outbox, st.runner,
		claimservice.WithLogger(log),
		claimservice.WithMetrics(claimservice.NewMetrics()),
		claimservice.WithAttemptLimiter(limiter))
	if err != nil {
		return err
	}
	search, err := searchservice.New(attrs, st.donations,
		searchservice.WithLogger(log),
		searchservice.WithMetrics(searchservice.NewMetrics()))
	if err != nil {
		return err
	}

	mirrorMetrics := mirror.NewMetrics()
	mirrorHandler, err := mirror.NewHandler(attrs, st.donations,
		mirror.WithLogger(log),
		mirror.WithMetrics(mirrorMetrics),
		mirror.WithBreaker(circuit.New("attribute-store")))
	if err != nil {
		return err
	}
	reconciler, err := mirror.NewReconciler(attrs, st.donations,
		mirror.WithReconcileLogger(log),
		mirror.WithReconcileMetrics(mirrorMetrics),
		mirror.WithInterval(cfg.Outbox.ReconcileInterval))
	if err != nil {
		return err
	}
	notifyHandler, err := notify.NewHandler(publisher, notify.NewMetrics())
	if err != nil {
		return err
	}

	worker, err := outbox.NewWorker(st.outbox, st.workerRunner, log,
		outbox.WithMetrics(outbox.NewMetrics()),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithBaseRetryDelay(cfg.Outbox.BaseRetryDelay),
		outbox.WithLeaseDuration(cfg.Outbox.LeaseDuration),
		outbox.WithDispatchTimeout(cfg.Outbox.DispatchTimeout))
	if err != nil {
		return err
	}
	worker.Register(mirrorHandler, mirror.Kinds...)
	worker.Register(notifyHandler, notify.Kinds...)

	reaperOpts := []reaper.Option{
		reaper.WithLogger(log),
		reaper.WithMetrics(reaper.NewMetrics()),
		reaper.WithClaimInterval(cfg.Reaper.ClaimInterval),
		reaper.WithDonationInterval(cfg.Reaper.DonationInterval),
		reaper.WithBatchSize(cfg.Reaper.BatchSize),
		reaper.WithLockTTL(cfg.Reaper.LockTTL),
	}
	if redisClient != nil {
		reaperOpts = append(reaperOpts, reaper.WithLocker(reaper.NewRedisLocker(redisClient.Client)))
	}
	sweeper, err := reaper.New(claims, reaperOpts...)
	if err != nil {
		return err
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Metrics:   metrics.New(),
		Validator: jwttoken.NewActorValidator(tokens),
		Checks:    checks,
		Handlers: []httptransport.Registrar{
			searchhandler.New(search, log),
			donationhandler.New(donations, log),
			claimhandler.New(claims, log),
			mirrorhandler.New(reconciler, log),
		},
	})
	srv := httpserver.New(cfg.Addr, router, httpserver.WithWriteTimeout(cfg.WriteTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting foodlink", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error { return ignoreCanceled(worker.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(sweeper.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(reconciler.Run(gctx)) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openStores picks Postgres when DATABASE_URL is set and in-memory stores
// otherwise. In memory the outbox worker gets its own lock so a long drain
// never blocks request transactions.
func openStores(ctx context.Context, cfg config.Server, log *slog.Logger, checks map[string]httptransport.HealthCheck) (*stores, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory record stores")
		return &stores{
			donations:    donationstore.NewInMemory(),
			claims:       claimstore.NewInMemory(),
			outbox:       outboxstore.NewInMemory(),
			runner:       tx.NewLockRunner(),
			workerRunner: tx.NewLockRunner(),
		}, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	checks["postgres"] = db.PingContext
	runner := tx.NewSQLRunner(db)
	return &stores{
		donations:    donationstore.NewPostgres(db),
		claims:       claimstore.NewPostgres(db),
		outbox:       outboxstore.NewPostgres(db),
		runner:       runner,
		workerRunner: runner,
	}, func() { _ = db.Close() }, nil
}

func openAttributes(cfg config.Server, log *slog.Logger, checks map[string]httptransport.HealthCheck) (attributes.Store, error) {
	if cfg.Attributes.QueryURL == "" {
		log.Warn("SPARQL_QUERY_URL not set, using in-memory attribute store")
		return attrmemory.New(), nil
	}
	client, err := sparql.New(cfg.Attributes.QueryURL, cfg.Attributes.UpdateURL,
		sparql.WithTimeout(cfg.Attributes.Timeout))
	if err != nil {
		return nil, err
	}
	checks["sparql"] = client.Ping
	return client, nil
}

func openPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (notify.Publisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, claim notifications are only logged")
		return notify.NewLogPublisher(log), func() {}, nil
	}
	p, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic)
	if err != nil {
		return nil, nil, err
	}
	if err := p.EnsureTopic(ctx, cfg.Kafka.TopicPartitions, cfg.Kafka.ReplicationFactor); err != nil {
		p.Close()
		return nil, nil, err
	}
	return p, p.Close, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
