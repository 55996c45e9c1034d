package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	cacheadapter "github.com/viralforge/affiliate-ledger/internal/adapters/cache"
	eventadapter "github.com/viralforge/affiliate-ledger/internal/adapters/events"
	grpcadapter "github.com/viralforge/affiliate-ledger/internal/adapters/grpc"
	httpadapter "github.com/viralforge/affiliate-ledger/internal/adapters/http"
	metricsadapter "github.com/viralforge/affiliate-ledger/internal/adapters/metrics"
	"github.com/viralforge/affiliate-ledger/internal/adapters/postgres"
	"github.com/viralforge/affiliate-ledger/internal/adapters/security"
	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	consumer   *eventadapter.ConsumerWorker
	maturation *eventadapter.MaturationWorker
	cleanupFn  func(context.Context)
}

type closer interface{ Close() error }

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping affiliate ledger", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	var closers []closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	closers = append(closers, sqlDB)

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(ctx, db); err != nil {
			cleanup()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	repos := postgres.NewRepositories(db)

	var codeCache ports.CodeCache
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, redisClient)
		codeCache = cacheadapter.NewRedisCodeCache(redisClient)
	} else {
		logger.Warn("REDIS_URL not set; referral code cache disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metricsadapter.NewRecorder("affiliate_ledger", registry)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	tokens, err := newTokenVerifier(cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	if len(cfg.WebhookSecrets) == 0 {
		logger.Warn("WEBHOOK_SECRETS not set; every webhook will be rejected")
	}
	signatures := security.NewHMACSignatureVerifier(cfg.WebhookSecrets, cfg.WebhookSkew)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:             cfg.ServiceID,
			PublicBaseURL:           cfg.PublicBaseURL,
			CommissionRatePercent:   cfg.CommissionRatePercent,
			FreeReferralBonusAmount: cfg.FreeReferralBonusAmount,
			LockInWindowDays:        cfg.LockInWindowDays,
			FreeReferralWindowDays:  cfg.FreeReferralWindowDays,
			CommissionHoldDays:      cfg.CommissionHoldDays,
			MinimumPayoutAmount:     cfg.MinimumPayoutAmount,
			PayoutFeePercent:        cfg.PayoutFeePercent,
			CodeCacheTTL:            cfg.CodeCacheTTL,
			IdempotencyTTL:          cfg.IdempotencyTTL,
			OutboxFlushBatchSize:    cfg.OutboxFlushBatchSize,
		},
		Logger:      logger,
		EventStore:  repos.Events,
		Users:       repos.Users,
		Affiliates:  repos.Affiliates,
		Links:       repos.Links,
		Clicks:      repos.Clicks,
		Referrals:   repos.Referrals,
		Payments:    repos.Payments,
		Ledger:      repos.Ledger,
		Payouts:     repos.Payouts,
		AuditLogs:   repos.AuditLogs,
		Idempotency: repos.Idempotency,
		Outbox:      repos.Outbox,
		CodeCache:   codeCache,
		Metrics:     recorder,
		Policy:      application.NewRolePolicy(cfg.AdminRoles...),
	})

	handler := httpadapter.NewHandler(svc, signatures)
	router := httpadapter.NewRouter(handler, httpadapter.RouterOptions{
		Tokens:   tokens,
		Gatherer: registry,
		Ready:    readiness(db),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	grpcadapter.Register(grpcServer, grpcadapter.NewAffiliateLedgerServer(svc))

	publisher, consumer, err := newMessaging(cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	if c, ok := publisher.(closer); ok {
		closers = append(closers, c)
	}
	if c, ok := consumer.(closer); ok {
		closers = append(closers, c)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     eventadapter.NewOutboxWorker(logger, repos.Outbox, publisher, cfg.OutboxPollInterval, cfg.OutboxFlushBatchSize),
		consumer:   eventadapter.NewConsumerWorker(logger, consumer, svc, cfg.ConsumerPollInterval),
		maturation: eventadapter.NewMaturationWorker(logger, svc, cfg.MaturationInterval),
		cleanupFn:  func(context.Context) { cleanup() },
	}, nil
}

func newTokenVerifier(cfg Config, logger *slog.Logger) (ports.TokenVerifier, error) {
	if cfg.JWTHMACSecret == "" {
		logger.Warn("JWT_HMAC_SECRET not set; authenticated routes will reject every request")
		return nil, nil
	}
	verifier, err := security.NewJWTVerifier(cfg.JWTHMACSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("init jwt verifier: %w", err)
	}
	return verifier, nil
}

// newMessaging picks Kafka when brokers are configured and otherwise falls
// back to a logging publisher and an idle consumer for local runs.
func newMessaging(cfg Config, logger *slog.Logger) (ports.EventPublisher, eventadapter.Consumer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set; outbox events are logged and billing topics are not consumed")
		return eventadapter.NewLoggingPublisher(logger), eventadapter.NewNoopConsumer(), nil
	}
	topics := map[string]string{}
	for _, eventType := range []string{
		domain.EventAffiliateClickTracked,
		domain.EventAffiliateReferralLocked,
		domain.EventAffiliateCommissionCreated,
		domain.EventAffiliateApplicationReviewed,
		domain.EventAffiliatePayoutRequested,
		domain.EventAffiliatePayoutApproved,
		domain.EventAffiliatePayoutRejected,
		domain.EventAffiliatePayoutPaid,
	} {
		topics[eventType] = cfg.KafkaTopicPrefix + eventType
	}
	publisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, topics)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	consumer, err := eventadapter.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaInputTopics)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, fmt.Errorf("init kafka consumer: %w", err)
	}
	return publisher, consumer, nil
}

func readiness(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return postgres.Ping(ctx, db)
	}
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

// RunWorker drives the outbox relay, the billing consumer and the commission
// maturation sweep until the context is cancelled or one of them fails.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	_ = r.grpcLis.Close()

	workers := map[string]func(context.Context) error{
		"outbox":     r.outbox.Run,
		"consumer":   r.consumer.Run,
		"maturation": r.maturation.Run,
	}
	errCh := make(chan error, len(workers))
	for name, run := range workers {
		name, run := name, run
		go func() {
			r.logger.Info("worker started", "worker", name)
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s worker: %w", name, err)
				return
			}
			errCh <- nil
		}()
	}

	var runErr error
	for range workers {
		if err := <-errCh; err != nil && runErr == nil {
			runErr = err
			r.logger.Error("worker failure", "error", err)
			stop()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return runErr
}
