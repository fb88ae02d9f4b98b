package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ekemper/leadGen-sub001/internal/api"
	"github.com/ekemper/leadGen-sub001/internal/breaker"
	"github.com/ekemper/leadGen-sub001/internal/campaign"
	"github.com/ekemper/leadGen-sub001/internal/config"
	"github.com/ekemper/leadGen-sub001/internal/counter"
	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/metrics"
	"github.com/ekemper/leadGen-sub001/internal/pipeline"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/ratelimit"
	redisclient "github.com/ekemper/leadGen-sub001/internal/redis"
	"github.com/ekemper/leadGen-sub001/internal/services"
	"github.com/ekemper/leadGen-sub001/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second
	cascadeTimeout  = time.Minute
	readRetryDelay  = time.Second
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator: HTTP API, worker pool, and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.Must(cfg.Logging)
	log.Info("starting orchestrator")

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(redisclient.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	m := metrics.New()

	// Rate limiter windows and breaker thresholds come from per-service config.
	limiterConfigs := make(map[string]ratelimit.Config, len(cfg.Services))
	breakerConfigs := make(map[string]breaker.Config, len(cfg.Services))
	for name, svc := range cfg.Services {
		limiterConfigs[name] = ratelimit.Config{
			MaxRequests: svc.RateLimit.MaxRequests,
			Period:      svc.RateLimit.Period,
		}
		breakerConfigs[name] = breaker.Config{
			FailureThreshold: svc.Breaker.FailureThreshold,
			FailureWindow:    svc.Breaker.FailureWindow,
			Cooldown:         svc.Breaker.Cooldown,
		}
	}

	store := counter.NewRedisStore(redisClient, cfg.Redis.Prefix)
	limiter := ratelimit.New(store, limiterConfigs, log)

	// Breaker records live in the same Redis as the rate limiter counters, so
	// every orchestrator process shares one view of service health.
	breakerStore := breaker.NewRedisStore(redisClient, cfg.Redis.Prefix)
	registry := breaker.NewRegistry(breakerStore, breakerConfigs, breaker.Config{
		FailureThreshold: config.DefaultFailureThreshold,
		FailureWindow:    config.DefaultFailureWindow,
		Cooldown:         config.DefaultBreakerCooldown,
	}, log)
	registry.OnStateChange(func(service string, _, to breaker.State) {
		m.SetBreakerState(service, breakerGaugeValue(to))
		if to == breaker.StateOpen {
			m.RecordBreakerTrip(service)
		}
	})

	campaignRepo := database.NewCampaignRepository(db)
	jobRepo := database.NewJobRepository(db)
	leadRepo := database.NewLeadRepository(db)

	streams := queue.NewStreamsClient(redisClient, cfg.Redis.Prefix)
	producer := queue.NewProducer(streams, queue.ProducerConfig{})

	hostname, _ := os.Hostname()
	consumer, err := queue.NewConsumer(streams, queue.ConsumerConfig{
		ConsumerID: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	if err = consumer.Initialize(parent); err != nil {
		return fmt.Errorf("failed to initialize consumer groups: %w", err)
	}

	clients := buildServiceClients(cfg)

	campaignService := campaign.NewService(
		campaignRepo, jobRepo, leadRepo, registry, producer, clients.instantly,
		campaign.Config{
			MaxRecords:         cfg.Campaign.MaxRecords,
			AllowedSourceHosts: cfg.Campaign.AllowedSourceHosts,
		},
		log,
	)

	// An opening breaker pauses every running campaign. The cascade runs off
	// the recording goroutine with its own deadline.
	registry.OnOpen(func(service, reason string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cascadeTimeout)
			defer cancel()
			campaignService.PauseAllRunning(ctx, service, reason)
		}()
	})

	pipelineHandler := pipeline.NewHandler(pipeline.HandlerDeps{
		Campaigns: campaignRepo,
		Jobs:      jobRepo,
		Leads:     leadRepo,
		Limiter:   limiter,
		Breakers:  registry,
		Producer:  producer,
		Source:    clients.apollo,
		Verifier:  clients.verifier,
		Enricher:  clients.perplexity,
		CopyGen:   clients.openai,
		Outbound:  clients.instantly,
		Observer:  m,
		Logger:    log,
	})

	pool, err := worker.NewPool(worker.Config{
		PoolSize:     cfg.Worker.PoolSize,
		TaskTimeout:  cfg.Worker.JobTimeout,
		DrainTimeout: cfg.Worker.DrainTimeout,
	}, &ackingHandler{inner: pipelineHandler, consumer: consumer, log: log}, log)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	if err = pool.Start(); err != nil {
		return err
	}

	sweeper := pipeline.NewSweeper(campaignRepo, jobRepo, producer, log)
	scheduler := cron.New()
	_, err = scheduler.AddFunc("@every "+cfg.Worker.CleanupInterval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cascadeTimeout)
		defer cancel()
		if sweepErr := sweeper.RunOnce(ctx); sweepErr != nil {
			log.Error("completion sweep failed", logger.Error(sweepErr))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule completion sweep: %w", err)
	}
	_, err = scheduler.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cascadeTimeout)
		defer cancel()
		claimStale(ctx, consumer, pool, log)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stale claim: %w", err)
	}
	scheduler.Start()

	apiHandler := api.NewHandler(campaignService, jobRepo, leadRepo, limiter, registry, log)
	server := api.NewServer(
		api.ServerConfig{
			Address:     fmt.Sprintf(":%d", cfg.Server.Port),
			Development: cfg.Server.Debug,
		},
		apiHandler,
		map[string]api.HealthCheck{
			"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		m.Handler(),
		log,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	go consumeLoop(ctx, consumer, pool, log)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			log.Error("http server failed", logger.Error(err))
		}
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if stopErr := pool.Stop(shutdownCtx); stopErr != nil {
		log.Warn("worker pool stop failed", logger.Error(stopErr))
	}
	if shutErr := server.Shutdown(shutdownCtx); shutErr != nil {
		log.Warn("http server shutdown failed", logger.Error(shutErr))
	}

	log.Info("orchestrator stopped")
	return err
}

// serviceClients bundles the third-party adapters.
type serviceClients struct {
	apollo     *services.ApolloClient
	verifier   *services.VerifierClient
	perplexity *services.PerplexityClient
	openai     *services.OpenAIClient
	instantly  *services.InstantlyClient
}

func buildServiceClients(cfg *config.Config) serviceClients {
	httpClientFor := func(name string) (*http.Client, config.ServiceConfig) {
		svc := cfg.Services[name]
		timeout := svc.Timeout
		if timeout == 0 {
			timeout = config.DefaultServiceTimeout
		}
		return services.NewHTTPClient(timeout), svc
	}

	apolloHTTP, apolloCfg := httpClientFor(services.Apollo)
	verifierHTTP, verifierCfg := httpClientFor(services.MillionVerifier)
	perplexityHTTP, perplexityCfg := httpClientFor(services.Perplexity)
	openaiHTTP, openaiCfg := httpClientFor(services.OpenAI)
	instantlyHTTP, instantlyCfg := httpClientFor(services.Instantly)

	return serviceClients{
		apollo:     services.NewApolloClient(apolloHTTP, apolloCfg.BaseURL, apolloCfg.APIKey),
		verifier:   services.NewVerifierClient(verifierHTTP, verifierCfg.BaseURL, verifierCfg.APIKey),
		perplexity: services.NewPerplexityClient(perplexityHTTP, perplexityCfg.BaseURL, perplexityCfg.APIKey),
		openai:     services.NewOpenAIClient(openaiHTTP, openaiCfg.BaseURL, openaiCfg.APIKey),
		instantly:  services.NewInstantlyClient(instantlyHTTP, instantlyCfg.BaseURL, instantlyCfg.APIKey),
	}
}

// ackingHandler acknowledges stream messages once the pipeline handled them.
// Failed tasks keep their pending entry and are redelivered by the stale
// claim pass; the job status guard drops replays that already progressed.
type ackingHandler struct {
	inner    worker.Handler
	consumer *queue.Consumer
	log      logger.Logger
}

func (a *ackingHandler) Handle(ctx context.Context, task *queue.ConsumedTask) error {
	err := a.inner.Handle(ctx, task)
	if err != nil {
		return err
	}
	if ackErr := a.consumer.Ack(ctx, task.Stream, task.MessageID); ackErr != nil {
		a.log.Warn("failed to ack message",
			logger.String("messageId", task.MessageID),
			logger.Error(ackErr))
	}
	return nil
}

// consumeLoop reads tasks and feeds them to the pool until the context ends.
func consumeLoop(ctx context.Context, consumer *queue.Consumer, pool *worker.Pool, log logger.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		tasks, err := consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("failed to read tasks", logger.Error(err))
			select {
			case <-time.After(readRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for i := range tasks {
			if err := pool.Submit(ctx, &tasks[i]); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("failed to submit task", logger.Error(err))
			}
		}
	}
}

// claimStale re-dispatches messages abandoned by dead consumers.
func claimStale(ctx context.Context, consumer *queue.Consumer, pool *worker.Pool, log logger.Logger) {
	tasks, err := consumer.ClaimStale(ctx)
	if err != nil {
		log.Error("failed to claim stale tasks", logger.Error(err))
		return
	}
	for i := range tasks {
		if err := pool.Submit(ctx, &tasks[i]); err != nil {
			log.Warn("failed to submit claimed task", logger.Error(err))
		}
	}
}

func breakerGaugeValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}
