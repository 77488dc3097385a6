// RelayPoint Message Router
//
// Standalone router binary. Pulls message pointers from the configured
// broker (embedded NATS, external NATS, AWS SQS, or ActiveMQ over STOMP)
// and delivers them to HTTP processing endpoints with per-pool
// concurrency, in-group ordering, and rate limits.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.relaypoint.io/internal/common/health"
	"go.relaypoint.io/internal/common/leader"
	"go.relaypoint.io/internal/common/lifecycle"
	"go.relaypoint.io/internal/common/secrets"
	"go.relaypoint.io/internal/config"
	"go.relaypoint.io/internal/queue"
	activemqqueue "go.relaypoint.io/internal/queue/activemq"
	natsqueue "go.relaypoint.io/internal/queue/nats"
	sqsqueue "go.relaypoint.io/internal/queue/sqs"
	"go.relaypoint.io/internal/router/api"
	"go.relaypoint.io/internal/router/configsource"
	routerhealth "go.relaypoint.io/internal/router/health"
	"go.relaypoint.io/internal/router/manager"
	"go.relaypoint.io/internal/router/mediator"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/notification"
	"go.relaypoint.io/internal/router/standby"
	"go.relaypoint.io/internal/router/traffic"
	"go.relaypoint.io/internal/router/warning"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	setupLogging()

	slog.Info("Starting RelayPoint Message Router",
		"version", version,
		"build_time", buildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ========================================
	// 1. CONFIGURATION
	// ========================================
	cfg, err := config.LoadWithFile()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := resolveSecretRefs(ctx, cfg); err != nil {
		slog.Error("Failed to resolve secret references", "error", err)
		os.Exit(1)
	}

	// ========================================
	// 2. BROKER SETUP
	// ========================================
	broker, err := setupBroker(ctx, cfg)
	if err != nil {
		slog.Error("Failed to set up broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := broker.close(); err != nil {
			slog.Warn("Broker shutdown error", "error", err)
		}
	}()

	// ========================================
	// 3. COMPONENT WIRING
	// ========================================

	// Delivery with per-origin circuit breakers
	httpMediator := mediator.NewHTTPMediator(mediator.DefaultHTTPMediatorConfig())

	// Warnings, forwarded to the notification pipeline when one is enabled
	warningStore := warning.NewInMemoryService()
	notifier := setupNotifications(cfg)
	var warningService warning.Service = warningStore
	if notifier != nil {
		warningService = &notifyingWarningService{Service: warningStore, notifier: notifier}
	}

	// In-memory statistics behind the monitoring API
	poolMetrics := routermetrics.NewInMemoryPoolMetricsService()
	queueMetrics := routermetrics.NewInMemoryQueueMetricsService()
	if broker.startMetrics != nil {
		broker.startMetrics(ctx, queueMetrics)
	}

	// Pool manager and routing engine
	routerManager := manager.NewRouterManager(httpMediator).
		WithPoolLimits(manager.PoolLimits{
			MaxPools:      cfg.Router.MaxPools,
			WarnThreshold: cfg.Router.PoolWarnThreshold,
		}).
		WithPoolMetrics(poolMetrics).
		WithWarnings(warningService).
		WithVisibilityExtender(manager.DefaultVisibilityExtenderConfig()).
		WithLeakDetection(manager.DefaultLeakDetectionConfig())

	syncCfg := manager.DefaultConfigSyncConfig()
	if cfg.Router.SyncInterval > 0 {
		syncCfg.Interval = cfg.Router.SyncInterval
	}

	messageRouter := manager.NewRouter(routerManager, setupConfigSource(cfg), broker.factory).
		WithConfigSync(syncCfg).
		WithQueueMetrics(queueMetrics)
	routerService := manager.NewRouterService(messageRouter)

	// Health aggregation
	infraHealth := routerhealth.NewInfrastructureHealthService(true, poolMetrics)
	brokerHealth := routerhealth.NewBrokerHealthService(true, broker.queueType, broker.checker)
	healthStatus := routerhealth.NewHealthStatusService(infraHealth, brokerHealth, poolMetrics)
	healthStatus.SetBreakerSource(httpMediator)
	healthStatus.SetWarningSource(warningService)
	healthStatus.SetQueueStatsSource(queueMetrics)
	routerService.WithStartedCallback(infraHealth.SetRouterStarted)

	// Traffic management and standby coordination
	trafficService := traffic.NewService(&traffic.Config{
		Enabled:  cfg.Traffic.Enabled,
		Strategy: cfg.Traffic.Strategy,
	})

	standbyService, redisCheck, err := setupStandbyService(cfg, routerService, trafficService)
	if err != nil {
		slog.Error("Failed to set up standby coordination", "error", err)
		os.Exit(1)
	}
	if standbyService.IsEnabled() {
		messageRouter.WithStandbyChecker(standbyService)
	}

	// Monitoring API
	monitoring := api.NewMonitoringHandler(healthStatus, poolMetrics)
	monitoring.SetQueueStats(queueMetrics)
	monitoring.SetWarningService(warningService)
	monitoring.SetBreakerAdmin(httpMediator)
	monitoring.SetInFlightSource(routerManager)
	monitoring.SetStandbyService(standbyService)
	monitoring.SetTrafficService(trafficService)

	// Readiness and liveness
	healthChecker := health.NewChecker()
	healthChecker.AddReadinessCheck(broker.readiness)
	healthChecker.AddReadinessCheck(health.RouterCheck(
		messageRouter.IsInitialized,
		standbyService.IsStandby,
		routerManager.PoolCount,
	))
	if redisCheck != nil {
		healthChecker.AddReadinessCheck(redisCheck)
	}

	httpRouter := setupHTTPRouter(cfg, healthChecker, monitoring,
		api.NewKubernetesHealthHandler(infraHealth, brokerHealth), standbyService)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ========================================
	// 4. SERVICE STARTUP
	// ========================================
	// Start order: HTTP first so health endpoints answer during a slow
	// initial sync, the router last so it is the first to drain on stop.
	services := []lifecycle.Service{
		lifecycle.NewHTTPService("http-server", httpServer),
	}
	if notifier != nil {
		services = append(services, notifier)
	}
	services = append(services, newStandbyRunner(standbyService), routerService)

	slog.Info("Router ready",
		"port", cfg.HTTP.Port,
		"queueType", string(broker.queueType),
		"standby", standbyService.IsEnabled(),
		"configURL", cfg.Router.ConfigURL != "")

	// ========================================
	// 5. RUN UNTIL SHUTDOWN
	// ========================================
	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("Service error", "error", err)
		os.Exit(1)
	}

	slog.Info("RelayPoint Message Router stopped")
}

// setupLogging configures the slog default logger.
func setupLogging() {
	logLevel := slog.LevelInfo
	if os.Getenv("RELAYPOINT_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// resolveSecretRefs replaces "secret://name" values in credential fields
// with the named secret from the configured provider. The provider is only
// initialized when at least one reference is present.
func resolveSecretRefs(ctx context.Context, cfg *config.Config) error {
	fields := []*string{
		&cfg.Router.AuthToken,
		&cfg.Queue.ActiveMQ.Username,
		&cfg.Queue.ActiveMQ.Password,
		&cfg.Notifications.Email.Password,
	}

	var provider secrets.Provider
	for _, field := range fields {
		name, ok := strings.CutPrefix(*field, "secret://")
		if !ok || name == "" {
			continue
		}

		if provider == nil {
			p, err := secrets.NewProvider(nil)
			if err != nil {
				return fmt.Errorf("failed to initialize secrets provider: %w", err)
			}
			provider = p
		}

		value, err := provider.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to resolve secret %q: %w", name, err)
		}
		*field = value
	}
	return nil
}

// brokerResources bundles what the wiring needs from the configured broker:
// a consumer factory for the routing engine, a connectivity checker for
// health reporting, a readiness check for /q/health, and a shutdown hook.
type brokerResources struct {
	queueType    queue.QueueType
	factory      manager.ConsumerFactory
	checker      routerhealth.BrokerConnectivityChecker
	readiness    health.CheckFunc
	startMetrics func(ctx context.Context, qm routermetrics.QueueMetricsService)
	close        func() error
}

// setupBroker initializes the broker backend named in the configuration.
func setupBroker(ctx context.Context, cfg *config.Config) (*brokerResources, error) {
	switch queue.QueueType(strings.ToLower(cfg.Queue.Type)) {
	case queue.QueueTypeEmbedded, "":
		return setupEmbeddedBroker(ctx, cfg)
	case queue.QueueTypeNATS:
		return setupNATSBroker(ctx, cfg)
	case queue.QueueTypeSQS:
		return setupSQSBroker(ctx, cfg)
	case queue.QueueTypeActiveMQ:
		return setupActiveMQBroker(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown queue type: %s (use 'embedded', 'nats', 'sqs' or 'activemq')", cfg.Queue.Type)
	}
}

func setupEmbeddedBroker(ctx context.Context, cfg *config.Config) (*brokerResources, error) {
	embCfg := natsqueue.DefaultEmbeddedConfig()
	if cfg.Queue.NATS.DataDir != "" {
		embCfg.DataDir = cfg.Queue.NATS.DataDir
	}
	if cfg.Queue.NATS.StreamName != "" {
		embCfg.StreamName = cfg.Queue.NATS.StreamName
	}
	if len(cfg.Queue.NATS.Subjects) > 0 {
		embCfg.Subjects = cfg.Queue.NATS.Subjects
	}
	if cfg.Queue.NATS.ConsumerName != "" {
		embCfg.ConsumerName = cfg.Queue.NATS.ConsumerName
	}

	embedded, err := natsqueue.NewEmbeddedServer(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS server: %w", err)
	}

	slog.Info("Embedded NATS server started",
		"port", embedded.Port(),
		"dataDir", embedded.DataDir(),
		"stream", embCfg.StreamName)

	natsCfg := &queue.NATSConfig{
		StreamName:   embCfg.StreamName,
		ConsumerName: embCfg.ConsumerName,
		Subjects:     embCfg.Subjects,
	}

	factory := func(ref configsource.QueueRef) (queue.Consumer, error) {
		subject := natsSubject(ref)
		return embedded.CreateConsumer(ctx, durableNameFor(embCfg.ConsumerName, subject), subject, natsCfg)
	}

	checker := routerhealth.CheckerFunc(func(context.Context) error {
		if !embedded.Connection().IsConnected() {
			return fmt.Errorf("embedded NATS connection lost")
		}
		return nil
	})

	return &brokerResources{
		queueType: queue.QueueTypeEmbedded,
		factory:   factory,
		checker:   checker,
		readiness: health.NATSCheck(func() bool { return embedded.Connection().IsConnected() }),
		close:     embedded.Close,
	}, nil
}

func setupNATSBroker(ctx context.Context, cfg *config.Config) (*brokerResources, error) {
	slog.Info("Connecting to NATS server", "url", cfg.Queue.NATS.URL)

	client, err := natsqueue.NewClient(&queue.NATSConfig{
		URL:          cfg.Queue.NATS.URL,
		StreamName:   cfg.Queue.NATS.StreamName,
		ConsumerName: cfg.Queue.NATS.ConsumerName,
		Subjects:     cfg.Queue.NATS.Subjects,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	factory := func(ref configsource.QueueRef) (queue.Consumer, error) {
		subject := natsSubject(ref)
		return client.CreateConsumer(ctx, durableNameFor(cfg.Queue.NATS.ConsumerName, subject), subject)
	}

	checker := routerhealth.CheckerFunc(func(context.Context) error {
		if !client.IsConnected() {
			return fmt.Errorf("NATS connection lost")
		}
		return nil
	})

	slog.Info("Connected to NATS server")
	return &brokerResources{
		queueType: queue.QueueTypeNATS,
		factory:   factory,
		checker:   checker,
		readiness: health.NATSCheck(client.IsConnected),
		close:     client.Close,
	}, nil
}

func setupSQSBroker(ctx context.Context, cfg *config.Config) (*brokerResources, error) {
	slog.Info("Connecting to AWS SQS",
		"region", cfg.Queue.SQS.Region,
		"queueURL", cfg.Queue.SQS.QueueURL)

	client, err := sqsqueue.NewClient(ctx, &queue.SQSConfig{
		QueueURL:                   cfg.Queue.SQS.QueueURL,
		Region:                     cfg.Queue.SQS.Region,
		WaitTimeSeconds:            int32(cfg.Queue.SQS.WaitTimeSeconds),
		VisibilityTimeout:          int32(cfg.Queue.SQS.VisibilityTimeout),
		MaxNumberOfMessages:        int32(cfg.Queue.SQS.MaxNumberOfMessages),
		MetricsPollIntervalSeconds: int32(cfg.Queue.SQS.MetricsPollSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS client: %w", err)
	}

	// Tracks a queue URL the router actually consumes so connectivity
	// probes hit a real queue even when no static queue URL is configured.
	var observedQueue atomic.Value
	var consumerSeq atomic.Int64

	factory := func(ref configsource.QueueRef) (queue.Consumer, error) {
		url, err := client.ResolveQueueURL(ctx, ref.Key())
		if err != nil {
			return nil, err
		}
		observedQueue.Store(url)
		name := fmt.Sprintf("%s-%d", ref.QueueName, consumerSeq.Add(1))
		return client.CreateConsumerForQueue(ctx, name, url)
	}

	checker := routerhealth.CheckerFunc(func(checkCtx context.Context) error {
		if url, ok := observedQueue.Load().(string); ok && url != "" {
			return client.HealthCheckQueue(checkCtx, url)
		}
		return client.HealthCheck(checkCtx)
	})

	readiness := health.SQSCheck(func() error {
		checkCtx, cancelCheck := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelCheck()
		return checker(checkCtx)
	})

	var startMetrics func(context.Context, routermetrics.QueueMetricsService)
	if cfg.Queue.SQS.QueueURL != "" {
		startMetrics = func(pollCtx context.Context, qm routermetrics.QueueMetricsService) {
			go client.StartMetricsPoller(pollCtx, cfg.Queue.SQS.QueueURL, qm)
		}
	}

	slog.Info("Connected to AWS SQS")
	return &brokerResources{
		queueType:    queue.QueueTypeSQS,
		factory:      factory,
		checker:      checker,
		readiness:    readiness,
		startMetrics: startMetrics,
		close:        client.Close,
	}, nil
}

func setupActiveMQBroker(ctx context.Context, cfg *config.Config) (*brokerResources, error) {
	slog.Info("Connecting to ActiveMQ",
		"addr", cfg.Queue.ActiveMQ.BrokerAddr,
		"queue", cfg.Queue.ActiveMQ.QueueName)

	client, err := activemqqueue.NewClient(&queue.ActiveMQConfig{
		BrokerAddr: cfg.Queue.ActiveMQ.BrokerAddr,
		QueueName:  cfg.Queue.ActiveMQ.QueueName,
		Username:   cfg.Queue.ActiveMQ.Username,
		Password:   cfg.Queue.ActiveMQ.Password,
		HeartBeat:  cfg.Queue.ActiveMQ.HeartBeat,
		Prefetch:   cfg.Queue.ActiveMQ.Prefetch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ActiveMQ: %w", err)
	}

	var consumerSeq atomic.Int64
	factory := func(ref configsource.QueueRef) (queue.Consumer, error) {
		queueName := ref.QueueName
		if queueName == "" {
			queueName = ref.Key()
		}
		name := fmt.Sprintf("%s-%d", queueName, consumerSeq.Add(1))
		return client.CreateConsumer(ctx, name, queueName)
	}

	checker := routerhealth.CheckerFunc(client.HealthCheck)

	readiness := health.ActiveMQCheck(func() bool {
		checkCtx, cancelCheck := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelCheck()
		return client.HealthCheck(checkCtx) == nil
	})

	slog.Info("Connected to ActiveMQ")
	return &brokerResources{
		queueType: queue.QueueTypeActiveMQ,
		factory:   factory,
		checker:   checker,
		readiness: readiness,
		close:     client.Close,
	}, nil
}

// natsSubject maps a queue reference to its stream subject. References
// that already name a subject pass through; bare queue names get the
// route prefix so they land inside the stream's subject space.
func natsSubject(ref configsource.QueueRef) string {
	key := ref.Key()
	if strings.Contains(key, ".") {
		return key
	}
	return "route." + key
}

// durableNameFor derives a JetStream-safe durable name for one queue's
// consumers. Consumers for the same queue share the durable so extra
// connections spread load instead of duplicating delivery.
func durableNameFor(base, subject string) string {
	if base == "" {
		base = "relaypoint-router"
	}
	return base + "-" + strings.NewReplacer(".", "-", "*", "any", ">", "all").Replace(subject)
}

// setupConfigSource returns the routing configuration fetcher: the control
// plane client when a config URL is set, otherwise a static single-pool
// document so the router runs standalone.
func setupConfigSource(cfg *config.Config) manager.ConfigFetcher {
	if cfg.Router.ConfigURL == "" {
		slog.Warn("No config URL set - using static single-pool routing configuration")
		return &configsource.Static{Config: *staticRouterConfig(cfg)}
	}

	return configsource.NewClient(&configsource.ClientConfig{
		BaseURL:   cfg.Router.ConfigURL,
		AuthToken: cfg.Router.AuthToken,
	})
}

// staticRouterConfig builds the fallback routing document for running
// without a control plane: one queue on the configured broker and one
// processing pool.
func staticRouterConfig(cfg *config.Config) *configsource.RouterConfig {
	ref := configsource.QueueRef{QueueName: "default"}
	switch queue.QueueType(strings.ToLower(cfg.Queue.Type)) {
	case queue.QueueTypeSQS:
		ref = configsource.QueueRef{
			QueueName: cfg.Queue.SQS.QueueURL,
			QueueURI:  cfg.Queue.SQS.QueueURL,
		}
	case queue.QueueTypeActiveMQ:
		ref = configsource.QueueRef{QueueName: cfg.Queue.ActiveMQ.QueueName}
	}

	return &configsource.RouterConfig{
		Queues:      []configsource.QueueRef{ref},
		Connections: 1,
		ProcessingPools: []configsource.PoolDefinition{
			{Code: "DEFAULT", Concurrency: 4},
		},
	}
}

// setupNotifications builds the notification pipeline, nil when disabled.
func setupNotifications(cfg *config.Config) *notification.BatchingService {
	if !cfg.Notifications.Enabled {
		return nil
	}

	var delegates []notification.Service
	if cfg.Notifications.Email.Enabled {
		delegates = append(delegates, notification.NewEmailService(&notification.EmailConfig{
			SMTPHost:    cfg.Notifications.Email.SMTPHost,
			SMTPPort:    cfg.Notifications.Email.SMTPPort,
			Username:    cfg.Notifications.Email.Username,
			Password:    cfg.Notifications.Email.Password,
			FromAddress: cfg.Notifications.Email.FromAddress,
			ToAddress:   cfg.Notifications.Email.ToAddress,
			Enabled:     true,
		}))
	}
	if cfg.Notifications.Teams.Enabled {
		delegates = append(delegates, notification.NewTeamsService(&notification.TeamsConfig{
			WebhookURL: cfg.Notifications.Teams.WebhookURL,
			Enabled:    true,
		}))
	}
	if len(delegates) == 0 {
		slog.Warn("Notifications enabled but no channel configured - batches will be dropped")
		delegates = append(delegates, notification.NewNoOpService())
	}

	return notification.NewBatchingService(delegates, &notification.BatchingConfig{
		MinSeverity: cfg.Notifications.MinSeverity,
		BatchWindow: cfg.Notifications.BatchWindow,
	})
}

// setupStandbyService configures leader election and the role transition
// callbacks. Returns a Redis readiness check when a lock backend is in
// play, nil otherwise.
//
// Resume can block for a full initial config sync, so transition callbacks
// hop off the election goroutine to keep lock refreshes on schedule.
func setupStandbyService(cfg *config.Config, routerService *manager.RouterService, trafficService *traffic.Service) (*standby.Service, health.CheckFunc, error) {
	standbyCfg := &standby.Config{
		Enabled:         cfg.Standby.Enabled,
		InstanceID:      cfg.Standby.InstanceID,
		LockKey:         cfg.Standby.LockKey,
		LockTTL:         cfg.Standby.LockTTL,
		RefreshInterval: cfg.Standby.RefreshInterval,
		RedisURL:        cfg.Standby.RedisURL,
	}

	callbacks := &standby.Callbacks{
		OnBecomePrimary: func() {
			slog.Info("Became PRIMARY - starting message processing")
			go func() {
				routerService.Resume()
				trafficService.RegisterAsActive()
			}()
		},
		OnBecomeStandby: func() {
			slog.Info("Became STANDBY - stopping message processing")
			go func() {
				trafficService.DeregisterFromActive()
				routerService.Pause()
			}()
		},
	}

	service := standby.NewService(standbyCfg, callbacks)
	if !cfg.Standby.Enabled {
		return service, nil, nil
	}

	lock, err := leader.NewRedisLock(cfg.Standby.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis for leader election: %w", err)
	}
	service.SetLock(lock)

	redisCheck := health.RedisCheck(func() error {
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelPing()
		if !lock.Available(pingCtx) {
			return fmt.Errorf("redis ping failed")
		}
		return nil
	})

	return service, redisCheck, nil
}

// setupHTTPRouter creates the operational HTTP surface: health, metrics,
// and the monitoring API.
func setupHTTPRouter(cfg *config.Config, healthChecker *health.Checker, monitoring *api.MonitoringHandler, k8sHealth *api.KubernetesHealthHandler, standbyService *standby.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)
	r.Mount("/health", k8sHealth.Routes())

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	// Standby role, for load balancers that probe a plain path
	r.Get("/router/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(standbyService.GetStatus()); err != nil {
			slog.Error("Failed to write router status", "error", err)
		}
	})

	// Monitoring API and dashboard
	r.Mount("/monitoring", monitoring.Routes())

	return r
}

// notifyingWarningService forwards recorded warnings to the notification
// pipeline in addition to the in-memory store behind the monitoring API.
type notifyingWarningService struct {
	warning.Service
	notifier notification.Service
}

func (s *notifyingWarningService) AddWarning(kind, severity, message, source string) {
	s.Service.AddWarning(kind, severity, message, source)
	s.notifier.NotifyWarning(&notification.Warning{
		ID:        uuid.New().String(),
		Category:  kind,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
		Source:    source,
	})
}

// standbyRunner adapts standby.Service to the lifecycle contract.
type standbyRunner struct {
	service *standby.Service
}

func newStandbyRunner(svc *standby.Service) *standbyRunner {
	return &standbyRunner{service: svc}
}

func (s *standbyRunner) Name() string { return "standby-coordinator" }

func (s *standbyRunner) Start(ctx context.Context) error {
	if err := s.service.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *standbyRunner) Stop(ctx context.Context) error {
	s.service.Stop()
	return nil
}

func (s *standbyRunner) Health() error { return nil }
