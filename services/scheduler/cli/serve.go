package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrovskifilip/agri-management-system/internal/actuator"
	"github.com/petrovskifilip/agri-management-system/internal/autoschedule"
	"github.com/petrovskifilip/agri-management-system/internal/fertilization"
	"github.com/petrovskifilip/agri-management-system/internal/irrigation"
	"github.com/petrovskifilip/agri-management-system/internal/kafka"
	"github.com/petrovskifilip/agri-management-system/internal/lock"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/internal/postgres"
	redisstore "github.com/petrovskifilip/agri-management-system/internal/redis"
	"github.com/petrovskifilip/agri-management-system/internal/sqlite"
	"github.com/petrovskifilip/agri-management-system/internal/store"
	"github.com/petrovskifilip/agri-management-system/internal/weather"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
	"github.com/petrovskifilip/agri-management-system/services/api"
	"github.com/petrovskifilip/agri-management-system/services/api/handler"
	"github.com/petrovskifilip/agri-management-system/services/scheduler"
	"github.com/petrovskifilip/agri-management-system/services/scheduler/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tick scheduler and the REST API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("store-driver", "memory", "task store: memory | sqlite | postgres")
	f.String("sqlite-path", "agriflow.db", "SQLite database file (store_driver=sqlite)")
	f.String("seed-file", "", "YAML file with crops and parcels to load at startup")
	f.String("redis-addr", "", "Redis address (host:port) for shared locks and weather throttling; empty keeps both in-process")
	f.String("kafka-brokers", "", "comma-separated Kafka broker addresses (notify_channel=kafka)")
	f.String("events-topic", "agriflow.events", "Kafka topic for task events")
	f.String("notify-channel", "log", "notification channel: log | none | email | webhook | kafka")
	f.String("notify-to", "", "email recipient for notifications")
	f.String("notify-webhook-url", "", "webhook URL for notifications")
	f.String("smtp-host", "localhost", "SMTP host")
	f.Int("smtp-port", 1025, "SMTP port")
	f.String("smtp-from", "noreply@agriflow.dev", "SMTP sender address")
	f.String("weather-base-url", "https://api.openweathermap.org/data/2.5", "OpenWeather API base URL")
	f.String("weather-api-key", "", "OpenWeather API key; empty disables the rain check")
	f.Duration("weather-timeout", 10*time.Second, "timeout for one weather check, retries included")
	f.Int("weather-rate-limit", 60, "weather API calls allowed per minute")
	f.Duration("weather-cache-ttl", 10*time.Minute, "how long a weather decision is reused per location")
	f.String("actuator-url", "", "pump controller base URL; empty uses the simulated controller")
	f.Duration("actuator-timeout", 30*time.Second, "bound on one pump controller call")
	f.Int("max-attempts", 3, "irrigation attempts before a task fails")
	f.Int("retry-delay-minutes", 15, "minutes between irrigation attempts")
	f.Int("overdue-hours", 24, "hours after its scheduled time an unexecuted irrigation fails")
	f.String("fine-schedule", "@every 1m", "cron schedule of the execution tick")
	f.String("coarse-schedule", "@hourly", "cron schedule of the maintenance tick")
	f.Int("tick-concurrency", 4, "irrigations processed in parallel per tick")
	f.Duration("schedule-ahead", 0, "create irrigation tasks this far ahead of their due time")
	f.Int("http-port", 8080, "REST API port")
	f.String("metrics-addr", ":9093", "Prometheus metrics server address")
	f.String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	f.Float64("otel-sample-ratio", 1.0, "fraction of traces sampled")

	for _, name := range []string{
		"store-driver", "sqlite-path", "seed-file", "redis-addr", "kafka-brokers", "events-topic",
		"notify-channel", "notify-to", "notify-webhook-url", "smtp-host", "smtp-port", "smtp-from",
		"weather-base-url", "weather-api-key", "weather-timeout", "weather-rate-limit", "weather-cache-ttl",
		"actuator-url", "actuator-timeout", "max-attempts", "retry-delay-minutes", "overdue-hours",
		"fine-schedule", "coarse-schedule", "tick-concurrency", "schedule-ahead",
		"http-port", "metrics-addr", "otel-endpoint", "otel-sample-ratio",
	} {
		bindFlag(flagKey(name), f, name)
	}
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := buildLogger(cfg.LogLevel, serviceName)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTelEndpoint, cfg.OTelSampleRatio)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	// ── storage ───────────────────────────────────────────────────────────────
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, ready, err := openStore(initCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.SeedFile != "" {
		crops, parcels, err := loadSeed(initCtx, st, cfg.SeedFile)
		if err != nil {
			return err
		}
		logger.Info("seed loaded", slog.Int("crops", crops), slog.Int("parcels", parcels))
	}

	var redisClient *goredis.Client
	if cfg.RedisAddr != "" {
		redisClient = redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(initCtx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	// ── collaborators ─────────────────────────────────────────────────────────
	var locker lock.Locker = lock.NewKeyed()
	if redisClient != nil {
		locker = redisstore.NewLocker(redisClient, cfg.ActuatorTimeout+time.Minute)
	}

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	dispatcher := notify.NewDispatcher(sink, notify.WithLogger(logger))

	engine := irrigation.NewEngine(st, buildActuator(cfg, logger),
		irrigation.WithPolicy(cfg.Policy()),
		irrigation.WithLocker(locker),
		irrigation.WithGate(buildGate(cfg, redisClient, logger)),
		irrigation.WithNotifier(dispatcher),
		irrigation.WithActuatorTimeout(cfg.ActuatorTimeout),
		irrigation.WithLogger(logger),
	)
	generator := autoschedule.NewGenerator(st,
		autoschedule.WithLookahead(cfg.ScheduleAhead),
		autoschedule.WithLogger(logger),
	)
	fertilizations := fertilization.NewService(st, generator,
		fertilization.WithLocker(locker),
		fertilization.WithNotifier(dispatcher),
		fertilization.WithLogger(logger),
	)
	sched, err := scheduler.New(engine, fertilizations, generator, cfg.FineSchedule, cfg.CoarseSchedule,
		scheduler.WithConcurrency(cfg.TickConcurrency),
		scheduler.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	rest := handler.NewREST(engine, fertilizations, sched, ready, logger)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewRouter(rest, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ActuatorTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, ready, logger)

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("scheduler HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(runCtx) }()

	logger.Info("scheduler started",
		slog.String("store", cfg.StoreDriver),
		slog.String("notify_channel", cfg.NotifyChannel),
		slog.String("fine_schedule", cfg.FineSchedule),
		slog.String("coarse_schedule", cfg.CoarseSchedule),
	)

	var runErr error
	select {
	case <-quit:
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-schedDone:
		schedDone <- err
	}

	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	if err := <-schedDone; err != nil && runErr == nil {
		runErr = fmt.Errorf("scheduler: %w", err)
	}
	dispatcher.Wait()
	logger.Info("stopped")
	return runErr
}

// storeBackend is a store.Store that can report readiness.
type storeBackend interface {
	store.Store
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, telemetry.ReadyFunc, error) {
	var backend storeBackend
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		backend = s
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, nil); err != nil {
			pool.Close()
			return nil, nil, err
		}
		backend = postgres.NewStore(pool)
	default:
		logger.Warn("using the in-memory store; tasks are lost on restart")
		return store.NewMemory(), nil, nil
	}
	return backend, backend.Ping, nil
}

func buildActuator(cfg config.Config, logger *slog.Logger) actuator.Actuator {
	if cfg.ActuatorURL == "" {
		return actuator.Simulated{Logger: logger}
	}
	return actuator.NewHTTP(cfg.ActuatorURL, cfg.ActuatorTimeout)
}

// buildGate layers the weather provider: cache in front of the throttle so
// repeated checks for one location cost no budget.
func buildGate(cfg config.Config, redisClient *goredis.Client, logger *slog.Logger) weather.Gate {
	if cfg.WeatherAPIKey == "" {
		logger.Info("no weather API key, rain check disabled")
		return weather.NewFailOpen(weather.Static{Decision: weather.Proceed("Weather check disabled")}, logger)
	}

	var limiter weather.Limiter = weather.NewLocalLimiter(cfg.WeatherRateLimit, time.Minute)
	if redisClient != nil {
		limiter = redisstore.NewRateLimiter(redisClient, cfg.WeatherRateLimit, time.Minute)
	}

	var provider weather.Provider = weather.NewOpenWeather(weather.OpenWeatherConfig{
		BaseURL:  cfg.WeatherBaseURL,
		APIKey:   cfg.WeatherAPIKey,
		Timeout:  cfg.WeatherTimeout,
		RetryMax: 2,
		Logger:   logger,
	})
	provider = weather.NewThrottled(provider, limiter)
	if cfg.WeatherCacheTTL > 0 {
		provider = weather.NewCached(provider, 1024, cfg.WeatherCacheTTL)
	}
	return weather.NewFailOpen(provider, logger)
}

// buildSink registers every configured sink and returns the selected one.
func buildSink(cfg config.Config, logger *slog.Logger) (notify.Sink, func(), error) {
	closeFn := func() {}
	registry := notify.NewRegistry(notify.LogSink{Logger: logger}, notify.NoneSink{})
	if cfg.SMTPHost != "" && cfg.NotifyTo != "" {
		registry.Register(notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			To:       cfg.NotifyTo,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}))
	}
	if cfg.NotifyWebhookURL != "" {
		registry.Register(notify.NewWebhookSink(cfg.NotifyWebhookURL))
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 && cfg.NotifyChannel == "kafka" {
		producer := kafka.NewProducer(brokers, cfg.EventsTopic)
		closeFn = func() { _ = producer.Close() }
		registry.Register(notify.NewKafkaSink(producer))
	}

	sink, err := registry.Get(cfg.NotifyChannel)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("notifications: %w (available: %v)", err, registry.Channels())
	}
	return sink, closeFn, nil
}

// flagKey maps a kebab-case flag name to its snake_case viper key.
func flagKey(flag string) string { return strings.ReplaceAll(flag, "-", "_") }
