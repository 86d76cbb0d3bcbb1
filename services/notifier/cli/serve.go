package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrovskifilip/agri-management-system/internal/kafka"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	redisstore "github.com/petrovskifilip/agri-management-system/internal/redis"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
	"github.com/petrovskifilip/agri-management-system/services/notifier"
	"github.com/petrovskifilip/agri-management-system/services/notifier/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the notifier",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	f.String("events-topic", "agriflow.events", "topic the scheduler publishes task events to")
	f.String("dlq-topic", "agriflow.events.dlq", "topic for events that could not be delivered")
	f.String("group-id", "agriflow-notifier", "Kafka consumer group")
	f.String("notify-channel", "email", "delivery channel: log | email | webhook")
	f.String("notify-to", "", "email recipient")
	f.String("notify-webhook-url", "", "webhook URL")
	f.String("smtp-host", "localhost", "SMTP host")
	f.Int("smtp-port", 1025, "SMTP port")
	f.String("smtp-from", "noreply@agriflow.dev", "SMTP sender address")
	f.String("redis-addr", "", "Redis address (host:port) for the shared rate limit")
	f.Int("rate-limit", 0, "max deliveries per minute per channel (0 = disabled)")
	f.Int("max-attempts", 3, "delivery attempts per event")
	f.Duration("delivery-timeout", 30*time.Second, "bound on one delivery, retries included")
	f.String("metrics-addr", ":9094", "Prometheus metrics server address")
	f.String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("kafka_brokers", f, "kafka-brokers")
	bindFlag("events_topic", f, "events-topic")
	bindFlag("dlq_topic", f, "dlq-topic")
	bindFlag("group_id", f, "group-id")
	bindFlag("notify_channel", f, "notify-channel")
	bindFlag("notify_to", f, "notify-to")
	bindFlag("notify_webhook_url", f, "notify-webhook-url")
	bindFlag("smtp_host", f, "smtp-host")
	bindFlag("smtp_port", f, "smtp-port")
	bindFlag("smtp_from", f, "smtp-from")
	bindFlag("redis_addr", f, "redis-addr")
	bindFlag("rate_limit", f, "rate-limit")
	bindFlag("max_attempts", f, "max-attempts")
	bindFlag("delivery_timeout", f, "delivery-timeout")
	bindFlag("metrics_addr", f, "metrics-addr")
	bindFlag("otel_endpoint", f, "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	viper.SetDefault("otel_sample_ratio", 1.0)
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

	registry := notify.NewRegistry(notify.LogSink{Logger: logger})
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
	sink, err := registry.Get(cfg.NotifyChannel)
	if err != nil {
		return fmt.Errorf("notifications: %w", err)
	}

	brokers := cfg.Brokers()
	consumer := kafka.NewConsumer(brokers, cfg.EventsTopic, cfg.GroupID, logger)
	defer func() { _ = consumer.Close() }()
	dlq := kafka.NewProducer(brokers, cfg.DLQTopic)
	defer func() { _ = dlq.Close() }()

	opts := []notifier.Option{
		notifier.WithLogger(logger),
		notifier.WithRetries(cfg.MaxAttempts, time.Second),
		notifier.WithTimeout(cfg.DeliveryTimeout),
	}
	if cfg.RateLimit > 0 && cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		opts = append(opts, notifier.WithRateLimiter(redisstore.NewRateLimiter(redisClient, cfg.RateLimit, time.Minute)))
		logger.Info("rate limiter enabled", slog.Int("limit_per_minute", cfg.RateLimit))
	}
	relay := notifier.NewRelay(consumer, sink, dlq, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	telemetry.StartMetricsServer(ctx, cfg.MetricsAddr, nil, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		cancel()
	}()

	logger.Info("notifier starting",
		slog.String("topic", cfg.EventsTopic),
		slog.String("channel", sink.Channel()),
	)
	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	logger.Info("stopped")
	return nil
}
