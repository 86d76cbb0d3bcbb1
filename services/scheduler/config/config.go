package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/petrovskifilip/agri-management-system/pkg/retry"
)

// Config holds typed configuration for the scheduler service.
type Config struct {
	LogLevel string

	StoreDriver string
	SQLitePath  string
	PostgresDSN string
	RedisAddr   string
	SeedFile    string

	KafkaBrokers string
	EventsTopic  string

	NotifyChannel    string
	NotifyTo         string
	NotifyWebhookURL string
	SMTPHost         string
	SMTPPort         int
	SMTPFrom         string
	SMTPUsername     string
	SMTPPassword     string

	WeatherBaseURL   string
	WeatherAPIKey    string
	WeatherTimeout   time.Duration
	WeatherRateLimit int
	WeatherCacheTTL  time.Duration

	ActuatorURL     string
	ActuatorTimeout time.Duration

	MaxAttempts       int
	RetryDelayMinutes int
	OverdueHours      int

	FineSchedule    string
	CoarseSchedule  string
	TickConcurrency int
	ScheduleAhead   time.Duration

	HTTPPort        int
	MetricsAddr     string
	OTelEndpoint    string
	OTelSampleRatio float64
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:          v.GetString("log_level"),
		StoreDriver:       strings.ToLower(v.GetString("store_driver")),
		SQLitePath:        v.GetString("sqlite_path"),
		PostgresDSN:       v.GetString("postgres_dsn"),
		RedisAddr:         v.GetString("redis_addr"),
		SeedFile:          v.GetString("seed_file"),
		KafkaBrokers:      v.GetString("kafka_brokers"),
		EventsTopic:       v.GetString("events_topic"),
		NotifyChannel:     strings.ToLower(v.GetString("notify_channel")),
		NotifyTo:          v.GetString("notify_to"),
		NotifyWebhookURL:  v.GetString("notify_webhook_url"),
		SMTPHost:          v.GetString("smtp_host"),
		SMTPPort:          v.GetInt("smtp_port"),
		SMTPFrom:          v.GetString("smtp_from"),
		SMTPUsername:      v.GetString("smtp_username"),
		SMTPPassword:      v.GetString("smtp_password"),
		WeatherBaseURL:    v.GetString("weather_base_url"),
		WeatherAPIKey:     v.GetString("weather_api_key"),
		WeatherTimeout:    v.GetDuration("weather_timeout"),
		WeatherRateLimit:  v.GetInt("weather_rate_limit"),
		WeatherCacheTTL:   v.GetDuration("weather_cache_ttl"),
		ActuatorURL:       v.GetString("actuator_url"),
		ActuatorTimeout:   v.GetDuration("actuator_timeout"),
		MaxAttempts:       v.GetInt("max_attempts"),
		RetryDelayMinutes: v.GetInt("retry_delay_minutes"),
		OverdueHours:      v.GetInt("overdue_hours"),
		FineSchedule:      v.GetString("fine_schedule"),
		CoarseSchedule:    v.GetString("coarse_schedule"),
		TickConcurrency:   v.GetInt("tick_concurrency"),
		ScheduleAhead:     v.GetDuration("schedule_ahead"),
		HTTPPort:          v.GetInt("http_port"),
		MetricsAddr:       v.GetString("metrics_addr"),
		OTelEndpoint:      v.GetString("otel_endpoint"),
		OTelSampleRatio:   v.GetFloat64("otel_sample_ratio"),
	}
}

// Policy is the irrigation retry policy described by the config.
func (c Config) Policy() retry.Policy {
	return retry.NewPolicy(c.MaxAttempts, c.RetryDelayMinutes, c.OverdueHours)
}

// Brokers splits the comma separated broker list.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	errs := []error{c.Policy().Validate()}
	switch c.StoreDriver {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite store"))
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store_driver %q (memory | sqlite | postgres)", c.StoreDriver))
	}
	switch c.NotifyChannel {
	case "email":
		if c.SMTPHost == "" || c.NotifyTo == "" {
			errs = append(errs, errors.New("smtp_host and notify_to are required for email notifications"))
		}
	case "webhook":
		if c.NotifyWebhookURL == "" {
			errs = append(errs, errors.New("notify_webhook_url is required for webhook notifications"))
		}
	case "kafka":
		if len(c.Brokers()) == 0 || c.EventsTopic == "" {
			errs = append(errs, errors.New("kafka_brokers and events_topic are required for kafka notifications"))
		}
	}
	if c.TickConcurrency < 1 {
		errs = append(errs, errors.New("tick_concurrency must be at least 1"))
	}
	if c.ScheduleAhead < 0 {
		errs = append(errs, errors.New("schedule_ahead must not be negative"))
	}
	return errors.Join(errs...)
}
