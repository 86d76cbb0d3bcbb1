package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the notifier service.
type Config struct {
	LogLevel     string
	KafkaBrokers string
	EventsTopic  string
	DLQTopic     string
	GroupID      string
	RedisAddr    string
	RateLimit    int

	NotifyChannel    string
	NotifyTo         string
	NotifyWebhookURL string
	SMTPHost         string
	SMTPPort         int
	SMTPFrom         string
	SMTPUsername     string
	SMTPPassword     string

	MaxAttempts     int
	DeliveryTimeout time.Duration

	MetricsAddr     string
	OTelEndpoint    string
	OTelSampleRatio float64
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:         v.GetString("log_level"),
		KafkaBrokers:     v.GetString("kafka_brokers"),
		EventsTopic:      v.GetString("events_topic"),
		DLQTopic:         v.GetString("dlq_topic"),
		GroupID:          v.GetString("group_id"),
		RedisAddr:        v.GetString("redis_addr"),
		RateLimit:        v.GetInt("rate_limit"),
		NotifyChannel:    strings.ToLower(v.GetString("notify_channel")),
		NotifyTo:         v.GetString("notify_to"),
		NotifyWebhookURL: v.GetString("notify_webhook_url"),
		SMTPHost:         v.GetString("smtp_host"),
		SMTPPort:         v.GetInt("smtp_port"),
		SMTPFrom:         v.GetString("smtp_from"),
		SMTPUsername:     v.GetString("smtp_username"),
		SMTPPassword:     v.GetString("smtp_password"),
		MaxAttempts:      v.GetInt("max_attempts"),
		DeliveryTimeout:  v.GetDuration("delivery_timeout"),
		MetricsAddr:      v.GetString("metrics_addr"),
		OTelEndpoint:     v.GetString("otel_endpoint"),
		OTelSampleRatio:  v.GetFloat64("otel_sample_ratio"),
	}
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
	var errs []error
	if len(c.Brokers()) == 0 {
		errs = append(errs, errors.New("kafka_brokers is required"))
	}
	if c.EventsTopic == "" || c.DLQTopic == "" {
		errs = append(errs, errors.New("events_topic and dlq_topic are required"))
	}
	if c.EventsTopic != "" && c.EventsTopic == c.DLQTopic {
		errs = append(errs, errors.New("dlq_topic must differ from events_topic"))
	}
	switch c.NotifyChannel {
	case "log":
	case "email":
		if c.SMTPHost == "" || c.NotifyTo == "" {
			errs = append(errs, errors.New("smtp_host and notify_to are required for email notifications"))
		}
	case "webhook":
		if c.NotifyWebhookURL == "" {
			errs = append(errs, errors.New("notify_webhook_url is required for webhook notifications"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify_channel %q cannot be relayed (log | email | webhook)", c.NotifyChannel))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
