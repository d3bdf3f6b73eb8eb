package main

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/awsutil"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/ingest"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
)

// appConfig selects sources and drivers. Driver-specific settings live in
// the per-package configs loaded on demand.
type appConfig struct {
	RegistryPath     string `env:"NOTIFY_REGISTRY_PATH" envDefault:"config/events.yaml"`
	RegistryS3Bucket string `env:"NOTIFY_REGISTRY_S3_BUCKET"`
	RegistryS3Key    string `env:"NOTIFY_REGISTRY_S3_KEY"`

	// TemplateStore is memory, file, postgres or mongo.
	TemplateStore   string        `env:"NOTIFY_TEMPLATE_STORE" envDefault:"file"`
	TranslationsDir string        `env:"NOTIFY_TRANSLATIONS_DIR" envDefault:"config/translations"`
	TranslationTTL  time.Duration `env:"NOTIFY_TRANSLATION_CACHE_TTL" envDefault:"1m"`
	// AnalyticsStore is memory, postgres or redis.
	AnalyticsStore string `env:"NOTIFY_ANALYTICS_STORE" envDefault:"memory"`

	TenantsFile string `env:"NOTIFY_TENANTS_FILE"`
	FlagsFile   string `env:"NOTIFY_FLAGS_FILE"`

	RetryQueueURL string `env:"NOTIFY_RETRY_QUEUE_URL"`

	WebhookURL     string        `env:"NOTIFY_WEBHOOK_URL"`
	WebhookSecret  string        `env:"NOTIFY_WEBHOOK_SECRET"`
	WebhookRetries int           `env:"NOTIFY_WEBHOOK_RETRIES" envDefault:"3"`
	WebhookBackoff time.Duration `env:"NOTIFY_WEBHOOK_BACKOFF" envDefault:"500ms"`

	// RelayTopic receives sms and push messages for external providers when
	// Kafka brokers are configured.
	RelayTopic string `env:"KAFKA_RELAY_TOPIC" envDefault:"notifykit.relay"`

	DeliveryLog bool `env:"NOTIFY_DELIVERY_LOG" envDefault:"false"`
}

// settings groups every config the daemon reads from the environment.
type settings struct {
	App       appConfig
	Log       logger.Config
	HTTP      httpserver.Config
	AWS       awsutil.Config
	Email     email.Config
	Digest    digest.Config
	Analytics analytics.Config
	Kafka     ingest.KafkaConfig
	RateLimit ratelimiter.Config
}

func (s settings) usesPostgres() bool {
	return s.App.TemplateStore == "postgres" || s.App.AnalyticsStore == "postgres"
}
