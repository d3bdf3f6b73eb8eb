package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/notifykit/migrations"
	"github.com/dmitrymomot/notifykit/pkg/admin"
	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/ingest"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/opensearch"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/policy"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

type service struct {
	dispatcher *dispatch.Dispatcher
	admin      *admin.Handler
	ingest     *ingest.API
	closers    []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// build connects every configured backend. Any configuration or connection
// error is returned and stops the daemon before it serves traffic.
func build(ctx context.Context, s settings, log *slog.Logger) (_ *service, err error) {
	svc := &service{}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()
	var checks []httpserver.Check

	var (
		rdb       *goredis.Client
		redisKeys string
	)
	sharedRedis := func() (*goredis.Client, string, error) {
		if rdb != nil {
			return rdb, redisKeys, nil
		}
		client, prefix, err := connectRedis(ctx)
		if err != nil {
			return nil, "", err
		}
		rdb, redisKeys = client, prefix
		svc.closers = append(svc.closers, func() { _ = client.Close() })
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		return rdb, redisKeys, nil
	}

	src, err := registrySource(ctx, s)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load registry from %s: %w", src, err)
	}
	holder := registry.NewHolder(reg)
	log.InfoContext(ctx, "event registry loaded", slog.String("source", src.String()), slog.Int("events", len(reg.Events())))

	var pool *pgxpool.Pool
	if s.usesPostgres() {
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		if pool, err = pg.Connect(ctx, cfg); err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)
		checks = append(checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
				return nil, err
			}
		}
	}

	// Analytics.
	var usageStore analytics.Store
	switch s.App.AnalyticsStore {
	case "memory":
		usageStore = analytics.NewMemoryStore()
	case "postgres":
		usageStore = analytics.NewPostgresStore(pool)
	case "redis":
		client, prefix, err := sharedRedis()
		if err != nil {
			return nil, err
		}
		usageStore = analytics.NewRedisStore(client, analytics.WithKeyPrefix(prefix))
	default:
		return nil, fmt.Errorf("unknown analytics store %q", s.App.AnalyticsStore)
	}
	aggregator := analytics.New(usageStore, append(s.Analytics.Options(), analytics.WithLogger(log))...)

	// Templates.
	var (
		translations templates.TranslationStore
		versions     templates.VersionStore
	)
	switch s.App.TemplateStore {
	case "memory":
		mem := templates.NewMemoryStore()
		translations, versions = mem, mem
	case "file":
		files, err := templates.NewFileTranslationStore(os.DirFS(s.App.TranslationsDir))
		if err != nil {
			return nil, fmt.Errorf("load translations from %s: %w", s.App.TranslationsDir, err)
		}
		translations, versions = files, templates.NewMemoryStore()
	case "postgres":
		store := templates.NewPostgresStore(pool)
		translations, versions = store, store
	case "mongo":
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := mongo.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() { _ = client.Disconnect(context.Background()) })
		checks = append(checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(client)})
		store, err := mongoTranslations(ctx, client.Database(cfg.Database))
		if err != nil {
			return nil, err
		}
		translations, versions = store, templates.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown template store %q", s.App.TemplateStore)
	}
	if s.App.TranslationTTL > 0 {
		translations = templates.NewCachedTranslationStore(translations, 4096, s.App.TranslationTTL)
	}
	resolver := templates.NewResolver(translations,
		templates.WithNormalizer(holder),
		templates.WithVersionStore(versions),
		templates.WithUsageRecorder(aggregator),
		templates.WithResolverLogger(log),
	)

	// Directory and flags.
	tenants, err := loadTenants(s.App.TenantsFile)
	if err != nil {
		return nil, err
	}
	flags, err := loadFlags(s.App.FlagsFile)
	if err != nil {
		return nil, err
	}

	router, realtime, outChecks, err := outbound(ctx, s, log)
	if err != nil {
		return nil, err
	}
	checks = append(checks, outChecks...)
	svc.closers = append(svc.closers, func() { _ = realtime.Close() })

	opts := []dispatch.Option{
		dispatch.WithTenants(tenants),
		dispatch.WithKillSwitch(policy.NewKillSwitch(flags, policy.WithKillSwitchLogger(log))),
		dispatch.WithEngagement(aggregator, versions),
		dispatch.WithDigestOptions(s.Digest.Options()...),
		dispatch.WithLogger(log),
	}
	if s.App.RetryQueueURL != "" {
		q, err := dispatch.NewSQSRetryQueueFromConfig(ctx, s.AWS, s.App.RetryQueueURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithRetryQueue(q))
	}
	if svc.dispatcher, err = dispatch.New(holder, resolver, router, opts...); err != nil {
		return nil, err
	}

	adminOpts := []admin.Option{
		admin.WithDigests(svc.dispatcher.Scheduler()),
		admin.WithStats(aggregator),
		admin.WithTemplates(templates.NewVersionManager(versions, translations, templates.WithManagerLogger(log))),
		admin.WithReadinessChecks(checks...),
		admin.WithSource(src),
		admin.WithLogger(log),
	}
	svc.admin = admin.New(holder, adminOpts...)
	ingestOpts := []ingest.APIOption{
		ingest.WithTracker(svc.dispatcher),
		ingest.WithRealtime(realtime),
		ingest.WithAPILogger(log),
	}
	if s.RateLimit.Enabled() {
		var store ratelimiter.Store
		switch s.RateLimit.Store {
		case "memory":
			mem := ratelimiter.NewMemoryStore()
			svc.closers = append(svc.closers, mem.Close)
			store = mem
		case "redis":
			client, prefix, err := sharedRedis()
			if err != nil {
				return nil, err
			}
			store = ratelimiter.NewRedisStore(client, prefix)
		default:
			return nil, fmt.Errorf("%w: %q", ratelimiter.ErrUnknownStore, s.RateLimit.Store)
		}
		bucket, err := ratelimiter.NewBucket(store, s.RateLimit)
		if err != nil {
			return nil, err
		}
		key := ratelimiter.FirstOf(ratelimiter.ByHeader("X-Tenant-ID"), ratelimiter.ByClientIP())
		ingestOpts = append(ingestOpts, ingest.WithRateLimit(ratelimiter.Middleware(bucket, key, log)))
	}
	svc.ingest = ingest.NewAPI(svc.dispatcher, ingestOpts...)
	return svc, nil
}

func registrySource(ctx context.Context, s settings) (registry.Source, error) {
	if s.App.RegistryS3Bucket != "" {
		return registry.NewS3SourceFromConfig(ctx, s.AWS, s.App.RegistryS3Bucket, s.App.RegistryS3Key)
	}
	return registry.FileSource(s.App.RegistryPath), nil
}

func connectRedis(ctx context.Context) (*goredis.Client, string, error) {
	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, "", err
	}
	client, err := redis.Connect(ctx, cfg)
	return client, cfg.KeyPrefix, err
}

func mongoTranslations(ctx context.Context, db *mongodrv.Database) (*templates.MongoTranslationStore, error) {
	store := templates.NewMongoTranslationStore(db, "")
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return store, nil
}

// outbound builds the channel router: email through Postmark or the dev
// file sender, in-app through the inbox, sse and ws through realtime
// streams, webhook when an endpoint is set, and sms and push relayed to
// Kafka when brokers are set.
func outbound(ctx context.Context, s settings, log *slog.Logger) (*notifications.Router, *notifications.Realtime, []httpserver.Check, error) {
	mailer, err := email.NewSender(s.Email)
	if err != nil {
		return nil, nil, nil, err
	}
	var checks []httpserver.Check
	realtime := notifications.NewRealtime(32, notifications.WithRealtimeLogger(log))
	inbox := notifications.NewInbox(notifications.NewMemoryStorage(),
		notifications.WithInboxRealtime(realtime),
		notifications.WithInboxLogger(log),
	)

	opts := []notifications.RouterOption{
		notifications.WithRouterLogger(log),
		notifications.WithSender(notifications.NewEmailSender(mailer), notifications.ChannelEmail),
		notifications.WithSender(inbox, notifications.ChannelInApp),
		notifications.WithSender(realtime, notifications.ChannelSSE, notifications.ChannelWS),
	}
	if s.App.WebhookURL != "" {
		opts = append(opts, notifications.WithSender(notifications.NewWebhookSender(
			notifications.WithWebhookEndpoint(s.App.WebhookURL),
			notifications.WithWebhookSecret(s.App.WebhookSecret),
			notifications.WithWebhookRetries(s.App.WebhookRetries, s.App.WebhookBackoff),
		), notifications.ChannelWebhook))
	}
	if s.Kafka.Enabled() {
		writer := notifications.NewKafkaWriter(s.Kafka.Brokers)
		opts = append(opts, notifications.WithSender(notifications.NewKafkaSender(writer, s.App.RelayTopic),
			notifications.ChannelSMS, notifications.ChannelPush))
	}
	if s.App.DeliveryLog {
		var cfg opensearch.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, nil, err
		}
		client, err := opensearch.New(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		checks = append(checks, httpserver.Check{Name: "opensearch", Fn: opensearch.Healthcheck(client)})
		opts = append(opts, notifications.WithDeliveryLog(opensearch.NewDeliveryLog(client, cfg.DeliveryIndex)))
	}
	return notifications.NewRouter(opts...), realtime, checks, nil
}

func loadTenants(path string) (tenant.Provider, error) {
	if path == "" {
		return tenant.NewMemoryProvider(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tenants file: %w", err)
	}
	defer f.Close()
	p, err := tenant.LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse tenants file %s: %w", path, err)
	}
	return p, nil
}

func loadFlags(path string) (feature.Provider, error) {
	var r io.Reader
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open flags file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var flags []*feature.Flag
	if r != nil {
		var err error
		if flags, err = feature.ParseFlags(r); err != nil {
			return nil, fmt.Errorf("parse flags file %s: %w", path, err)
		}
	}
	return feature.NewMemoryProvider(flags...)
}
