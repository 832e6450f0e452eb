package di

import (
	"context"
	"fmt"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/internal/domain/repository"
	"FinFeed/internal/handler/api"
	mid "FinFeed/internal/middleware"
	internalrepo "FinFeed/internal/repository"
	mcache "FinFeed/internal/service/cache"
	"FinFeed/internal/service/ratelimit"
	"FinFeed/internal/service/sources"
	"FinFeed/internal/usecase"
	"FinFeed/internal/validator"
	pkgcache "FinFeed/pkg/cache"
	pkgch "FinFeed/pkg/clickhouse"
	"FinFeed/pkg/config"
	xhttp "FinFeed/pkg/http"
	pkgkafka "FinFeed/pkg/kafka"
	applogger "FinFeed/pkg/logger"
	"FinFeed/pkg/metrics"
	"FinFeed/pkg/retry"
	"FinFeed/pkg/server"
)

const quotesTable = "quotes"

// ProvideKafkaProducer creates a Kafka producer when brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the root logger and attaches the Kafka log collector when enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	col := cfg.Logging.Collector
	if col.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   col.Interval,
			CountThreshold: col.Threshold,
			Topic:          col.Topic,
			Publisher:      producer,
			Levels:         []string{"error", "warn"},
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCacheBackend returns the in-process cache or a memory layer in front of Redis.
func ProvideCacheBackend(cfg *config.Config, l *applogger.Logger) (pkgcache.Service, func(), error) {
	c := cfg.Cache
	if c.Backend != "redis" {
		mem := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(c.MemoryMaxSize))
		return mem, func() { _ = mem.Close() }, nil
	}

	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(c.Redis.Addr),
		pkgcache.WithRedisPassword(c.Redis.Password),
		pkgcache.WithRedisDB(c.Redis.DB),
		pkgcache.WithRedisPrefix(c.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", c.Redis.Addr))

	// the memory layer must not outlive the shortest freshness window
	layered := pkgcache.NewLayeredCache(rc,
		pkgcache.WithLayeredMemorySize(c.MemoryMaxSize),
		pkgcache.WithLayeredMemoryTTL(c.TTL.Quote),
	)
	return layered, func() { _ = layered.Close() }, nil
}

// ProvideStore wraps the backend with per-operation freshness windows.
func ProvideStore(cfg *config.Config, backend pkgcache.Service) *mcache.Store {
	ttl := cfg.Cache.TTL
	return mcache.NewStore(backend,
		mcache.WithRetention(cfg.Cache.Retention),
		mcache.WithTTL(models.OpQuote, ttl.Quote),
		mcache.WithTTL(models.OpHistorical, ttl.Historical),
		mcache.WithTTL(models.OpCompanyInfo, ttl.CompanyInfo),
		mcache.WithTTL(models.OpNews, ttl.News),
		mcache.WithTTL(models.OpIndicators, ttl.Indicators),
	)
}

// ProvideAdapters builds one adapter per configured provider.
func ProvideAdapters(cfg *config.Config, l *applogger.Logger) []repository.Adapter {
	adapters := sources.Build(cfg.Providers)
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	if len(adapters) == 0 {
		l.Warn("no market data source configured; every request will fail")
	} else {
		l.Info("market data sources", applogger.Strings("sources", names))
	}
	return adapters
}

// ProvideRegistry orders adapters per operation.
func ProvideRegistry(cfg *config.Config, adapters []repository.Adapter) *usecase.Registry {
	return usecase.NewRegistry(adapters, usecase.PriorityFromConfig(cfg.Registry.Priority))
}

// ProvideValidator builds the plausibility checks from config.
func ProvideValidator(cfg *config.Config) *validator.Validator {
	v := cfg.Validation
	return validator.New(validator.Bounds{
		MinPrice:         v.MinPrice,
		MaxPrice:         v.MaxPrice,
		MaxChangePercent: v.MaxChangePercent,
		RequireVolume:    cfg.RequireVolume(),
	})
}

// ProvideOrchestrator creates the fallback chain executor.
func ProvideOrchestrator(
	cfg *config.Config,
	reg *usecase.Registry,
	v *validator.Validator,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(reg, v, m,
		usecase.WithRateLimits(ratelimit.New(), sources.Rules(cfg.Providers)),
		usecase.WithRetryer(retry.NewRetryer(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)),
		usecase.WithRequestTimeout(cfg.Providers.RequestTimeout),
		usecase.WithOrchestratorLogger(l.With(applogger.String("component", "orchestrator"))),
	)
}

// ProvideMarketData creates the cache-aware facade.
func ProvideMarketData(
	orch *usecase.Orchestrator,
	store *mcache.Store,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MarketData {
	return usecase.NewMarketData(orch, store, m,
		usecase.WithMarketDataLogger(l.With(applogger.String("component", "market_data"))),
	)
}

// ProvideClickHouseClient connects to ClickHouse and creates the quote archive schema
// when a host is configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	ch := cfg.ClickHouse
	if ch.Host == "" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, false),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.QuotesSchema(ch.Database, quotesTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideQuoteArchive creates the ClickHouse archive. It owns the client.
func ProvideQuoteArchive(cfg *config.Config, client *pkgch.Client, l *applogger.Logger) (repository.QuoteArchive, func()) {
	if client == nil {
		return nil, func() {}
	}
	archive := internalrepo.NewClickHouseArchive(client, cfg.ClickHouse.Database, quotesTable,
		l.With(applogger.String("component", "archive")))
	return archive, func() { _ = archive.Close() }
}

// ProvideQuotePublisher creates the Kafka publisher.
func ProvideQuotePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.QuotePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideQuoteProcessor routes fresh quotes to the sink backend. Nil when the sink is disabled.
func ProvideQuoteProcessor(
	cfg *config.Config,
	pub repository.QuotePublisher,
	archive repository.QuoteArchive,
	m repository.Metrics,
) *usecase.QuoteProcessor {
	switch cfg.Sink.Backend {
	case usecase.BackendKafka, usecase.BackendClickHouse:
		return usecase.NewQuoteProcessor(pub, archive, m, cfg.Sink.Backend)
	}
	return nil
}

// ProvidePipeline builds the middleware between poll loops and the sink.
func ProvidePipeline(
	cfg *config.Config,
	proc *usecase.QuoteProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.RealtimePipeline {
	if proc == nil {
		return nil
	}
	opts := []mid.PipelineOption{
		mid.WithMaxRPS(cfg.Sink.MaxRPS),
		mid.WithBufferSize(cfg.Sink.BufferSize),
		mid.WithBatch(cfg.Sink.BatchSize, cfg.Sink.BatchTimeout),
		mid.WithPipelineLogger(l.With(applogger.String("component", "pipeline"))),
	}
	if cfg.Sink.PriceDecimals > 0 {
		opts = append(opts, mid.WithTransform(mid.RoundPrices(cfg.Sink.PriceDecimals)))
	}
	return mid.NewRealtimePipeline(proc, m, opts...)
}

// ProvideSubscriptionManager creates the per-symbol poll loops.
func ProvideSubscriptionManager(
	cfg *config.Config,
	md *usecase.MarketData,
	pipe *mid.RealtimePipeline,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.SubscriptionManager, func()) {
	s := cfg.Subscriptions
	opts := []usecase.SubscriptionOption{
		usecase.WithPollInterval(s.PollInterval),
		usecase.WithBackoff(s.BackoffFactor, s.MaxBackoff),
		usecase.WithSubscriptionLogger(l.With(applogger.String("component", "subscriptions"))),
	}
	if pipe != nil {
		opts = append(opts, usecase.WithQuoteSink(pipe))
	}
	mgr := usecase.NewSubscriptionManager(md, m, opts...)
	return mgr, mgr.Close
}

// ProvideHeartbeat probes the source chain directly, bypassing the cache.
func ProvideHeartbeat(
	cfg *config.Config,
	orch *usecase.Orchestrator,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Heartbeat {
	hb := cfg.Heartbeat
	return usecase.NewHeartbeat(orch, m,
		usecase.WithProbeSymbol(hb.ProbeSymbol),
		usecase.WithHeartbeatInterval(hb.Interval),
		usecase.WithProbeTimeout(hb.Timeout),
		usecase.WithHeartbeatLogger(l.With(applogger.String("component", "heartbeat"))),
	)
}

// ProvideHTTPServer registers the market and stream handlers.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	md *usecase.MarketData,
	reg *usecase.Registry,
	subs *usecase.SubscriptionManager,
	hb *usecase.Heartbeat,
	archive repository.QuoteArchive,
) *xhttp.Server {
	hl := l.With(applogger.String("component", "http"))
	handlers := []xhttp.Handler{
		api.NewMarketEchoHandler(hl, md, hb, subs, reg.Names(), archive),
		api.NewStreamHandler(hl, subs, hb),
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(hl),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	subs *usecase.SubscriptionManager,
	hb *usecase.Heartbeat,
	pipe *mid.RealtimePipeline,
	proc *usecase.QuoteProcessor,
) *server.App {
	return server.New(cfg, l, srv, subs, hb, pipe, proc)
}
