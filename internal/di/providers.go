package di

import (
	"context"
	"fmt"
	"time"

	"QuantLens/internal/domain/repository"
	"QuantLens/internal/domain/service"
	"QuantLens/internal/handler/api"
	internalrepo "QuantLens/internal/repository"
	svcmetrics "QuantLens/internal/service/metrics"
	"QuantLens/internal/service/modelsvc"
	"QuantLens/internal/service/news"
	"QuantLens/internal/service/ratelimit"
	"QuantLens/internal/service/sentiment"
	"QuantLens/internal/services/analytics"
	"QuantLens/internal/usecase"
	"QuantLens/pkg/cache"
	pkgch "QuantLens/pkg/clickhouse"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	pkgkafka "QuantLens/pkg/kafka"
	"QuantLens/pkg/logger"
	"QuantLens/pkg/metrics"
	"QuantLens/pkg/server"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder and registers the
// upstream collectors.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New(nil)
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideCache returns the layered cache. Redis is optional; when it cannot
// be reached the cache degrades to memory only.
func ProvideCache(cfg *config.Config, log *logger.Logger) (cache.Service, func()) {
	rc := cfg.Cache.Redis
	var redisCache *cache.RedisCache
	if rc.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := cache.NewRedisCache(ctx,
			cache.WithRedisHost(rc.Host),
			cache.WithRedisPort(rc.Port),
			cache.WithRedisPassword(rc.Password),
			cache.WithRedisDB(rc.DB),
			cache.WithRedisPrefix(rc.Prefix),
		)
		if err != nil {
			log.Warn("redis unavailable, using memory cache only", logger.Error(err))
		} else {
			redisCache = c
		}
	}

	layered := cache.NewLayeredCache(redisCache, cache.WithLayeredMemorySize(cfg.Cache.MemorySize))
	cleanup := func() {
		if err := layered.Close(); err != nil {
			log.Warn("cache close error", logger.Error(err))
		}
	}
	return layered, cleanup
}

// ProvideClickHouseClient connects to ClickHouse and creates the price table.
// It returns a nil client when no host is configured.
func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, func(), error) {
	cc := cfg.ClickHouse
	if cc.Host == "" {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cc.Host),
		pkgch.WithPort(cc.Port),
		pkgch.WithDatabase(cc.Database),
		pkgch.WithCredentials(cc.User, cc.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cc.DialTimeout, cc.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx,
		"CREATE DATABASE IF NOT EXISTS "+cc.Database,
		internalrepo.DailyPricesDDL(cc.Database, cc.Table),
	); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse connected", logger.String("database", cc.Database), logger.String("table", cc.Table))

	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close error", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvidePriceFetcher selects the price source. Yahoo prices are archived to
// ClickHouse when a client is available.
func ProvidePriceFetcher(cfg *config.Config, ch *pkgch.Client, limiter *ratelimit.Limiter, log *logger.Logger) (service.PriceFetcher, error) {
	switch cfg.Prices.Source {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("prices.source is clickhouse but no clickhouse client is configured")
		}
		return internalrepo.NewCHPriceStore(ch, cfg.ClickHouse.Table, log), nil
	default:
		yahoo := internalrepo.NewYahooPriceFetcher(cfg, limiter, log)
		if ch == nil {
			return yahoo, nil
		}
		store := internalrepo.NewCHPriceStore(ch, cfg.ClickHouse.Table, log)
		return internalrepo.NewArchivingPriceFetcher(yahoo, store, "yahoo", log), nil
	}
}

// ProvideNewsFetcher returns nil when news is disabled or no source is configured.
func ProvideNewsFetcher(cfg *config.Config, limiter *ratelimit.Limiter, log *logger.Logger) service.NewsFetcher {
	if !cfg.News.Enabled {
		return nil
	}
	f := news.NewFetcherFromConfig(cfg, limiter, log)
	if f.Sources() == 0 {
		log.Warn("news enabled but no source configured")
		return nil
	}
	return f
}

// ProvideSentimentScorer uses the model service when configured and the
// lexicon otherwise, behind a bounded result cache.
func ProvideSentimentScorer(cfg *config.Config, log *logger.Logger) service.SentimentScorer {
	var inner service.SentimentScorer = sentiment.NewLexiconScorer()
	if cfg.ModelService.URL != "" {
		inner = modelsvc.NewHTTPSentimentScorer(modelsvc.NewHTTPServiceBase("sentiment", cfg, log))
	}
	mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Sentiment.CacheSize))
	return sentiment.NewCachedScorer(inner, mem, cfg.Sentiment.MaxTextLen, log)
}

// ProvideForecaster prefers the model service fitters and falls back to the
// local AR and EWMA fitters.
func ProvideForecaster(cfg *config.Config, log *logger.Logger) *analytics.HybridForecaster {
	var (
		mean service.MeanModelFitter       = modelsvc.ARFitter{}
		vol  service.VolatilityModelFitter = modelsvc.EWMAFitter{}
	)
	if cfg.ModelService.URL != "" {
		base := modelsvc.NewHTTPServiceBase("model_service", cfg, log)
		mean = &modelsvc.FallbackMeanFitter{Primary: modelsvc.NewHTTPMeanFitter(base), Fallback: mean, Log: log}
		vol = &modelsvc.FallbackVolatilityFitter{Primary: modelsvc.NewHTTPVolatilityFitter(base), Fallback: vol, Log: log}
	}
	return analytics.NewHybridForecaster(mean, vol)
}

func ProvideAnalyticsUseCase(
	cfg *config.Config,
	prices service.PriceFetcher,
	newsFetcher service.NewsFetcher,
	scorer service.SentimentScorer,
	forecaster *analytics.HybridForecaster,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.AnalyticsUseCase {
	return usecase.NewAnalyticsUseCase(prices, newsFetcher, scorer, forecaster, m, usecase.OptionsFromConfig(cfg), log)
}

func ProvideSnapshotStore(c cache.Service, cfg *config.Config) repository.SnapshotStore {
	return internalrepo.NewCacheSnapshotStore(c, cfg.Cache.SnapshotTTL)
}

// ProvideSnapshotPublisher publishes to Kafka when brokers are configured.
func ProvideSnapshotPublisher(cfg *config.Config, log *logger.Logger) (repository.SnapshotPublisher, func(), error) {
	kc := cfg.Kafka
	if len(kc.Brokers) == 0 {
		return internalrepo.NopSnapshotPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(kc.Brokers),
		pkgkafka.WithTopic(kc.Topic),
		pkgkafka.WithCompression(kc.Compression),
		pkgkafka.WithWriteTimeout(kc.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	log.Info("kafka snapshot publisher ready", logger.Strings("brokers", kc.Brokers), logger.String("topic", kc.Topic))

	pub := internalrepo.NewKafkaSnapshotPublisher(producer)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			log.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return pub, cleanup, nil
}

func ProvideSnapshotRefresher(
	cfg *config.Config,
	uc *usecase.AnalyticsUseCase,
	store repository.SnapshotStore,
	pub repository.SnapshotPublisher,
	m repository.Metrics,
	log *logger.Logger,
) (*usecase.SnapshotRefresher, error) {
	return usecase.NewSnapshotRefresher(uc, store, pub, m, cfg.Refresh.Schedule, cfg.Analytics.Timeout, log)
}

func ProvideAnalyticsHandler(log *logger.Logger, uc *usecase.AnalyticsUseCase, refresher *usecase.SnapshotRefresher) *api.AnalyticsHandler {
	return api.NewAnalyticsHandler(log, uc, refresher)
}

func ProvideHTTPServer(cfg *config.Config, h *api.AnalyticsHandler, log *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, log,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, cfg.Server.SlowThreshold),
	)
}

// ProvideApp assembles the application.
func ProvideApp(cfg *config.Config, log *logger.Logger, srv *xhttp.Server, refresher *usecase.SnapshotRefresher) *server.App {
	return server.New(cfg, log, srv, refresher)
}
