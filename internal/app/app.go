package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/lark"
	"github.com/LJTian/NewsDigest/internal/llm"
	"github.com/LJTian/NewsDigest/internal/pipeline"
	"github.com/LJTian/NewsDigest/internal/processor"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/storage"
)

// App 按配置装配好的各组件
type App struct {
	Service   *pipeline.Service
	Scheduler *scheduler.Scheduler
	// Store 未配置 POSTGRES_DSN 时为 nil
	Store *storage.Store
	// LLM 未启用时为 nil
	LLM *llm.Client

	redis  *redis.Client
	logger *zerolog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	a := &App{logger: logger}

	sources, err := cfg.Sources()
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
		cancel()
	}

	var registry pipeline.SourceRegistry = pipeline.StaticRegistry(sources)
	if cfg.PostgresDSN != "" {
		store, err := storage.Open(cfg.PostgresDSN, a.redis, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := store.SyncSources(ctx, sources); err != nil {
			_ = store.Close()
			a.Close()
			return nil, err
		}
		a.Store = store
		registry = store
	}

	fetcher := collector.NewMultiFetcher(
		collector.NewNewsNowFetcher(cfg.NewsAPIBaseURL, cfg.FetchTimeout, cfg.RetryAttempts, cfg.NewsMaxPerSource, logger),
	).Register(
		collector.KindScrape,
		collector.NewScrapeFetcher(cfg.FetchTimeout, cfg.RetryAttempts, cfg.NewsMaxPerSource, logger),
	).Register(
		collector.KindRSS,
		collector.NewRSSFetcher(cfg.FetchTimeout, cfg.RetryAttempts, cfg.NewsMaxPerSource, logger),
	)

	var cache collector.Cache = collector.NewMemoryCache(cfg.CacheDuration)
	if cfg.CacheBackend == config.CacheBackendRedis {
		if a.redis == nil {
			a.Close()
			return nil, errors.New("redis cache backend requires REDIS_ADDR")
		}
		cache = collector.NewRedisCache(a.redis, cfg.CacheDuration)
	}

	orchestrator := pipeline.NewOrchestrator(fetcher, cache, logger,
		pipeline.WithSimilarityThreshold(cfg.SimilarityThreshold),
		pipeline.WithTotalLimit(cfg.NewsTotalLimit),
	)
	builder := digest.NewBuilder(logger)

	opts := []pipeline.ServiceOption{
		pipeline.WithMinScore(cfg.QualityMinScore),
		pipeline.WithPostFilterThreshold(cfg.SimilarityThreshold),
		pipeline.WithCronCheck(cfg.SchedulerCron, scheduler.ValidateSpec),
	}
	if cfg.LLMEnabled {
		a.LLM = llm.NewClient(llm.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			RPS:     cfg.LLMRPS,
			Timeout: cfg.LLMTimeout,
		}, logger)
		enricher := pipeline.NewEnricher(pipeline.LLMAnalyzer{Client: a.LLM}, processor.NewScorer(), cfg.EnrichBatchSize, logger)
		opts = append(opts, pipeline.WithEnricher(enricher), pipeline.WithClassifier(a.LLM))
		if cfg.LLMSummaryEnabled {
			builder.WithRewriter(pipeline.SummaryRewriter{Client: a.LLM})
		}
	}
	if cfg.LarkBotEnabled {
		bot := lark.New(lark.Config{
			Enabled:    true,
			WebhookURL: cfg.LarkBotWebhookURL,
			Secret:     cfg.LarkBotSecret,
		}, logger)
		opts = append(opts, pipeline.WithSink(bot))
	}
	if a.Store != nil {
		opts = append(opts, pipeline.WithStore(a.Store))
	}

	a.Service = pipeline.NewService(registry, orchestrator, builder, logger, opts...)

	a.Scheduler, err = scheduler.New(scheduler.Options{
		Enabled:      cfg.SchedulerEnabled,
		Spec:         cfg.SchedulerCron,
		Timezone:     cfg.SchedulerTimezone,
		StartupDelay: cfg.SchedulerStartupDelay,
	}, a.Service, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return a, nil
}

// Close 释放数据库与 Redis 连接
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close store failed")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close redis failed")
		}
	}
}
