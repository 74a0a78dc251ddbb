package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/observability"
	"github.com/LJTian/NewsDigest/internal/processor"
)

// NewsStats 一次采集的统计
type NewsStats struct {
	TotalCollected    int               `json:"totalCollected"`
	BySource          map[string]int    `json:"bySource"`
	ByCategory        map[string]int    `json:"byCategory"`
	DuplicatesRemoved int               `json:"duplicatesRemoved"`
	ProcessingTime    int64             `json:"processingTime"`
	Errors            map[string]string `json:"errors,omitempty"`
}

func newStats() NewsStats {
	return NewsStats{
		BySource:   make(map[string]int),
		ByCategory: make(map[string]int),
		Errors:     make(map[string]string),
	}
}

// Orchestrator 并发采集所有启用的源，标准化后合并去重。
// 缓存归 Orchestrator 所有，每个源的缓存槽只被处理该源的 goroutine 读写。
type Orchestrator struct {
	fetcher    collector.Fetcher
	cache      collector.Cache
	normalizer *processor.Normalizer
	threshold  float64
	totalLimit int
	logger     *zerolog.Logger
	now        func() time.Time
}

type OrchestratorOption func(*Orchestrator)

// WithSimilarityThreshold 模糊去重阈值
func WithSimilarityThreshold(t float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if t > 0 {
			o.threshold = t
		}
	}
}

// WithTotalLimit 去重后的总条数上限，0 表示不限制
func WithTotalLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.totalLimit = n }
}

// WithNormalizer 替换标准化器
func WithNormalizer(n *processor.Normalizer) OrchestratorOption {
	return func(o *Orchestrator) { o.normalizer = n }
}

// NewOrchestrator cache 可以为 nil，表示不缓存
func NewOrchestrator(fetcher collector.Fetcher, cache collector.Cache, logger *zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	o := &Orchestrator{
		fetcher:    fetcher,
		cache:      cache,
		normalizer: processor.NewNormalizer(),
		threshold:  processor.DefaultSimilarityThreshold,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type sourceResult struct {
	source collector.NewsSource
	items  []processor.NewsItem
	result collector.FetchResult
}

// CollectAll 每个启用的源一个 goroutine，等待全部完成后再合并；单个源失败只记录不返回
func (o *Orchestrator) CollectAll(ctx context.Context, sources []collector.NewsSource) ([]processor.NewsItem, NewsStats) {
	return o.collect(ctx, sources, true)
}

// CollectFresh 与 CollectAll 相同，但不读写缓存，用于自检这类临时改了条数上限的采集
func (o *Orchestrator) CollectFresh(ctx context.Context, sources []collector.NewsSource) ([]processor.NewsItem, NewsStats) {
	return o.collect(ctx, sources, false)
}

func (o *Orchestrator) collect(ctx context.Context, sources []collector.NewsSource, useCache bool) ([]processor.NewsItem, NewsStats) {
	start := o.now()
	stats := newStats()
	enabled := EnabledOnly(sources)

	o.logger.Info().Int("count", len(enabled)).Msg("start collecting")

	results := make([]sourceResult, len(enabled))
	var wg sync.WaitGroup
	for i, src := range enabled {
		wg.Add(1)
		go func(i int, src collector.NewsSource) {
			defer wg.Done()
			results[i] = o.collectSource(ctx, src, useCache)
		}(i, src)
	}
	wg.Wait()

	all := make([]processor.NewsItem, 0, len(enabled)*collector.DefaultMaxItems)
	for _, r := range results {
		name := sourceName(r.source)
		stats.BySource[name] = len(r.items)
		stats.TotalCollected += len(r.items)
		if !r.result.OK() {
			stats.Errors[name] = r.result.Err.Error()
		}
		all = append(all, r.items...)
	}

	unique, removed := processor.Deduplicate(all, o.threshold)
	stats.DuplicatesRemoved = removed
	observability.DuplicatesRemoved.WithLabelValues("collect").Add(float64(removed))

	if o.totalLimit > 0 && len(unique) > o.totalLimit {
		unique = unique[:o.totalLimit]
	}

	for _, it := range unique {
		stats.ByCategory[it.Category]++
	}
	stats.ProcessingTime = o.now().Sub(start).Milliseconds()

	o.logger.Info().
		Int("collected", stats.TotalCollected).
		Int("unique", len(unique)).
		Int("failed_sources", len(stats.Errors)).
		Int64("duration_ms", stats.ProcessingTime).
		Msg("collect done")

	return unique, stats
}

func (o *Orchestrator) collectSource(ctx context.Context, src collector.NewsSource, useCache bool) sourceResult {
	res := o.fetch(ctx, src, useCache)
	if !res.OK() {
		o.logger.Warn().Str("source", src.Name).Str("kind", string(res.Err.Kind)).Int("attempt", res.Attempts).Msg("source failed")
		return sourceResult{source: src, items: []processor.NewsItem{}, result: res}
	}

	items := o.normalizer.NormalizeAll(res.Items, src)
	observability.ItemsCollected.WithLabelValues(src.ID).Add(float64(len(items)))
	o.logger.Debug().Str("source", src.Name).Int("count", len(items)).Bool("cached", res.FromCache).Msg("source collected")
	return sourceResult{source: src, items: items, result: res}
}

func (o *Orchestrator) fetch(ctx context.Context, src collector.NewsSource, useCache bool) collector.FetchResult {
	if !useCache || o.cache == nil {
		return o.fetcher.Fetch(ctx, src)
	}
	if items, ok := o.cache.Get(ctx, src.ID); ok {
		observability.CacheHits.WithLabelValues(src.ID).Inc()
		res := collector.Success(items, 0)
		res.FromCache = true
		return res
	}

	res := o.fetcher.Fetch(ctx, src)
	if res.OK() {
		o.cache.Set(ctx, src.ID, res.Items)
	}
	return res
}

// ClearCache 清空采集缓存
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Clear(ctx)
}

func sourceName(s collector.NewsSource) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
