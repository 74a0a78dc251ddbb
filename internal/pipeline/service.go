package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/llm"
	"github.com/LJTian/NewsDigest/internal/observability"
	"github.com/LJTian/NewsDigest/internal/processor"
)

var (
	ErrNoSources = errors.New("没有启用的新闻源")
	ErrNoItems   = errors.New("未收集到任何新闻")
)

// Sink 摘要的投递方，例如飞书机器人
type Sink interface {
	SendDigest(ctx context.Context, d digest.NewsDigest) error
}

// ConnectionTester 可选接口，自检时用来测试投递方连通性
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// Classifier 自检时对采到的新闻做一次批量技术分类
type Classifier interface {
	BatchAnalyze(ctx context.Context, items []processor.NewsItem) []llm.Analysis
}

// Store 持久化摘要
type Store interface {
	SaveDigest(ctx context.Context, d digest.NewsDigest, stats NewsStats) error
}

// Delivery 投递结果
type Delivery struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// TaskResult 一次运行的结构化结果，Run 永远返回它而不是错误
type TaskResult struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	Error         string             `json:"error,omitempty"`
	NewsCount     int                `json:"newsCount"`
	Stats         *NewsStats         `json:"stats,omitempty"`
	Digest        *digest.NewsDigest `json:"digest,omitempty"`
	Delivery      Delivery           `json:"delivery"`
	PersistError  string             `json:"persistError,omitempty"`
	ExecutionTime int64              `json:"executionTime"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Service 串起一次完整运行：取源、采集、过滤、增强、生成摘要、投递、持久化
type Service struct {
	registry     SourceRegistry
	orchestrator *Orchestrator
	builder      *digest.Builder
	scorer       *processor.Scorer
	enricher     *Enricher
	classifier   Classifier
	sink         Sink
	store        Store
	minScore     int
	threshold    float64
	cronSpec     string
	cronCheck    func(string) error
	logger       *zerolog.Logger
	now          func() time.Time
}

type ServiceOption func(*Service)

func WithEnricher(e *Enricher) ServiceOption {
	return func(s *Service) { s.enricher = e }
}

// WithClassifier 自检时检查大模型分类是否可用
func WithClassifier(c Classifier) ServiceOption {
	return func(s *Service) { s.classifier = c }
}

func WithSink(sink Sink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

func WithStore(store Store) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithMinScore 质量过滤的最低规则分
func WithMinScore(n int) ServiceOption {
	return func(s *Service) { s.minScore = n }
}

// WithPostFilterThreshold 过滤后模糊去重的阈值
func WithPostFilterThreshold(t float64) ServiceOption {
	return func(s *Service) {
		if t > 0 {
			s.threshold = t
		}
	}
}

// WithCronCheck 自检时校验 cron 表达式
func WithCronCheck(spec string, check func(string) error) ServiceOption {
	return func(s *Service) {
		s.cronSpec = spec
		s.cronCheck = check
	}
}

func NewService(registry SourceRegistry, orchestrator *Orchestrator, builder *digest.Builder, logger *zerolog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	s := &Service{
		registry:     registry,
		orchestrator: orchestrator,
		builder:      builder,
		scorer:       processor.NewScorer(),
		minScore:     processor.DefaultMinScore,
		threshold:    processor.DefaultSimilarityThreshold,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 执行一次完整采集。单个源、单条增强、投递或持久化失败都只记录；
// 没有启用的源或一条新闻都没采到时返回失败结果。
func (s *Service) Run(ctx context.Context) (res TaskResult) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("run panicked")
			res = s.failure(start, fmt.Errorf("panic: %v", r))
		}
		status := "success"
		if !res.Success {
			status = "failure"
		}
		observability.RunsTotal.WithLabelValues(status).Inc()
		observability.RunDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	s.logger.Info().Msg("start news collection task")

	sources, err := s.registry.EnabledSources(ctx)
	if err != nil {
		return s.failure(start, fmt.Errorf("load sources: %w", err))
	}
	sources = EnabledOnly(sources)
	if len(sources) == 0 {
		return s.failure(start, ErrNoSources)
	}

	items, stats := s.orchestrator.CollectAll(ctx, sources)
	if len(items) == 0 {
		s.logger.Warn().Msg("no news collected")
		res = s.failure(start, ErrNoItems)
		res.Message = ErrNoItems.Error()
		res.Stats = &stats
		return res
	}

	filtered := processor.FilterQuality(items, s.minScore)
	observability.QualityDropped.Add(float64(len(items) - len(filtered)))
	unique := processor.DedupeFuzzy(filtered, s.threshold)
	observability.DuplicatesRemoved.WithLabelValues("post_filter").Add(float64(len(filtered) - len(unique)))

	var ranked []processor.NewsItem
	if s.enricher != nil {
		ranked = s.enricher.Enrich(ctx, unique)
	} else {
		ranked = s.scorer.ApplyAll(unique)
	}

	d := s.builder.BuildWithRewrite(ctx, ranked)

	res = TaskResult{
		Success:   true,
		NewsCount: len(unique),
		Stats:     &stats,
		Digest:    &d,
	}
	res.Delivery = s.deliver(ctx, d)
	if s.store != nil {
		if err := s.store.SaveDigest(ctx, d, stats); err != nil {
			s.logger.Error().Err(err).Msg("save digest failed")
			res.PersistError = err.Error()
		}
	}

	res.Message = successMessage(len(unique), res.Delivery)
	res.ExecutionTime = s.now().Sub(start).Milliseconds()
	res.Timestamp = s.now()

	s.logger.Info().
		Int("count", len(unique)).
		Int64("duration_ms", res.ExecutionTime).
		Bool("delivered", res.Delivery.Success).
		Msg("news collection task done")
	return res
}

func (s *Service) deliver(ctx context.Context, d digest.NewsDigest) Delivery {
	if s.sink == nil {
		return Delivery{}
	}
	if err := s.sink.SendDigest(ctx, d); err != nil {
		observability.DigestsDelivered.WithLabelValues("failure").Inc()
		s.logger.Error().Err(err).Msg("deliver digest failed")
		return Delivery{Attempted: true, Error: err.Error()}
	}
	observability.DigestsDelivered.WithLabelValues("success").Inc()
	return Delivery{Attempted: true, Success: true}
}

func successMessage(n int, d Delivery) string {
	switch {
	case !d.Attempted:
		return fmt.Sprintf("成功收集 %d 条新闻", n)
	case d.Success:
		return fmt.Sprintf("成功收集 %d 条新闻并成功推送到飞书", n)
	default:
		return fmt.Sprintf("成功收集 %d 条新闻，推送到飞书失败", n)
	}
}

func (s *Service) failure(start time.Time, err error) TaskResult {
	s.logger.Error().Err(err).Msg("news collection task failed")
	return TaskResult{
		Success:       false,
		Message:       "执行失败: " + err.Error(),
		Error:         err.Error(),
		ExecutionTime: s.now().Sub(start).Milliseconds(),
		Timestamp:     s.now(),
	}
}

// ClearCache 清空采集缓存
func (s *Service) ClearCache(ctx context.Context) error {
	return s.orchestrator.ClearCache(ctx)
}

// selfTestSources 自检时采集的源数量与每源条数
const (
	selfTestSources  = 2
	selfTestMaxItems = 2
)

// CheckResult 单项自检结果
type CheckResult struct {
	Enabled bool   `json:"enabled"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CollectionCheck 自检中的采集结果
type CollectionCheck struct {
	Success   bool      `json:"success"`
	NewsCount int       `json:"newsCount"`
	Stats     NewsStats `json:"stats"`
}

// SelfTestReport 系统自检报告
type SelfTestReport struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Cron       CheckResult     `json:"cron"`
	Sink       CheckResult     `json:"sink"`
	LLM        CheckResult     `json:"llm"`
	Collection CollectionCheck `json:"collection"`
	Timestamp  time.Time       `json:"timestamp"`
}

// SelfTest 校验 cron 表达式和投递方连通性，从前两个启用的源各采 2 条，
// 配置了 Classifier 时再对采到的新闻做一次批量分类
func (s *Service) SelfTest(ctx context.Context) SelfTestReport {
	report := SelfTestReport{Timestamp: s.now()}

	report.Cron = CheckResult{Enabled: s.cronCheck != nil, Success: true}
	if s.cronCheck != nil {
		if err := s.cronCheck(s.cronSpec); err != nil {
			report.Cron.Success = false
			report.Cron.Message = err.Error()
		}
	}

	report.Sink = CheckResult{Enabled: s.sink != nil, Success: true}
	if tester, ok := s.sink.(ConnectionTester); ok {
		if err := tester.TestConnection(ctx); err != nil {
			report.Sink.Success = false
			report.Sink.Message = err.Error()
		}
	}

	sources, err := s.registry.EnabledSources(ctx)
	if err != nil {
		report.Message = "测试失败: " + err.Error()
		return report
	}
	sources = EnabledOnly(sources)
	if len(sources) > selfTestSources {
		sources = sources[:selfTestSources]
	}
	probe := make([]collector.NewsSource, len(sources))
	for i, src := range sources {
		src.MaxItems = selfTestMaxItems
		probe[i] = src
	}
	items, stats := s.orchestrator.CollectFresh(ctx, probe)
	report.Collection = CollectionCheck{Success: len(items) > 0, NewsCount: len(items), Stats: stats}
	report.LLM = s.checkClassifier(ctx, items)

	report.Success = report.Cron.Success && report.Sink.Success && report.Collection.Success && report.LLM.Success
	if report.Success {
		report.Message = "系统测试通过"
	} else {
		report.Message = "系统测试发现问题"
	}
	return report
}

// checkClassifier 全部结果都来自关键词兜底时视为大模型不可用
func (s *Service) checkClassifier(ctx context.Context, items []processor.NewsItem) CheckResult {
	if s.classifier == nil {
		return CheckResult{Success: true}
	}
	if len(items) == 0 {
		return CheckResult{Enabled: true, Message: "没有可供分析的新闻"}
	}

	results := s.classifier.BatchAnalyze(ctx, items)
	fallback, tech := 0, 0
	for _, r := range results {
		if r.Fallback {
			fallback++
		}
		if r.IsTechNews {
			tech++
		}
	}
	if fallback == len(results) {
		return CheckResult{Enabled: true, Message: "大模型分析全部失败，已使用关键词匹配"}
	}
	return CheckResult{
		Enabled: true,
		Success: true,
		Message: fmt.Sprintf("分析 %d 条，技术新闻 %d 条", len(results), tech),
	}
}
