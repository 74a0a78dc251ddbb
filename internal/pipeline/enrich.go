package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/NewsDigest/internal/llm"
	"github.com/LJTian/NewsDigest/internal/observability"
	"github.com/LJTian/NewsDigest/internal/processor"
)

// DefaultEnrichBatchSize 每批并发增强的条数
const DefaultEnrichBatchSize = 10

// Analyzer 为单条新闻提供增强信号
type Analyzer interface {
	Analyze(ctx context.Context, item processor.NewsItem) (*processor.Enrichment, error)
}

// LLMAnalyzer 用 llm.Client 的完整分析作为增强信号
type LLMAnalyzer struct {
	Client *llm.Client
}

func (a LLMAnalyzer) Analyze(ctx context.Context, item processor.NewsItem) (*processor.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.Client.AnalyzeNews(ctx, item).Enrichment(), nil
}

// Enricher 按固定批次增强并重新评分：批内并发，批间串行
type Enricher struct {
	analyzer  Analyzer
	scorer    *processor.Scorer
	batchSize int
	logger    *zerolog.Logger
}

func NewEnricher(analyzer Analyzer, scorer *processor.Scorer, batchSize int, logger *zerolog.Logger) *Enricher {
	if batchSize <= 0 {
		batchSize = DefaultEnrichBatchSize
	}
	if scorer == nil {
		scorer = processor.NewScorer()
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Enricher{analyzer: analyzer, scorer: scorer, batchSize: batchSize, logger: logger}
}

// enrichOutcome 单条增强的结果，失败时 item 是未增强的评分结果
type enrichOutcome struct {
	item processor.NewsItem
	err  error
}

// Enrich 单条失败只影响自己：回退为 Apply(item, nil)，不会中断批次
func (e *Enricher) Enrich(ctx context.Context, items []processor.NewsItem) []processor.NewsItem {
	out := make([]processor.NewsItem, len(items))

	for start := 0; start < len(items); start += e.batchSize {
		end := start + e.batchSize
		if end > len(items) {
			end = len(items)
		}

		outcomes := make([]enrichOutcome, end-start)
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				outcomes[i-start] = e.enrichOne(ctx, items[i])
				return nil
			})
		}
		_ = g.Wait()

		for j, oc := range outcomes {
			if oc.err != nil {
				observability.EnrichmentResults.WithLabelValues("failed").Inc()
				e.logger.Warn().Err(oc.err).Str("title", items[start+j].Title).Msg("enrichment failed, keep rule score")
			}
			out[start+j] = oc.item
		}
	}
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, item processor.NewsItem) (oc enrichOutcome) {
	defer func() {
		if r := recover(); r != nil {
			oc = enrichOutcome{item: e.scorer.Apply(item, nil), err: fmt.Errorf("analyzer panic: %v", r)}
		}
	}()

	enrichment, err := e.analyzer.Analyze(ctx, item)
	if err != nil {
		return enrichOutcome{item: e.scorer.Apply(item, nil), err: err}
	}
	return enrichOutcome{item: e.scorer.Apply(item, enrichment)}
}
