package digest

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/processor"
)

// TopNewsLimit 摘要中保留的新闻条数
const TopNewsLimit = 20

// EmptySummary 没有任何新闻时的摘要
const EmptySummary = "暂无新闻数据"

// Rewriter 对基础摘要做润色，例如交给 LLM 改写
type Rewriter interface {
	RewriteSummary(ctx context.Context, d NewsDigest) (string, error)
}

// Builder 把一次运行的条目整理成 NewsDigest
type Builder struct {
	now      func() time.Time
	rewriter Rewriter
	logger   *zerolog.Logger
}

func NewBuilder(logger *zerolog.Logger) *Builder {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Builder{now: time.Now, logger: logger}
}

// WithClock 替换时钟，固定时钟下 Build 是纯函数
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRewriter 设置摘要改写器，只在 BuildWithRewrite 中使用
func (b *Builder) WithRewriter(r Rewriter) *Builder {
	b.rewriter = r
	return b
}

// Build 按排序分降序排列（同分时发布时间新的在前，未知时间视为最旧），
// 统计分类、截取前 20 条并生成摘要文本
func (b *Builder) Build(items []processor.NewsItem) NewsDigest {
	now := b.now()
	if len(items) == 0 {
		return NewsDigest{
			TotalCount:  0,
			Categories:  Histogram{},
			TopNews:     []processor.NewsItem{},
			Summary:     EmptySummary,
			GeneratedAt: now,
		}
	}

	sorted := SortByRank(items)
	cats := CategoryHistogram(sorted)

	top := sorted
	if len(top) > TopNewsLimit {
		top = top[:TopNewsLimit]
	}

	return NewsDigest{
		TotalCount:  len(items),
		Categories:  cats,
		TopNews:     append([]processor.NewsItem(nil), top...),
		Summary:     SummaryText(sorted, cats, now),
		GeneratedAt: now,
	}
}

// BuildWithRewrite 先 Build，再尝试改写摘要；改写失败保留基础摘要
func (b *Builder) BuildWithRewrite(ctx context.Context, items []processor.NewsItem) NewsDigest {
	d := b.Build(items)
	if b.rewriter == nil || d.TotalCount == 0 {
		return d
	}
	summary, err := b.rewriter.RewriteSummary(ctx, d)
	if err != nil {
		b.logger.Warn().Err(err).Msg("summary rewrite failed, keeping base summary")
		return d
	}
	if summary != "" {
		d.Summary = summary
	}
	return d
}

// SortByRank 返回排序后的副本，不修改入参
func SortByRank(items []processor.NewsItem) []processor.NewsItem {
	out := append([]processor.NewsItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return out[i].PublishedUnix() > out[j].PublishedUnix()
	})
	return out
}

// CategoryHistogram 分类统计，按条数降序，同数时按首次出现顺序
func CategoryHistogram(items []processor.NewsItem) Histogram {
	index := make(map[string]int)
	h := Histogram{}
	for _, it := range items {
		cat := it.Category
		if cat == "" {
			cat = processor.CategoryOther
		}
		if i, ok := index[cat]; ok {
			h[i].Count++
			continue
		}
		index[cat] = len(h)
		h = append(h, CategoryCount{Name: cat, Count: 1})
	}
	sort.SliceStable(h, func(i, j int) bool { return h[i].Count > h[j].Count })
	return h
}
