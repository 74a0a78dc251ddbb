package processor

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/LJTian/NewsDigest/internal/collector"
)

// 分类标签
const (
	CategoryTech          = "科技"
	CategoryFinance       = "财经"
	CategorySociety       = "社会"
	CategoryInternational = "国际"
	CategoryEntertainment = "娱乐"
	CategoryOther         = "其他"
)

// NewsItem 一次采集中的标准化新闻条目。
// Score 是对外可见的规则分（0~100），RankScore 只用于排序，可能超过 100。
type NewsItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	PublishTime *time.Time `json:"publishTime,omitempty"`
	Source      string     `json:"source"`
	Category    string     `json:"category"`
	Score       int        `json:"score"`
	RankScore   int        `json:"-"`
	Tags        []string   `json:"tags"`
}

// PublishedUnix 返回排序用的时间，未知时按 1970 处理
func (n NewsItem) PublishedUnix() int64 {
	if n.PublishTime == nil {
		return 0
	}
	return n.PublishTime.UnixMilli()
}

// Normalizer 把上游原始条目转换为 NewsItem，并给出初始分类、评分与标签
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock 替换时钟，测试里用来固定“现在”
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// WithIDFunc 替换 ID 生成函数
func (n *Normalizer) WithIDFunc(fn func() string) *Normalizer {
	n.newID = fn
	return n
}

func (n *Normalizer) Normalize(raw collector.RawFeedItem, source collector.NewsSource) NewsItem {
	title := raw.TitleOrDefault()
	desc := raw.DescriptionOrDefault()
	published := raw.Timestamp()

	name := source.Name
	if name == "" {
		name = source.ID
	}

	return NewsItem{
		ID:          n.newID(),
		Title:       title,
		URL:         raw.URLOrDefault(),
		Description: desc,
		PublishTime: published,
		Source:      name,
		Category:    DetectCategory(title),
		Score:       RuleScore(title, desc, published, n.now()),
		Tags:        ExtractTags(title),
	}
}

// NormalizeAll 批量标准化同一个源的条目
func (n *Normalizer) NormalizeAll(raws []collector.RawFeedItem, source collector.NewsSource) []NewsItem {
	out := make([]NewsItem, 0, len(raws))
	for _, r := range raws {
		out = append(out, n.Normalize(r, source))
	}
	return out
}

// DetectCategory 按关键词表判断分类。
// 科技类优先且不区分大小写，命中即返回；其余分类按表顺序做区分大小写的子串匹配。
func DetectCategory(title string) string {
	lower := strings.ToLower(title)
	for _, kw := range techCategoryKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return CategoryTech
		}
	}
	for _, entry := range categoryTable {
		for _, kw := range entry.keywords {
			if strings.Contains(title, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// RuleScore 初始规则分：基础 50，标题长度 (10,100) +10，描述超过 20 字 +5，
// 发布时间 1h/6h/24h 内分别 +20/+10/+5，最后限制在 [0,100]
func RuleScore(title, desc string, published *time.Time, now time.Time) int {
	score := 50

	if l := utf8.RuneCountInString(title); l > 10 && l < 100 {
		score += 10
	}
	if utf8.RuneCountInString(desc) > 20 {
		score += 5
	}
	if published != nil {
		age := now.Sub(*published)
		switch {
		case age < time.Hour:
			score += 20
		case age < 6*time.Hour:
			score += 10
		case age < 24*time.Hour:
			score += 5
		}
	}
	return clamp(score, 0, 100)
}

// ExtractTags 标题中原样出现的常用标签
func ExtractTags(title string) []string {
	tags := make([]string, 0, 2)
	for _, tag := range commonTags {
		if strings.Contains(title, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
