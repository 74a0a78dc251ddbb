package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultMaxItems 单个新闻源未配置 maxItems 时的默认条数上限
const DefaultMaxItems = 10

// 新闻源类型
const (
	KindNewsNow = "newsnow"
	KindScrape  = "scrape"
	KindRSS     = "rss"
)

// defaultTitle 上游条目缺少标题时的兜底值
const defaultTitle = "无标题"

// NewsSource 描述一个上游新闻源，例如 zhihu / ithome / hackernews
type NewsSource struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	MaxItems int    `json:"maxItems,omitempty" yaml:"maxItems"`
	// Kind 为空时按 newsnow 聚合接口处理
	Kind string `json:"kind,omitempty" yaml:"kind"`
	// URL 仅 rss 源使用
	URL string `json:"url,omitempty" yaml:"url"`
}

// Limit 返回该源的条数上限，未配置时使用 def（def<=0 时使用 DefaultMaxItems）
func (s NewsSource) Limit(def int) int {
	if s.MaxItems > 0 {
		return s.MaxItems
	}
	if def > 0 {
		return def
	}
	return DefaultMaxItems
}

// KindOrDefault 返回源类型
func (s NewsSource) KindOrDefault() string {
	if s.Kind == "" {
		return KindNewsNow
	}
	return s.Kind
}

// RawFeedItem 上游单条新闻的显式解码结构，所有字段都是可选的。
//
// 默认值规则：
//   - 标题为空时使用 "无标题"
//   - 链接为空时保持空串（由下游质量过滤丢弃）
//   - 描述优先 description，其次 summary
//   - 发布时间优先 publishTime，其次 time；都没有时视为未知
type RawFeedItem struct {
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	PublishTime FeedTime `json:"publishTime"`
	Time        FeedTime `json:"time"`
}

func (r RawFeedItem) TitleOrDefault() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	return defaultTitle
}

func (r RawFeedItem) URLOrDefault() string {
	return strings.TrimSpace(r.URL)
}

func (r RawFeedItem) DescriptionOrDefault() string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	return strings.TrimSpace(r.Summary)
}

// Timestamp 返回发布时间，未知时返回 nil
func (r RawFeedItem) Timestamp() *time.Time {
	if r.PublishTime.Valid {
		t := r.PublishTime.Time
		return &t
	}
	if r.Time.Valid {
		t := r.Time.Time
		return &t
	}
	return nil
}

// FeedTime 兼容上游多种时间格式：RFC3339 字符串、常见日期字符串、秒/毫秒时间戳。
// 无法识别的值按未知处理，不让整批数据解析失败。
type FeedTime struct {
	Time  time.Time
	Valid bool
}

// 数字时间戳按量级区分秒、毫秒、微秒、纳秒
const (
	epochMillisThreshold = 1e11
	epochMicrosThreshold = 1e14
	epochNanosThreshold  = 1e17
)

func (ft *FeedTime) UnmarshalJSON(data []byte) error {
	*ft = FeedTime{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] != '"' {
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return nil
		}
		ft.setEpoch(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ft.set(t)
		return nil
	}
	// 20240501 这类 8 位日期不能当作秒级时间戳
	if len(s) == 8 && isDigits(s) {
		if t, err := dateparse.ParseIn(s, shanghai); err == nil {
			ft.set(t)
		}
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		ft.setEpoch(n)
		return nil
	}
	if t, err := dateparse.ParseIn(s, shanghai); err == nil {
		ft.set(t)
	}
	return nil
}

func (ft FeedTime) MarshalJSON() ([]byte, error) {
	if !ft.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ft.Time.Format(time.RFC3339Nano))
}

// setEpoch NaN、Inf、非正数以及超出 int64 的值都按未知处理
func (ft *FeedTime) setEpoch(n float64) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 || n >= math.MaxInt64 {
		return
	}
	v := int64(n)
	switch {
	case n > epochNanosThreshold:
		ft.set(time.Unix(0, v))
	case n > epochMicrosThreshold:
		ft.set(time.UnixMicro(v))
	case n > epochMillisThreshold:
		ft.set(time.UnixMilli(v))
	default:
		ft.set(time.Unix(v, 0))
	}
}

// set 只接受 JSON 能编码的年份 [0, 9999]
func (ft *FeedTime) set(t time.Time) {
	if y := t.UTC().Year(); y < 0 || y > 9999 {
		return
	}
	ft.Time, ft.Valid = t, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// NewFeedTime 构造一个有效的 FeedTime
func NewFeedTime(t time.Time) FeedTime {
	return FeedTime{Time: t, Valid: true}
}

// 国内源的无时区时间按东八区解析
var shanghai *time.Location

func init() {
	shanghai, _ = time.LoadLocation("Asia/Shanghai")
	if shanghai == nil {
		shanghai = time.FixedZone("CST", 8*3600)
	}
}

// FetchResult 单个源一次采集的结果：要么 Items 非空，要么 Err 非空
type FetchResult struct {
	Items     []RawFeedItem
	Err       *FetchError
	Attempts  int
	FromCache bool
}

// OK 表示采集成功
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// Success 构造成功结果
func Success(items []RawFeedItem, attempts int) FetchResult {
	return FetchResult{Items: items, Attempts: attempts}
}

// Failure 构造失败结果，Items 始终为空
func Failure(err *FetchError, attempts int) FetchResult {
	return FetchResult{Items: []RawFeedItem{}, Err: err, Attempts: attempts}
}

// Fetcher 抽象每一种数据源的采集方式
type Fetcher interface {
	Fetch(ctx context.Context, source NewsSource) FetchResult
}

// MultiFetcher 按 NewsSource.Kind 把请求分发给对应的 Fetcher
type MultiFetcher struct {
	byKind   map[string]Fetcher
	fallback Fetcher
}

// NewMultiFetcher fallback 用于未注册的类型
func NewMultiFetcher(fallback Fetcher) *MultiFetcher {
	return &MultiFetcher{byKind: make(map[string]Fetcher), fallback: fallback}
}

// Register 注册某类源的 Fetcher
func (m *MultiFetcher) Register(kind string, f Fetcher) *MultiFetcher {
	m.byKind[kind] = f
	return m
}

func (m *MultiFetcher) Fetch(ctx context.Context, source NewsSource) FetchResult {
	if f, ok := m.byKind[source.KindOrDefault()]; ok {
		return f.Fetch(ctx, source)
	}
	return m.fallback.Fetch(ctx, source)
}

// truncate 保留前 limit 条
func truncate(items []RawFeedItem, limit int) []RawFeedItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
