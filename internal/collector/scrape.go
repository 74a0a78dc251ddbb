package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
)

const scrapeUserAgent = "NewsDigestBot/1.0"

// ScrapeRule 直接抓取某个榜单页面的选择器配置
type ScrapeRule struct {
	URL string
	// AllowedDomain 为空时不限制域名
	AllowedDomain string
	ItemSelector  string
	TitleSelector string
	LinkSelector  string
	DescSelector  string
	// FallbackLink 条目没有链接时使用
	FallbackLink string
}

// 页面结构可能调整，选择器基于当前的 DOM 结构做“尽力而为”的解析
var builtinRules = map[string]ScrapeRule{
	"baidu": {
		URL:           "https://top.baidu.com/board?tab=realtime",
		AllowedDomain: "top.baidu.com",
		ItemSelector:  "div.category-wrap_iQLoo",
		TitleSelector: "div.c-single-text-ellipsis",
		LinkSelector:  "a",
		DescSelector:  "div[class*='desc']",
		FallbackLink:  "https://top.baidu.com/board?tab=realtime",
	},
	"github-trending": {
		URL:           "https://github.com/trending",
		AllowedDomain: "github.com",
		ItemSelector:  "article.Box-row",
		TitleSelector: "h2 a",
		LinkSelector:  "h2 a",
		DescSelector:  "p",
	},
}

// ScrapeFetcher 用 colly 直接抓取 Kind=scrape 的源，规则按 source.ID 查找
type ScrapeFetcher struct {
	rules    map[string]ScrapeRule
	timeout  time.Duration
	policy   RetryPolicy
	maxItems int
	logger   *zerolog.Logger
}

func NewScrapeFetcher(timeout time.Duration, attempts, maxItems int, logger *zerolog.Logger) *ScrapeFetcher {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = nopLogger()
	}
	rules := make(map[string]ScrapeRule, len(builtinRules))
	for k, v := range builtinRules {
		rules[k] = v
	}
	return &ScrapeFetcher{
		rules:    rules,
		timeout:  timeout,
		policy:   RetryPolicy{Attempts: attempts},
		maxItems: maxItems,
		logger:   logger,
	}
}

// WithRule 注册或覆盖一条抓取规则
func (f *ScrapeFetcher) WithRule(sourceID string, rule ScrapeRule) *ScrapeFetcher {
	f.rules[sourceID] = rule
	return f
}

// WithBackoff 替换退避函数
func (f *ScrapeFetcher) WithBackoff(backoff func(int) time.Duration) *ScrapeFetcher {
	f.policy.Backoff = backoff
	return f
}

func (f *ScrapeFetcher) Fetch(ctx context.Context, source NewsSource) FetchResult {
	rule, ok := f.rules[source.ID]
	if !ok {
		return Failure(&FetchError{
			Kind:   ClientError,
			Source: source.ID,
			Err:    fmt.Errorf("no scrape rule for source %q", source.ID),
		}, 0)
	}
	limit := source.Limit(f.maxItems)

	return f.policy.Do(ctx, source, f.logger, func(ctx context.Context) ([]RawFeedItem, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := f.scrapeOnce(rule)
		if err != nil {
			return nil, err
		}
		return truncate(items, limit), nil
	})
}

// scrapeOnce 每次尝试新建 collector，避免 colly 的已访问 URL 记录让重试直接失败
func (f *ScrapeFetcher) scrapeOnce(rule ScrapeRule) ([]RawFeedItem, error) {
	opts := []colly.CollectorOption{colly.UserAgent(scrapeUserAgent)}
	if rule.AllowedDomain != "" {
		opts = append(opts, colly.AllowedDomains(rule.AllowedDomain))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(f.timeout)

	results := make([]RawFeedItem, 0, 50)
	c.OnHTML(rule.ItemSelector, func(e *colly.HTMLElement) {
		title := collapseSpaces(e.ChildText(rule.TitleSelector))
		if title == "" {
			return
		}

		link := rule.FallbackLink
		if href := strings.TrimSpace(e.ChildAttr(rule.LinkSelector, "href")); href != "" {
			link = e.Request.AbsoluteURL(href)
		}

		desc := ""
		if rule.DescSelector != "" {
			desc = cleanDesc(e.ChildText(rule.DescSelector))
		}

		results = append(results, RawFeedItem{
			Title:       title,
			URL:         link,
			Description: desc,
		})
	})

	status := 0
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(rule.URL); err != nil {
		if status != 0 {
			return nil, &FetchError{Kind: ClassifyStatus(status), Status: status, Err: err}
		}
		return nil, err
	}
	return results, nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanDesc 去掉简介中的“查看更多”等链接文案，只保留正文
func cleanDesc(s string) string {
	s = strings.TrimSpace(s)
	for _, cut := range []string{"[查看更多>]", "[查看更多&gt;]", "查看更多"} {
		if idx := strings.Index(s, cut); idx != -1 {
			s = strings.TrimSpace(s[:idx])
		}
	}
	return strings.TrimRight(s, "…. ")
}
