package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

const rssMaxResponseBytes = 8 << 20

// RSSFetcher 拉取 Kind=rss 的源，source.URL 为 RSS/Atom 地址
type RSSFetcher struct {
	client   *http.Client
	parser   *gofeed.Parser
	policy   RetryPolicy
	maxItems int
	logger   *zerolog.Logger
}

func NewRSSFetcher(timeout time.Duration, attempts, maxItems int, logger *zerolog.Logger) *RSSFetcher {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = nopLogger()
	}
	return &RSSFetcher{
		client:   &http.Client{Timeout: timeout},
		parser:   gofeed.NewParser(),
		policy:   RetryPolicy{Attempts: attempts},
		maxItems: maxItems,
		logger:   logger,
	}
}

// WithBackoff 替换退避函数
func (f *RSSFetcher) WithBackoff(backoff func(int) time.Duration) *RSSFetcher {
	f.policy.Backoff = backoff
	return f
}

func (f *RSSFetcher) Fetch(ctx context.Context, source NewsSource) FetchResult {
	if strings.TrimSpace(source.URL) == "" {
		return Failure(&FetchError{
			Kind:   ClientError,
			Source: source.ID,
			Err:    fmt.Errorf("rss source %q has no url", source.ID),
		}, 0)
	}
	limit := source.Limit(f.maxItems)

	return f.policy.Do(ctx, source, f.logger, func(ctx context.Context) ([]RawFeedItem, error) {
		items, err := f.fetchOnce(ctx, source.URL)
		if err != nil {
			return nil, err
		}
		return truncate(items, limit), nil
	})
}

func (f *RSSFetcher) fetchOnce(ctx context.Context, feedURL string) ([]RawFeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ClientError, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, rssMaxResponseBytes))
		return nil, &FetchError{
			Kind:   ClassifyStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	feed, err := f.parser.Parse(io.LimitReader(resp.Body, rssMaxResponseBytes))
	if err != nil {
		return nil, &FetchError{Kind: MalformedPayload, Err: fmt.Errorf("parse feed: %w", err)}
	}
	return feedItems(feed), nil
}

func feedItems(feed *gofeed.Feed) []RawFeedItem {
	out := make([]RawFeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		raw := RawFeedItem{
			Title:       collapseSpaces(it.Title),
			URL:         strings.TrimSpace(it.Link),
			Description: collapseSpaces(it.Description),
		}
		switch {
		case it.PublishedParsed != nil:
			raw.PublishTime = NewFeedTime(*it.PublishedParsed)
		case it.UpdatedParsed != nil:
			raw.Time = NewFeedTime(*it.UpdatedParsed)
		}
		out = append(out, raw)
	}
	return out
}
