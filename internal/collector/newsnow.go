package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	newsNowMaxResponseBytes = 4 << 20 // 4MB
	// DefaultRequestTimeout 单次请求超时，参考 newsnow 的配置
	DefaultRequestTimeout = 15 * time.Second
)

var newsNowHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	"Cache-Control":   "no-cache",
}

// NewsNowFetcher 通过 newsnow 聚合接口 GET {baseURL}/api/s?id=<sourceId> 拉取新闻
type NewsNowFetcher struct {
	baseURL  string
	client   *http.Client
	policy   RetryPolicy
	maxItems int
	logger   *zerolog.Logger
}

// NewNewsNowFetcher timeout<=0 时使用 15s；attempts<=0 时使用 3 次
func NewNewsNowFetcher(baseURL string, timeout time.Duration, attempts, maxItems int, logger *zerolog.Logger) *NewsNowFetcher {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = nopLogger()
	}
	return &NewsNowFetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		policy:   RetryPolicy{Attempts: attempts},
		maxItems: maxItems,
		logger:   logger,
	}
}

// WithBackoff 替换退避函数，测试里用来去掉等待
func (f *NewsNowFetcher) WithBackoff(backoff func(int) time.Duration) *NewsNowFetcher {
	f.policy.Backoff = backoff
	return f
}

func (f *NewsNowFetcher) Fetch(ctx context.Context, source NewsSource) FetchResult {
	limit := source.Limit(f.maxItems)
	f.logger.Debug().Str("source", source.ID).Int("count", limit).Msg("fetch from newsnow")

	return f.policy.Do(ctx, source, f.logger, func(ctx context.Context) ([]RawFeedItem, error) {
		items, err := f.fetchOnce(ctx, source.ID)
		if err != nil {
			return nil, err
		}
		return truncate(items, limit), nil
	})
}

// newsNowResponse items 保留原始 JSON，以便区分缺失/非数组与解析失败
type newsNowResponse struct {
	Status string          `json:"status"`
	Items  json.RawMessage `json:"items"`
}

func (f *NewsNowFetcher) fetchOnce(ctx context.Context, sourceID string) ([]RawFeedItem, error) {
	apiURL := fmt.Sprintf("%s/api/s?id=%s", f.baseURL, url.QueryEscape(sourceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ClientError, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, v := range newsNowHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, newsNowMaxResponseBytes))
		return nil, &FetchError{
			Kind:   ClassifyStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, newsNowMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return decodeNewsNow(body)
}

// decodeNewsNow items 缺失或不是数组时返回空结果（交给重试），整体不是 JSON 时返回 MalformedPayload
func decodeNewsNow(body []byte) ([]RawFeedItem, error) {
	var payload newsNowResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Kind: MalformedPayload, Err: fmt.Errorf("decode response: %w", err)}
	}

	raw := bytes.TrimSpace(payload.Items)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}

	var items []RawFeedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &FetchError{Kind: MalformedPayload, Err: fmt.Errorf("decode items: %w", err)}
	}
	return items, nil
}
