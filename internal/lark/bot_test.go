package lark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/processor"
)

type webhook struct {
	mu       sync.Mutex
	received []map[string]any
	// reply 根据消息类型决定返回
	reply func(msgType string) (int, string)
}

func (h *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var m map[string]any
	_ = json.NewDecoder(r.Body).Decode(&m)
	h.mu.Lock()
	h.received = append(h.received, m)
	h.mu.Unlock()

	msgType, _ := m["msg_type"].(string)
	status, body := http.StatusOK, `{"code":0,"msg":"success"}`
	if h.reply != nil {
		status, body = h.reply(msgType)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (h *webhook) messages() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]any(nil), h.received...)
}

func (h *webhook) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.received))
	for _, m := range h.received {
		s, _ := m["msg_type"].(string)
		out = append(out, s)
	}
	return out
}

var fixedNow = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newBot(t *testing.T, h *webhook, secret string) *Bot {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{Enabled: true, WebhookURL: srv.URL, Secret: secret}, nil).
		WithRetry(2, 0).
		WithClock(func() time.Time { return fixedNow })
}

func sampleDigest(n int) digest.NewsDigest {
	items := make([]processor.NewsItem, n)
	for i := range items {
		items[i] = processor.NewsItem{
			Title:       strings.Repeat("标", 60),
			URL:         "https://example.com/" + string(rune('a'+i)),
			Description: strings.Repeat("述", 100),
			Source:      "IT之家",
			Category:    processor.CategoryTech,
			Score:       65,
		}
	}
	return digest.NewsDigest{
		TotalCount:  n,
		Categories:  digest.Histogram{{Name: processor.CategoryTech, Count: n}},
		TopNews:     items,
		Summary:     "今日共收集到新闻",
		GeneratedAt: fixedNow,
	}
}

func TestSendDigestCardFirst(t *testing.T) {
	h := &webhook{}
	b := newBot(t, h, "")
	require.NoError(t, b.SendDigest(context.Background(), sampleDigest(10)))
	assert.Equal(t, []string{"interactive"}, h.types())

	_, signed := h.messages()[0]["sign"]
	assert.False(t, signed)
}

func TestSendDigestFallsBackThroughFormats(t *testing.T) {
	h := &webhook{reply: func(msgType string) (int, string) {
		switch msgType {
		case "interactive":
			return http.StatusOK, `{"code":19002,"msg":"card invalid"}`
		case "post":
			return http.StatusInternalServerError, `oops`
		default:
			return http.StatusOK, `{"StatusCode":0,"StatusMessage":"success"}`
		}
	}}
	b := newBot(t, h, "")
	require.NoError(t, b.SendDigest(context.Background(), sampleDigest(3)))
	// 每种格式重试 2 次
	assert.Equal(t, []string{"interactive", "interactive", "post", "post", "text"}, h.types())
}

func TestSendDigestAllFormatsFail(t *testing.T) {
	h := &webhook{reply: func(string) (int, string) {
		return http.StatusOK, `{"code":9499,"msg":"bad request"}`
	}}
	b := newBot(t, h, "")
	err := b.SendDigest(context.Background(), sampleDigest(1))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 9499, apiErr.Code)
	assert.Len(t, h.types(), 6)
}

func TestResponseWithoutCodeIsFailure(t *testing.T) {
	h := &webhook{reply: func(string) (int, string) { return http.StatusOK, `{}` }}
	b := newBot(t, h, "")
	assert.Error(t, b.SendText(context.Background(), "hi"))
}

func TestSignedPayload(t *testing.T) {
	h := &webhook{}
	b := newBot(t, h, "s3cret")
	require.NoError(t, b.TestConnection(context.Background()))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "1714521600", m["timestamp"])
	assert.Equal(t, Sign("1714521600", "s3cret"), m["sign"])
	content := m["content"].(map[string]any)
	assert.Contains(t, content["text"], "飞书机器人连接正常")
	assert.Contains(t, content["text"], "2024-05-01 08:00:00 (北京时间)")
}

func TestSignIsStableBase64(t *testing.T) {
	s := Sign("1599360473", "key")
	assert.Equal(t, s, Sign("1599360473", "key"))
	assert.NotEqual(t, s, Sign("1599360474", "key"))
	assert.Len(t, s, 44)
}

func TestNotConfigured(t *testing.T) {
	b := New(Config{Enabled: false, WebhookURL: "http://x"}, nil)
	assert.ErrorIs(t, b.SendDigest(context.Background(), sampleDigest(1)), ErrDisabled)

	b = New(Config{Enabled: true}, nil)
	assert.ErrorIs(t, b.SendText(context.Background(), "x"), ErrNoWebhookURL)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "短标题", truncateText("短标题", 50))
	got := truncateText(strings.Repeat("标", 60), 50)
	assert.Equal(t, 50, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestBuildCardLimitsItems(t *testing.T) {
	msg := BuildCard(sampleDigest(12), fixedNow)
	bs, err := json.Marshal(msg)
	require.NoError(t, err)
	s := string(bs)
	assert.Contains(t, s, "**8. [")
	assert.NotContains(t, s, "**9. [")
	assert.Contains(t, s, "科技(12)")
}

func TestBuildPostAndTextLimitItems(t *testing.T) {
	d := sampleDigest(25)

	post := BuildPost(d, fixedNow)
	body := post.Content.(postContent).Post["zh_cn"]
	// 4 行头部 + 1 行标题 + 20 条 + 1 行底部
	assert.Len(t, body.Content, 26)
	assert.Equal(t, "a", body.Content[5][1].Tag)
	assert.Equal(t, "https://example.com/a", body.Content[5][1].Href)

	text := BuildText(d, fixedNow).Content.(textContent).Text
	assert.Contains(t, text, "20. ")
	assert.NotContains(t, text, "21. ")
	assert.Contains(t, text, "⭐ 65分")
}

func TestSendTextRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	h := &webhook{reply: func(string) (int, string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return http.StatusBadGateway, `bad gateway`
		}
		return http.StatusOK, `{"code":0}`
	}}
	b := newBot(t, h, "")

	require.NoError(t, b.SendText(context.Background(), "hello"))
	assert.Equal(t, []string{"text", "text"}, h.types())
}

func TestSendTextStopsRetryingWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &webhook{reply: func(string) (int, string) {
		cancel()
		return http.StatusInternalServerError, `oops`
	}}
	b := newBot(t, h, "").WithRetry(3, time.Hour)

	err := b.SendText(ctx, "hello")
	require.Error(t, err)
	assert.Len(t, h.types(), 1)
}
