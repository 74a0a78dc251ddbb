package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/digest"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultAttempts   = 3
	defaultRetryDelay = 2 * time.Second
	maxResponseBytes  = 1 << 20
)

var (
	ErrDisabled     = errors.New("飞书机器人未启用")
	ErrNoWebhookURL = errors.New("飞书机器人Webhook URL未配置")
)

// Config 飞书自定义机器人
type Config struct {
	Enabled    bool
	WebhookURL string
	Secret     string
	Timeout    time.Duration
}

// APIError 飞书返回了非 0 的业务码
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "未知错误"
	}
	return fmt.Sprintf("飞书API错误(%d): %s", e.Code, msg)
}

// webhookResponse 新版返回 code/msg，旧版返回 StatusCode/StatusMessage
type webhookResponse struct {
	Code          *int   `json:"code"`
	Msg           string `json:"msg"`
	StatusCode    *int   `json:"StatusCode"`
	StatusMessage string `json:"StatusMessage"`
}

func (r webhookResponse) ok() bool {
	return (r.Code != nil && *r.Code == 0) || (r.StatusCode != nil && *r.StatusCode == 0)
}

func (r webhookResponse) err() error {
	code := -1
	switch {
	case r.Code != nil:
		code = *r.Code
	case r.StatusCode != nil:
		code = *r.StatusCode
	}
	msg := r.StatusMessage
	if msg == "" {
		msg = r.Msg
	}
	return &APIError{Code: code, Message: msg}
}

type Bot struct {
	cfg        Config
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	now        func() time.Time
	logger     *zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Bot {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Bot{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		logger:     logger,
	}
}

// WithRetry 每种消息格式的发送次数与间隔
func (b *Bot) WithRetry(attempts int, delay time.Duration) *Bot {
	if attempts > 0 {
		b.attempts = attempts
	}
	b.retryDelay = delay
	return b
}

func (b *Bot) WithClock(now func() time.Time) *Bot {
	b.now = now
	return b
}

func (b *Bot) ready() error {
	if !b.cfg.Enabled {
		return ErrDisabled
	}
	if b.cfg.WebhookURL == "" {
		return ErrNoWebhookURL
	}
	return nil
}

// SendDigest 依次尝试卡片、富文本、纯文本，任意一种成功即返回
func (b *Bot) SendDigest(ctx context.Context, d digest.NewsDigest) error {
	if err := b.ready(); err != nil {
		return err
	}
	now := b.now()

	err := b.send(ctx, BuildCard(d, now))
	if err == nil {
		b.logger.Info().Int("count", d.TotalCount).Str("format", "card").Msg("digest sent to lark")
		return nil
	}
	b.logger.Warn().Err(err).Msg("card message failed, fall back to post")

	if err = b.send(ctx, BuildPost(d, now)); err == nil {
		b.logger.Info().Int("count", d.TotalCount).Str("format", "post").Msg("digest sent to lark")
		return nil
	}
	b.logger.Warn().Err(err).Msg("post message failed, fall back to text")

	if err = b.send(ctx, BuildText(d, now)); err != nil {
		return fmt.Errorf("发送失败: %w", err)
	}
	b.logger.Info().Int("count", d.TotalCount).Str("format", "text").Msg("digest sent to lark")
	return nil
}

// SendText 发送一条普通文本
func (b *Bot) SendText(ctx context.Context, text string) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.send(ctx, TextMessage(text))
}

// TestConnection 发送一条测试消息
func (b *Bot) TestConnection(ctx context.Context) error {
	text := fmt.Sprintf("🤖 NewsDigest 定时推送服务测试\n⏰ 测试时间: %s\n✅ 飞书机器人连接正常！", formatTime(b.now()))
	return b.SendText(ctx, text)
}

func (b *Bot) send(ctx context.Context, msg Message) error {
	if b.cfg.Secret != "" {
		msg.Timestamp = unixTimestamp(b.now())
		msg.Sign = Sign(msg.Timestamp, b.cfg.Secret)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.MsgType, err)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := b.post(ctx, body)
		if err != nil {
			b.logger.Debug().Err(err).Int("attempt", attempt).Str("format", msg.MsgType).Msg("lark webhook attempt failed")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewConstantBackOff(b.retryDelay)), backoff.WithMaxTries(uint(b.attempts)))
	return err
}

func (b *Bot) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var r webhookResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !r.ok() {
		return r.err()
	}
	return nil
}
