package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/LJTian/NewsDigest/internal/observability"
)

// DefaultBaseURL 火山方舟的 OpenAI 兼容接口
const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

const (
	defaultRequestTimeout   = 30 * time.Second
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
	rateLimiterBurst        = 3
)

var (
	// ErrCircuitOpen 连续失败过多，暂停调用
	ErrCircuitOpen = errors.New("llm circuit breaker is open")
	// ErrEmptyResponse 模型没有返回内容
	ErrEmptyResponse = errors.New("llm returned empty content")
)

// Config LLM 客户端配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// RPS <= 0 表示不限速
	RPS     float64
	Timeout time.Duration
}

// Client 基于 go-openai 的对话补全客户端，带限速和熔断
type Client struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *zerolog.Logger
	now     func() time.Time

	batchPause time.Duration

	mu                  sync.Mutex
	consecutiveFailures int
	circuitOpenUntil    time.Time
}

func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = baseURL
	oc.HTTPClient = &http.Client{Timeout: timeout}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &Client{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		limiter:    rate.NewLimiter(limit, rateLimiterBurst),
		logger:     logger,
		now:        time.Now,
		batchPause: defaultBatchPause,
	}
}

// WithClock 替换时钟
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// WithBatchPause 替换批次之间的等待时间
func (c *Client) WithBatchPause(d time.Duration) *Client {
	c.batchPause = d
	return c
}

// Ping 发送一条极短的请求，用于自检
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, "", "ping", 0, 1)
	return err
}

func (c *Client) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", ErrCircuitOpen, c.circuitOpenUntil)
	}
	return nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = c.now().Add(circuitBreakerTimeout)
		c.consecutiveFailures = 0
		observability.LLMCircuitBreakerOpens.Inc()
		c.logger.Warn().
			Time("open_until", c.circuitOpenUntil).
			Msg("llm circuit breaker opened")
	}
}

// complete 发送一次对话补全请求，返回第一条回复的内容
func (c *Client) complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	observability.LLMRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		c.recordFailure()
		return "", fmt.Errorf("chat completion: %w", err)
	}
	c.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
