package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/observability"
)

// ErrorKind 采集失败的分类，决定是否重试
type ErrorKind string

const (
	NetworkUnavailable ErrorKind = "network_unavailable"
	Timeout            ErrorKind = "timeout"
	ServerError        ErrorKind = "server_error"
	RateLimited        ErrorKind = "rate_limited"
	ClientError        ErrorKind = "client_error"
	MalformedPayload   ErrorKind = "malformed_payload"
	EmptyPayload       ErrorKind = "empty_payload"
	Unknown            ErrorKind = "unknown"
)

var (
	errEmptyPayload = errors.New("empty response from api")
)

// FetchError 带分类的采集错误
type FetchError struct {
	Kind   ErrorKind
	Status int
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable 网络不可用、超时、5xx、429、空数据以及未知错误可以重试；其余 4xx 与解析失败不重试
func Retryable(kind ErrorKind) bool {
	switch kind {
	case ClientError, MalformedPayload:
		return false
	default:
		return true
	}
}

// ClassifyStatus 把非 2xx 状态码映射为错误分类
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return RateLimited
	case code >= 500 && code < 600:
		return ServerError
	case code >= 400 && code < 500:
		return ClientError
	default:
		return Unknown
	}
}

// Classify 对任意错误做分类；已分类的 FetchError 原样返回其分类
func Classify(err error) ErrorKind {
	if err == nil {
		return Unknown
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return NetworkUnavailable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetworkUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NetworkUnavailable
	}
	return Unknown
}

// 退避参数：1s 起步指数增长，最大 5s
const (
	backoffBase = 1000 * time.Millisecond
	backoffMax  = 5000 * time.Millisecond
)

// Backoff 第 attempt 次失败后的等待时间：min(1000·2^(attempt-1), 5000) ms
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 4 {
		return backoffMax
	}
	d := backoffBase << (attempt - 1)
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// DefaultAttempts 单个源的默认尝试次数
const DefaultAttempts = 3

// RetryPolicy 有界重试：最多 Attempts 次，每次可重试失败后按 Backoff 等待
type RetryPolicy struct {
	Attempts int
	// Backoff 为空时使用 1s/2s/4s/5s 的指数退避
	Backoff func(attempt int) time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return DefaultAttempts
	}
	return p.Attempts
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.Backoff != nil {
		return &attemptBackOff{delay: p.Backoff}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffBase
	bo.MaxInterval = backoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	return bo
}

// attemptBackOff 把按次数计算的等待函数适配成 backoff.BackOff
type attemptBackOff struct {
	delay   func(attempt int) time.Duration
	attempt int
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

func (b *attemptBackOff) Reset() { b.attempt = 0 }

// Do 执行 op 直到成功、遇到不可重试错误或次数用尽。
// 成功但返回 0 条视为 EmptyPayload，可以重试。
func (p RetryPolicy) Do(ctx context.Context, source NewsSource, logger *zerolog.Logger,
	op func(ctx context.Context) ([]RawFeedItem, error)) FetchResult {
	if logger == nil {
		logger = nopLogger()
	}
	max := p.attempts()
	var (
		last    *FetchError
		attempt int
	)

	items, err := backoff.Retry(ctx, func() ([]RawFeedItem, error) {
		attempt++
		items, err := op(ctx)
		if err == nil && len(items) > 0 {
			observability.FetchAttempts.WithLabelValues(source.ID, "success").Inc()
			return items, nil
		}
		if err == nil {
			err = &FetchError{Kind: EmptyPayload, Err: errEmptyPayload}
		}
		last = toFetchError(err, source)
		observability.FetchAttempts.WithLabelValues(source.ID, string(last.Kind)).Inc()

		logger.Warn().
			Str("source", source.Name).
			Int("attempt", attempt).
			Int("max_attempts", max).
			Str("kind", string(last.Kind)).
			Err(last.Err).
			Msg("fetch attempt failed")

		if !Retryable(last.Kind) {
			logger.Error().Str("source", source.Name).Str("kind", string(last.Kind)).Msg("non-retryable error, stop trying")
			return nil, backoff.Permanent(last)
		}
		return nil, last
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(uint(max)))

	if err == nil {
		return Success(items, attempt)
	}
	if last == nil {
		last = toFetchError(err, source)
	}
	return Failure(last, attempt)
}

func toFetchError(err error, source NewsSource) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Source == "" {
			fe.Source = source.ID
		}
		return fe
	}
	return &FetchError{Kind: Classify(err), Source: source.ID, Err: err}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
