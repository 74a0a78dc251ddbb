package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/llm"
	"github.com/LJTian/NewsDigest/internal/scheduler"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// 飞书与 Lark 国际版的 webhook 前缀
var larkWebhookPrefixes = []string{
	"https://open.feishu.cn/open-apis/bot/",
	"https://open.larksuite.com/open-apis/bot/",
}

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"local"`
	AppPort       string `env:"APP_PORT" envDefault:"9000"`
	BasicAuthUser string `env:"APP_BASIC_USER"`
	BasicAuthPass string `env:"APP_BASIC_PASS"`

	NewsAPIBaseURL   string        `env:"NEWS_API_BASE_URL" envDefault:"https://newsnow.busiyi.world"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`
	RetryAttempts    int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	NewsMaxPerSource int           `env:"NEWS_MAX_PER_SOURCE" envDefault:"10"`
	// NewsTotalLimit 0 表示不限制
	NewsTotalLimit      int           `env:"NEWS_TOTAL_LIMIT" envDefault:"0"`
	CacheDuration       time.Duration `env:"CACHE_DURATION" envDefault:"5m"`
	CacheBackend        string        `env:"CACHE_BACKEND" envDefault:"memory"`
	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD" envDefault:"0.8"`
	QualityMinScore     int           `env:"QUALITY_MIN_SCORE" envDefault:"30"`
	EnrichBatchSize     int           `env:"ENRICH_BATCH_SIZE" envDefault:"10"`
	SourcesFile         string        `env:"SOURCES_FILE"`

	SchedulerEnabled      bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerCron         string        `env:"SCHEDULER_CRON" envDefault:"0 9 * * *"`
	SchedulerTimezone     string        `env:"SCHEDULER_TIMEZONE" envDefault:"Asia/Shanghai"`
	SchedulerStartupDelay time.Duration `env:"SCHEDULER_STARTUP_DELAY" envDefault:"0s"`

	LarkBotEnabled    bool   `env:"LARK_BOT_ENABLED" envDefault:"false"`
	LarkBotWebhookURL string `env:"LARK_BOT_WEBHOOK_URL"`
	LarkBotSecret     string `env:"LARK_BOT_SECRET"`

	LLMEnabled        bool          `env:"LLM_ENABLED" envDefault:"false"`
	LLMAPIKey         string        `env:"LLM_API_KEY"`
	LLMBaseURL        string        `env:"LLM_BASE_URL"`
	LLMModel          string        `env:"LLM_MODEL" envDefault:"doubao-seed-1-6-250615"`
	LLMRPS            float64       `env:"LLM_RPS" envDefault:"2"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMSummaryEnabled bool          `env:"LLM_SUMMARY_ENABLED" envDefault:"true"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// PostgresDSN 为空时不持久化
	PostgresDSN string `env:"POSTGRES_DSN"`
	RedisAddr   string `env:"REDIS_ADDR"`
}

// Load 读取环境变量；存在 .env 时先加载，已设置的环境变量优先
func Load() (*Config, error) {
	_ = godotenv.Load() // .env 可选

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}
	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = llm.DefaultBaseURL
	}
	return cfg, nil
}

// Validate 返回所有配置问题
func (c *Config) Validate() error {
	var errs []error

	if c.NewsAPIBaseURL == "" {
		errs = append(errs, errors.New("NEWS_API_BASE_URL 不能为空"))
	}
	if c.SchedulerEnabled {
		if err := scheduler.ValidateSpec(c.SchedulerCron); err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULER_CRON: %w", err))
		}
	}
	if c.LarkBotEnabled {
		switch {
		case c.LarkBotWebhookURL == "":
			errs = append(errs, errors.New("启用飞书机器人时必须配置 LARK_BOT_WEBHOOK_URL"))
		case !hasAnyPrefix(c.LarkBotWebhookURL, larkWebhookPrefixes):
			errs = append(errs, errors.New("LARK_BOT_WEBHOOK_URL 格式不正确"))
		}
	}
	if c.LLMEnabled && c.LLMAPIKey == "" {
		errs = append(errs, errors.New("启用 LLM 时必须配置 LLM_API_KEY"))
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD 必须在 (0, 1] 之间: %v", c.SimilarityThreshold))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS 必须大于 0: %d", c.RetryAttempts))
	}
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("CACHE_BACKEND=redis 时必须配置 REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 CACHE_BACKEND: %q", c.CacheBackend))
	}
	return errors.Join(errs...)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// DefaultSources 内置新闻源，顺序即采集与统计顺序
func DefaultSources() []collector.NewsSource {
	return []collector.NewsSource{
		{ID: "v2ex-share", Name: "V2EX-最新分享", Enabled: true, MaxItems: 5},
		{ID: "zhihu", Name: "知乎", Enabled: true, MaxItems: 5},
		// 上游返回 432，暂时停用
		{ID: "weibo", Name: "微博-实时热搜", Enabled: false, MaxItems: 3},
		{ID: "ithome", Name: "IT之家", Enabled: true, MaxItems: 5},
		{ID: "solidot", Name: "Solidot", Enabled: true, MaxItems: 5},
		{ID: "hackernews", Name: "Hacker News", Enabled: true, MaxItems: 5},
		{ID: "juejin", Name: "稀土掘金", Enabled: true, MaxItems: 5},
		{ID: "github-trending", Name: "GitHub Trending", Enabled: false, MaxItems: 10, Kind: collector.KindScrape},
		{ID: "baidu", Name: "百度热搜", Enabled: false, MaxItems: 10, Kind: collector.KindScrape},
		{ID: "36kr-rss", Name: "36氪", Enabled: false, MaxItems: 10, Kind: collector.KindRSS, URL: "https://36kr.com/feed"},
	}
}

type sourcesFile struct {
	Sources []collector.NewsSource `yaml:"sources"`
}

// LoadSources 从 YAML 文件读取新闻源列表
func LoadSources(path string) ([]collector.NewsSource, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(f.Sources))
	for i, s := range f.Sources {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Name == "" {
			f.Sources[i].Name = s.ID
		}
	}
	return f.Sources, nil
}

// Sources 配置了 SOURCES_FILE 时读取文件，否则使用内置列表
func (c *Config) Sources() ([]collector.NewsSource, error) {
	if c.SourcesFile == "" {
		return DefaultSources(), nil
	}
	return LoadSources(c.SourcesFile)
}
