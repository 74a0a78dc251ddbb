package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/NewsDigest/internal/observability"
	"github.com/LJTian/NewsDigest/internal/processor"
)

var (
	// ErrNoJSON 回复中没有 JSON 对象
	ErrNoJSON = errors.New("no json object in llm response")
	// ErrMissingField 回复缺少 isTechNews 字段
	ErrMissingField = errors.New("llm response missing isTechNews")
)

// Analysis 单条新闻的分析结果
type Analysis struct {
	IsTechNews     bool     `json:"isTechNews"`
	Confidence     float64  `json:"confidence"`
	TechKeywords   []string `json:"techKeywords"`
	Reasoning      string   `json:"reasoning"`
	RelevanceScore float64  `json:"relevanceScore,omitempty"`
	Category       string   `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	// Fallback 为 true 表示结果来自本地关键词匹配
	Fallback bool `json:"-"`
}

// Enrichment 转换为评分用的增强信号
func (a Analysis) Enrichment() *processor.Enrichment {
	return &processor.Enrichment{
		RelevanceScore: a.RelevanceScore,
		Category:       a.Category,
		Tags:           append([]string(nil), a.Tags...),
	}
}

const classifySystemPrompt = "你是一个专业的新闻分类专家，擅长识别科技类新闻。请严格按照JSON格式回复，不要添加任何其他内容。"

const classifyPromptTemplate = `请分析以下新闻是否属于科技类新闻。科技类新闻包括但不限于：人工智能、机器学习、软件开发、硬件技术、互联网、移动应用、区块链、云计算、大数据、物联网、自动驾驶、新能源技术、生物技术、量子计算、网络安全、科技公司动态等。

新闻内容：
%s

请以JSON格式回复，包含以下字段：
{
  "isTechNews": boolean, // 是否为科技类新闻
  "confidence": number, // 置信度(0-1)
  "techKeywords": string[], // 识别到的科技关键词
  "reasoning": string // 判断理由
}`

type techResponse struct {
	IsTechNews   *bool    `json:"isTechNews"`
	Confidence   float64  `json:"confidence"`
	TechKeywords []string `json:"techKeywords"`
	Reasoning    string   `json:"reasoning"`
}

// ExtractJSON 取回复中第一个 { 到最后一个 } 之间的内容
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// AnalyzeTechNews 让模型判断是否为科技新闻，任何失败都降级为 FallbackAnalysis
func (c *Client) AnalyzeTechNews(ctx context.Context, title, description string) Analysis {
	a, err := c.classify(ctx, title, description)
	if err != nil {
		c.logger.Warn().Err(err).Str("title", title).Msg("llm analysis failed, using keyword fallback")
		observability.EnrichmentResults.WithLabelValues("fallback").Inc()
		return FallbackAnalysis(title, description)
	}
	observability.EnrichmentResults.WithLabelValues("llm").Inc()
	return a
}

func (c *Client) classify(ctx context.Context, title, description string) (Analysis, error) {
	content := "标题: " + title
	if description != "" {
		content += "\n描述: " + description
	}

	text, err := c.complete(ctx, classifySystemPrompt, fmt.Sprintf(classifyPromptTemplate, content), 0.1, 500)
	if err != nil {
		return Analysis{}, err
	}
	return parseTechResponse(text)
}

func parseTechResponse(text string) (Analysis, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return Analysis{}, err
	}
	var parsed techResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Analysis{}, fmt.Errorf("decode llm json: %w", err)
	}
	if parsed.IsTechNews == nil {
		return Analysis{}, ErrMissingField
	}

	keywords := parsed.TechKeywords
	if keywords == nil {
		keywords = []string{}
	}
	return Analysis{
		IsTechNews:   *parsed.IsTechNews,
		Confidence:   clampFloat(parsed.Confidence, 0, 1),
		TechKeywords: keywords,
		Reasoning:    parsed.Reasoning,
	}, nil
}

// AnalyzeNews 在科技判断之外补充相关性评分、分类与标签
func (c *Client) AnalyzeNews(ctx context.Context, item processor.NewsItem) Analysis {
	a := c.AnalyzeTechNews(ctx, item.Title, item.Description)
	return completeAnalysis(a, item, c.now())
}

func completeAnalysis(a Analysis, item processor.NewsItem, now time.Time) Analysis {
	a.RelevanceScore = relevanceScore(item, a, now)
	if a.IsTechNews {
		a.Category = processor.CategoryTech
	} else {
		a.Category = item.Category
	}
	a.Tags = append([]string(nil), a.TechKeywords...)
	return a
}

// relevanceScore 基础 50，科技类按置信度加至多 30，再加标题、描述与时效分，限制在 [0,100]
func relevanceScore(item processor.NewsItem, a Analysis, now time.Time) float64 {
	score := 50.0
	if a.IsTechNews {
		score += a.Confidence * 30
	}
	if l := utf8.RuneCountInString(item.Title); l > 10 && l < 100 {
		score += 10
	}
	if utf8.RuneCountInString(item.Description) > 20 {
		score += 5
	}
	if item.PublishTime != nil {
		age := now.Sub(*item.PublishTime)
		switch {
		case age < time.Hour:
			score += 20
		case age < 6*time.Hour:
			score += 10
		case age < 24*time.Hour:
			score += 5
		}
	}
	return clampFloat(score, 0, 100)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
