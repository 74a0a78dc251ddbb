package processor

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinScore 质量过滤的最低规则分
const DefaultMinScore = 30

const minTitleRunes = 5

var lowQualityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*$`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`(?i)测试|test`),
	regexp.MustCompile(`广告|推广`),
	regexp.MustCompile(`^.{1,3}$`),
}

// FilterQuality 丢弃标题过短、链接无效、评分低于 minScore 以及低质量标题的条目
func FilterQuality(items []NewsItem, minScore int) []NewsItem {
	out := make([]NewsItem, 0, len(items))
	for _, it := range items {
		if utf8.RuneCountInString(it.Title) < minTitleRunes {
			continue
		}
		if !ValidURL(it.URL) {
			continue
		}
		if it.Score < minScore {
			continue
		}
		if IsLowQualityTitle(it.Title) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// IsLowQualityTitle 空白、纯数字、测试、广告或过短的标题
func IsLowQualityTitle(title string) bool {
	for _, p := range lowQualityPatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return false
}

// ValidURL 必须是带 host 的 http/https 绝对地址
func ValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
