package processor

import (
	"strings"
	"unicode"
)

// DefaultSimilarityThreshold 标题相似度达到该值视为重复
const DefaultSimilarityThreshold = 0.8

// Deduplicate 依次做精确去重与模糊去重，返回保留的条目和移除的数量
func Deduplicate(items []NewsItem, threshold float64) ([]NewsItem, int) {
	kept := DedupeFuzzy(DedupeExact(items), threshold)
	return kept, len(items) - len(kept)
}

// DedupeExact 按 lower(title)+"-"+url 去重，保留第一次出现的条目
func DedupeExact(items []NewsItem) []NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]NewsItem, 0, len(items))
	for _, it := range items {
		key := strings.ToLower(it.Title) + "-" + it.URL
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// DedupeFuzzy 与已保留条目 URL 相同，或标题相似度 >= threshold 的条目被丢弃。
// 空 URL 不参与 URL 比较
func DedupeFuzzy(items []NewsItem, threshold float64) []NewsItem {
	out := make([]NewsItem, 0, len(items))
	urls := make(map[string]struct{}, len(items))
	tokens := make([]map[string]struct{}, 0, len(items))

	for _, it := range items {
		if _, ok := urls[it.URL]; ok {
			continue
		}
		tk := tokenSet(it.Title)
		dup := false
		for _, prev := range tokens {
			if jaccard(tk, prev) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if it.URL != "" {
			urls[it.URL] = struct{}{}
		}
		tokens = append(tokens, tk)
		out = append(out, it)
	}
	return out
}

// Similarity 标题的 Jaccard 相似度，按空白分词、转小写并去掉首尾标点。
// 任意一侧没有词时返回 0。
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		w := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
