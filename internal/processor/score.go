package processor

import (
	"math"
	"strings"
)

// Enrichment 外部相关性信号（通常来自 LLM 分析）
type Enrichment struct {
	RelevanceScore float64
	Category       string
	Tags           []string
}

// ScoreResult 最终排序分、分类与标签
type ScoreResult struct {
	Score    int
	Category string
	Tags     []string
}

const (
	techBonus       = 30
	vocabularyBonus = 5
	enrichTagBonus  = 2
	relevanceWeight = 0.3
)

// Scorer 在规则分的基础上计算排序分
type Scorer struct {
	vocabulary []string
}

func NewScorer() *Scorer {
	return &Scorer{vocabulary: rankVocabulary}
}

// Score 规则分 + 科技类 30 + 每个科技词 5；有增强信号时再加 0.3×相关性与每个标签 2 分。
// 结果只保证非负，不限制上限。
func (s *Scorer) Score(item NewsItem, e *Enrichment) ScoreResult {
	score := item.Score
	category := item.Category
	tags := append([]string(nil), item.Tags...)

	if e != nil && e.Category != "" {
		category = e.Category
	}
	if item.Category == CategoryTech || category == CategoryTech {
		score += techBonus
	}

	title := strings.ToLower(item.Title)
	for _, kw := range s.vocabulary {
		if strings.Contains(title, strings.ToLower(kw)) {
			score += vocabularyBonus
		}
	}

	if e != nil {
		score += int(math.Round(relevanceWeight * e.RelevanceScore))
		score += enrichTagBonus * len(e.Tags)
		tags = unionTags(tags, e.Tags)
	}

	if score < 0 {
		score = 0
	}
	if tags == nil {
		tags = []string{}
	}
	return ScoreResult{Score: score, Category: category, Tags: tags}
}

// Apply 写入 RankScore、Category、Tags，Score 保持规则分不变
func (s *Scorer) Apply(item NewsItem, e *Enrichment) NewsItem {
	r := s.Score(item, e)
	item.RankScore = r.Score
	item.Category = r.Category
	item.Tags = r.Tags
	return item
}

// ApplyAll 不带增强信号地批量计算排序分
func (s *Scorer) ApplyAll(items []NewsItem) []NewsItem {
	out := make([]NewsItem, len(items))
	for i, it := range items {
		out[i] = s.Apply(it, nil)
	}
	return out
}

func unionTags(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, t := range list {
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
