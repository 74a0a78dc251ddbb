package pipeline

import (
	"context"

	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/llm"
)

// summaryTopTitles 改写提示里带上的标题数
const summaryTopTitles = 5

// SummaryRewriter 把摘要交给 LLM 改写
type SummaryRewriter struct {
	Client *llm.Client
}

func (r SummaryRewriter) RewriteSummary(ctx context.Context, d digest.NewsDigest) (string, error) {
	cats := make([]llm.CategoryStat, 0, len(d.Categories))
	for _, c := range d.Categories {
		cats = append(cats, llm.CategoryStat{Name: c.Name, Count: c.Count})
	}
	titles := make([]string, 0, summaryTopTitles)
	for i, it := range d.TopNews {
		if i == summaryTopTitles {
			break
		}
		titles = append(titles, it.Title)
	}
	return r.Client.GenerateSummary(ctx, llm.SummaryRequest{
		NewsCount:   d.TotalCount,
		Categories:  cats,
		TopTitles:   titles,
		BaseSummary: d.Summary,
	})
}
