package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CategoryStat 分类计数
type CategoryStat struct {
	Name  string
	Count int
}

// SummaryRequest 摘要改写的输入
type SummaryRequest struct {
	NewsCount   int
	Categories  []CategoryStat
	TopTitles   []string
	BaseSummary string
}

const summarySystemPrompt = "你是一个专业的新闻编辑，擅长生成简洁有吸引力的新闻摘要。"

const summaryPromptTemplate = `请基于以下新闻数据生成一个简洁的新闻摘要：

新闻总数：%d
分类统计：%s
热门新闻标题：%s

基础摘要：%s

请生成一个更加生动、有吸引力的新闻摘要，重点突出科技类新闻。`

// GenerateSummary 用模型改写基础摘要；失败时返回基础摘要和错误
func (c *Client) GenerateSummary(ctx context.Context, req SummaryRequest) (string, error) {
	titles := req.TopTitles
	if len(titles) > 3 {
		titles = titles[:3]
	}

	prompt := fmt.Sprintf(summaryPromptTemplate,
		req.NewsCount, categoriesJSON(req.Categories), strings.Join(titles, "、"), req.BaseSummary)

	text, err := c.complete(ctx, summarySystemPrompt, prompt, 0.3, 300)
	if err != nil {
		c.logger.Warn().Err(err).Msg("llm summary failed, keeping base summary")
		return req.BaseSummary, err
	}
	return text, nil
}

// categoriesJSON 按给定顺序输出 {"科技":3,"财经":1}
func categoriesJSON(cats []CategoryStat) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range cats {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(c.Name)
		b.Write(name)
		fmt.Fprintf(&b, ":%d", c.Count)
	}
	b.WriteByte('}')
	return b.String()
}
