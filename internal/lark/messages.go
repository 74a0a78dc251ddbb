package lark

import (
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/processor"
)

const (
	cardTopN   = 8
	listTopN   = 20
	titleRunes = 50
	descRunes  = 80

	headerTitle   = "📰 今日新闻速递"
	uncategorized = "未分类"
)

// Message webhook 请求体；签名字段只在配置了密钥时出现
type Message struct {
	MsgType   string `json:"msg_type"`
	Content   any    `json:"content,omitempty"`
	Card      any    `json:"card,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Sign      string `json:"sign,omitempty"`
}

type textContent struct {
	Text string `json:"text"`
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

type postContent struct {
	Post map[string]postBody `json:"post"`
}

// truncateText 超过 limit 个字符时截到 limit-3 并补 "..."
func truncateText(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	if limit <= 3 {
		return string(rs[:limit])
	}
	return string(rs[:limit-3]) + "..."
}

var beijing = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}()

// formatTime 例如 2024-05-01 08:00:00 (北京时间)
func formatTime(t time.Time) string {
	return t.In(beijing).Format("2006-01-02 15:04:05") + " (北京时间)"
}

func categoryLine(h digest.Histogram) string {
	parts := make([]string, 0, len(h))
	for _, c := range h {
		parts = append(parts, fmt.Sprintf("%s(%d)", c.Name, c.Count))
	}
	return strings.Join(parts, ", ")
}

func metaLine(n processor.NewsItem) string {
	cat := n.Category
	if cat == "" {
		cat = uncategorized
	}
	return fmt.Sprintf("📰 %s | 🏷️ %s | ⭐ %d分", n.Source, cat, n.Score)
}

func footer(now time.Time) string {
	return "🤖 由 NewsDigest 定时推送 | ⏰ " + formatTime(now)
}

func topN(items []processor.NewsItem, n int) []processor.NewsItem {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// BuildCard 交互式卡片，只展示前 8 条
func BuildCard(d digest.NewsDigest, now time.Time) Message {
	var b strings.Builder
	top := topN(d.TopNews, cardTopN)
	for i, n := range top {
		fmt.Fprintf(&b, "**%d. [%s](%s)**\n", i+1, truncateText(n.Title, titleRunes), n.URL)
		b.WriteString(metaLine(n) + "\n")
		if n.Description != "" {
			b.WriteString(truncateText(n.Description, descRunes) + "\n")
		}
		if i < len(top)-1 {
			b.WriteString("\n")
		}
	}

	content := fmt.Sprintf("📊 **数据统计**\n📈 总计: **%d** 条新闻\n📂 分类: %s\n\n💡 **今日摘要**\n%s\n\n🔥 **热门新闻**\n\n%s\n\n%s",
		d.TotalCount, categoryLine(d.Categories), d.Summary, b.String(), footer(now))

	card := map[string]any{
		"schema": "2.0",
		"config": map[string]any{"update_multi": true},
		"header": map[string]any{
			"title":    map[string]any{"tag": "plain_text", "content": headerTitle},
			"template": "blue",
		},
		"body": map[string]any{
			"direction": "vertical",
			"elements": []any{
				map[string]any{
					"tag":        "markdown",
					"content":    content,
					"text_align": "left",
				},
			},
		},
	}
	return Message{MsgType: "interactive", Card: card}
}

// BuildPost 富文本消息，展示前 20 条
func BuildPost(d digest.NewsDigest, now time.Time) Message {
	text := func(s string) []postElement { return []postElement{{Tag: "text", Text: s}} }

	lines := [][]postElement{
		text(headerTitle + "\n\n"),
		text(fmt.Sprintf("📊 新闻摘要 (%s)\n", formatTime(d.GeneratedAt))),
		text(fmt.Sprintf("📈 总计: %d 条新闻\n📂 分类: %s\n\n", d.TotalCount, categoryLine(d.Categories))),
		text(fmt.Sprintf("💡 %s\n\n", d.Summary)),
	}
	if len(d.TopNews) > 0 {
		lines = append(lines, text("🔥 热门新闻\n\n"))
		for i, n := range topN(d.TopNews, listTopN) {
			lines = append(lines, []postElement{
				{Tag: "text", Text: fmt.Sprintf("%d. ", i+1)},
				{Tag: "a", Text: truncateText(n.Title, titleRunes), Href: n.URL},
				{Tag: "text", Text: fmt.Sprintf("\n%s\n%s\n\n", metaLine(n), truncateText(n.Description, descRunes))},
			})
		}
	}
	lines = append(lines, text(footer(now)))

	return Message{
		MsgType: "post",
		Content: postContent{Post: map[string]postBody{
			"zh_cn": {Title: headerTitle, Content: lines},
		}},
	}
}

// BuildText 纯文本兜底，展示前 20 条
func BuildText(d digest.NewsDigest, now time.Time) Message {
	var b strings.Builder
	b.WriteString(headerTitle + "\n\n")
	fmt.Fprintf(&b, "📊 新闻摘要 (%s)\n", formatTime(d.GeneratedAt))
	fmt.Fprintf(&b, "📈 总计: %d 条新闻\n", d.TotalCount)
	fmt.Fprintf(&b, "📂 分类: %s\n\n", categoryLine(d.Categories))
	fmt.Fprintf(&b, "💡 %s\n\n", d.Summary)

	if len(d.TopNews) > 0 {
		b.WriteString("🔥 热门新闻:\n\n")
		for i, n := range topN(d.TopNews, listTopN) {
			fmt.Fprintf(&b, "%d. %s\n", i+1, truncateText(n.Title, titleRunes))
			b.WriteString(metaLine(n) + "\n")
			fmt.Fprintf(&b, "🔗 %s\n", n.URL)
			if n.Description != "" {
				b.WriteString(truncateText(n.Description, descRunes) + "\n")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(footer(now))
	return TextMessage(b.String())
}

// TextMessage 普通文本消息
func TextMessage(s string) Message {
	return Message{MsgType: "text", Content: textContent{Text: s}}
}
