package digest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/processor"
)

const noNewsText = "今日暂无新闻更新。"

const recentWindow = 6 * time.Hour

var techSummaryVocabulary = []string{
	"AI", "人工智能", "科技", "技术", "互联网", "软件", "硬件", "芯片", "5G", "区块链",
	"ChatGPT", "GPT", "元宇宙", "VR", "AR", "新能源", "电动车", "自动驾驶",
}

var topicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AI|人工智能`),
	regexp.MustCompile(`区块链|比特币|加密货币`),
	regexp.MustCompile(`5G|6G`),
	regexp.MustCompile(`新能源|电动车|特斯拉`),
	regexp.MustCompile(`芯片|半导体`),
	regexp.MustCompile(`元宇宙|VR|AR`),
	regexp.MustCompile(`ChatGPT|GPT`),
	regexp.MustCompile(`苹果|iPhone|iPad`),
	regexp.MustCompile(`华为|小米|OPPO|vivo`),
	regexp.MustCompile(`腾讯|阿里巴巴|字节跳动|百度`),
}

// SummaryText 生成摘要：总数与前三个分类，科技类亮点，热门话题，以及 6 小时内的条数
func SummaryText(items []processor.NewsItem, cats Histogram, now time.Time) string {
	if len(items) == 0 {
		return noNewsText
	}

	top := make([]string, 0, 3)
	for i, c := range cats {
		if i == 3 {
			break
		}
		top = append(top, fmt.Sprintf("%s(%d条)", c.Name, c.Count))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "今日共收集到 %d 条新闻，主要涵盖 %s 等领域。", len(items), strings.Join(top, "、"))

	if techCount := cats.Get(processor.CategoryTech); techCount > 0 {
		fmt.Fprintf(&b, " 🔥 科技前沿：本日重点关注 %d 条科技资讯", techCount)
		if kws := TechKeywords(techItems(items)); len(kws) > 0 {
			fmt.Fprintf(&b, "，聚焦 %s 等热点", strings.Join(firstN(kws, 3), "、"))
		}
		b.WriteString("。")
	}

	if topics := HotTopics(items); len(topics) > 0 {
		fmt.Fprintf(&b, " 热门话题包括：%s。", strings.Join(firstN(topics, 3), "、"))
	}

	if recent := countRecent(items, now); recent > 0 {
		fmt.Fprintf(&b, " 其中 %d 条为6小时内的最新资讯。", recent)
	}
	return b.String()
}

// TechKeywords 科技新闻标题中出现最多的关键词，最多 5 个
func TechKeywords(items []processor.NewsItem) []string {
	c := newCounter()
	for _, it := range items {
		for _, kw := range techSummaryVocabulary {
			if strings.Contains(it.Title, kw) {
				c.add(kw)
			}
		}
	}
	return c.top(1, 5)
}

// HotTopics 统计标签和话题模式的出现次数，保留至少出现 2 次的，最多 5 个
func HotTopics(items []processor.NewsItem) []string {
	c := newCounter()
	for _, it := range items {
		for _, tag := range it.Tags {
			c.add(tag)
		}
		for _, kw := range titleTopics(it.Title) {
			c.add(kw)
		}
	}
	return c.top(2, 5)
}

// titleTopics 标题中命中的话题词，同一标题内去重
func titleTopics(title string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 2)
	for _, p := range topicPatterns {
		for _, m := range p.FindAllString(title, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func techItems(items []processor.NewsItem) []processor.NewsItem {
	out := make([]processor.NewsItem, 0, len(items))
	for _, it := range items {
		if it.Category == processor.CategoryTech {
			out = append(out, it)
		}
	}
	return out
}

func countRecent(items []processor.NewsItem, now time.Time) int {
	n := 0
	for _, it := range items {
		if it.PublishTime != nil && now.Sub(*it.PublishTime) < recentWindow {
			n++
		}
	}
	return n
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// counter 计数并记录首次出现顺序，排序时同数按首次出现
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) top(minCount, limit int) []string {
	keys := make([]string, 0, len(c.order))
	for _, k := range c.order {
		if c.counts[k] >= minCount {
			keys = append(keys, k)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return c.counts[keys[i]] > c.counts[keys[j]] })
	return firstN(keys, limit)
}
