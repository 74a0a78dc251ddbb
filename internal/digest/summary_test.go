package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LJTian/NewsDigest/internal/processor"
)

func TestSummaryTextWithoutTech(t *testing.T) {
	items := []processor.NewsItem{{Title: "股票市场大涨", Category: processor.CategoryFinance}}
	got := SummaryText(items, CategoryHistogram(items), fixedNow)
	assert.Equal(t, "今日共收集到 1 条新闻，主要涵盖 财经(1条) 等领域。", got)
}

func TestSummaryTextTechWithoutKeywords(t *testing.T) {
	items := []processor.NewsItem{{Title: "OpenAl weekly", Category: processor.CategoryTech}}
	got := SummaryText(items, CategoryHistogram(items), fixedNow)
	assert.Equal(t, "今日共收集到 1 条新闻，主要涵盖 科技(1条) 等领域。 🔥 科技前沿：本日重点关注 1 条科技资讯。", got)
}

func TestSummaryTextEmpty(t *testing.T) {
	assert.Equal(t, "今日暂无新闻更新。", SummaryText(nil, nil, fixedNow))
}

func TestSummaryTextTopThreeCategories(t *testing.T) {
	items := []processor.NewsItem{
		{Title: "a1", Category: "科技"}, {Title: "a2", Category: "科技"},
		{Title: "b1", Category: "财经"}, {Title: "c1", Category: "社会"}, {Title: "d1", Category: "娱乐"},
	}
	got := SummaryText(items, CategoryHistogram(items), fixedNow)
	assert.Contains(t, got, "主要涵盖 科技(2条)、财经(1条)、社会(1条) 等领域。")
	assert.NotContains(t, got, "娱乐(1条)")
}

func TestHotTopics(t *testing.T) {
	items := []processor.NewsItem{
		{Title: "华为发布新手机，小米跟进"},
		{Title: "华为芯片突破"},
		{Title: "小米汽车交付"},
		{Title: "比特币大涨"},
		{Title: "芯片短缺缓解", Tags: []string{"芯片"}},
	}
	// 华为 2，小米 2，芯片 3（两次标题加一次标签），比特币 1
	assert.Equal(t, []string{"芯片", "华为", "小米"}, HotTopics(items))
}

func TestHotTopicsDedupesWithinTitleAndCapsAtFive(t *testing.T) {
	items := []processor.NewsItem{
		{Title: "AI AI AI 5G 芯片 区块链 元宇宙 GPT"},
		{Title: "AI 5G 芯片 区块链 元宇宙 GPT"},
	}
	topics := HotTopics(items)
	assert.Len(t, topics, 5)
	assert.Equal(t, "AI", topics[0])
}

func TestTechKeywords(t *testing.T) {
	items := []processor.NewsItem{
		{Title: "自动驾驶与AI"},
		{Title: "AI芯片"},
		{Title: "ai lower case"},
	}
	assert.Equal(t, []string{"AI", "自动驾驶", "芯片"}, TechKeywords(items))
}
