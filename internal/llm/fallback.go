package llm

import (
	"math"
	"strings"
)

var fallbackKeywords = []string{
	"AI", "人工智能", "机器学习", "深度学习", "神经网络",
	"科技", "技术", "互联网", "软件", "硬件", "芯片", "5G", "6G",
	"区块链", "ChatGPT", "GPT", "OpenAI", "算法",
	"元宇宙", "VR", "AR", "MR", "虚拟现实", "增强现实",
	"云计算", "大数据", "物联网", "IoT", "边缘计算",
	"自动驾驶", "无人驾驶", "智能汽车", "新能源", "电动车",
	"量子计算", "量子", "生物技术", "基因", "DNA",
	"苹果", "iPhone", "iPad", "华为", "小米", "腾讯", "阿里巴巴",
	"字节跳动", "百度", "微软", "谷歌", "Meta", "英伟达", "NVIDIA",
	"半导体", "台积电", "AMD", "英特尔", "编程", "开发", "代码",
	"GitHub", "开源", "Linux", "网络安全", "黑客", "数据泄露",
}

// FallbackAnalysis 本地关键词匹配，不依赖网络。
// 置信度为 min(0.8, 命中数×0.2)。
func FallbackAnalysis(title, description string) Analysis {
	content := strings.ToLower(title + " " + description)
	found := make([]string, 0, 4)
	for _, kw := range fallbackKeywords {
		if strings.Contains(content, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}

	isTech := len(found) > 0
	reasoning := "未找到科技相关关键词"
	if isTech {
		reasoning = "关键词匹配: " + strings.Join(found, ", ")
	}
	return Analysis{
		IsTechNews:   isTech,
		Confidence:   math.Min(0.8, float64(len(found))*0.2),
		TechKeywords: found,
		Reasoning:    reasoning,
		Fallback:     true,
	}
}
