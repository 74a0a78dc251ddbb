package processor

// techCategoryKeywords 科技类关键词，分类时最先检查
var techCategoryKeywords = []string{
	"AI", "人工智能", "科技", "技术", "互联网", "软件", "硬件", "芯片", "5G", "6G", "区块链",
	"ChatGPT", "GPT", "OpenAI", "机器学习", "深度学习", "神经网络", "算法",
	"元宇宙", "VR", "AR", "MR", "虚拟现实", "增强现实",
	"云计算", "大数据", "物联网", "IoT", "边缘计算",
	"自动驾驶", "无人驾驶", "智能汽车", "新能源", "电动车", "特斯拉",
	"量子计算", "量子", "生物技术", "基因", "DNA",
	"苹果", "iPhone", "iPad", "Mac", "华为", "小米", "OPPO", "vivo",
	"腾讯", "阿里巴巴", "字节跳动", "百度", "微软", "谷歌", "Meta",
	"半导体", "台积电", "英伟达", "NVIDIA", "AMD", "英特尔",
	"编程", "开发", "代码", "GitHub", "开源", "Linux",
	"网络安全", "黑客", "数据泄露", "加密", "隐私",
	"直播", "短视频", "抖音", "TikTok", "快手", "B站",
}

type categoryKeywords struct {
	category string
	keywords []string
}

// categoryTable 非科技分类，按顺序匹配
var categoryTable = []categoryKeywords{
	{CategoryFinance, []string{"股票", "金融", "经济", "投资", "银行", "基金", "债券", "货币", "财经", "市场"}},
	{CategorySociety, []string{"社会", "民生", "教育", "医疗", "环境", "交通", "住房", "就业"}},
	{CategoryInternational, []string{"国际", "全球", "美国", "欧洲", "日本", "韩国", "俄罗斯", "印度"}},
	{CategoryEntertainment, []string{"娱乐", "明星", "电影", "音乐", "游戏", "体育", "足球", "篮球"}},
}

// commonTags 标签提取用的固定短词表
var commonTags = []string{"AI", "人工智能", "区块链", "5G", "新能源", "芯片", "互联网", "科技"}

// rankVocabulary 排序加分用的科技词表，标题中不区分大小写命中一次 +5
var rankVocabulary = []string{
	"AI", "人工智能", "科技", "技术", "互联网", "软件", "硬件", "芯片", "5G", "区块链",
	"ChatGPT", "GPT", "元宇宙", "VR", "AR",
}
