package digest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LJTian/NewsDigest/internal/processor"
)

// CategoryCount 分类及其条数
type CategoryCount struct {
	Name  string
	Count int
}

// Histogram 按条数降序排列的分类统计，JSON 编码为保持顺序的对象 {"科技":5,"财经":3}
type Histogram []CategoryCount

// Get 返回某个分类的条数
func (h Histogram) Get(name string) int {
	for _, c := range h {
		if c.Name == name {
			return c.Count
		}
	}
	return 0
}

func (h Histogram) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		fmt.Fprintf(&buf, ":%d", c.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按对象中出现的顺序还原
func (h *Histogram) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("histogram: expected object, got %v", tok)
	}

	out := Histogram{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("histogram: bad key %v", keyTok)
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("histogram %q: %w", key, err)
		}
		out = append(out, CategoryCount{Name: key, Count: n})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*h = out
	return nil
}

// NewsDigest 一次采集运行的输出
type NewsDigest struct {
	// TotalCount 过滤、去重之后，截取前 20 条之前的总数
	TotalCount  int                  `json:"totalCount"`
	Categories  Histogram            `json:"categories"`
	TopNews     []processor.NewsItem `json:"topNews"`
	Summary     string               `json:"summary"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// TechCount 科技类条数
func (d NewsDigest) TechCount() int {
	return d.Categories.Get(processor.CategoryTech)
}
