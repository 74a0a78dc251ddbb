package llm

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/NewsDigest/internal/processor"
)

const (
	analyzeBatchSize  = 3
	defaultBatchPause = 100 * time.Millisecond
)

// BatchAnalyze 每批 3 条并发分析，批次之间暂停一下避免触发限流；结果顺序与输入一致
func (c *Client) BatchAnalyze(ctx context.Context, items []processor.NewsItem) []Analysis {
	results := make([]Analysis, len(items))

	for start := 0; start < len(items); start += analyzeBatchSize {
		end := start + analyzeBatchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.AnalyzeTechNews(ctx, items[i].Title, items[i].Description)
			}(i)
		}
		wg.Wait()

		if end < len(items) && c.batchPause > 0 {
			t := time.NewTimer(c.batchPause)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}
	return results
}
