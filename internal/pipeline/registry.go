package pipeline

import (
	"context"

	"github.com/LJTian/NewsDigest/internal/collector"
)

// SourceRegistry 提供有序的新闻源列表
type SourceRegistry interface {
	EnabledSources(ctx context.Context) ([]collector.NewsSource, error)
}

// StaticRegistry 来自配置的固定新闻源列表
type StaticRegistry []collector.NewsSource

func (r StaticRegistry) EnabledSources(context.Context) ([]collector.NewsSource, error) {
	return EnabledOnly(r), nil
}

// EnabledOnly 过滤出启用的源，保持原有顺序
func EnabledOnly(sources []collector.NewsSource) []collector.NewsSource {
	out := make([]collector.NewsSource, 0, len(sources))
	for _, s := range sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
