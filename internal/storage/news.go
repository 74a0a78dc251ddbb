package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const listCacheTTL = 5 * time.Minute

// NewsQuery 新闻列表查询条件
type NewsQuery struct {
	// Category 为空表示全部分类
	Category string
	// Sort latest(默认) / score
	Sort  string
	Limit int
	// Date 可选，格式 2006-01-02，按东八区日期筛选
	Date string
}

func (q NewsQuery) normalize() NewsQuery {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 20
	}
	if q.Sort != "score" {
		q.Sort = "latest"
	}
	return q
}

func (q NewsQuery) cacheKey() string {
	return fmt.Sprintf("newsdigest:news:%s:%s:%d:%s", q.Category, q.Sort, q.Limit, q.Date)
}

// ListNews 按分类、排序与可选日期返回历史新闻，Redis 缓存 5 分钟
func (s *Store) ListNews(ctx context.Context, q NewsQuery) ([]News, error) {
	q = q.normalize()
	key := q.cacheKey()

	if s.rdb != nil {
		if bs, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var cached []News
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	db := s.db.WithContext(ctx).Model(&News{})
	if q.Date != "" {
		db = db.Where("published_date = ?", q.Date)
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	switch q.Sort {
	case "score":
		db = db.Order("score DESC").Order("published_at DESC")
	default:
		db = db.Order("created_at DESC")
	}

	var list []News
	if err := db.Limit(q.Limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}

	if s.rdb != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			if err := s.rdb.Set(ctx, key, bs, listCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("write news list cache failed")
			}
		}
	}
	return list, nil
}
