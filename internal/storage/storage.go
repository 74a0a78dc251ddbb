package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/pipeline"
	"github.com/LJTian/NewsDigest/internal/processor"
)

// ErrNotFound 查询的记录不存在
var ErrNotFound = errors.New("record not found")

// Source 新闻源注册表，Position 决定采集顺序
type Source struct {
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	Name     string `gorm:"size:128" json:"name"`
	Enabled  bool   `gorm:"index" json:"enabled"`
	MaxItems int    `json:"maxItems"`
	Kind     string `gorm:"size:32" json:"kind"`
	URL      string `gorm:"size:512" json:"url"`
	Position int    `gorm:"index" json:"position"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s Source) toNewsSource() collector.NewsSource {
	return collector.NewsSource{ID: s.ID, Name: s.Name, Enabled: s.Enabled, MaxItems: s.MaxItems, Kind: s.Kind, URL: s.URL}
}

// News 进入过摘要的新闻，按 URL 幂等
type News struct {
	ID          string `gorm:"primaryKey;size:40" json:"id"`
	Title       string `gorm:"size:512" json:"title"`
	URL         string `gorm:"size:1024;uniqueIndex" json:"url"`
	Source      string `gorm:"size:128;index" json:"source"`
	Category    string `gorm:"size:32;index" json:"category"`
	Description string `gorm:"size:600" json:"description"`
	Score       int    `gorm:"index" json:"score"`
	// Tags 字符串数组
	Tags          datatypes.JSON `gorm:"type:jsonb" json:"tags"`
	PublishedAt   *time.Time     `gorm:"index" json:"publishedAt"`
	PublishedDate string         `gorm:"size:10;index" json:"publishedDate"` // YYYY-MM-DD，东八区
	DigestID      string         `gorm:"size:36;index" json:"digestId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Digest 一次运行生成的摘要
type Digest struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	TotalCount  int            `json:"totalCount"`
	Summary     string         `gorm:"type:text" json:"summary"`
	Categories  datatypes.JSON `gorm:"type:jsonb" json:"categories"`
	TopNews     datatypes.JSON `gorm:"type:jsonb" json:"topNews"`
	Stats       datatypes.JSON `gorm:"type:jsonb" json:"stats"`
	GeneratedAt time.Time      `gorm:"index" json:"generatedAt"`

	CreatedAt time.Time `json:"createdAt"`
}

// ToNewsDigest 还原为领域对象
func (d Digest) ToNewsDigest() (digest.NewsDigest, error) {
	out := digest.NewsDigest{
		TotalCount:  d.TotalCount,
		Summary:     d.Summary,
		GeneratedAt: d.GeneratedAt,
	}
	if len(d.Categories) > 0 {
		if err := json.Unmarshal(d.Categories, &out.Categories); err != nil {
			return out, fmt.Errorf("decode categories: %w", err)
		}
	}
	if len(d.TopNews) > 0 {
		if err := json.Unmarshal(d.TopNews, &out.TopNews); err != nil {
			return out, fmt.Errorf("decode top news: %w", err)
		}
	}
	return out, nil
}

type Store struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *zerolog.Logger
	newID  func() string
}

// Open 连接 PostgreSQL 并迁移表结构；rdb 可以为 nil，此时不做列表缓存
func Open(dsn string, rdb *redis.Client, logger *zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Source{}, &News{}, &Digest{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return New(db, rdb, logger), nil
}

// New 使用已有连接
func New(db *gorm.DB, rdb *redis.Client, logger *zerolog.Logger) *Store {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Store{db: db, rdb: rdb, logger: logger, newID: uuid.NewString}
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SyncSources 写入配置中的新闻源；已存在的源只更新名称、类型、地址、条数与顺序，保留启用状态
func (s *Store) SyncSources(ctx context.Context, sources []collector.NewsSource) error {
	if len(sources) == 0 {
		return nil
	}
	rows := make([]Source, 0, len(sources))
	for i, src := range sources {
		rows = append(rows, Source{
			ID:       src.ID,
			Name:     src.Name,
			Enabled:  src.Enabled,
			MaxItems: src.MaxItems,
			Kind:     src.Kind,
			URL:      src.URL,
			Position: i,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "max_items", "kind", "url", "position", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("sync sources: %w", err)
	}
	return nil
}

// ListSources 全部源，按 Position 排序
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	var rows []Source
	if err := s.db.WithContext(ctx).Order("position ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return rows, nil
}

// EnabledSources 实现 pipeline.SourceRegistry
func (s *Store) EnabledSources(ctx context.Context) ([]collector.NewsSource, error) {
	var rows []Source
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("position ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	out := make([]collector.NewsSource, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNewsSource())
	}
	return out, nil
}

// SetSourceEnabled 启用或停用某个源
func (s *Store) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("update source %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveDigest 实现 pipeline.Store：保存摘要，并把其中的新闻按 URL 幂等写入
func (s *Store) SaveDigest(ctx context.Context, d digest.NewsDigest, stats pipeline.NewsStats) error {
	row, err := s.digestRow(d, stats)
	if err != nil {
		return err
	}
	news := make([]News, 0, len(d.TopNews))
	for _, it := range d.TopNews {
		n, err := newsRow(it, row.ID)
		if err != nil {
			return err
		}
		news = append(news, n)
	}

	// 列表缓存只有 5 分钟，这里不主动失效
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("save digest: %w", err)
		}
		if len(news) == 0 {
			return nil
		}
		// 以 URL 作为幂等键；已存在时更新评分、分类等字段
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "category", "score", "tags", "digest_id", "updated_at",
			}),
		}).Create(&news).Error
		if err != nil {
			return fmt.Errorf("save digest news: %w", err)
		}
		return nil
	})
}

func (s *Store) digestRow(d digest.NewsDigest, stats pipeline.NewsStats) (Digest, error) {
	cats, err := json.Marshal(d.Categories)
	if err != nil {
		return Digest{}, fmt.Errorf("encode categories: %w", err)
	}
	top, err := json.Marshal(d.TopNews)
	if err != nil {
		return Digest{}, fmt.Errorf("encode top news: %w", err)
	}
	st, err := json.Marshal(stats)
	if err != nil {
		return Digest{}, fmt.Errorf("encode stats: %w", err)
	}
	return Digest{
		ID:          s.newID(),
		TotalCount:  d.TotalCount,
		Summary:     toValidUTF8(d.Summary),
		Categories:  datatypes.JSON(cats),
		TopNews:     datatypes.JSON(top),
		Stats:       datatypes.JSON(st),
		GeneratedAt: d.GeneratedAt,
	}, nil
}

func newsRow(it processor.NewsItem, digestID string) (News, error) {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	bs, err := json.Marshal(tags)
	if err != nil {
		return News{}, fmt.Errorf("encode tags: %w", err)
	}
	n := News{
		ID:          NewsID(it.URL),
		Title:       truncateRunesDB(toValidUTF8(it.Title), 512),
		URL:         it.URL,
		Source:      it.Source,
		Category:    it.Category,
		Description: truncateRunesDB(toValidUTF8(it.Description), 600),
		Score:       it.Score,
		Tags:        datatypes.JSON(bs),
		DigestID:    digestID,
	}
	if it.PublishTime != nil {
		t := *it.PublishTime
		n.PublishedAt = &t
		n.PublishedDate = t.In(locEast8).Format("2006-01-02")
	}
	return n, nil
}

// NewsID URL 的 sha1
func NewsID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// LatestDigest 最近一次生成的摘要
func (s *Store) LatestDigest(ctx context.Context) (*Digest, error) {
	var d Digest
	err := s.db.WithContext(ctx).Order("generated_at DESC").Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest digest: %w", err)
	}
	return &d, nil
}

// ListDigests 按生成时间倒序
func (s *Store) ListDigests(ctx context.Context, limit int) ([]Digest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []Digest
	if err := s.db.WithContext(ctx).Order("generated_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	return list, nil
}

// 东八区，用于日期展示与筛选
var locEast8 *time.Location

func init() {
	locEast8, _ = time.LoadLocation("Asia/Shanghai")
	if locEast8 == nil {
		locEast8 = time.FixedZone("CST", 8*3600)
	}
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
