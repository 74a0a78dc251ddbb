package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LJTian/NewsDigest/internal/digest"
	"github.com/LJTian/NewsDigest/internal/pipeline"
	"github.com/LJTian/NewsDigest/internal/processor"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := New(db, rdb, nil)
	s.newID = func() string { return "digest-1" }
	return s, mock, mr
}

func TestEnabledSourcesKeepsOrder(t *testing.T) {
	s, mock, _ := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "enabled", "max_items", "kind", "position"}).
		AddRow("zhihu", "知乎", true, 5, "", 0).
		AddRow("github-trending", "GitHub Trending", true, 10, "scrape", 1)
	mock.ExpectQuery(`SELECT \* FROM "sources" WHERE enabled = \$1`).
		WithArgs(true).
		WillReturnRows(rows)

	got, err := s.EnabledSources(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zhihu", got[0].ID)
	assert.Equal(t, "知乎", got[0].Name)
	assert.Equal(t, 5, got[0].MaxItems)
	assert.Equal(t, "scrape", got[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSourceEnabledUnknownID(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectExec(`UPDATE "sources" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.SetSourceEnabled(context.Background(), "nope", false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestDigestNotFound(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "digests"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := s.LatestDigest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestDigestDecodes(t *testing.T) {
	s, mock, _ := newMockStore(t)

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "total_count", "summary", "categories", "top_news", "generated_at"}).
		AddRow("d1", 3, "今日摘要", []byte(`{"科技":2,"其他":1}`), []byte(`[{"id":"n1","title":"t","url":"https://a.com","source":"IT之家","category":"科技","score":60}]`), at)
	mock.ExpectQuery(`SELECT \* FROM "digests"`).WillReturnRows(rows)

	d, err := s.LatestDigest(context.Background())
	require.NoError(t, err)
	nd, err := d.ToNewsDigest()
	require.NoError(t, err)
	assert.Equal(t, 3, nd.TotalCount)
	assert.Equal(t, "今日摘要", nd.Summary)
	assert.Equal(t, 2, nd.Categories.Get("科技"))
	assert.Equal(t, "科技", nd.Categories[0].Name)
	require.Len(t, nd.TopNews, 1)
	assert.Equal(t, "https://a.com", nd.TopNews[0].URL)
}

func TestSaveDigestWritesDigestAndNews(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "digests"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "news" .* ON CONFLICT \("url"\) DO UPDATE`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	d := digest.NewsDigest{
		TotalCount: 2,
		Categories: digest.Histogram{{Name: "科技", Count: 2}},
		TopNews: []processor.NewsItem{
			{Title: "a", URL: "https://a.com/1", Category: "科技", Score: 70},
			{Title: "b", URL: "https://a.com/2", Category: "科技", Score: 60},
		},
		Summary:     "s",
		GeneratedAt: time.Now(),
	}
	err := s.SaveDigest(context.Background(), d, pipeline.NewsStats{TotalCollected: 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNewsServedFromCache(t *testing.T) {
	s, mock, mr := newMockStore(t)

	q := NewsQuery{Category: "科技", Sort: "score", Limit: 5}
	cached, _ := json.Marshal([]News{{ID: "x", Title: "cached", URL: "https://c.com"}})
	require.NoError(t, mr.Set(q.normalize().cacheKey(), string(cached)))

	list, err := s.ListNews(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cached", list[0].Title)
	// 命中缓存时不访问数据库
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNewsFillsCache(t *testing.T) {
	s, mock, mr := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "title", "url", "category", "score"}).
		AddRow("n1", "新闻一", "https://a.com/1", "科技", 80)
	mock.ExpectQuery(`SELECT \* FROM "news" WHERE category = \$1`).WillReturnRows(rows)

	q := NewsQuery{Category: "科技", Sort: "score", Limit: 5}
	list, err := s.ListNews(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 80, list[0].Score)
	assert.True(t, mr.Exists(q.normalize().cacheKey()))

	ttl := mr.TTL(q.normalize().cacheKey())
	assert.Equal(t, listCacheTTL, ttl)
}

func TestNewsQueryNormalize(t *testing.T) {
	q := NewsQuery{Sort: "hot", Limit: -1}.normalize()
	assert.Equal(t, "latest", q.Sort)
	assert.Equal(t, 20, q.Limit)

	q = NewsQuery{Sort: "score", Limit: 5000}.normalize()
	assert.Equal(t, "score", q.Sort)
	assert.Equal(t, 20, q.Limit)
}

func TestNewsRowHelpers(t *testing.T) {
	assert.Equal(t, NewsID("https://a.com"), NewsID("https://a.com"))
	assert.Len(t, NewsID("https://a.com"), 40)

	assert.Equal(t, "abc", truncateRunesDB("  abcdef ", 3))
	assert.Equal(t, "", truncateRunesDB("abc", 0))
	assert.Equal(t, "a�b", toValidUTF8("a\xffb"))

	pub := time.Date(2024, 4, 30, 20, 0, 0, 0, time.UTC)
	n, err := newsRow(processor.NewsItem{
		Title:       strings.Repeat("题", 600),
		URL:         "https://a.com/1",
		PublishTime: &pub,
	}, "d1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", n.PublishedDate)
	assert.Equal(t, 512, len([]rune(n.Title)))
	assert.JSONEq(t, `[]`, string(n.Tags))
	assert.Equal(t, "d1", n.DigestID)
}
