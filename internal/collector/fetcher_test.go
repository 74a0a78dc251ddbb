package collector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawFeedItemDefaults(t *testing.T) {
	var item RawFeedItem
	require.NoError(t, json.Unmarshal([]byte(`{"url":"  https://e.com/x  ","summary":"摘要"}`), &item))

	assert.Equal(t, "无标题", item.TitleOrDefault())
	assert.Equal(t, "https://e.com/x", item.URLOrDefault())
	assert.Equal(t, "摘要", item.DescriptionOrDefault())
	assert.Nil(t, item.Timestamp())
}

func TestRawFeedItemPrefersPublishTime(t *testing.T) {
	var item RawFeedItem
	require.NoError(t, json.Unmarshal([]byte(`{"title":"t","publishTime":"2024-05-01T08:00:00Z","time":1600000000}`), &item))

	ts := item.Timestamp()
	require.NotNil(t, ts)
	assert.Equal(t, 2024, ts.Year())
}

func TestFeedTimeDecoding(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		valid bool
		unix  int64
	}{
		{"null", `null`, false, 0},
		{"seconds", `1700000000`, true, 1700000000},
		{"millis", `1700000000000`, true, 1700000000},
		{"rfc3339", `"2023-11-14T22:13:20Z"`, true, 1700000000},
		{"numeric string", `"1700000000000"`, true, 1700000000},
		{"empty string", `""`, false, 0},
		{"garbage", `"not a date at all"`, false, 0},
		{"object", `{"x":1}`, false, 0},
		{"micros", `1714550400000000`, true, 1714550400},
		{"nanos", `1714550400000000000`, true, 1714550400},
		{"micros string", `"1714550400000000"`, true, 1714550400},
		{"nan string", `"NaN"`, false, 0},
		{"inf string", `"Inf"`, false, 0},
		{"huge number", `1e300`, false, 0},
		{"negative", `-5`, false, 0},
		{"yyyymmdd", `"20240501"`, true, 1714492800},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var ft FeedTime
			require.NoError(t, json.Unmarshal([]byte(c.raw), &ft))
			assert.Equal(t, c.valid, ft.Valid)
			if c.valid {
				assert.Equal(t, c.unix, ft.Time.Unix())
			}
			_, err := json.Marshal(ft)
			assert.NoError(t, err)
		})
	}
}

func TestRawFeedItemFarFutureTimestampIsUnknown(t *testing.T) {
	var items []RawFeedItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"title":"开源社区发布新版本啦","url":"https://good.example/1","publishTime":"NaN"},
		{"title":"量子计算取得新进展","url":"https://good.example/2","publishTime":1714550400000000}]`), &items))

	assert.Nil(t, items[0].Timestamp())
	ts := items[1].Timestamp()
	require.NotNil(t, ts)
	assert.Equal(t, 2024, ts.UTC().Year())

	_, err := json.Marshal(items)
	assert.NoError(t, err)
}

func TestFeedTimeLocalDateUsesShanghai(t *testing.T) {
	var ft FeedTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01 08:00:00"`), &ft))
	require.True(t, ft.Valid)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), ft.Time.UTC())
}

func TestNewsSourceLimitAndKind(t *testing.T) {
	assert.Equal(t, 5, NewsSource{MaxItems: 5}.Limit(20))
	assert.Equal(t, 20, NewsSource{}.Limit(20))
	assert.Equal(t, DefaultMaxItems, NewsSource{}.Limit(0))
	assert.Equal(t, KindNewsNow, NewsSource{}.KindOrDefault())
	assert.Equal(t, KindScrape, NewsSource{Kind: KindScrape}.KindOrDefault())
}

type stubFetcher struct {
	name  string
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, source NewsSource) FetchResult {
	s.calls++
	return Success([]RawFeedItem{{Title: s.name + ":" + source.ID}}, 1)
}

func TestMultiFetcherDispatchesByKind(t *testing.T) {
	news := &stubFetcher{name: "newsnow"}
	scrape := &stubFetcher{name: "scrape"}
	m := NewMultiFetcher(news).Register(KindScrape, scrape)

	res := m.Fetch(context.Background(), NewsSource{ID: "baidu", Kind: KindScrape})
	assert.Equal(t, "scrape:baidu", res.Items[0].Title)

	res = m.Fetch(context.Background(), NewsSource{ID: "zhihu"})
	assert.Equal(t, "newsnow:zhihu", res.Items[0].Title)

	res = m.Fetch(context.Background(), NewsSource{ID: "x", Kind: "rss"})
	assert.Equal(t, "newsnow:x", res.Items[0].Title)
	assert.Equal(t, 2, news.calls)
	assert.Equal(t, 1, scrape.calls)
}

func TestFailureAlwaysHasEmptyItems(t *testing.T) {
	res := Failure(&FetchError{Kind: Timeout}, 3)
	assert.False(t, res.OK())
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
}
