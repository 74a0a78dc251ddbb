package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newsNowServer(t *testing.T, handler func(call int32, w http.ResponseWriter, r *http.Request)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		handler(n, w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testFetcher(baseURL string) *NewsNowFetcher {
	return NewNewsNowFetcher(baseURL, time.Second, 3, 0, nil).WithBackoff(noBackoff)
}

func TestNewsNowFetchSuccessTruncates(t *testing.T) {
	srv, calls := newsNowServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/s", r.URL.Path)
		assert.Equal(t, "zhihu", r.URL.Query().Get("id"))
		_, _ = fmt.Fprint(w, `{"status":"success","items":[
			{"title":"a","url":"https://e.com/a","description":"da"},
			{"title":"b","url":"https://e.com/b","summary":"sb","time":1700000000000},
			{"title":"c","url":"https://e.com/c"}]}`)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "zhihu", Name: "知乎", MaxItems: 2})

	require.True(t, res.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a", res.Items[0].Title)
	assert.Equal(t, "sb", res.Items[1].DescriptionOrDefault())
	require.NotNil(t, res.Items[1].Timestamp())
	assert.Equal(t, int64(1700000000000), res.Items[1].Timestamp().UnixMilli())
}

func TestNewsNowFetchServerErrorExhaustsAttempts(t *testing.T) {
	srv, calls := newsNowServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "bad", Name: "bad"})

	require.False(t, res.OK())
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, ServerError, res.Err.Kind)
	assert.Equal(t, http.StatusInternalServerError, res.Err.Status)
	assert.Empty(t, res.Items)
}

func TestNewsNowFetchClientErrorNotRetried(t *testing.T) {
	srv, calls := newsNowServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "missing"})

	require.False(t, res.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Equal(t, ClientError, res.Err.Kind)
}

func TestNewsNowFetchRateLimitedThenSuccess(t *testing.T) {
	srv, calls := newsNowServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) {
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, `{"items":[{"title":"ok","url":"https://e.com/ok"}]}`)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "weibo"})

	require.True(t, res.OK())
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.Equal(t, 2, res.Attempts)
}

func TestNewsNowFetchEmptyThenItems(t *testing.T) {
	srv, calls := newsNowServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) {
		if n == 1 {
			_, _ = fmt.Fprint(w, `{"items":[]}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"items":[{"title":"ok","url":"https://e.com/ok"}]}`)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "ithome"})

	require.True(t, res.OK())
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestNewsNowFetchMissingItemsIsEmptyPayload(t *testing.T) {
	srv, calls := newsNowServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"status":"cache","items":"nope"}`)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "x"})

	require.False(t, res.OK())
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Equal(t, EmptyPayload, res.Err.Kind)
}

func TestNewsNowFetchMalformedBodyNotRetried(t *testing.T) {
	srv, calls := newsNowServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<html>oops</html>`)
	})

	res := testFetcher(srv.URL).Fetch(context.Background(), NewsSource{ID: "x"})

	require.False(t, res.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Equal(t, MalformedPayload, res.Err.Kind)
}

func TestNewsNowFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := testFetcher(url).Fetch(context.Background(), NewsSource{ID: "down"})

	require.False(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, NetworkUnavailable, res.Err.Kind)
}

func TestNewsNowFetchTimeout(t *testing.T) {
	srv, _ := newsNowServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	})

	f := NewNewsNowFetcher(srv.URL, 50*time.Millisecond, 2, 0, nil).WithBackoff(noBackoff)
	res := f.Fetch(context.Background(), NewsSource{ID: "slow"})

	require.False(t, res.OK())
	assert.Equal(t, Timeout, res.Err.Kind)
	assert.Equal(t, 2, res.Attempts)
}

func TestDecodeNewsNow(t *testing.T) {
	items, err := decodeNewsNow([]byte(`{"items":[{"title":"t"}]}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = decodeNewsNow([]byte(`{"status":"ok"}`))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = decodeNewsNow([]byte(`{"items":[1,2]}`))
	require.Error(t, err)
	assert.Equal(t, MalformedPayload, Classify(err))
}
