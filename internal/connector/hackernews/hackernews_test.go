package hackernews

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
)

var now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func newHN(t *testing.T, handler http.HandlerFunc) *Connector {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(connectortest.Deps(connectortest.NewClock(now)), srv.URL)
}

func hits(items ...map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": items})
	}
}

func check(c *Connector, trigger string, params connector.Params, last *time.Time) connector.TriggerResult {
	return c.CheckTrigger(context.Background(), connector.TriggerRequest{Trigger: trigger, Params: params, LastExecutedAt: last})
}

func TestTopPosts(t *testing.T) {
	hn := newHN(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "front_page", r.URL.Query().Get("tags"))
		assert.Equal(t, "5", r.URL.Query().Get("hitsPerPage"))
		hits(
			map[string]any{"objectID": "1", "title": "Go 2", "points": 300, "created_at_i": now.Add(-10 * time.Minute).Unix()},
			map[string]any{"objectID": "2", "title": "Old", "url": "https://old", "created_at_i": now.Add(-5 * time.Hour).Unix()},
		)(w, r)
	})

	last := now.Add(-time.Hour)
	res := check(hn, TopPosts, connector.Params{"top": 5}, &last)
	require.True(t, res.Fired())
	data := res.Payload["data"].(map[string]any)
	assert.Equal(t, 1, data["posts_count"])
	assert.Equal(t, "https://news.ycombinator.com/item?id=1", data["url"])
	assert.Equal(t, "Hacker News Top 5: Go 2", res.Payload.Message())

	first := check(hn, NewTopPost, connector.Params{"top": 5}, nil)
	require.True(t, first.Fired())
	assert.Len(t, first.Payload["posts"], 2)
}

func TestKeywordUsesCreatedAtFilter(t *testing.T) {
	last := now.Add(-time.Hour)
	hn := newHN(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search_by_date", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("query"))
		assert.Equal(t, "created_at_i>"+strconv.FormatInt(last.Unix(), 10), r.URL.Query().Get("numericFilters"))
		hits(map[string]any{"objectID": "7", "title": "golang tips", "created_at_i": now.Unix()})(w, r)
	})

	res := check(hn, PostWithKeyword, connector.Params{"keyword": "golang"}, &last)
	require.True(t, res.Fired())
	assert.Equal(t, "golang", res.Payload["data"].(map[string]any)["keyword"])
}

func TestNothingNewOrMissingKeyword(t *testing.T) {
	hn := newHN(t, hits())
	assert.False(t, check(hn, TopPosts, nil, nil).Fired())
	assert.False(t, check(hn, PostsKeyword, nil, nil).Fired())

	broken := newHN(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	assert.False(t, check(broken, TopPosts, nil, nil).Fired())
}

