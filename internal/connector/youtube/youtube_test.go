package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
)

var now = time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

func fakeAPI(t *testing.T, views string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yk", r.URL.Query().Get("key"))
		items := []any{}
		if r.URL.Query().Get("id") == "UC1" {
			items = append(items, map[string]any{"snippet": map[string]any{"title": "Gophers"}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{
			map[string]any{"id": map[string]any{"videoId": "v2"}, "snippet": map[string]any{"title": "Generics", "publishedAt": now.Add(-2 * time.Hour).Format(time.RFC3339)}},
			map[string]any{"id": map[string]any{"videoId": "v1"}, "snippet": map[string]any{"title": "Intro", "publishedAt": now.Add(-30 * time.Hour).Format(time.RFC3339)}},
			map[string]any{"id": map[string]any{"videoId": "v0"}, "snippet": map[string]any{"title": "Ancient", "publishedAt": now.Add(-100 * time.Hour).Format(time.RFC3339)}},
		}})
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{
			map[string]any{
				"id":             "v2",
				"snippet":        map[string]any{"title": "Generics", "channelTitle": "Gophers"},
				"statistics":     map[string]any{"viewCount": views, "likeCount": "10"},
				"contentDetails": map[string]any{"duration": "PT12M5S"},
			},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newYouTube(t *testing.T, views string) *Connector {
	srv := fakeAPI(t, views)
	return New(connectortest.Deps(connectortest.NewClock(now)), Options{APIKey: "yk", BaseURL: srv.URL})
}

func check(c *Connector, trigger string, params connector.Params, last *time.Time) connector.TriggerResult {
	return c.CheckTrigger(context.Background(), connector.TriggerRequest{Trigger: trigger, Params: params, LastExecutedAt: last})
}

func TestNewVideos(t *testing.T) {
	yt := newYouTube(t, "500")

	res := check(yt, NewVideo, connector.Params{"channel_id": "UC1"}, nil)
	require.True(t, res.Fired())
	data := res.Payload["data"].(map[string]any)
	assert.Equal(t, 2, data["count"], "older than hours_threshold is ignored")
	latest := data["latest_video"].(map[string]any)
	assert.Equal(t, "Generics", latest["title"])
	assert.Equal(t, "12:05", latest["duration"])
	assert.Equal(t, 500, latest["view_count"])

	last := now.Add(-3 * time.Hour)
	res = check(yt, NewVideoAlias, connector.Params{"channelId": "UC1"}, &last)
	require.True(t, res.Fired())
	assert.Equal(t, 1, res.Payload["data"].(map[string]any)["count"])

	recent := now.Add(-time.Hour)
	assert.False(t, check(yt, NewVideo, connector.Params{"channel_id": "UC1"}, &recent).Fired())
	assert.False(t, check(yt, NewVideo, connector.Params{"channel_id": "UCX"}, nil).Fired())
}

func TestVideoViews(t *testing.T) {
	yt := newYouTube(t, "1500")
	params := connector.Params{"video_id": "v2", "views_threshold": 1000}

	res := check(yt, VideoViews, params, nil)
	require.True(t, res.Fired())
	data := res.Payload["data"].(map[string]any)
	assert.Equal(t, 500, data["threshold_exceeded_by"])

	recent := now.Add(-time.Hour)
	assert.False(t, check(yt, VideoViewsAlias, params, &recent).Fired(), "default re-arm is six hours")
	assert.True(t, check(yt, VideoViews, connector.Params{"video_id": "v2", "cooldown_minutes": 30}, &recent).Fired())

	assert.False(t, check(yt, VideoViews, connector.Params{"video_id": "v2", "views_threshold": 5000}, nil).Fired())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1:02:03", formatDuration("PT1H2M3S"))
	assert.Equal(t, "0:45", formatDuration("PT45S"))
	assert.Equal(t, "N/A", formatDuration("P1D"))
}

func TestMissingKey(t *testing.T) {
	yt := New(connectortest.Deps(connectortest.NewClock(now)), Options{})
	assert.False(t, check(yt, NewVideo, connector.Params{"channel_id": "UC1"}, nil).Fired())
}
