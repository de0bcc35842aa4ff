// Package youtube watches channels for uploads and videos for view counts
// through the Data API v3.
package youtube

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name            = "YouTube"
	NewVideo        = "new_video"
	NewVideoAlias   = "youtube_new_video"
	VideoViews      = "video_views"
	VideoViewsAlias = "youtube_video_views"

	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
)

type Options struct {
	APIKey  string
	BaseURL string
}

type Connector struct {
	connector.NoEffects
	deps connector.Deps
	opts Options
	http *connector.HTTP
	log  zerolog.Logger
}

func New(deps connector.Deps, opts Options) *Connector {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		opts:      opts,
		http:      connector.NewHTTP(Name, deps.HTTP, deps.Log),
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "api_key",
		Description: "Channel uploads and view milestones",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{NewVideo, NewVideoAlias, VideoViews, VideoViewsAlias},
	}
}

type thumbnails struct {
	Default struct {
		URL string `json:"url"`
	} `json:"default"`
	High struct {
		URL string `json:"url"`
	} `json:"high"`
}

func (t thumbnails) best() string {
	if t.High.URL != "" {
		return t.High.URL
	}
	return t.Default.URL
}

type snippet struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	PublishedAt  string     `json:"publishedAt"`
	ChannelID    string     `json:"channelId"`
	ChannelTitle string     `json:"channelTitle"`
	Thumbnails   thumbnails `json:"thumbnails"`
}

type video struct {
	ID         string  `json:"id"`
	Snippet    snippet `json:"snippet"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Logger()
	if c.opts.APIKey == "" {
		log.Warn().Msg("youtube api key missing")
		return connector.NotTriggered()
	}
	switch req.Trigger {
	case NewVideo, NewVideoAlias:
		channelID := req.Params.String("channel_id", "channelId")
		if channelID == "" {
			log.Warn().Msg("missing channel_id parameter")
			return connector.NotTriggered()
		}
		return c.newVideos(ctx, log, channelID, req)
	case VideoViews, VideoViewsAlias:
		videoID := req.Params.String("video_id", "videoId")
		if videoID == "" {
			log.Warn().Msg("missing video_id parameter")
			return connector.NotTriggered()
		}
		return c.views(ctx, log, videoID, req)
	default:
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

func (c *Connector) get(ctx context.Context, log zerolog.Logger, path string, query map[string]string, out any) bool {
	query["key"] = c.opts.APIKey
	if f := c.http.Get(ctx, c.opts.BaseURL+path, query, nil).Decode(out); f != nil {
		log.Warn().Err(f).Str("path", path).Msg("youtube request failed")
		return false
	}
	return true
}

func (c *Connector) newVideos(ctx context.Context, log zerolog.Logger, channelID string, req connector.TriggerRequest) connector.TriggerResult {
	var channels struct {
		Items []struct {
			Snippet snippet `json:"snippet"`
		} `json:"items"`
	}
	if !c.get(ctx, log, "/channels", map[string]string{"part": "snippet,statistics", "id": channelID}, &channels) {
		return connector.NotTriggered()
	}
	if len(channels.Items) == 0 {
		log.Warn().Str("channel_id", channelID).Msg("channel not found")
		return connector.NotTriggered()
	}
	channel := channels.Items[0].Snippet

	var search struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet snippet `json:"snippet"`
		} `json:"items"`
	}
	query := map[string]string{"part": "snippet", "channelId": channelID, "order": "date", "type": "video", "maxResults": "10"}
	if !c.get(ctx, log, "/search", query, &search) {
		return connector.NotTriggered()
	}

	now := c.deps.Clock()
	horizon := now.Add(-time.Duration(req.Params.Int("hours_threshold", 48)) * time.Hour)
	var ids []string
	published := map[string]time.Time{}
	snippets := map[string]snippet{}
	for _, it := range search.Items {
		at, ok := connector.ParseTime(it.Snippet.PublishedAt)
		if !ok || at.Before(horizon) || !connector.After(at, req.LastExecutedAt) {
			continue
		}
		ids = append(ids, it.ID.VideoID)
		published[it.ID.VideoID] = at
		snippets[it.ID.VideoID] = it.Snippet
	}
	if len(ids) == 0 {
		return connector.NotTriggered()
	}

	details := map[string]video{}
	var vids struct {
		Items []video `json:"items"`
	}
	query = map[string]string{"part": "statistics,contentDetails", "id": strings.Join(ids, ",")}
	if c.get(ctx, log, "/videos", query, &vids) {
		for _, v := range vids.Items {
			details[v.ID] = v
		}
	}

	videos := make([]any, 0, len(ids))
	for _, id := range ids {
		s, d := snippets[id], details[id]
		videos = append(videos, map[string]any{
			"id":            id,
			"title":         s.Title,
			"description":   truncate(s.Description, 200),
			"thumbnail":     s.Thumbnails.best(),
			"published_at":  published[id].UTC().Format(time.RFC3339),
			"url":           "https://www.youtube.com/watch?v=" + id,
			"duration":      formatDuration(d.ContentDetails.Duration),
			"view_count":    atoi(d.Statistics.ViewCount),
			"like_count":    atoi(d.Statistics.LikeCount),
			"comment_count": atoi(d.Statistics.CommentCount),
		})
	}
	latest := videos[0].(map[string]any)
	msg := fmt.Sprintf("Nouvelle vidéo de %s : %s", channel.Title, latest["title"])
	if len(videos) > 1 {
		msg = fmt.Sprintf("%d nouvelles vidéos de %s, dont : %s", len(videos), channel.Title, latest["title"])
	}
	return connector.Fire(Name, connector.Payload{"data": map[string]any{
		"count":        len(videos),
		"videos":       videos,
		"latest_video": latest,
		"title":        latest["title"],
		"url":          latest["url"],
		"channel": map[string]any{
			"id":     channelID,
			"name":   channel.Title,
			"avatar": channel.Thumbnails.Default.URL,
			"url":    "https://www.youtube.com/channel/" + channelID,
		},
		"channel_name":   channel.Title,
		"message":        msg,
		"trigger_reason": "Nouvelles vidéos détectées sur " + channel.Title,
	}})
}

func (c *Connector) views(ctx context.Context, log zerolog.Logger, videoID string, req connector.TriggerRequest) connector.TriggerResult {
	now := c.deps.Clock()
	if req.LastExecutedAt != nil && now.Sub(*req.LastExecutedAt) < cooldown(req.Params) {
		return connector.NotTriggered()
	}
	var vids struct {
		Items []video `json:"items"`
	}
	if !c.get(ctx, log, "/videos", map[string]string{"part": "snippet,statistics,contentDetails", "id": videoID}, &vids) {
		return connector.NotTriggered()
	}
	if len(vids.Items) == 0 {
		log.Warn().Str("video_id", videoID).Msg("video not found")
		return connector.NotTriggered()
	}
	v := vids.Items[0]
	threshold := req.Params.Int("views_threshold", 1000)
	views := atoi(v.Statistics.ViewCount)
	if views < threshold {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{"data": map[string]any{
		"video_id":              videoID,
		"title":                 v.Snippet.Title,
		"description":           truncate(v.Snippet.Description, 200),
		"thumbnail":             v.Snippet.Thumbnails.best(),
		"channel_id":            v.Snippet.ChannelID,
		"channel_name":          v.Snippet.ChannelTitle,
		"published_at":          v.Snippet.PublishedAt,
		"duration":              formatDuration(v.ContentDetails.Duration),
		"view_count":            views,
		"like_count":            atoi(v.Statistics.LikeCount),
		"comment_count":         atoi(v.Statistics.CommentCount),
		"url":                   "https://www.youtube.com/watch?v=" + videoID,
		"threshold":             threshold,
		"threshold_exceeded_by": views - threshold,
		"message":               fmt.Sprintf("%s a dépassé %d vues (%d)", v.Snippet.Title, threshold, views),
		"trigger_reason":        fmt.Sprintf("Vidéo dépasse %d vues", threshold),
	}})
}

// cooldown accepts cooldown_minutes or the legacy check_interval in hours.
func cooldown(p connector.Params) time.Duration {
	if m := p.Int("cooldown_minutes", -1); m >= 0 {
		return time.Duration(m) * time.Minute
	}
	return time.Duration(p.Int("check_interval", 6)) * time.Hour
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// formatDuration renders an ISO 8601 duration such as PT1H2M3S as 1:02:03.
func formatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil {
		return "N/A"
	}
	h, mi, s := atoi(m[1]), atoi(m[2]), atoi(m[3])
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mi, s)
	}
	return fmt.Sprintf("%d:%02d", mi, s)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
