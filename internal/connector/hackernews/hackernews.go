// Package hackernews reads front-page and keyword stories through the
// Algolia HN search API.
package hackernews

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name            = "HackerNews"
	TopPosts        = "hackernews_top_posts"
	NewTopPost      = "new_top_post"
	PostsKeyword    = "hackernews_posts_keyword"
	PostWithKeyword = "post_with_keyword"

	DefaultBaseURL = "https://hn.algolia.com/api/v1"
)

type Connector struct {
	connector.NoEffects
	deps    connector.Deps
	baseURL string
	http    *connector.HTTP
	log     zerolog.Logger
}

func New(deps connector.Deps, baseURL string) *Connector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		baseURL:   baseURL,
		http:      connector.NewHTTP(Name, deps.HTTP, deps.Log),
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "none",
		Description: "Front page stories and keyword matches",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{TopPosts, NewTopPost, PostsKeyword, PostWithKeyword},
	}
}

type hit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Logger()

	switch req.Trigger {
	case TopPosts, NewTopPost:
		top := req.Params.Int("top", req.Params.Int("count", 10))
		query := map[string]string{"tags": "front_page", "hitsPerPage": strconv.Itoa(top)}
		posts, ok := c.search(ctx, log, "/search", query, req.LastExecutedAt)
		if !ok || len(posts) == 0 {
			return connector.NotTriggered()
		}
		first := posts[0].(map[string]any)
		return connector.Fire(Name, connector.Payload{
			"posts": posts,
			"data": map[string]any{
				"post":        first,
				"posts_count": len(posts),
				"top":         top,
				"title":       first["title"],
				"url":         first["url"],
				"message":     fmt.Sprintf("Hacker News Top %d: %s", top, first["title"]),
			},
		})

	case PostsKeyword, PostWithKeyword:
		keyword := req.Params.String("keyword", "query")
		if keyword == "" {
			log.Warn().Msg("missing keyword parameter")
			return connector.NotTriggered()
		}
		query := map[string]string{"query": keyword, "tags": "story", "hitsPerPage": "10"}
		if req.LastExecutedAt != nil {
			query["numericFilters"] = "created_at_i>" + strconv.FormatInt(req.LastExecutedAt.Unix(), 10)
		}
		posts, ok := c.search(ctx, log, "/search_by_date", query, req.LastExecutedAt)
		if !ok || len(posts) == 0 {
			return connector.NotTriggered()
		}
		first := posts[0].(map[string]any)
		return connector.Fire(Name, connector.Payload{
			"posts": posts,
			"data": map[string]any{
				"post":        first,
				"posts_count": len(posts),
				"keyword":     keyword,
				"title":       first["title"],
				"url":         first["url"],
				"message":     fmt.Sprintf("Hacker News '%s': %s", keyword, first["title"]),
			},
		})

	default:
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

func (c *Connector) search(ctx context.Context, log zerolog.Logger, path string, query map[string]string, last *time.Time) ([]any, bool) {
	var res struct {
		Hits []hit `json:"hits"`
	}
	if f := c.http.Get(ctx, c.baseURL+path, query, nil).Decode(&res); f != nil {
		log.Warn().Err(f).Msg("hacker news search failed")
		return nil, false
	}
	loc := c.deps.Clock().Location()
	var posts []any
	for _, h := range res.Hits {
		at := time.Unix(h.CreatedAtI, 0).In(loc)
		if !connector.After(at, last) {
			continue
		}
		title := h.Title
		if title == "" {
			title = "No title"
		}
		link := h.URL
		if link == "" {
			link = "https://news.ycombinator.com/item?id=" + h.ObjectID
		}
		author := h.Author
		if author == "" {
			author = "Anonymous"
		}
		posts = append(posts, map[string]any{
			"id":         h.ObjectID,
			"title":      title,
			"url":        link,
			"points":     h.Points,
			"comments":   h.NumComments,
			"author":     author,
			"created_at": at.Format("2006-01-02 15:04:05"),
		})
	}
	return posts, true
}
