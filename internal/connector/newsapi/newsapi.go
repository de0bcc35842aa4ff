// Package newsapi searches newsapi.org for articles matching a keyword.
package newsapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name           = "NewsAPI"
	NewArticles    = "newsapi_new_articles"
	ArticleKeyword = "article_with_keyword"
	ArticlesTopic  = "newsapi_articles_topic"

	DefaultBaseURL = "https://newsapi.org/v2"
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
		Description: "News articles by keyword or topic",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{NewArticles, ArticleKeyword, ArticlesTopic},
	}
}

type article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	Author      string `json:"author"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Logger()
	switch req.Trigger {
	case NewArticles, ArticleKeyword, ArticlesTopic:
	default:
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
	if c.opts.APIKey == "" {
		log.Warn().Msg("newsapi key missing")
		return connector.NotTriggered()
	}
	keyword := req.Params.String("keyword", "topic", "query")
	if keyword == "" {
		log.Warn().Msg("missing keyword parameter")
		return connector.NotTriggered()
	}
	language := req.Params.String("language")
	if language == "" {
		language = "fr"
	}

	from := c.deps.Clock().Add(-24 * time.Hour)
	if req.LastExecutedAt != nil {
		from = *req.LastExecutedAt
	}
	query := map[string]string{
		"q":        keyword,
		"language": language,
		"pageSize": "5",
		"sortBy":   "publishedAt",
		"from":     from.UTC().Format("2006-01-02T15:04:05"),
	}
	var res struct {
		Status   string    `json:"status"`
		Message  string    `json:"message"`
		Articles []article `json:"articles"`
	}
	headers := map[string]string{"X-Api-Key": c.opts.APIKey}
	if f := c.http.Get(ctx, c.opts.BaseURL+"/everything", query, headers).Decode(&res); f != nil {
		log.Warn().Err(f).Msg("newsapi request failed")
		return connector.NotTriggered()
	}
	if res.Status != "ok" {
		log.Warn().Str("status", res.Status).Str("reason", res.Message).Msg("newsapi returned an error")
		return connector.NotTriggered()
	}

	var articles []any
	for _, a := range res.Articles {
		// "from" has second granularity and is inclusive
		if at, ok := connector.ParseTime(a.PublishedAt); ok && !connector.After(at, req.LastExecutedAt) {
			continue
		}
		articles = append(articles, map[string]any{
			"title":        orDefault(a.Title, "No title"),
			"description":  a.Description,
			"url":          orDefault(a.URL, "#"),
			"source":       orDefault(a.Source.Name, "Unknown"),
			"author":       orDefault(a.Author, "Anonymous"),
			"published_at": a.PublishedAt,
			"image_url":    a.URLToImage,
		})
	}
	if len(articles) == 0 {
		return connector.NotTriggered()
	}
	first := articles[0].(map[string]any)
	return connector.Fire(Name, connector.Payload{
		"articles": articles,
		"data": map[string]any{
			"article":        first,
			"articles_count": len(articles),
			"keyword":        keyword,
			"language":       language,
			"title":          first["title"],
			"url":            first["url"],
			"source":         first["source"],
			"message":        fmt.Sprintf("New article on '%s': %s", keyword, first["title"]),
		},
	})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
