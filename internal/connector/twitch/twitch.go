// Package twitch detects streams going live using an application token.
package twitch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name         = "Twitch"
	StreamOnline = "stream_online"
	StreamerLive = "streamer_live"

	DefaultBaseURL  = "https://api.twitch.tv/helix"
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"
	tokenKey        = "twitch:app"

	// TokenMargin is how long before expiry the app token is renewed.
	TokenMargin = 5 * time.Minute
)

// Options configures the connector.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

type Connector struct {
	connector.NoEffects
	deps  connector.Deps
	opts  Options
	http  *connector.HTTP
	fetch connector.FetchFunc
	log   zerolog.Logger
}

func New(deps connector.Deps, opts Options) *Connector {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if deps.Tokens == nil {
		deps.Tokens = connector.NewTokenCache(TokenMargin)
	}
	deps.Tokens.SetMargin(tokenKey, TokenMargin)
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		opts:      opts,
		http:      connector.NewHTTP(Name, deps.HTTP, deps.Log),
		fetch:     connector.ClientCredentials(cc, 10*time.Second),
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "client_credentials",
		Description: "Live stream notifications",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{StreamOnline, StreamerLive},
	}
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Logger()
	if req.Trigger != StreamOnline && req.Trigger != StreamerLive {
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
	if c.opts.ClientID == "" || c.opts.ClientSecret == "" {
		log.Warn().Msg("twitch client credentials missing")
		return connector.NotTriggered()
	}
	login := strings.ToLower(req.Params.String("streamer_name", "streamer", "login", "channel"))
	if login == "" {
		log.Warn().Msg("missing streamer_name parameter")
		return connector.NotTriggered()
	}

	var users struct {
		Data []struct {
			ID          string `json:"id"`
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if !c.get(ctx, log, "/users", map[string]string{"login": login}, &users) {
		return connector.NotTriggered()
	}
	if len(users.Data) == 0 {
		log.Warn().Str("streamer", login).Msg("streamer not found")
		return connector.NotTriggered()
	}

	var streams struct {
		Data []struct {
			UserLogin    string `json:"user_login"`
			UserName     string `json:"user_name"`
			Title        string `json:"title"`
			GameName     string `json:"game_name"`
			ViewerCount  int    `json:"viewer_count"`
			StartedAt    string `json:"started_at"`
			ThumbnailURL string `json:"thumbnail_url"`
		} `json:"data"`
	}
	if !c.get(ctx, log, "/streams", map[string]string{"user_id": users.Data[0].ID, "first": "1"}, &streams) {
		return connector.NotTriggered()
	}
	if len(streams.Data) == 0 {
		return connector.NotTriggered()
	}
	s := streams.Data[0]
	started, ok := connector.ParseTime(s.StartedAt)
	if !ok || !connector.After(started, req.LastExecutedAt) {
		log.Debug().Str("streamer", login).Msg("live but already notified")
		return connector.NotTriggered()
	}

	game := s.GameName
	if game == "" {
		game = "Just Chatting"
	}
	title := s.Title
	if title == "" {
		title = "No title"
	}
	name := users.Data[0].DisplayName
	if name == "" {
		name = login
	}
	data := map[string]any{
		"streamer_name":  name,
		"streamer_login": s.UserLogin,
		"stream_title":   title,
		"game_name":      game,
		"viewer_count":   s.ViewerCount,
		"started_at":     started.UTC().Format(time.RFC3339),
		"thumbnail_url":  strings.Replace(s.ThumbnailURL, "{width}x{height}", "640x360", 1),
		"url":            "https://twitch.tv/" + s.UserLogin,
		"message": fmt.Sprintf("%s est en live sur Twitch!\nJeu: %s\nViewers: %d\nTitre: %s",
			name, game, s.ViewerCount, title),
	}
	return connector.Fire(Name, connector.Payload{"data": data})
}

// get calls helix with the app token, refreshing it once on 401.
func (c *Connector) get(ctx context.Context, log zerolog.Logger, path string, query map[string]string, out any) bool {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.deps.Tokens.Get(ctx, tokenKey, c.fetch)
		if err != nil {
			log.Error().Err(err).Msg("twitch app token unavailable")
			return false
		}
		res := c.http.Do(ctx, connector.Request{
			URL:     c.opts.BaseURL + path,
			Query:   query,
			Headers: map[string]string{"Client-Id": c.opts.ClientID},
			Bearer:  token,
			Retry:   true,
		})
		f := res.Decode(out)
		if f == nil {
			return true
		}
		if f.Unauthorized() && attempt == 0 {
			c.deps.Tokens.Invalidate(tokenKey)
			continue
		}
		log.Warn().Err(f).Str("path", path).Msg("twitch request failed")
		return false
	}
	return false
}
