// Package spotify watches playlists and users for additions.
//
// First-run policy: SeedOnlyOnFirstRun. Without an AREA watermark the
// connector records a baseline in the watermark cache and does not fire.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name             = "Spotify"
	NewTrack         = "spotify_new_track"
	NewSongAlias     = "new_song_in_playlist"
	NewPlaylist      = "spotify_new_playlist"
	NewPlaylistAlias = "new_playlist_created"

	DefaultBaseURL  = "https://api.spotify.com/v1"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
	tokenKey        = "spotify:app"
	baselineTTL     = 30 * 24 * time.Hour
)

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
		deps.Tokens = connector.NewTokenCache(time.Minute)
	}
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
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
		Description: "Playlist tracks and new playlists",
		FirstRun:    connector.SeedOnlyOnFirstRun,
		Triggers:    []string{NewTrack, NewSongAlias, NewPlaylist, NewPlaylistAlias},
	}
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Str("user_id", req.UserID).Logger()
	if c.opts.ClientID == "" || c.opts.ClientSecret == "" {
		log.Warn().Msg("spotify client credentials missing")
		return connector.NotTriggered()
	}
	switch req.Trigger {
	case NewTrack, NewSongAlias:
		return c.newTracks(ctx, log, req)
	case NewPlaylist, NewPlaylistAlias:
		return c.newPlaylists(ctx, log, req)
	default:
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

func (c *Connector) get(ctx context.Context, log zerolog.Logger, path string, query map[string]string, out any) bool {
	token, err := c.deps.Tokens.Get(ctx, tokenKey, c.fetch)
	if err != nil {
		log.Error().Err(err).Msg("spotify app token unavailable")
		return false
	}
	res := c.http.Do(ctx, connector.Request{URL: c.opts.BaseURL + path, Query: query, Bearer: token, Retry: true})
	if f := res.Decode(out); f != nil {
		if f.Unauthorized() {
			c.deps.Tokens.Invalidate(tokenKey)
		}
		log.Warn().Err(f).Str("path", path).Msg("spotify request failed")
		return false
	}
	return true
}

type image struct {
	URL string `json:"url"`
}

type external struct {
	Spotify string `json:"spotify"`
}

type playlistItem struct {
	AddedAt string `json:"added_at"`
	Track   struct {
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Name string `json:"name"`
		} `json:"album"`
		ExternalURLs external `json:"external_urls"`
	} `json:"track"`
}

const (
	tracksPerPage = 50
	maxTrackPages = 5
)

// newestTracks reads the tail of a playlist. Tracks are listed in insertion
// order, so paging starts at total-50 and moves back while a whole page was
// added after since.
func (c *Connector) newestTracks(ctx context.Context, log zerolog.Logger, path string, total int, since *time.Time) ([]playlistItem, bool) {
	var out []playlistItem
	offset := max(total-tracksPerPage, 0)
	limit := tracksPerPage
	for page := 0; page < maxTrackPages; page++ {
		var tracks struct {
			Items []playlistItem `json:"items"`
		}
		query := map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
			"fields": "items(added_at,track(name,artists(name),album(name),external_urls(spotify)))",
		}
		if !c.get(ctx, log, path+"/tracks", query, &tracks) {
			return out, len(out) > 0
		}
		out = append(out, tracks.Items...)
		if offset == 0 || len(tracks.Items) == 0 || !allAddedAfter(tracks.Items, since) {
			break
		}
		prev := offset
		offset = max(offset-tracksPerPage, 0)
		limit = prev - offset
	}
	return out, true
}

func allAddedAfter(items []playlistItem, since *time.Time) bool {
	for _, it := range items {
		at, ok := connector.ParseTime(it.AddedAt)
		if !ok || !connector.After(at, since) {
			return false
		}
	}
	return true
}

func (c *Connector) newTracks(ctx context.Context, log zerolog.Logger, req connector.TriggerRequest) connector.TriggerResult {
	playlistID := req.Params.String("playlist_id", "playlist")
	if playlistID == "" {
		log.Warn().Msg("missing playlist_id parameter")
		return connector.NotTriggered()
	}
	key := connector.WatermarkKey(Name, req.UserID, req.AreaID, "tracks", playlistID)
	since, seeded, err := connector.Baseline(ctx, c.deps.Watermarks, key, req.LastExecutedAt, c.deps.Clock(), baselineTTL)
	if err != nil {
		log.Warn().Err(err).Msg("watermark cache unavailable")
		return connector.NotTriggered()
	}
	if seeded {
		log.Info().Str("playlist_id", playlistID).Msg("baseline recorded")
		return connector.NotTriggered()
	}

	var playlist struct {
		Name         string   `json:"name"`
		ExternalURLs external `json:"external_urls"`
		Images       []image  `json:"images"`
		Tracks       struct {
			Total int `json:"total"`
		} `json:"tracks"`
	}
	path := "/playlists/" + url.PathEscape(playlistID)
	if !c.get(ctx, log, path, nil, &playlist) {
		return connector.NotTriggered()
	}
	items, ok := c.newestTracks(ctx, log, path, playlist.Tracks.Total, since)
	if !ok {
		return connector.NotTriggered()
	}

	var fresh []any
	for _, it := range items {
		at, ok := connector.ParseTime(it.AddedAt)
		if !ok || !connector.After(at, since) {
			continue
		}
		artists := make([]string, 0, len(it.Track.Artists))
		for _, a := range it.Track.Artists {
			artists = append(artists, a.Name)
		}
		fresh = append(fresh, map[string]any{
			"name":     it.Track.Name,
			"artists":  strings.Join(artists, ", "),
			"album":    it.Track.Album.Name,
			"url":      it.Track.ExternalURLs.Spotify,
			"added_at": at.UTC().Format(time.RFC3339),
		})
	}
	if len(fresh) == 0 {
		return connector.NotTriggered()
	}
	name := playlist.Name
	if name == "" {
		name = "Playlist inconnue"
	}
	data := map[string]any{
		"playlist_id":   playlistID,
		"playlist_name": name,
		"playlist_url":  playlist.ExternalURLs.Spotify,
		"new_tracks":    fresh,
		"total_new":     len(fresh),
		"message":       fmt.Sprintf("%d nouvelle(s) chanson(s) dans la playlist \"%s\"!", len(fresh), name),
	}
	if len(playlist.Images) > 0 {
		data["playlist_image"] = playlist.Images[0].URL
	}
	return connector.Fire(Name, connector.Payload{"data": data})
}

// newPlaylists diffs the user's public playlists against the ids seen on the
// previous check; the playlist API exposes no creation time.
func (c *Connector) newPlaylists(ctx context.Context, log zerolog.Logger, req connector.TriggerRequest) connector.TriggerResult {
	owner := req.Params.String("user_id", "spotify_user", "username")
	if owner == "" {
		log.Warn().Msg("missing user_id parameter")
		return connector.NotTriggered()
	}
	if c.deps.Watermarks == nil {
		log.Warn().Msg("no watermark cache configured")
		return connector.NotTriggered()
	}

	var page struct {
		Items []struct {
			ID           string   `json:"id"`
			Name         string   `json:"name"`
			Description  string   `json:"description"`
			ExternalURLs external `json:"external_urls"`
			Images       []image  `json:"images"`
			Owner        struct {
				DisplayName string `json:"display_name"`
			} `json:"owner"`
			Tracks struct {
				Total int `json:"total"`
			} `json:"tracks"`
		} `json:"items"`
	}
	if !c.get(ctx, log, "/users/"+url.PathEscape(owner)+"/playlists", map[string]string{"limit": "50"}, &page) {
		return connector.NotTriggered()
	}

	key := connector.WatermarkKey(Name, req.UserID, req.AreaID, "playlists", owner)
	raw, found, err := c.deps.Watermarks.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("watermark cache unavailable")
		return connector.NotTriggered()
	}
	var known []string
	if found {
		_ = json.Unmarshal([]byte(raw), &known)
	}

	ids := make([]string, 0, len(page.Items))
	var fresh []any
	for _, p := range page.Items {
		ids = append(ids, p.ID)
		if !found || slices.Contains(known, p.ID) {
			continue
		}
		item := map[string]any{
			"id":           p.ID,
			"name":         p.Name,
			"description":  p.Description,
			"tracks_count": p.Tracks.Total,
			"url":          p.ExternalURLs.Spotify,
		}
		if len(p.Images) > 0 {
			item["image"] = p.Images[0].URL
		}
		fresh = append(fresh, item)
	}

	// keep ids that scrolled off the first page so they never count as new
	for _, id := range known {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	buf, _ := json.Marshal(ids)
	if err := c.deps.Watermarks.Set(ctx, key, string(buf), baselineTTL); err != nil {
		log.Warn().Err(err).Msg("could not store known playlists")
		return connector.NotTriggered()
	}
	if !found {
		log.Info().Str("owner", owner).Int("playlists", len(ids)).Msg("baseline recorded")
		return connector.NotTriggered()
	}
	if len(fresh) == 0 {
		return connector.NotTriggered()
	}

	display := owner
	if n := page.Items[0].Owner.DisplayName; n != "" {
		display = n
	}
	return connector.Fire(Name, connector.Payload{"data": map[string]any{
		"user_id":       owner,
		"user_name":     display,
		"new_playlists": fresh,
		"total_new":     len(fresh),
		"message":       fmt.Sprintf("%d nouvelle(s) playlist(s) créée(s) par %s!", len(fresh), display),
	}})
}
