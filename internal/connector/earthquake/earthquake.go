// Package earthquake polls the USGS event feed for significant earthquakes.
//
// First-run policy: SeedOnlyOnFirstRun. The feed is anchored on the id of
// the most recent event seen, kept in the watermark cache for six hours.
package earthquake

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name      = "Earthquake"
	Magnitude = "earthquake_magnitude"
	Detected  = "earthquake_detected"

	DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1"
	seenTTL        = 6 * time.Hour
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
		Description: "USGS earthquakes above a magnitude",
		FirstRun:    connector.SeedOnlyOnFirstRun,
		Triggers:    []string{Magnitude, Detected},
	}
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   float64 `json:"mag"`
		Place string  `json:"place"`
		Time  int64   `json:"time"`
		URL   string  `json:"url"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Logger()
	if req.Trigger != Magnitude && req.Trigger != Detected {
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
	if c.deps.Watermarks == nil {
		log.Warn().Msg("no watermark cache configured")
		return connector.NotTriggered()
	}
	minMag := req.Params.Float("min_magnitude", 5.0)
	now := c.deps.Clock()

	start := now.Add(-time.Hour)
	if req.LastExecutedAt != nil {
		start = *req.LastExecutedAt
	}
	var feed struct {
		Features []feature `json:"features"`
	}
	query := map[string]string{
		"format":       "geojson",
		"starttime":    start.UTC().Format(time.RFC3339),
		"minmagnitude": strconv.FormatFloat(minMag, 'f', -1, 64),
		"orderby":      "time",
		"limit":        "10",
	}
	if f := c.http.Get(ctx, c.baseURL+"/query", query, nil).Decode(&feed); f != nil {
		log.Warn().Err(f).Msg("usgs request failed")
		return connector.NotTriggered()
	}
	if len(feed.Features) == 0 {
		return connector.NotTriggered()
	}

	latest := feed.Features[0]
	key := connector.WatermarkKey(Name, req.UserID, req.AreaID, strconv.FormatFloat(minMag, 'f', -1, 64))
	previous, seen, err := c.deps.Watermarks.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("watermark cache unavailable")
		return connector.NotTriggered()
	}
	if err := c.deps.Watermarks.Set(ctx, key, latest.ID, seenTTL); err != nil {
		log.Warn().Err(err).Msg("could not store last seen event")
		return connector.NotTriggered()
	}
	if !seen && req.LastExecutedAt == nil {
		log.Info().Str("event_id", latest.ID).Msg("baseline recorded")
		return connector.NotTriggered()
	}
	if latest.ID == previous {
		return connector.NotTriggered()
	}

	p := latest.Properties
	place := p.Place
	if place == "" {
		place = "Unknown location"
	}
	at := now
	if p.Time > 0 {
		at = time.UnixMilli(p.Time).In(now.Location())
	}
	coord := func(i int) float64 {
		if i < len(latest.Geometry.Coordinates) {
			return latest.Geometry.Coordinates[i]
		}
		return 0
	}
	return connector.Fire(Name, connector.Payload{
		"earthquake_id": latest.ID,
		"magnitude":     p.Mag,
		"place":         place,
		"time":          at.Format(time.RFC3339),
		"longitude":     coord(0),
		"latitude":      coord(1),
		"depth_km":      coord(2),
		"url":           p.URL,
		"message":       fmt.Sprintf("Séisme détecté ! Magnitude %g - %s", p.Mag, place),
	})
}
