package connector

import (
	"time"

	"github.com/rs/zerolog"
)

// Deps bundles the shared collaborators handed to every connector constructor.
type Deps struct {
	HTTP       HTTPConfig
	Log        zerolog.Logger
	Tokens     *TokenCache
	Watermarks WatermarkCache
	Users      UserTokens
	Now        func() time.Time
	Location   *time.Location
}

// Clock returns the current time in the configured location.
func (d Deps) Clock() time.Time {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// Logger returns the base logger tagged with the connector name.
func (d Deps) Logger(service string) zerolog.Logger {
	return d.Log.With().Str("connector", service).Logger()
}
