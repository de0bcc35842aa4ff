package factory

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/discord"
	"github.com/areahq/area-engine/internal/connector/earthquake"
	"github.com/areahq/area-engine/internal/connector/email"
	"github.com/areahq/area-engine/internal/connector/github"
	"github.com/areahq/area-engine/internal/connector/hackernews"
	"github.com/areahq/area-engine/internal/connector/kafka"
	"github.com/areahq/area-engine/internal/connector/mqtt"
	"github.com/areahq/area-engine/internal/connector/newsapi"
	"github.com/areahq/area-engine/internal/connector/quote"
	"github.com/areahq/area-engine/internal/connector/spotify"
	"github.com/areahq/area-engine/internal/connector/telegram"
	"github.com/areahq/area-engine/internal/connector/timer"
	"github.com/areahq/area-engine/internal/connector/twitch"
	"github.com/areahq/area-engine/internal/connector/weather"
	"github.com/areahq/area-engine/internal/connector/webhook"
	"github.com/areahq/area-engine/internal/connector/youtube"
	"github.com/areahq/area-engine/internal/credentials"
	"github.com/areahq/area-engine/internal/store"
)

// Connectors is the process-wide registry plus the connectors holding
// broker connections that must be closed on shutdown.
type Connectors struct {
	Registry *connector.Registry
	closers  []io.Closer
}

// Close releases broker connections.
func (c *Connectors) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewCredentials builds the per-user token source backed by the credential
// store, refreshing expired OAuth tokens transparently.
func NewCredentials(cfg *config.Config, log zerolog.Logger, st store.Store) *credentials.Manager {
	return credentials.NewManager(st.Credentials(), credentials.ClientsFromConfig(cfg), cfg.TokenSafetyMargin, log)
}

// NewDeps assembles the collaborators shared by every connector.
func NewDeps(cfg *config.Config, log zerolog.Logger, users connector.UserTokens, wm connector.WatermarkCache) (connector.Deps, error) {
	loc, err := cfg.Location()
	if err != nil {
		return connector.Deps{}, err
	}
	return connector.Deps{
		HTTP: connector.HTTPConfig{
			Timeout:     cfg.CallTimeout,
			Retries:     cfg.HTTPRetries,
			BaseBackoff: cfg.RetryBaseBackoff,
		},
		Log:        log,
		Tokens:     connector.NewTokenCache(cfg.TokenSafetyMargin),
		Watermarks: wm,
		Users:      users,
		Location:   loc,
	}, nil
}

// NewConnectors registers one long-lived instance of every connector.
func NewConnectors(cfg *config.Config, deps connector.Deps) (*Connectors, error) {
	mq := mqtt.New(deps, mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	})
	kf := kafka.New(deps, cfg.KafkaBrokers)

	reg, err := connector.NewRegistry(
		timer.New(deps),
		github.New(deps, ""),
		twitch.New(deps, twitch.Options{ClientID: cfg.Twitch.ClientID, ClientSecret: cfg.Twitch.ClientSecret}),
		spotify.New(deps, spotify.Options{ClientID: cfg.Spotify.ClientID, ClientSecret: cfg.Spotify.ClientSecret}),
		weather.New(deps, weather.Options{APIKey: cfg.WeatherAPIKey}),
		earthquake.New(deps, ""),
		hackernews.New(deps, ""),
		newsapi.New(deps, newsapi.Options{APIKey: cfg.NewsAPIKey}),
		youtube.New(deps, youtube.Options{APIKey: cfg.YouTubeAPIKey}),
		quote.New(deps, ""),
		discord.New(deps),
		telegram.New(deps, telegram.Options{BotToken: cfg.TelegramToken}),
		webhook.New(deps),
		email.New(deps, email.Options{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Security: cfg.SMTP.Security,
		}),
		mq,
		kf,
	)
	if err != nil {
		return nil, err
	}
	return &Connectors{Registry: reg, closers: []io.Closer{mq, kf}}, nil
}
