// Package telegram sends messages and photos through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name        = "Telegram"
	SendMessage = "telegram_send_message"
	SendPhoto   = "telegram_send_photo"

	DefaultBaseURL = "https://api.telegram.org"
	defaultMessage = "Notification AREA Bot"
)

type Options struct {
	BotToken string
	BaseURL  string
}

type Connector struct {
	connector.NoTriggers
	opts Options
	http *connector.HTTP
	log  zerolog.Logger
}

func New(deps connector.Deps, opts Options) *Connector {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Connector{
		opts: opts,
		http: connector.NewHTTP(Name, deps.HTTP, deps.Log),
		log:  deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "bot_token",
		Description: "Bot messages and photos",
		FirstRun:    connector.FireOnFirstRun,
		Effects:     []string{SendMessage, SendPhoto},
	}
}

func (c *Connector) ExecuteEffect(ctx context.Context, req connector.EffectRequest) connector.EffectResult {
	chatID := req.Params.String("chat_id")
	switch req.Effect {
	case SendMessage:
		if c.opts.BotToken == "" || chatID == "" {
			return connector.Failed("Configuration Telegram manquante", nil)
		}
		text := req.Params.String("message", "text")
		if text == "" {
			text = defaultMessage
		}
		return c.call(ctx, "sendMessage", map[string]any{
			"chat_id":                  chatID,
			"text":                     text,
			"parse_mode":               parseMode(req.Params),
			"disable_web_page_preview": req.Params.Bool("disable_preview", false),
		}, "Message Telegram envoyé")
	case SendPhoto:
		photo := req.Params.String("photo_url", "photo")
		if c.opts.BotToken == "" || chatID == "" || photo == "" {
			return connector.Failed("Paramètres manquants", nil)
		}
		return c.call(ctx, "sendPhoto", map[string]any{
			"chat_id":    chatID,
			"photo":      photo,
			"caption":    req.Params.String("caption"),
			"parse_mode": parseMode(req.Params),
		}, "Photo Telegram envoyée")
	default:
		return connector.UnsupportedEffect(Name, req.Effect)
	}
}

func (c *Connector) call(ctx context.Context, method string, body map[string]any, ok string) connector.EffectResult {
	res := c.http.Do(ctx, connector.Request{
		Method: http.MethodPost,
		URL:    c.opts.BaseURL + "/bot" + c.opts.BotToken + "/" + method,
		Body:   body,
	})
	var reply struct {
		OK          bool           `json:"ok"`
		Description string         `json:"description"`
		Result      map[string]any `json:"result"`
	}
	_ = json.Unmarshal(res.Body, &reply)
	if res.Err != nil {
		c.log.Warn().Err(res.Err).Str("method", method).Msg("telegram call failed")
		msg := "Erreur Telegram API"
		if reply.Description != "" {
			msg += ": " + reply.Description
		}
		return connector.Failed(msg, res.Err)
	}
	return connector.Succeeded(ok, reply.Result)
}

func parseMode(p connector.Params) string {
	if m := p.String("parse_mode"); m != "" {
		return m
	}
	return "HTML"
}
