// Package discord posts messages through Discord incoming webhooks.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name         = "Discord"
	SendMessage  = "send_message"
	DiscordAlias = "discord_send_message"

	defaultUsername = "AREA Bot"
	maxContent      = 2000
)

type Connector struct {
	connector.NoTriggers
	deps connector.Deps
	http *connector.HTTP
	log  zerolog.Logger
}

func New(deps connector.Deps) *Connector {
	return &Connector{
		deps: deps,
		http: connector.NewHTTP(Name, deps.HTTP, deps.Log).WithTimeout(15 * time.Second),
		log:  deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "webhook",
		Description: "Send messages to a channel webhook",
		FirstRun:    connector.FireOnFirstRun,
		Effects:     []string{SendMessage, DiscordAlias},
	}
}

func (c *Connector) ExecuteEffect(ctx context.Context, req connector.EffectRequest) connector.EffectResult {
	if req.Effect != SendMessage && req.Effect != DiscordAlias {
		return connector.UnsupportedEffect(Name, req.Effect)
	}
	hook := req.Params.String("webhook_url")
	if hook == "" {
		return connector.Failed("Webhook URL is required for Discord reaction", nil)
	}
	if u, err := url.Parse(hook); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return connector.Failed("Webhook URL is invalid", err)
	}

	username := req.Params.String("username")
	if username == "" {
		username = defaultUsername
	}
	body := map[string]any{"username": username}
	if avatar := req.Params.String("avatar_url"); avatar != "" {
		body["avatar_url"] = avatar
	}
	content := req.Params.String("message", "content")
	if content == "" && req.Params["embeds"] == nil {
		content = req.TriggerData.Message()
	}
	if content != "" {
		body["content"] = clip(content, maxContent)
	}
	if embeds, ok := req.Params["embeds"].([]any); ok && len(embeds) > 0 {
		body["embeds"] = embeds
	}
	if body["content"] == nil && body["embeds"] == nil {
		return connector.Failed("Nothing to send: message and embeds are empty", nil)
	}

	res := c.http.Do(ctx, connector.Request{Method: http.MethodPost, URL: hook, Body: body})
	if res.Err != nil {
		msg := fmt.Sprintf("Failed to send to Discord: HTTP %d", res.Err.Status)
		if res.Err.Status == 0 {
			msg = "Failed to send to Discord: " + res.Err.Error()
		}
		var detail struct {
			Message string          `json:"message"`
			Embeds  json.RawMessage `json:"embeds"`
		}
		if json.Unmarshal(res.Body, &detail) == nil {
			if detail.Message != "" {
				msg += " - " + detail.Message
			}
			if len(detail.Embeds) > 0 {
				msg += " (invalid embeds)"
			}
		}
		c.log.Warn().Err(res.Err).Msg("discord webhook failed")
		return connector.Failed(msg, res.Err)
	}
	return connector.Succeeded("Message sent to Discord successfully", map[string]any{
		"status":    res.Status,
		"timestamp": c.deps.Clock().Format("2006-01-02 15:04:05"),
	})
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
