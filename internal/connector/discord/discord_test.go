package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
)

func newDiscord() *Connector {
	return New(connectortest.Deps(connectortest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res := newDiscord().ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendMessage,
		Params: connector.Params{
			"webhook_url": srv.URL + "/api/webhooks/1/tok",
			"message":     "alice starred x/y",
			"embeds":      []any{map[string]any{"title": "x/y"}},
		},
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "AREA Bot", got["username"])
	assert.Equal(t, "alice starred x/y", got["content"])
	assert.Len(t, got["embeds"], 1)
}

func TestMissingWebhookMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	res := newDiscord().ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: DiscordAlias, Params: connector.Params{"message": "hi"},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Webhook URL is required")
	assert.Zero(t, calls.Load())

	res = newDiscord().ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendMessage, Params: connector.Params{"webhook_url": "not a url", "message": "hi"},
	})
	assert.False(t, res.Success)
}

func TestVendorErrorIsReportedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid Form Body","embeds":["0"]}`))
	}))
	defer srv.Close()

	res := newDiscord().ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendMessage, Params: connector.Params{"webhook_url": srv.URL, "message": "hi"},
	})
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to send to Discord: HTTP 400 - Invalid Form Body (invalid embeds)", res.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFallsBackToTriggerMessageAndClips(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	res := newDiscord().ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect:      SendMessage,
		Params:      connector.Params{"webhook_url": srv.URL},
		TriggerData: connector.Payload{"message": strings.Repeat("a", 2500)},
	})
	require.True(t, res.Success)
	assert.Len(t, []rune(got["content"].(string)), maxContent)
}

func TestDescribeAndUnsupported(t *testing.T) {
	d := newDiscord()
	assert.True(t, d.Describe().SupportsEffect(SendMessage))
	assert.False(t, d.CheckTrigger(context.Background(), connector.TriggerRequest{}).Fired())
	assert.False(t, d.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: "kick"}).Success)
}
