package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
)

func newTelegram(url, token string) *Connector {
	return New(connectortest.Deps(connectortest.NewClock(time.Now())), Options{BotToken: token, BaseURL: url})
}

func TestSendMessageAndPhoto(t *testing.T) {
	var paths []string
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, b)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()
	tg := newTelegram(srv.URL, "123:abc")

	res := tg.ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendMessage, Params: connector.Params{"chat_id": 42, "message": "<b>hi</b>"},
	})
	require.True(t, res.Success, res.Message)
	assert.EqualValues(t, 7, res.Data["message_id"])

	res = tg.ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendPhoto, Params: connector.Params{"chat_id": "42", "photo_url": "https://img", "caption": "c"},
	})
	require.True(t, res.Success, res.Message)

	assert.Equal(t, []string{"/bot123:abc/sendMessage", "/bot123:abc/sendPhoto"}, paths)
	assert.Equal(t, "42", bodies[0]["chat_id"])
	assert.Equal(t, "HTML", bodies[0]["parse_mode"])
	assert.Equal(t, "https://img", bodies[1]["photo"])
}

func TestMissingConfiguration(t *testing.T) {
	tg := newTelegram("http://127.0.0.1:1", "")
	res := tg.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: SendMessage, Params: connector.Params{"chat_id": "1"}})
	assert.False(t, res.Success)
	assert.Equal(t, "Configuration Telegram manquante", res.Message)

	tg = newTelegram("http://127.0.0.1:1", "t")
	res = tg.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: SendPhoto, Params: connector.Params{"chat_id": "1"}})
	assert.False(t, res.Success)
	assert.False(t, tg.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: "x"}).Success)
}

func TestAPIErrorDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()
	res := newTelegram(srv.URL, "t").ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendMessage, Params: connector.Params{"chat_id": "1", "message": "m"},
	})
	assert.False(t, res.Success)
	assert.Equal(t, "Erreur Telegram API: Bad Request: chat not found", res.Message)
}
