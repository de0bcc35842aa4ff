package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
)

var renderNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestRenderParams_StarsScenario(t *testing.T) {
	payload := connector.Payload{
		"repo":    "x/y",
		"message": "new star",
		"stars": []any{
			map[string]any{"user": "alice", "starred_at": renderNow.Add(-45 * time.Minute).Format(time.RFC3339)},
		},
	}
	got := renderParams(map[string]any{"message": "{{user}} starred {{repo}} {{hours_ago}} ago"}, payload, renderNow)

	msg, ok := got["message"].(string)
	require.True(t, ok)
	assert.Contains(t, msg, "alice")
	assert.Contains(t, msg, "x/y")
	assert.Contains(t, msg, "minutes")
	assert.NotContains(t, msg, "{{")
}

func TestRenderParams_Shorthand(t *testing.T) {
	payload := connector.Payload{"message": "It is 10:00", "hour": 10}

	got := renderParams(map[string]any{"message": "Alert: {message}"}, payload, renderNow)
	assert.Equal(t, "Alert: It is 10:00", got["message"])

	got = renderParams(map[string]any{"message": "{message} / {{message}} / {{hour}}h"}, payload, renderNow)
	assert.Equal(t, "It is 10:00 / It is 10:00 / 10h", got["message"])
}

func TestRenderParams_MissingMessageUsesTriggerVerbatim(t *testing.T) {
	payload := connector.Payload{"message": "literal {{not_a_var}}"}

	got := renderParams(map[string]any{"chat_id": "42"}, payload, renderNow)
	assert.Equal(t, "literal {{not_a_var}}", got["message"])
	assert.Equal(t, "42", got["chat_id"])

	got = renderParams(nil, connector.Payload{}, renderNow)
	_, present := got["message"]
	assert.False(t, present)
}

func TestRenderParams_EmptyConfiguredMessageIsKept(t *testing.T) {
	got := renderParams(map[string]any{"message": ""}, connector.Payload{"message": "x"}, renderNow)
	assert.Equal(t, "", got["message"])
}

func TestRenderParams_NestedAndNewlines(t *testing.T) {
	payload := connector.Payload{
		"message": "m",
		"data":    map[string]any{"title": "Deploy", "count": 3},
	}
	reaction := map[string]any{
		"message": "Line one\\n\\n\\n\\nLine {{count}}  ",
		"embeds": []any{
			map[string]any{"title": "{{title}}", "fields": []any{map[string]any{"value": "{{missing}}"}}},
		},
		"retries": 2,
	}

	got := renderParams(reaction, payload, renderNow)
	assert.Equal(t, "Line one\n\nLine 3", got["message"])
	assert.Equal(t, 2, got["retries"])

	embeds, ok := got["embeds"].([]any)
	require.True(t, ok)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Deploy", embed["title"])
	assert.Equal(t, "{{missing}}", embed["fields"].([]any)[0].(map[string]any)["value"])

	// Input untouched.
	assert.Equal(t, "{{title}}", reaction["embeds"].([]any)[0].(map[string]any)["title"])
}

func TestHasShorthand(t *testing.T) {
	assert.True(t, hasShorthand("a {message} b"))
	assert.False(t, hasShorthand("a {{message}} b"))
	assert.True(t, hasShorthand("{{message}}{message}"))
	assert.False(t, hasShorthand("plain"))
}
