package templating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	vars := Variables{"name": "World", "n": "3"}

	assert.Equal(t, "Hello World", Render("Hello {{name}}", vars))
	assert.Equal(t, "{{missing}}", Render("{{missing}}", Variables{}))
	assert.Equal(t, "{{missing}} World", Render("{{missing}} {{name}}", vars))
	assert.Equal(t, "3/3", Render("{{n}}/{{n}}", vars))
	assert.Equal(t, "{{a World", Render("{{a {{name}}", vars))
	assert.Equal(t, "open {{name", Render("open {{name", vars))
	assert.Equal(t, "{name}", Render("{name}", vars))
}

func TestRender_IdentityWithoutPlaceholders(t *testing.T) {
	vars := Variables{"name": "World"}
	for _, s := range []string{"", "plain", "a } b { c", "{single}", "line\nbreak", "}}{{"} {
		assert.Equal(t, s, Render(s, vars))
	}
}

func TestRenderDeep(t *testing.T) {
	vars := Variables{"user": "alice", "repo": "x/y"}
	in := map[string]any{
		"content": "{{user}} starred",
		"embeds": []any{
			map[string]any{"title": "{{repo}}", "color": float64(5814783), "fields": []any{map[string]any{"value": "{{user}}"}}},
		},
		"tags":  []string{"{{repo}}", "static"},
		"count": 2,
	}

	out := RenderDeep(in, vars).(map[string]any)
	assert.Equal(t, "alice starred", out["content"])
	embed := out["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "x/y", embed["title"])
	assert.Equal(t, float64(5814783), embed["color"])
	assert.Equal(t, "alice", embed["fields"].([]any)[0].(map[string]any)["value"])
	assert.Equal(t, []string{"x/y", "static"}, out["tags"])
	assert.Equal(t, 2, out["count"])

	// input untouched
	assert.Equal(t, "{{user}} starred", in["content"])
}

func TestBuildVariables_FlattenOrder(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 7, 0, 0, time.UTC)
	vars := BuildVariables(map[string]any{
		"message": "outer",
		"repo":    "x/y",
		"nothing": nil,
		"nested":  map[string]any{"skip": "me"},
		"count":   float64(2),
		"ok":      true,
		"data":    map[string]any{"message": "inner", "city": "Paris"},
	}, now)

	assert.Equal(t, "inner", vars["message"], "data fields win over outer fields")
	assert.Equal(t, "x/y", vars["repo"])
	assert.Equal(t, "Paris", vars["city"])
	assert.Equal(t, "2", vars["count"])
	assert.Equal(t, "true", vars["ok"])
	assert.NotContains(t, vars, "nothing")
	assert.NotContains(t, vars, "nested")
	assert.NotContains(t, vars, "skip")
	assert.Equal(t, "2026-05-04 09:07", vars["timestamp"])
	assert.Equal(t, "09:07", vars["current_time"])
	assert.Equal(t, "2026-05-04", vars["current_date"])
	assert.NotContains(t, vars, "hours_ago")

	assert.Equal(t, "{{nothing}}", Render("{{nothing}}", vars))
}

func TestStarsScenario(t *testing.T) {
	now := time.Now()
	payload := map[string]any{
		"stars": []any{map[string]any{"user": "alice", "starred_at": now.Add(-45 * time.Minute).UTC().Format(time.RFC3339)}},
		"repo":  "x/y",
	}
	out := Render("{{user}} starred {{repo}} {{hours_ago}} ago", BuildVariables(payload, now))
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "x/y")
	assert.Contains(t, out, "minutes")
	assert.NotContains(t, out, "{{")
}

func TestEventTime_Shapes(t *testing.T) {
	ts := "2026-01-02T03:04:05Z"
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, payload := range map[string]map[string]any{
		"top":        {"starred_at": ts},
		"data":       {"data": map[string]any{"starred_at": ts}},
		"data stars": {"data": map[string]any{"stars": []any{map[string]any{"starred_at": ts}}}},
		"typed list": {"stars": []map[string]any{{"starred_at": ts}}},
	} {
		got, ok := EventTime(payload)
		require.True(t, ok, name)
		assert.True(t, want.Equal(got), name)
	}
	_, ok := EventTime(map[string]any{"starred_at": "not a time"})
	assert.False(t, ok)
}

func TestElapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "3 heures", Elapsed(now.Add(-3*time.Hour-10*time.Minute), now))
	assert.Equal(t, "5 minutes", Elapsed(now.Add(-5*time.Minute), now))
	assert.Equal(t, "quelques minutes", Elapsed(now.Add(-30*time.Second), now))
	assert.Equal(t, "quelques minutes", Elapsed(now.Add(time.Minute), now))
}

func TestNormalizeNewlines(t *testing.T) {
	in := "  Hello \\\\n\\n world  \n\n\n\nbye\r\n"
	got := NormalizeNewlines(in)
	assert.Equal(t, "Hello\n\nworld\n\nbye\n", got)
}

func TestNormalizeNewlines_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		`a\nb`,
		`a\\nb`,
		`a\\\nb`,
		"a\n\n\n b \n",
		"x\\\n\\n\n   \n\ty",
		`trailing\`,
	}
	for _, in := range inputs {
		once := NormalizeNewlines(in)
		assert.Equal(t, once, NormalizeNewlines(once), "input %q", in)
	}
}
