package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store/sqlite"
)

type stubConnector struct {
	connector.NoTriggers
	d connector.Descriptor
}

func (s stubConnector) Describe() connector.Descriptor { return s.d }
func (s stubConnector) ExecuteEffect(context.Context, connector.EffectRequest) connector.EffectResult {
	return connector.Succeeded("ok", nil)
}

const small = `
services:
  - name: Timer
    auth_type: none
    actions:
      - identifier: timer_every_hour
        name: Every hour
  - name: Discord
    auth_type: webhook
    reactions:
      - identifier: send_message
        fields:
          - {name: webhook_url, type: url, label: Webhook URL}
`

func TestLoad_EmbeddedDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, c.Services)

	names := map[string]bool{}
	for _, s := range c.Services {
		names[s.Name] = true
	}
	for _, want := range []string{"Timer", "GitHub", "Discord", "Webhook", "Kafka", "MQTT"} {
		assert.True(t, names[want], want)
	}
}

func TestParse_RejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
services:
  - name: Timer
    actions:
      - identifier: timer_every_hour
      - identifier: timer_every_hour
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = Parse([]byte("services:\n  - name: A\n  - name: A\n"))
	require.Error(t, err)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte("services:\n  - name: A\n    colour: red\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c, err := Parse([]byte(small))
	require.NoError(t, err)

	reg, err := connector.NewRegistry(
		stubConnector{d: connector.Descriptor{Name: "Timer", Triggers: []string{"timer_every_hour"}}},
		stubConnector{d: connector.Descriptor{Name: "Discord", Effects: []string{"send_message"}}},
	)
	require.NoError(t, err)
	require.NoError(t, c.Validate(reg))

	partial, err := connector.NewRegistry(
		stubConnector{d: connector.Descriptor{Name: "Timer", Triggers: []string{"timer_every_day"}}},
	)
	require.NoError(t, err)
	err = c.Validate(partial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"timer_every_hour"`)
	assert.Contains(t, err.Error(), `service "Discord" has no connector`)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.OpenStore(ctx, filepath.Join(t.TempDir(), "area.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	c, err := Parse([]byte(small))
	require.NoError(t, err)

	svcs, caps, err := c.Seed(ctx, st.Catalog())
	require.NoError(t, err)
	assert.Equal(t, 2, svcs)
	assert.Equal(t, 2, caps)

	// Seeding twice is an upsert.
	_, _, err = c.Seed(ctx, st.Catalog())
	require.NoError(t, err)

	got, err := st.Catalog().GetCapability(ctx, model.CapabilityID("Discord", model.KindReaction, "send_message"))
	require.NoError(t, err)
	assert.Equal(t, "send_message", got.Identifier)
	assert.Equal(t, "send_message", got.Name)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "webhook_url", got.Fields[0].Name)

	all, err := st.Catalog().ListCapabilities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
