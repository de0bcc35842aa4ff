package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
)

type captured struct {
	from    string
	to      []string
	subject string
	body    string
}

func newEmail(t *testing.T, sent *captured, err error) *Connector {
	deps := connectortest.Deps(connectortest.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)))
	return New(deps, Options{Host: "smtp.example.com", From: "AREA <area@example.com>"}).
		WithSender(func(_ context.Context, msg *gomail.Msg) error {
			var gerr error
			sent.from, gerr = msg.GetSender(false)
			assert.NoError(t, gerr)
			sent.to, gerr = msg.GetRecipients()
			assert.NoError(t, gerr)
			if s := msg.GetGenHeader(gomail.HeaderSubject); len(s) > 0 {
				sent.subject = s[0]
			}
			for _, p := range msg.GetParts() {
				b, perr := p.GetContent()
				assert.NoError(t, perr)
				sent.body += string(b)
			}
			return err
		})
}

func TestSendEmail(t *testing.T) {
	var sent captured
	res := newEmail(t, &sent, nil).ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect: SendEmail,
		Params: connector.Params{"to_email": "bob@example.com, Carol <carol@example.com>", "subject": "New stars", "body": "line 1\r\nline 2"},
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "area@example.com", sent.from)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, sent.to)
	assert.Equal(t, "New stars", sent.subject)
	assert.Equal(t, "line 1\nline 2", sent.body)
	assert.Equal(t, 2, res.Data["recipients"])
}

func TestBodyFallsBackToTriggerMessage(t *testing.T) {
	var sent captured
	res := newEmail(t, &sent, nil).ExecuteEffect(context.Background(), connector.EffectRequest{
		Effect:      SendEmail,
		Params:      connector.Params{"to": "bob@example.com"},
		TriggerData: connector.Payload{"message": "It is raining"},
	})
	require.True(t, res.Success)
	assert.Equal(t, "Notification AREA", sent.subject)
	assert.Equal(t, "It is raining", sent.body)
}

func TestFailures(t *testing.T) {
	var sent captured
	c := newEmail(t, &sent, errors.New("550 mailbox unavailable"))
	res := c.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: SendEmail, Params: connector.Params{"to": "bob@example.com"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "550")

	res = c.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: SendEmail, Params: connector.Params{"to": "not-an-address"}})
	assert.False(t, res.Success)

	unconfigured := New(connectortest.Deps(connectortest.NewClock(time.Now())), Options{})
	res = unconfigured.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: SendEmail, Params: connector.Params{"to": "bob@example.com"}})
	assert.Equal(t, "SMTP is not configured", res.Message)
	assert.False(t, unconfigured.ExecuteEffect(context.Background(), connector.EffectRequest{Effect: "fax"}).Success)
}

func TestSecurityDefaults(t *testing.T) {
	deps := connectortest.Deps(connectortest.NewClock(time.Now()))
	assert.Equal(t, SecurityStartTLS, New(deps, Options{Host: "h"}).opts.Security)
	assert.Equal(t, 587, New(deps, Options{Host: "h"}).opts.Port)
	assert.Equal(t, SecurityTLS, New(deps, Options{Host: "h", Port: 465}).opts.Security)
	assert.Equal(t, SecurityNone, New(deps, Options{Host: "h", Port: 25, Security: SecurityNone}).opts.Security)

	for _, sec := range []string{SecurityStartTLS, SecurityTLS, SecurityNone} {
		c := New(deps, Options{Host: "smtp.example.com", Port: 2525, Security: sec, Username: "u", Password: "p"})
		_, err := gomail.NewClient(c.opts.Host, c.clientOptions()...)
		assert.NoError(t, err, sec)
	}
}
