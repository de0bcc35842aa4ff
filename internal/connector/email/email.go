// Package email delivers plain-text notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name      = "Email"
	SendEmail = "send_email"
)

// Transport security modes.
const (
	SecurityStartTLS = "starttls" // upgrade when the server offers STARTTLS
	SecurityTLS      = "tls"      // implicit TLS, usually port 465
	SecurityNone     = "none"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Security is one of the Security* modes. Empty selects implicit TLS on
	// port 465 and STARTTLS elsewhere.
	Security string
	Timeout  time.Duration
}

// Sender delivers one composed message. The default dials the configured server.
type Sender func(ctx context.Context, msg *gomail.Msg) error

type Connector struct {
	connector.NoTriggers
	deps connector.Deps
	opts Options
	send Sender
	log  zerolog.Logger
}

func New(deps connector.Deps, opts Options) *Connector {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Security == "" {
		opts.Security = SecurityStartTLS
		if opts.Port == 465 {
			opts.Security = SecurityTLS
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = deps.HTTP.Timeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	c := &Connector{deps: deps, opts: opts, log: deps.Logger(Name)}
	c.send = c.smtpSend
	return c
}

// WithSender replaces the SMTP transport.
func (c *Connector) WithSender(s Sender) *Connector {
	c.send = s
	return c
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "smtp",
		Description: "Send an email",
		FirstRun:    connector.FireOnFirstRun,
		Effects:     []string{SendEmail},
	}
}

func (c *Connector) ExecuteEffect(ctx context.Context, req connector.EffectRequest) connector.EffectResult {
	if req.Effect != SendEmail {
		return connector.UnsupportedEffect(Name, req.Effect)
	}
	if c.opts.Host == "" {
		return connector.Failed("SMTP is not configured", nil)
	}
	rcpt := req.Params.String("to_email", "to", "email")
	addrs, err := mail.ParseAddressList(rcpt)
	if err != nil || len(addrs) == 0 {
		return connector.Failed("Invalid recipient address", err)
	}
	from, err := mail.ParseAddress(c.opts.From)
	if err != nil {
		return connector.Failed("Invalid sender address", err)
	}
	subject := req.Params.String("subject")
	if subject == "" {
		subject = "Notification AREA"
	}
	body := req.Params.String("body", "message")
	if body == "" {
		body = req.TriggerData.Message()
	}

	msg, err := compose(from, addrs, subject, body, c.deps.Clock())
	if err != nil {
		return connector.Failed("Invalid email", err)
	}
	to := make([]string, len(addrs))
	for i, a := range addrs {
		to[i] = a.Address
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if err := c.send(ctx, msg); err != nil {
		c.log.Warn().Err(err).Int("recipients", len(to)).Msg("smtp delivery failed")
		return connector.Failed("Email delivery failed", err)
	}
	return connector.Succeeded("Email envoyé à "+strings.Join(to, ", "), map[string]any{"recipients": len(to)})
}

func compose(from *mail.Address, to []*mail.Address, subject, body string, now time.Time) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(from.Name, from.Address); err != nil {
		return nil, err
	}
	for _, a := range to {
		if err := m.AddToFormat(a.Name, a.Address); err != nil {
			return nil, err
		}
	}
	m.Subject(subject)
	m.SetDateWithValue(now)
	m.SetBodyString(gomail.TypeTextPlain, strings.ReplaceAll(body, "\r\n", "\n"))
	return m, nil
}

func (c *Connector) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(c.opts.Port),
		gomail.WithTimeout(c.opts.Timeout),
		gomail.WithTLSConfig(&tls.Config{ServerName: c.opts.Host, MinVersion: tls.VersionTLS12}),
	}
	switch c.opts.Security {
	case SecurityTLS:
		opts = append(opts, gomail.WithSSL())
	case SecurityNone:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if c.opts.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(c.opts.Username),
			gomail.WithPassword(c.opts.Password),
		)
	}
	return opts
}

func (c *Connector) smtpSend(ctx context.Context, msg *gomail.Msg) error {
	client, err := gomail.NewClient(c.opts.Host, c.clientOptions()...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
