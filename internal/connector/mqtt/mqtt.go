// Package mqtt publishes reaction messages to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name    = "MQTT"
	Publish = "mqtt_publish"
)

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Publisher sends one message and reports broker acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	Close()
}

type Connector struct {
	connector.NoTriggers
	opts Options
	log  zerolog.Logger

	mu  sync.Mutex
	pub Publisher
}

func New(deps connector.Deps, opts Options) *Connector {
	if opts.ClientID == "" {
		opts.ClientID = "area-engine"
	}
	return &Connector{opts: opts, log: deps.Logger(Name)}
}

// WithPublisher replaces the broker client.
func (c *Connector) WithPublisher(p Publisher) *Connector {
	c.mu.Lock()
	c.pub = p
	c.mu.Unlock()
	return c
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "none",
		Description: "Publish to an MQTT topic",
		FirstRun:    connector.FireOnFirstRun,
		Effects:     []string{Publish},
	}
}

func (c *Connector) ExecuteEffect(ctx context.Context, req connector.EffectRequest) connector.EffectResult {
	if req.Effect != Publish {
		return connector.UnsupportedEffect(Name, req.Effect)
	}
	topic := req.Params.String("topic")
	if topic == "" {
		return connector.Failed("topic is required", nil)
	}
	qos := req.Params.Int("qos", 0)
	if qos < 0 || qos > 2 {
		return connector.Failed(fmt.Sprintf("invalid qos %d", qos), nil)
	}
	payload, err := encode(req)
	if err != nil {
		return connector.Failed("could not encode message", err)
	}

	pub, err := c.publisher()
	if err != nil {
		return connector.Failed("MQTT broker unavailable", err)
	}
	if err := pub.Publish(ctx, topic, byte(qos), req.Params.Bool("retained", false), payload); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		return connector.Failed("MQTT publish failed", err)
	}
	return connector.Succeeded("Published to "+topic, map[string]any{"topic": topic, "bytes": len(payload)})
}

// encode sends the message parameter verbatim, or the trigger payload as JSON.
func encode(req connector.EffectRequest) ([]byte, error) {
	if m := req.Params.String("message", "payload"); m != "" {
		return []byte(m), nil
	}
	return json.Marshal(req.TriggerData)
}

func (c *Connector) publisher() (Publisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub != nil {
		return c.pub, nil
	}
	if c.opts.Broker == "" {
		return nil, &connector.ConfigError{Service: Name, Reason: "AREA_MQTT_BROKER is not set"}
	}
	p, err := dial(c.opts, c.log)
	if err != nil {
		return nil, err
	}
	c.pub = p
	return p, nil
}

// Close disconnects from the broker.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub != nil {
		c.pub.Close()
		c.pub = nil
	}
	return nil
}

type pahoPublisher struct {
	client paho.Client
}

func dial(opts Options, log zerolog.Logger) (*pahoPublisher, error) {
	o := paho.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)
	o.SetConnectTimeout(10 * time.Second)
	o.Username = opts.Username
	o.Password = opts.Password
	o.AutoReconnect = true
	o.CleanSession = true
	o.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := paho.NewClient(o)
	t := client.Connect()
	if !t.WaitTimeout(15 * time.Second) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := t.Error(); err != nil {
		return nil, err
	}
	log.Info().Str("broker", opts.Broker).Msg("connected to mqtt broker")
	return &pahoPublisher{client: client}, nil
}

func (p *pahoPublisher) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	wait := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	t := p.client.Publish(topic, qos, retained, payload)
	if !t.WaitTimeout(wait) {
		return errors.New("mqtt publish timed out")
	}
	return t.Error()
}

func (p *pahoPublisher) Close() { p.client.Disconnect(250) }
