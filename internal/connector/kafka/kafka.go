// Package kafka publishes reaction messages to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name    = "Kafka"
	Publish = "kafka_publish"
)

// Writer is the subset of *kafka.Writer the connector uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Connector struct {
	connector.NoTriggers
	deps   connector.Deps
	writer Writer
	log    zerolog.Logger
}

// New builds the connector; with no brokers every publish fails as
// unconfigured.
func New(deps connector.Deps, brokers []string) *Connector {
	c := &Connector{deps: deps, log: deps.Logger(Name)}
	if len(brokers) > 0 {
		c.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
		}
	}
	return c
}

// WithWriter replaces the Kafka writer.
func (c *Connector) WithWriter(w Writer) *Connector {
	c.writer = w
	return c
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "none",
		Description: "Publish to a Kafka topic",
		FirstRun:    connector.FireOnFirstRun,
		Effects:     []string{Publish},
	}
}

func (c *Connector) ExecuteEffect(ctx context.Context, req connector.EffectRequest) connector.EffectResult {
	if req.Effect != Publish {
		return connector.UnsupportedEffect(Name, req.Effect)
	}
	if c.writer == nil {
		return connector.Failed("Kafka is not configured", &connector.ConfigError{Service: Name, Reason: "AREA_KAFKA_BROKERS is empty"})
	}
	topic := req.Params.String("topic")
	if topic == "" {
		return connector.Failed("topic is required", nil)
	}
	value := []byte(req.Params.String("message", "value"))
	if len(value) == 0 {
		b, err := json.Marshal(req.TriggerData)
		if err != nil {
			return connector.Failed("could not encode message", err)
		}
		value = b
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(req.Params.String("key")),
		Value: value,
		Time:  c.deps.Clock().UTC(),
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("kafka publish failed")
		return connector.Failed("Kafka publish failed", err)
	}
	return connector.Succeeded("Published to "+topic, map[string]any{"topic": topic, "bytes": len(value)})
}

// Close flushes and closes the writer.
func (c *Connector) Close() error {
	if c.writer == nil {
		return nil
	}
	return c.writer.Close()
}
