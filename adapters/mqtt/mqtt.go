// Package mqtt carries frames over an MQTT broker with the Eclipse Paho client.
// Stack subjects map to MQTT topics by turning dots into slashes.
package mqtt

import (
	"context"
	"errors"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/next-trace/scg-comms-stack/adapters/internal/broker"
	"github.com/next-trace/scg-comms-stack/contract/comms"
)

type (
	Client = broker.Client
	Dialer = broker.Dialer
	Hooks  = broker.Hooks
)

// defaultWait bounds publish and subscribe acknowledgements.
const defaultWait = 5 * time.Second

var errTokenTimeout = errors.New("mqtt: no acknowledgement in time")

// PahoClient is the part of mqtt.Client the endpoint uses.
type PahoClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Endpoint implements comms.Endpoint over a Paho client.
type Endpoint struct{ *broker.Endpoint }

var _ comms.Endpoint = (*Endpoint)(nil)

func New(dial Dialer) *Endpoint { return &Endpoint{broker.New("mqtt", dial)} }

// TopicFor maps a stack subject to an MQTT topic.
func TopicFor(subject string) string { return strings.ReplaceAll(subject, ".", "/") }

// SubjectFor maps an MQTT topic back to a stack subject.
func SubjectFor(topic string) string { return strings.ReplaceAll(topic, "/", ".") }

type pahoClient struct {
	cl      PahoClient
	qos     byte
	wait    time.Duration
	deliver func(subject string, data []byte)
}

// NewPahoClient wraps an already connected client. Messages go to deliver in the order Paho routes them.
func NewPahoClient(cl PahoClient, qos byte, deliver func(subject string, data []byte)) Client {
	return &pahoClient{cl: cl, qos: qos, wait: defaultWait, deliver: deliver}
}

func await(ctx context.Context, tok pahomqtt.Token, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTokenTimeout
	}
}

func (c *pahoClient) Publish(ctx context.Context, subject string, data []byte) error {
	return await(ctx, c.cl.Publish(TopicFor(subject), c.qos, false, data), c.wait)
}

func (c *pahoClient) Subscribe(subject string) (func() error, error) {
	topic := TopicFor(subject)

	handler := func(_ pahomqtt.Client, m pahomqtt.Message) {
		c.deliver(SubjectFor(m.Topic()), m.Payload())
	}

	if err := await(context.Background(), c.cl.Subscribe(topic, c.qos, handler), c.wait); err != nil {
		return nil, err
	}

	return func() error {
		return await(context.Background(), c.cl.Unsubscribe(topic), c.wait)
	}, nil
}

func (c *pahoClient) Close() error {
	c.cl.Disconnect(250)

	return nil
}
