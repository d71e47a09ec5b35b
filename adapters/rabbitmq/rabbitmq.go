package rabbitmq

import (
	"context"

	"github.com/next-trace/scg-comms-stack/adapters/internal/broker"
	"github.com/next-trace/scg-comms-stack/contract/comms"
	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	Client = broker.Client
	Dialer = broker.Dialer
	Hooks  = broker.Hooks
)

// Channel is the part of *amqp.Channel the client uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	Close() error
}

// Endpoint implements comms.Endpoint over an AMQP channel.
type Endpoint struct{ *broker.Endpoint }

var _ comms.Endpoint = (*Endpoint)(nil)

func New(dial Dialer) *Endpoint { return &Endpoint{broker.New("rabbitmq", dial)} }

type channelClient struct {
	ch       Channel
	exchange string
	queue    string
	onClose  func() error
}

// NewChannelClient publishes to exchange and binds queue on Subscribe.
// onClose runs after the channel is closed; it may be nil.
func NewChannelClient(ch Channel, exchange, queue string, onClose func() error) Client {
	return &channelClient{ch: ch, exchange: exchange, queue: queue, onClose: onClose}
}

func (c *channelClient) Publish(ctx context.Context, subject string, data []byte) error {
	return c.ch.PublishWithContext(ctx, c.exchange, subject, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Transient,
		Body:         data,
	})
}

func (c *channelClient) Subscribe(subject string) (func() error, error) {
	if err := c.ch.QueueBind(c.queue, subject, c.exchange, false, nil); err != nil {
		return nil, err
	}

	return func() error { return c.ch.QueueUnbind(c.queue, subject, c.exchange, nil) }, nil
}

func (c *channelClient) Close() error {
	err := c.ch.Close()

	if c.onClose != nil {
		if cerr := c.onClose(); err == nil {
			err = cerr
		}
	}

	return err
}
