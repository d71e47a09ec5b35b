package rabbitmq

import (
	"context"
	"fmt"
	"time"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Concrete AMQP connection-backed dialer and constructor.

const exchangeKind = "topic"

type Config struct {
	URL         string
	Exchange    string
	ConnTimeout time.Duration
}

// Dial returns a Dialer that connects, declares the exchange and a private queue, and consumes from it.
func Dial(cfg Config) Dialer {
	return func(ctx context.Context, h Hooks) (Client, error) {
		timeout := cfg.ConnTimeout
		if dl, ok := ctx.Deadline(); ok && (timeout <= 0 || time.Until(dl) < timeout) {
			timeout = time.Until(dl)
		}

		conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
			Locale:     "en_US",
			Properties: amqp.Table{"product": "scg-comms-stack"},
			Dial:       amqp.DefaultDial(timeout),
		})
		if err != nil {
			return nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()

			return nil, err
		}

		if err := ch.ExchangeDeclare(cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
			_ = conn.Close()

			return nil, err
		}

		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			_ = conn.Close()

			return nil, err
		}

		deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
		if err != nil {
			_ = conn.Close()

			return nil, err
		}

		go func() {
			for d := range deliveries {
				h.Deliver(d.RoutingKey, d.Body)
			}
		}()

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))

		go func() {
			// nil means a graceful Close from our side
			if amqpErr, ok := <-notify; ok && amqpErr != nil {
				h.Lost(amqpErr)
			}
		}()

		return NewChannelClient(ch, cfg.Exchange, q.Name, conn.Close), nil
	}
}

// NewWithAMQPConn validates cfg and returns an endpoint that connects on Open.
func NewWithAMQPConn(cfg Config) (*Endpoint, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrConfiguration)
	}

	if cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange required: %w", berr.ErrConfiguration)
	}

	return New(Dial(cfg)), nil
}
