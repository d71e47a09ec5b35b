package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

// Concrete NATS connection-backed Client and constructor.

type Config struct {
	URL         string
	Name        string
	ConnTimeout time.Duration
}

// natsClient subscribes every subject into one channel so delivery keeps wire order.
type natsClient struct {
	nc   *nats.Conn
	msgs chan *nats.Msg
	done chan struct{}
}

func (c *natsClient) Publish(_ context.Context, subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c *natsClient) Subscribe(subject string) (func() error, error) {
	sub, err := c.nc.ChanSubscribe(subject, c.msgs)
	if err != nil {
		return nil, err
	}

	return sub.Unsubscribe, nil
}

func (c *natsClient) Close() error {
	c.nc.Close()
	close(c.done)

	return nil
}

func (c *natsClient) forward(deliver func(string, []byte)) {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.msgs:
			deliver(m.Subject, m.Data)
		}
	}
}

// Dial returns a Dialer connecting to cfg.URL. Reconnects are disabled: a disconnect is a transport error.
func Dial(cfg Config) Dialer {
	return func(ctx context.Context, h Hooks) (Client, error) {
		opts := []nats.Option{
			nats.NoReconnect(),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err == nil {
					err = nats.ErrConnectionClosed
				}

				h.Lost(err)
			}),
		}

		if cfg.Name != "" {
			opts = append(opts, nats.Name(cfg.Name))
		}

		timeout := cfg.ConnTimeout
		if dl, ok := ctx.Deadline(); ok && (timeout <= 0 || time.Until(dl) < timeout) {
			timeout = time.Until(dl)
		}

		if timeout > 0 {
			opts = append(opts, nats.Timeout(timeout))
		}

		nc, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			return nil, err
		}

		c := &natsClient{nc: nc, msgs: make(chan *nats.Msg, 1024), done: make(chan struct{})}
		go c.forward(h.Deliver)

		return c, nil
	}
}

// NewWithNATS validates cfg and returns an endpoint that connects on Open.
func NewWithNATS(cfg Config) (*Endpoint, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required: %w", berr.ErrConfiguration)
	}

	return New(Dial(cfg)), nil
}
