package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

// Concrete Paho-backed dialer and constructor.

type Config struct {
	Broker      string
	ClientID    string
	QoS         byte
	ConnTimeout time.Duration
}

// Dial returns a Dialer connecting to cfg.Broker. Auto-reconnect is off: a lost connection is a transport error.
func Dial(cfg Config) Dialer {
	return func(ctx context.Context, h Hooks) (Client, error) {
		opts := pahomqtt.NewClientOptions()
		opts.AddBroker(cfg.Broker)
		opts.SetClientID(cfg.ClientID)
		opts.SetCleanSession(true)
		opts.SetAutoReconnect(false)
		opts.SetConnectRetry(false)
		opts.SetOrderMatters(true)
		opts.OnConnectionLost = func(_ pahomqtt.Client, err error) { h.Lost(err) }

		if cfg.ConnTimeout > 0 {
			opts.SetConnectTimeout(cfg.ConnTimeout)
		}

		cl := pahomqtt.NewClient(opts)

		wait := cfg.ConnTimeout
		if wait <= 0 {
			wait = defaultWait
		}

		if err := await(ctx, cl.Connect(), wait); err != nil {
			cl.Disconnect(0)

			return nil, err
		}

		return NewPahoClient(cl, cfg.QoS, h.Deliver), nil
	}
}

// NewWithPaho validates cfg and returns an endpoint that connects on Open.
func NewWithPaho(cfg Config) (*Endpoint, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker required: %w", berr.ErrConfiguration)
	}

	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d out of range: %w", cfg.QoS, berr.ErrConfiguration)
	}

	return New(Dial(cfg)), nil
}
