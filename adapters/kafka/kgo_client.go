package kafka

import (
	"context"
	"fmt"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based dialer and constructor.

type Config struct {
	Brokers  []string
	ClientID string
}

func (cfg Config) opts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	}

	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	return opts
}

// Dial returns a Dialer that builds a franz-go client and pings the cluster before reporting Up.
func Dial(cfg Config) Dialer {
	return func(ctx context.Context, h Hooks) (Client, error) {
		cl, err := kgo.NewClient(cfg.opts()...)
		if err != nil {
			return nil, err
		}

		if err := cl.Ping(ctx); err != nil {
			cl.Close()

			return nil, err
		}

		return NewKgoClient(cl, h), nil
	}
}

// NewWithKgo validates cfg and returns an endpoint that connects on Open.
func NewWithKgo(cfg Config) (*Endpoint, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required: %w", berr.ErrConfiguration)
	}

	return New(Dial(cfg)), nil
}
