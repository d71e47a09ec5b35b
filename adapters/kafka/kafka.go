// Package kafka carries frames over Kafka topics with franz-go. Each stack subject is a
// Kafka topic; listening adds the topic to the consumer, starting at the log end.
package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/next-trace/scg-comms-stack/adapters/internal/broker"
	"github.com/next-trace/scg-comms-stack/contract/comms"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

type (
	Client = broker.Client
	Dialer = broker.Dialer
	Hooks  = broker.Hooks
)

// KgoClient is the part of *kgo.Client the endpoint uses.
type KgoClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	AddConsumeTopics(topics ...string)
	PurgeTopicsFromConsuming(topics ...string)
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Endpoint implements comms.Endpoint over a franz-go client.
type Endpoint struct{ *broker.Endpoint }

var _ comms.Endpoint = (*Endpoint)(nil)

func New(dial Dialer) *Endpoint { return &Endpoint{broker.New("kafka", dial)} }

type kgoClient struct {
	cl     KgoClient
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewKgoClient wraps cl and starts its poll loop, delivering records through h.
func NewKgoClient(cl KgoClient, h Hooks) Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &kgoClient{cl: cl, cancel: cancel, done: make(chan struct{})}

	go c.poll(ctx, h)

	return c
}

func (c *kgoClient) poll(ctx context.Context, h Hooks) {
	defer close(c.done)

	for {
		fetches := c.cl.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return
		}

		var fatal error

		fetches.EachError(func(_ string, _ int32, err error) {
			if fatal == nil && !kerr.IsRetriable(err) && !errors.Is(err, context.Canceled) {
				fatal = err
			}
		})

		fetches.EachRecord(func(r *kgo.Record) { h.Deliver(r.Topic, r.Value) })

		if fatal != nil {
			h.Lost(fatal)

			return
		}
	}
}

func (c *kgoClient) Publish(ctx context.Context, subject string, data []byte) error {
	return c.cl.ProduceSync(ctx, &kgo.Record{Topic: subject, Value: data}).FirstErr()
}

func (c *kgoClient) Subscribe(subject string) (func() error, error) {
	c.cl.AddConsumeTopics(subject)

	return func() error {
		c.cl.PurgeTopicsFromConsuming(subject)

		return nil
	}, nil
}

func (c *kgoClient) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.cl.Close()
		<-c.done
	})

	return nil
}
