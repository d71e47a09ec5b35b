// Package broker implements the comms.Endpoint state machine shared by the broker adapters.
// An adapter supplies a Dialer producing a Client; the Endpoint owns the lifecycle,
// the subscriptions and the single delivery lane.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/next-trace/scg-comms-stack/contract/comms"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

const defaultLaneBuffer = 1024

// Hooks are handed to the Dialer. Clients call Deliver for every inbound message and
// Lost once the connection is gone for good. Both are safe to call from any goroutine.
type Hooks struct {
	Deliver func(subject string, data []byte)
	Lost    func(err error)
}

// Client is the slice of a broker connection the Endpoint needs.
type Client interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe starts delivering subject through Hooks.Deliver and returns its cancel func.
	Subscribe(subject string) (func() error, error)
	Close() error
}

// Dialer connects a Client. It must honour ctx for the connect attempt.
type Dialer func(ctx context.Context, h Hooks) (Client, error)

// Endpoint implements comms.Endpoint over a Dialer.
type Endpoint struct {
	name   string
	dial   Dialer
	buffer int

	mu     sync.Mutex
	state  comms.State
	client Client
	lane   *lane
	subs   map[string]func() error
}

var _ comms.Endpoint = (*Endpoint)(nil)

// New returns an Endpoint labelled name in errors and logs.
func New(name string, dial Dialer) *Endpoint {
	return &Endpoint{name: name, dial: dial, buffer: defaultLaneBuffer}
}

func (e *Endpoint) Open(ctx context.Context, in comms.Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if in == nil {
		return fmt.Errorf("%s open: nil inbound: %w", e.name, berr.ErrInvalidArgument)
	}

	if e.dial == nil {
		return fmt.Errorf("%s open: no dialer: %w", e.name, berr.ErrConfiguration)
	}

	e.mu.Lock()
	if e.state != comms.StateDown {
		st := e.state
		e.mu.Unlock()

		return fmt.Errorf("%s open: already %s: %w", e.name, st, berr.ErrTransport)
	}

	l := startLane(in, e.buffer)
	e.state = comms.StateConnecting
	e.lane = l
	e.subs = make(map[string]func() error)
	e.mu.Unlock()

	client, err := e.dial(ctx, Hooks{Deliver: l.deliver, Lost: func(err error) { e.lost(l, err) }})
	if err != nil {
		e.mu.Lock()
		e.state = comms.StateDown
		e.lane = nil
		e.mu.Unlock()
		l.stop()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("%s connect: %w", e.name, errors.Join(berr.ErrTransport, err))
	}

	e.mu.Lock()
	if e.state != comms.StateConnecting || e.lane != l {
		// lost while connecting
		e.lane = nil
		e.mu.Unlock()
		_ = client.Close()
		l.stop()

		return fmt.Errorf("%s connect: connection lost during open: %w", e.name, berr.ErrTransport)
	}

	e.client = client
	e.state = comms.StateUp
	e.mu.Unlock()

	return nil
}

func (e *Endpoint) lost(l *lane, err error) {
	e.mu.Lock()
	if e.lane != l || e.state == comms.StateDown {
		e.mu.Unlock()

		return
	}

	e.state = comms.StateDown
	e.mu.Unlock()

	l.fail(fmt.Errorf("%s connection lost: %w", e.name, err))
}

func (e *Endpoint) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	client, st := e.client, e.state
	e.mu.Unlock()

	if st != comms.StateUp || client == nil {
		return fmt.Errorf("%s publish %s: endpoint %s: %w", e.name, subject, st, berr.ErrTransport)
	}

	if err := client.Publish(ctx, subject, data); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("%s publish %s: %w", e.name, subject, errors.Join(berr.ErrTransport, err))
	}

	return nil
}

func (e *Endpoint) Listen(subject string) error {
	e.mu.Lock()
	client, st := e.client, e.state
	_, dup := e.subs[subject]
	e.mu.Unlock()

	if st != comms.StateUp || client == nil {
		return fmt.Errorf("%s listen %s: endpoint %s: %w", e.name, subject, st, berr.ErrTransport)
	}

	if dup {
		return nil
	}

	cancel, err := client.Subscribe(subject)
	if err != nil {
		return fmt.Errorf("%s listen %s: %w", e.name, subject, errors.Join(berr.ErrTransport, err))
	}

	e.mu.Lock()
	if e.client != client {
		e.mu.Unlock()
		_ = cancel()

		return fmt.Errorf("%s listen %s: endpoint closed: %w", e.name, subject, berr.ErrTransport)
	}

	e.subs[subject] = cancel
	e.mu.Unlock()

	return nil
}

func (e *Endpoint) Unlisten(subject string) error {
	e.mu.Lock()
	cancel, ok := e.subs[subject]
	delete(e.subs, subject)
	e.mu.Unlock()

	if !ok {
		return nil
	}

	if err := cancel(); err != nil {
		return fmt.Errorf("%s unlisten %s: %w", e.name, subject, errors.Join(berr.ErrTransport, err))
	}

	return nil
}

func (e *Endpoint) State() comms.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Close drops every subscription, closes the client and stops the lane. Must not be called from an Inbound callback.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	client, l, subs := e.client, e.lane, e.subs
	e.state = comms.StateDown
	e.client = nil
	e.lane = nil
	e.subs = nil
	e.mu.Unlock()

	var errs []error

	for _, cancel := range subs {
		if err := cancel(); err != nil {
			errs = append(errs, err)
		}
	}

	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if l != nil {
		l.stop()
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s close: %w", e.name, errors.Join(errs...))
	}

	return nil
}
