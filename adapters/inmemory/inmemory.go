// Package inmemory provides a process-local comms.Endpoint. Endpoints attached to the same
// Network see each other's frames; it is the default transport and the one tests run on.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/next-trace/scg-comms-stack/contract/comms"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

var (
	networksMu sync.Mutex
	networks   = map[string]*Network{}
)

// Network is a set of endpoints that can reach each other.
type Network struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
}

// NewNetwork returns a private network.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[*Endpoint]struct{})}
}

// Named returns the process-wide network called name, creating it on first use.
func Named(name string) *Network {
	networksMu.Lock()
	defer networksMu.Unlock()

	n, ok := networks[name]
	if !ok {
		n = NewNetwork()
		networks[name] = n
	}

	return n
}

func (n *Network) attach(e *Endpoint) {
	n.mu.Lock()
	n.endpoints[e] = struct{}{}
	n.mu.Unlock()
}

func (n *Network) detach(e *Endpoint) {
	n.mu.Lock()
	delete(n.endpoints, e)
	n.mu.Unlock()
}

func (n *Network) route(subject string, data []byte) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for e := range n.endpoints {
		if e.listening(subject) {
			e.enqueue(message{subject: subject, data: data})
		}
	}
}

func (n *Network) reachable(subject string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for e := range n.endpoints {
		if e.listening(subject) {
			return true
		}
	}

	return false
}

// Sever simulates losing the network: every attached endpoint reports err and goes Down.
func (n *Network) Sever(err error) {
	n.mu.RLock()

	eps := make([]*Endpoint, 0, len(n.endpoints))
	for e := range n.endpoints {
		eps = append(eps, e)
	}
	n.mu.RUnlock()

	for _, e := range eps {
		e.fail(err)
	}
}

type message struct {
	subject string
	data    []byte
	err     error
}

// Endpoint is one stack's attachment to a Network. Frames are queued without bound
// and handed to Inbound by a single pump goroutine.
type Endpoint struct {
	network *Network

	mu       sync.Mutex
	cond     *sync.Cond
	state    comms.State
	in       comms.Inbound
	subjects map[string]struct{}
	queue    []message
	closing  bool
	done     chan struct{}
}

var (
	_ comms.Endpoint = (*Endpoint)(nil)
	_ comms.Resolver = (*Endpoint)(nil)
)

// New creates an endpoint on network. A nil network means the process-wide "default" network.
func New(network *Network) *Endpoint {
	if network == nil {
		network = Named("default")
	}

	e := &Endpoint{network: network, subjects: make(map[string]struct{})}
	e.cond = sync.NewCond(&e.mu)

	return e
}

func (e *Endpoint) Open(ctx context.Context, in comms.Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if in == nil {
		return fmt.Errorf("inmemory open: nil inbound: %w", berr.ErrInvalidArgument)
	}

	e.mu.Lock()
	if e.state != comms.StateDown {
		e.mu.Unlock()

		return fmt.Errorf("inmemory open: already %s: %w", e.state, berr.ErrTransport)
	}

	e.state = comms.StateConnecting
	e.in = in
	e.queue = nil
	e.closing = false
	e.done = make(chan struct{})
	e.state = comms.StateUp
	e.mu.Unlock()

	e.network.attach(e)

	go e.pump(in, e.done)

	return nil
}

func (e *Endpoint) pump(in comms.Inbound, done chan struct{}) {
	defer close(done)

	for {
		e.mu.Lock()

		for len(e.queue) == 0 && !e.closing {
			e.cond.Wait()
		}

		if e.closing {
			e.mu.Unlock()

			return
		}

		m := e.queue[0]
		e.queue[0] = message{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		if m.err != nil {
			in.HandleTransportError(m.err)

			return
		}

		in.HandleFrame(m.subject, m.data)
	}
}

func (e *Endpoint) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.State() != comms.StateUp {
		return fmt.Errorf("inmemory publish %s: endpoint down: %w", subject, berr.ErrTransport)
	}

	body := make([]byte, len(data))
	copy(body, data)

	e.network.route(subject, body)

	return nil
}

func (e *Endpoint) Listen(subject string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != comms.StateUp {
		return fmt.Errorf("inmemory listen %s: endpoint down: %w", subject, berr.ErrTransport)
	}

	e.subjects[subject] = struct{}{}

	return nil
}

func (e *Endpoint) Unlisten(subject string) error {
	e.mu.Lock()
	delete(e.subjects, subject)
	e.mu.Unlock()

	return nil
}

func (e *Endpoint) State() comms.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Reachable reports whether any endpoint on the network listens on subject.
func (e *Endpoint) Reachable(subject string) bool { return e.network.reachable(subject) }

// Close detaches from the network and waits for the pump. Must not be called from an Inbound callback.
func (e *Endpoint) Close() error {
	e.network.detach(e)

	e.mu.Lock()
	done := e.done
	e.state = comms.StateDown
	e.closing = true
	e.subjects = make(map[string]struct{})
	e.cond.Broadcast()
	e.mu.Unlock()

	if done != nil {
		<-done
	}

	return nil
}

func (e *Endpoint) listening(subject string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != comms.StateUp {
		return false
	}

	_, ok := e.subjects[subject]

	return ok
}

func (e *Endpoint) enqueue(m message) {
	e.mu.Lock()
	e.queue = append(e.queue, m)
	e.cond.Signal()
	e.mu.Unlock()
}

func (e *Endpoint) fail(err error) {
	e.mu.Lock()
	if e.state != comms.StateUp {
		e.mu.Unlock()

		return
	}

	e.state = comms.StateDown
	e.subjects = make(map[string]struct{})
	e.queue = append(e.queue, message{err: fmt.Errorf("inmemory: %w", err)})
	e.cond.Signal()
	e.mu.Unlock()

	e.network.detach(e)
}
