// Package dispatch routes inbound frames to the topic and service registries and
// outbound notifications and calls to the endpoint.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/next-trace/scg-comms-stack/contract/comms"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/services"
	"github.com/next-trace/scg-comms-stack/topics"
	"github.com/next-trace/scg-comms-stack/wire"
)

const (
	defaultCallTimeout    = 5 * time.Second
	defaultDeliveryBuffer = 256
)

// Core demultiplexes one endpoint. It implements comms.Inbound.
type Core struct {
	endpoint   comms.Endpoint
	codec      wire.Codec
	subjects   *Subjects
	propagator comms.HeaderPropagator
	logger     *slog.Logger

	app         string
	callTimeout time.Duration
	buffer      int
	inbox       string

	topics  *topics.Registry
	pending *services.Pending
	offered *services.Offered
	exec    *executor

	// listens counts registrations per subject so shared subjects are listened once.
	listenMu sync.Mutex
	listens  map[string]int

	serveMu   sync.Mutex
	stopped   bool
	serving   sync.WaitGroup
	serveCtx  context.Context
	stopServe context.CancelFunc
}

// Option configures a Core.
type Option func(*Core)

// WithApp names the application; the name is part of the reply inbox subject.
func WithApp(name string) Option { return func(c *Core) { c.app = name } }

// WithPropagator injects headers into outbound frames. A nil propagator is ignored.
func WithPropagator(p comms.HeaderPropagator) Option {
	return func(c *Core) {
		if p != nil {
			c.propagator = p
		}
	}
}

// WithCallTimeout bounds every call; non-positive values keep the default.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithDeliveryBuffer sizes each subscription mailbox; non-positive values keep the default.
func WithDeliveryBuffer(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// New constructs a Core over ep. Nothing is opened until Start.
func New(ep comms.Endpoint, codec wire.Codec, subjects *Subjects, logger *slog.Logger, opts ...Option) *Core {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Core{
		endpoint:    ep,
		codec:       codec,
		subjects:    subjects,
		propagator:  comms.NopHeaderPropagator{},
		logger:      logger,
		callTimeout: defaultCallTimeout,
		buffer:      defaultDeliveryBuffer,
		pending:     services.NewPending(),
		offered:     services.NewOffered(),
		listens:     make(map[string]int),
	}

	for _, o := range opts {
		o(c)
	}

	c.logger = c.logger.With(slog.String("app", c.app))
	c.topics = topics.New(c.buffer, c.logger)
	c.inbox = subjects.Inbox(c.app, uuid.NewString())
	c.serveCtx, c.stopServe = context.WithCancel(context.Background())
	c.exec = newExecutor()

	return c
}

var _ comms.Inbound = (*Core)(nil)

// Start opens the endpoint and listens on the reply inbox.
func (c *Core) Start(ctx context.Context) error {
	if err := c.endpoint.Open(ctx, c); err != nil {
		return err
	}

	if err := c.listen(c.inbox); err != nil {
		_ = c.endpoint.Close()

		return err
	}

	c.logger.Info("dispatch started", slog.String("inbox", c.inbox))

	return nil
}

// Stop cancels every pending call, removes every subscription, waits for served requests,
// closes the endpoint and runs every queued callback before returning.
func (c *Core) Stop() error {
	cancelled := c.pending.FailAll(fmt.Errorf("stack shutting down: %w", berr.ErrCancelled))
	active := c.topics.Close()

	c.serveMu.Lock()
	c.stopped = true
	c.serveMu.Unlock()
	c.stopServe()
	c.serving.Wait()

	err := c.endpoint.Close()

	c.exec.Close()

	c.logger.Info("dispatch stopped",
		slog.Int("cancelled_calls", cancelled), slog.Int("removed_topics", len(active)))

	return err
}

func (c *Core) listen(subject string) error {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listens[subject] == 0 {
		if err := c.endpoint.Listen(subject); err != nil {
			return err
		}
	}

	c.listens[subject]++

	return nil
}

func (c *Core) unlisten(subject string) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	n := c.listens[subject]
	if n == 0 {
		return
	}

	if n > 1 {
		c.listens[subject] = n - 1

		return
	}

	delete(c.listens, subject)

	if err := c.endpoint.Unlisten(subject); err != nil {
		c.logger.Warn("unlisten failed", slog.String("subject", subject), slog.Any("err", err))
	}
}

// Subscribe registers l for topic and returns its subscription id.
func (c *Core) Subscribe(topic string, l comms.NotificationListener) (int64, error) {
	if l == nil {
		return -1, fmt.Errorf("subscribe %q: nil listener: %w", topic, berr.ErrInvalidArgument)
	}

	subject, err := c.subjects.Topic(topic)
	if err != nil {
		return -1, err
	}

	if err := c.listen(subject); err != nil {
		return -1, err
	}

	id := topics.NextID()
	c.topics.Add(id, topic, l)

	c.logger.Debug("subscribed", slog.String("topic", topic), slog.Int64("subscription_id", id))

	return id, nil
}

// Unsubscribe removes id. It returns once no callback for id is running; unknown ids are ignored.
func (c *Core) Unsubscribe(id int64) bool {
	topic, _, ok := c.topics.Remove(id)
	if !ok {
		return false
	}

	if subject, err := c.subjects.Topic(topic); err == nil {
		c.unlisten(subject)
	}

	c.logger.Debug("unsubscribed", slog.String("topic", topic), slog.Int64("subscription_id", id))

	return true
}

// Publish sends n on topic. Success means the endpoint accepted the frame.
func (c *Core) Publish(ctx context.Context, topic string, n wire.Notification) error {
	subject, err := c.subjects.Topic(topic)
	if err != nil {
		return err
	}

	f := &wire.Frame{Kind: wire.KindNotification, Target: topic, Notification: &n}

	return c.send(ctx, subject, f)
}

// Offer answers requests for service with h.
func (c *Core) Offer(service string, h services.Handler) error {
	subject, err := c.subjects.Service(service)
	if err != nil {
		return err
	}

	if err := c.offered.Offer(service, h); err != nil {
		return err
	}

	if err := c.listen(subject); err != nil {
		c.offered.Withdraw(service)

		return err
	}

	c.logger.Info("service offered", slog.String("service", service), slog.String("subject", subject))

	return nil
}

// Call sends req to service. done runs exactly once on the callback executor.
func (c *Core) Call(ctx context.Context, service string, req *wire.Frame, done services.Completion) {
	finish := func(resp *wire.Frame, err error) { c.exec.Post(func() { done(resp, err) }) }

	subject, err := c.subjects.Service(service)
	if err != nil {
		finish(nil, err)

		return
	}

	if r, ok := c.endpoint.(comms.Resolver); ok && !r.Reachable(subject) {
		finish(nil, fmt.Errorf("service %q unavailable: %w", service, berr.ErrUnknownTarget))

		return
	}

	id := c.pending.Register(service, req.Method, c.callTimeout, finish)

	req.Kind = wire.KindRequest
	req.Target = service
	req.CorrelationID = id
	req.ReplyTo = c.inbox

	if err := c.send(ctx, subject, req); err != nil {
		c.pending.Fail(id, callError(err))
	}
}

// callError gives context errors a code listeners understand.
func callError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.Join(berr.ErrCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(berr.ErrTimeout, err)
	default:
		return err
	}
}

// Echo calls the echo method of service.
func (c *Core) Echo(ctx context.Context, service, message string, done func(string, error)) {
	req := &wire.Frame{Method: wire.MethodEcho, Echo: &wire.Echo{Message: message}}

	c.Call(ctx, service, req, func(resp *wire.Frame, err error) {
		switch {
		case err != nil:
			done("", err)
		case resp.Echo == nil:
			done("", fmt.Errorf("%s.echo response without payload: %w", service, berr.ErrMalformedFrame))
		default:
			done(resp.Echo.Message, nil)
		}
	})
}

// Add calls the add method of service.
func (c *Core) Add(ctx context.Context, service string, a, b int32, done func(int32, error)) {
	req := &wire.Frame{Method: wire.MethodAdd, Add: &wire.Add{A: a, B: b}}

	c.Call(ctx, service, req, func(resp *wire.Frame, err error) {
		switch {
		case err != nil:
			done(0, err)
		case resp.Add == nil:
			done(0, fmt.Errorf("%s.add response without payload: %w", service, berr.ErrMalformedFrame))
		default:
			done(resp.Add.Sum, nil)
		}
	})
}

func (c *Core) send(ctx context.Context, subject string, f *wire.Frame) error {
	if f.Headers == nil {
		f.Headers = make(map[string]string, 2)
	}

	c.propagator.Inject(ctx, f.Headers)

	if c.app != "" {
		f.Headers["app"] = c.app
	}

	body, err := c.codec.Encode(f)
	if err != nil {
		return err
	}

	return c.endpoint.Publish(ctx, subject, body)
}

// HandleFrame decodes one inbound frame and routes it. Malformed frames are logged and dropped.
func (c *Core) HandleFrame(subject string, data []byte) {
	f, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", slog.String("subject", subject), slog.Any("err", err))

		return
	}

	if err := f.Validate(); err != nil {
		c.logger.Warn("dropping malformed frame", slog.String("subject", subject), slog.Any("err", err))

		if f.Kind == wire.KindRequest && f.ReplyTo != "" && f.CorrelationID != 0 {
			c.reply(f, services.ErrorFrame(f, err))
		}

		return
	}

	switch f.Kind {
	case wire.KindNotification:
		c.topics.Deliver(f.Target, *f.Notification)
	case wire.KindRequest:
		c.serve(f)
	case wire.KindResponse, wire.KindError:
		if !c.pending.Resolve(f.CorrelationID, f) {
			c.logger.Warn("dropping reply for unknown call",
				slog.Uint64("correlation_id", f.CorrelationID), slog.String("service", f.Target))
		}
	}
}

func (c *Core) serve(req *wire.Frame) {
	h, ok := c.offered.Lookup(req.Target)
	if !ok {
		c.reply(req, services.ErrorFrame(req, fmt.Errorf("service %q not offered here: %w", req.Target, berr.ErrUnknownTarget)))

		return
	}

	c.serveMu.Lock()
	if c.stopped {
		c.serveMu.Unlock()

		return
	}

	c.serving.Add(1)
	c.serveMu.Unlock()

	go func() {
		defer c.serving.Done()

		c.reply(req, services.Serve(c.serveCtx, h, req))
	}()
}

func (c *Core) reply(req, resp *wire.Frame) {
	if err := c.send(c.serveCtx, req.ReplyTo, resp); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("reply failed",
			slog.String("service", req.Target), slog.Uint64("correlation_id", req.CorrelationID), slog.Any("err", err))
	}
}

// HandleTransportError fails every pending call and tells every subscription.
func (c *Core) HandleTransportError(err error) {
	lost := fmt.Errorf("transport lost: %w", errors.Join(berr.ErrTransport, err))

	n := c.pending.FailAll(lost)
	c.topics.Fail(berr.Message(lost))

	c.logger.Error("transport error", slog.Any("err", err), slog.Int("failed_calls", n))
}

// Inbox is the reply subject of this core.
func (c *Core) Inbox() string { return c.inbox }

// Subscriptions returns the number of live subscriptions.
func (c *Core) Subscriptions() int { return c.topics.Len() }

// PendingCalls returns the number of outstanding calls.
func (c *Core) PendingCalls() int { return c.pending.Len() }

// Offered lists the services this core answers for.
func (c *Core) Offered() []string { return c.offered.Names() }
