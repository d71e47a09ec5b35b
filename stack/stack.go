package stack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/next-trace/scg-comms-stack/config"
	"github.com/next-trace/scg-comms-stack/contract/comms"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/dispatch"
	"github.com/next-trace/scg-comms-stack/services"
	"github.com/next-trace/scg-comms-stack/wire"
)

// State is the lifecycle of a Stack.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Stack is the facade over one dispatch core. It is safe for concurrent use.
type Stack struct {
	// lifecycle serializes Open and Close.
	lifecycle sync.Mutex
	// barrier is held shared by running operations and exclusively by Close,
	// so teardown starts only after every admitted operation has handed off.
	barrier sync.RWMutex
	state   atomic.Int32
	core    *dispatch.Core
	cfg     config.Config

	logger     *slog.Logger
	endpoint   comms.Endpoint
	propagator comms.HeaderPropagator
	handlers   map[string]services.Handler
	codecs     *wire.Registry
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Stack) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEndpoint makes the stack use ep instead of the transport named in the configuration.
func WithEndpoint(ep comms.Endpoint) Option { return func(s *Stack) { s.endpoint = ep } }

// WithPropagator injects tracing headers into every outbound frame.
func WithPropagator(p comms.HeaderPropagator) Option { return func(s *Stack) { s.propagator = p } }

// WithService offers h under name on every Open.
func WithService(name string, h services.Handler) Option {
	return func(s *Stack) { s.handlers[name] = h }
}

// New returns an uninitialized stack.
func New(opts ...Option) *Stack {
	s := &Stack{
		logger:   slog.Default(),
		handlers: make(map[string]services.Handler),
		codecs:   wire.NewRegistry(),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// State reports the lifecycle state.
func (s *Stack) State() State { return State(s.state.Load()) }

// Config returns the configuration of the current or last Open.
func (s *Stack) Config() config.Config {
	s.barrier.RLock()
	defer s.barrier.RUnlock()

	return s.cfg
}

// Open loads the configuration at configPath, connects the transport and starts serving.
// An empty configPath uses the defaults. appName, when set, overrides app_name.
func (s *Stack) Open(ctx context.Context, appName, configPath string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateUninitialized {
		return fmt.Errorf("open: stack is %s: %w", st, berr.ErrInvalidArgument)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if appName != "" {
		cfg.AppName = appName
	}

	if cfg.AppName != "" {
		if err := dispatch.ValidName(cfg.AppName); err != nil {
			return fmt.Errorf("open: app name: %w", err)
		}
	}

	codec, err := s.codecs.Get(cfg.Codec)
	if err != nil {
		return err
	}

	ep := s.endpoint
	if ep == nil {
		if ep, err = EndpointFor(cfg); err != nil {
			return err
		}
	}

	core := dispatch.New(ep, codec, dispatch.NewSubjects(cfg), s.logger,
		dispatch.WithApp(cfg.AppName),
		dispatch.WithPropagator(s.propagator),
		dispatch.WithCallTimeout(cfg.CallTimeout),
		dispatch.WithDeliveryBuffer(cfg.DeliveryBuffer),
	)

	openCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := core.Start(openCtx); err != nil {
		_ = core.Stop()

		return fmt.Errorf("open %s transport: %w", cfg.Transport.Kind, err)
	}

	if err := s.offerAll(core, cfg); err != nil {
		_ = core.Stop()

		return err
	}

	s.barrier.Lock()
	s.core = core
	s.cfg = cfg
	s.barrier.Unlock()
	s.state.Store(int32(StateActive))

	s.logger.Info("comms stack initialized",
		slog.String("app", cfg.AppName),
		slog.String("transport", cfg.Transport.Kind),
		slog.String("codec", codec.Name()))

	return nil
}

func (s *Stack) offerAll(core *dispatch.Core, cfg config.Config) error {
	for _, name := range cfg.OfferedServices() {
		h, ok := s.handlers[name]
		if !ok {
			h = services.Sample{}
		}

		if err := core.Offer(name, h); err != nil {
			return err
		}
	}

	for name, h := range s.handlers {
		if sc, listed := cfg.Services[name]; listed && sc.Offer {
			continue
		}

		if err := core.Offer(name, h); err != nil {
			return err
		}
	}

	return nil
}

// Close cancels every pending call, removes every subscription and closes the transport.
// Listener callbacks triggered by the teardown have run when Close returns. Closing a stack
// that is not active is a no-op.
func (s *Stack) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(StateActive), int32(StateShuttingDown)) {
		return nil
	}

	s.barrier.Lock()
	core := s.core
	s.core = nil
	s.barrier.Unlock()

	err := core.Stop()

	s.state.Store(int32(StateUninitialized))
	s.logger.Info("comms stack shut down", slog.String("app", s.cfg.AppName))

	return err
}

// acquire admits one operation. release must be called once the operation has handed off.
func (s *Stack) acquire() (*dispatch.Core, func(), error) {
	s.barrier.RLock()

	if s.State() != StateActive || s.core == nil {
		s.barrier.RUnlock()

		return nil, nil, fmt.Errorf("stack is %s: %w", s.State(), berr.ErrNotActive)
	}

	return s.core, s.barrier.RUnlock, nil
}

// PublishNotification sends n to the subscribers of topic. Success means hand-off only.
func (s *Stack) PublishNotification(ctx context.Context, topic string, n wire.Notification) error {
	core, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	return core.Publish(ctx, topic, n)
}

// SubscribeTopic registers l for topic. Ids are unique for the life of the process.
func (s *Stack) SubscribeTopic(topic string, l comms.NotificationListener) (int64, error) {
	core, release, err := s.acquire()
	if err != nil {
		return -1, err
	}
	defer release()

	return core.Subscribe(topic, l)
}

// Unsubscribe removes subscription id. Once it returns no callback for id runs anymore.
// Unknown ids are ignored. It must not be called from that subscription's own callback.
func (s *Stack) Unsubscribe(id int64) {
	core, release, err := s.acquire()
	if err != nil {
		return
	}
	// waiting for the in-flight callback must not hold the barrier
	release()

	core.Unsubscribe(id)
}

// Offer answers calls to service with h while the stack is active.
func (s *Stack) Offer(service string, h services.Handler) error {
	core, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	return core.Offer(service, h)
}

// Echo calls service.echo; done runs exactly once on an internal goroutine.
func (s *Stack) Echo(ctx context.Context, service, message string, done func(string, error)) {
	core, release, err := s.acquire()
	if err != nil {
		go done("", err)

		return
	}
	defer release()

	core.Echo(ctx, service, message, done)
}

// Sum calls service.add; done runs exactly once on an internal goroutine.
func (s *Stack) Sum(ctx context.Context, service string, a, b int32, done func(int32, error)) {
	core, release, err := s.acquire()
	if err != nil {
		go done(0, err)

		return
	}
	defer release()

	core.Add(ctx, service, a, b, done)
}

// Init is the boolean form of Open used by bridge callers.
func (s *Stack) Init(appName, configPath string) bool {
	if err := s.Open(context.Background(), appName, configPath); err != nil {
		s.logger.Error("comms stack init failed",
			slog.String("app", appName), slog.String("config", configPath), slog.Any("err", err))

		return false
	}

	return true
}

// Shutdown is Close without an error result.
func (s *Stack) Shutdown() {
	if err := s.Close(); err != nil {
		s.logger.Warn("comms stack shutdown", slog.Any("err", err))
	}
}

// Publish reports whether the notification was handed to the transport.
func (s *Stack) Publish(topic string, id int32, message string, timestampSeconds int64) bool {
	err := s.PublishNotification(context.Background(), topic, wire.Notification{
		ID:        id,
		Message:   message,
		Timestamp: timestampSeconds,
	})
	if err != nil {
		s.logger.Warn("publish failed", slog.String("topic", topic), slog.Any("err", err))

		return false
	}

	return true
}

// Subscribe returns a subscription id, or -1 on failure.
func (s *Stack) Subscribe(topic string, l comms.NotificationListener) int64 {
	id, err := s.SubscribeTopic(topic, l)
	if err != nil {
		s.logger.Warn("subscribe failed", slog.String("topic", topic), slog.Any("err", err))

		return -1
	}

	return id
}

// CallEcho calls service.echo and reports the outcome to l.
func (s *Stack) CallEcho(service, message string, l comms.EchoListener) {
	if l == nil {
		s.logger.Warn("echo call without listener dropped", slog.String("service", service))

		return
	}

	s.Echo(context.Background(), service, message, func(out string, err error) {
		if err != nil {
			l.OnError(berr.Message(err))

			return
		}

		l.OnResponse(out)
	})
}

// CallAdd calls service.add and reports the outcome to l.
func (s *Stack) CallAdd(service string, a, b int32, l comms.AddListener) {
	if l == nil {
		s.logger.Warn("add call without listener dropped", slog.String("service", service))

		return
	}

	s.Sum(context.Background(), service, a, b, func(sum int32, err error) {
		if err != nil {
			l.OnError(berr.Message(err))

			return
		}

		l.OnResponse(sum)
	})
}
