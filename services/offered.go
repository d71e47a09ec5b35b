package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/wire"
)

// Handler implements the methods of an offered service.
type Handler interface {
	Echo(ctx context.Context, message string) (string, error)
	Add(ctx context.Context, a, b int32) (int32, error)
}

// Sample is the reference service: echo returns its input, add sums with int32 wraparound.
type Sample struct{}

func (Sample) Echo(_ context.Context, message string) (string, error) { return message, nil }

func (Sample) Add(_ context.Context, a, b int32) (int32, error) { return a + b, nil }

var _ Handler = Sample{}

// Offered holds the services this process answers for.
type Offered struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewOffered() *Offered {
	return &Offered{handlers: make(map[string]Handler)}
}

// Offer registers h under service. Offering the same service twice is an error.
func (o *Offered) Offer(service string, h Handler) error {
	if service == "" || h == nil {
		return fmt.Errorf("offer %q: %w", service, berr.ErrInvalidArgument)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, dup := o.handlers[service]; dup {
		return fmt.Errorf("service %q already offered: %w", service, berr.ErrInvalidArgument)
	}

	o.handlers[service] = h

	return nil
}

// Withdraw removes service. Unknown services are ignored.
func (o *Offered) Withdraw(service string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.handlers, service)
}

func (o *Offered) Lookup(service string) (Handler, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	h, ok := o.handlers[service]

	return h, ok
}

// Names returns the offered services, sorted.
func (o *Offered) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]string, 0, len(o.handlers))
	for name := range o.handlers {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Serve runs req against h and builds the response or error frame to send back.
func Serve(ctx context.Context, h Handler, req *wire.Frame) *wire.Frame {
	resp := &wire.Frame{
		Kind:          wire.KindResponse,
		Target:        req.Target,
		Method:        req.Method,
		CorrelationID: req.CorrelationID,
	}

	switch req.Method {
	case wire.MethodEcho:
		if req.Echo == nil {
			return errorFrame(resp, fmt.Errorf("echo without payload: %w", berr.ErrMalformedFrame))
		}

		out, err := h.Echo(ctx, req.Echo.Message)
		if err != nil {
			return errorFrame(resp, err)
		}

		resp.Echo = &wire.Echo{Message: out}
	case wire.MethodAdd:
		if req.Add == nil {
			return errorFrame(resp, fmt.Errorf("add without payload: %w", berr.ErrMalformedFrame))
		}

		sum, err := h.Add(ctx, req.Add.A, req.Add.B)
		if err != nil {
			return errorFrame(resp, err)
		}

		resp.Add = &wire.Add{Sum: sum}
	default:
		return errorFrame(resp, fmt.Errorf("method %q: %w", req.Method, berr.ErrUnknownTarget))
	}

	return resp
}

// ErrorFrame answers req with err.
func ErrorFrame(req *wire.Frame, err error) *wire.Frame {
	return errorFrame(&wire.Frame{
		Target:        req.Target,
		Method:        req.Method,
		CorrelationID: req.CorrelationID,
	}, err)
}

func errorFrame(f *wire.Frame, err error) *wire.Frame {
	f.Kind = wire.KindError
	f.Code = berr.CodeOf(err)
	f.Error = err.Error()
	f.Echo = nil
	f.Add = nil

	return f
}
