package services_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/services"
	"github.com/next-trace/scg-comms-stack/wire"
)

type outcome struct {
	resp *wire.Frame
	err  error
}

func capture() (services.Completion, chan outcome) {
	ch := make(chan outcome, 4)

	return func(resp *wire.Frame, err error) { ch <- outcome{resp, err} }, ch
}

func TestPending_ResolveOnce(t *testing.T) {
	p := services.NewPending()
	done, ch := capture()

	id := p.Register("calc", wire.MethodAdd, time.Minute, done)
	if id == 0 {
		t.Fatalf("correlation id must start at 1")
	}

	resp := &wire.Frame{Kind: wire.KindResponse, CorrelationID: id, Add: &wire.Add{Sum: 3}}
	if !p.Resolve(id, resp) {
		t.Fatalf("resolve should find the call")
	}

	if p.Resolve(id, resp) || p.Fail(id, berr.ErrTimeout) {
		t.Fatalf("second completion must be rejected")
	}

	got := <-ch
	if got.err != nil || got.resp.Add.Sum != 3 {
		t.Fatalf("unexpected outcome %+v", got)
	}

	if len(ch) != 0 || p.Len() != 0 {
		t.Fatalf("call completed more than once or still pending")
	}
}

func TestPending_Timeout(t *testing.T) {
	p := services.NewPending()
	done, ch := capture()

	p.Register("slow", wire.MethodEcho, 20*time.Millisecond, done)

	select {
	case got := <-ch:
		if !errors.Is(got.err, berr.ErrTimeout) {
			t.Fatalf("want timeout, got %v", got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout never fired")
	}
}

func TestPending_ErrorFrameCarriesCode(t *testing.T) {
	p := services.NewPending()
	done, ch := capture()

	id := p.Register("calc", wire.MethodAdd, time.Minute, done)
	p.Resolve(id, &wire.Frame{
		Kind:          wire.KindError,
		Target:        "calc",
		Method:        wire.MethodAdd,
		CorrelationID: id,
		Code:          berr.ErrCodeMalformedFrame,
		Error:         "add without payload",
	})

	got := <-ch
	if !errors.Is(got.err, berr.ErrMalformedFrame) {
		t.Fatalf("want malformed frame, got %v", got.err)
	}
}

func TestPending_FailAll(t *testing.T) {
	p := services.NewPending()

	var fired atomic.Int32

	for i := 0; i < 5; i++ {
		p.Register("svc", wire.MethodEcho, time.Minute, func(_ *wire.Frame, err error) {
			if errors.Is(err, berr.ErrCancelled) {
				fired.Add(1)
			}
		})
	}

	if n := p.FailAll(berr.ErrCancelled); n != 5 {
		t.Fatalf("failed %d calls, want 5", n)
	}

	if fired.Load() != 5 || p.Len() != 0 {
		t.Fatalf("fired=%d pending=%d", fired.Load(), p.Len())
	}
}

func TestSample(t *testing.T) {
	var s services.Sample

	out, _ := s.Echo(context.Background(), "Hello from Android!")
	if out != "Hello from Android!" {
		t.Fatalf("echo changed the message: %q", out)
	}

	sum, _ := s.Add(context.Background(), math.MaxInt32, 1)
	if sum != math.MinInt32 {
		t.Fatalf("add should wrap, got %d", sum)
	}
}

func TestServe(t *testing.T) {
	ctx := t.Context()
	h := services.Sample{}

	resp := services.Serve(ctx, h, &wire.Frame{Kind: wire.KindRequest, Target: "calc", Method: wire.MethodAdd, CorrelationID: 9, Add: &wire.Add{A: 2, B: 3}})
	if resp.Kind != wire.KindResponse || resp.CorrelationID != 9 || resp.Add.Sum != 5 {
		t.Fatalf("unexpected add response %+v", resp)
	}

	resp = services.Serve(ctx, h, &wire.Frame{Kind: wire.KindRequest, Target: "calc", Method: wire.MethodEcho, CorrelationID: 10})
	if resp.Kind != wire.KindError || resp.Code != berr.ErrCodeMalformedFrame {
		t.Fatalf("missing payload should answer malformed frame, got %+v", resp)
	}

	resp = services.Serve(ctx, h, &wire.Frame{Kind: wire.KindRequest, Target: "calc", Method: "divide", CorrelationID: 11})
	if resp.Kind != wire.KindError || resp.Code != berr.ErrCodeUnknownTarget {
		t.Fatalf("unknown method should answer unknown target, got %+v", resp)
	}
}

type failing struct{ services.Sample }

func (failing) Echo(context.Context, string) (string, error) { return "", errors.New("disk on fire") }

func TestServe_HandlerErrorIsRemote(t *testing.T) {
	resp := services.Serve(t.Context(), failing{}, &wire.Frame{Kind: wire.KindRequest, Method: wire.MethodEcho, CorrelationID: 1, Echo: &wire.Echo{Message: "x"}})
	if resp.Code != berr.ErrCodeRemote {
		t.Fatalf("want remote code, got %q", resp.Code)
	}
}

func TestOffered(t *testing.T) {
	o := services.NewOffered()

	if err := o.Offer("calc", services.Sample{}); err != nil {
		t.Fatalf("offer: %v", err)
	}

	if err := o.Offer("calc", services.Sample{}); !errors.Is(err, berr.ErrInvalidArgument) {
		t.Fatalf("duplicate offer should fail, got %v", err)
	}

	if err := o.Offer("", services.Sample{}); !errors.Is(err, berr.ErrInvalidArgument) {
		t.Fatalf("empty name should fail, got %v", err)
	}

	if _, ok := o.Lookup("calc"); !ok {
		t.Fatalf("lookup failed")
	}

	if names := o.Names(); len(names) != 1 || names[0] != "calc" {
		t.Fatalf("names: %v", names)
	}

	o.Withdraw("calc")
	o.Withdraw("ghost")

	if _, ok := o.Lookup("calc"); ok {
		t.Fatalf("withdrawn service still found")
	}

	if err := o.Offer("calc", services.Sample{}); err != nil {
		t.Fatalf("offer after withdraw: %v", err)
	}
}
