package broker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/next-trace/scg-comms-stack/adapters/internal/broker"
	"github.com/next-trace/scg-comms-stack/contract/comms"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

type fakeClient struct {
	mu        sync.Mutex
	hooks     broker.Hooks
	published []string
	subs      map[string]bool
	closed    bool
	pubErr    error
}

func (f *fakeClient) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.published = append(f.published, subject+"="+string(data))

	return f.pubErr
}

func (f *fakeClient) Subscribe(subject string) (func() error, error) {
	f.mu.Lock()
	f.subs[subject] = true
	f.mu.Unlock()

	return func() error {
		f.mu.Lock()
		delete(f.subs, subject)
		f.mu.Unlock()

		return nil
	}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	return nil
}

type inbound struct {
	frames chan string
	errs   chan error
}

func newInbound() *inbound {
	return &inbound{frames: make(chan string, 16), errs: make(chan error, 4)}
}

func (i *inbound) HandleFrame(subject string, data []byte) { i.frames <- subject + "=" + string(data) }
func (i *inbound) HandleTransportError(err error)          { i.errs <- err }

func openFake(t *testing.T) (*broker.Endpoint, *fakeClient, *inbound) {
	t.Helper()

	fc := &fakeClient{subs: map[string]bool{}}
	e := broker.New("fake", func(_ context.Context, h broker.Hooks) (broker.Client, error) {
		fc.hooks = h

		return fc, nil
	})
	in := newInbound()

	if err := e.Open(t.Context(), in); err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = e.Close() })

	return e, fc, in
}

func TestEndpoint_Lifecycle(t *testing.T) {
	e, fc, in := openFake(t)

	if e.State() != comms.StateUp {
		t.Fatalf("state %s", e.State())
	}

	if err := e.Listen("a"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	if !fc.subs["a"] {
		t.Fatalf("client not subscribed")
	}

	if err := e.Publish(t.Context(), "a", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	fc.hooks.Deliver("a", []byte("1"))
	fc.hooks.Deliver("a", []byte("2"))

	for _, want := range []string{"a=1", "a=2"} {
		select {
		case got := <-in.frames:
			if got != want {
				t.Fatalf("got %s want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no delivery")
		}
	}

	if err := e.Unlisten("a"); err != nil || fc.subs["a"] {
		t.Fatalf("unlisten: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !fc.closed || e.State() != comms.StateDown {
		t.Fatalf("close did not tear down")
	}

	if err := e.Publish(t.Context(), "a", nil); !errors.Is(err, berr.ErrTransport) {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestEndpoint_LostReportsOnce(t *testing.T) {
	e, fc, in := openFake(t)

	fc.hooks.Lost(errors.New("broker gone"))
	fc.hooks.Lost(errors.New("again"))

	select {
	case err := <-in.errs:
		if err == nil {
			t.Fatalf("nil error")
		}
	case <-time.After(time.Second):
		t.Fatalf("transport error not reported")
	}

	select {
	case err := <-in.errs:
		t.Fatalf("second transport error %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	if e.State() != comms.StateDown {
		t.Fatalf("state %s", e.State())
	}
}

func TestEndpoint_PublishErrors(t *testing.T) {
	e, fc, _ := openFake(t)

	fc.pubErr = errors.New("boom")
	if err := e.Publish(t.Context(), "s", nil); !errors.Is(err, berr.ErrTransport) {
		t.Fatalf("want transport error, got %v", err)
	}

	fc.pubErr = context.Canceled
	if err := e.Publish(t.Context(), "s", nil); !errors.Is(err, context.Canceled) || errors.Is(err, berr.ErrTransport) {
		t.Fatalf("context error must pass through untouched, got %v", err)
	}
}

func TestEndpoint_DialFailure(t *testing.T) {
	e := broker.New("fake", func(context.Context, broker.Hooks) (broker.Client, error) {
		return nil, errors.New("refused")
	})

	if err := e.Open(t.Context(), newInbound()); !errors.Is(err, berr.ErrTransport) {
		t.Fatalf("want transport error, got %v", err)
	}

	if e.State() != comms.StateDown {
		t.Fatalf("state %s", e.State())
	}

	if err := e.Listen("x"); !errors.Is(err, berr.ErrTransport) {
		t.Fatalf("listen while down: %v", err)
	}
}

func TestEndpoint_NoDialer(t *testing.T) {
	if err := broker.New("fake", nil).Open(t.Context(), newInbound()); !errors.Is(err, berr.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}
