package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/wire"
)

// correlation ids are process-scoped, starting at 1.
var nextCorrelation atomic.Uint64

// Completion receives the response frame, or the error that ended the call.
type Completion func(resp *wire.Frame, err error)

type pendingCall struct {
	service string
	method  wire.Method
	done    Completion
	timer   *time.Timer
}

// Pending tracks outstanding calls. Each call completes exactly once: whoever removes
// it from the table (response, error, timeout, FailAll) runs its completion.
type Pending struct {
	mu    sync.Mutex
	calls map[uint64]*pendingCall
}

func NewPending() *Pending {
	return &Pending{calls: make(map[uint64]*pendingCall)}
}

// Register allocates a correlation id for a call and arms its timeout.
func (p *Pending) Register(service string, method wire.Method, timeout time.Duration, done Completion) uint64 {
	id := nextCorrelation.Add(1)
	pc := &pendingCall{service: service, method: method, done: done}

	p.mu.Lock()
	p.calls[id] = pc

	if timeout > 0 {
		pc.timer = time.AfterFunc(timeout, func() {
			p.Fail(id, fmt.Errorf("%s.%s after %s: %w", service, method, timeout, berr.ErrTimeout))
		})
	}
	p.mu.Unlock()

	return id
}

func (p *Pending) take(id uint64) *pendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.calls[id]
	if !ok {
		return nil
	}

	delete(p.calls, id)

	if pc.timer != nil {
		pc.timer.Stop()
	}

	return pc
}

// Resolve completes call id with resp. Error frames complete it with the coded error they carry.
// It returns false when no call with that id is pending.
func (p *Pending) Resolve(id uint64, resp *wire.Frame) bool {
	pc := p.take(id)
	if pc == nil {
		return false
	}

	if resp.Kind == wire.KindError {
		pc.done(nil, RemoteError(resp))

		return true
	}

	pc.done(resp, nil)

	return true
}

// Fail completes call id with err. It returns false when no call with that id is pending.
func (p *Pending) Fail(id uint64, err error) bool {
	pc := p.take(id)
	if pc == nil {
		return false
	}

	pc.done(nil, err)

	return true
}

// FailAll completes every pending call with err and returns how many there were.
func (p *Pending) FailAll(err error) int {
	p.mu.Lock()

	calls := p.calls
	p.calls = make(map[uint64]*pendingCall)

	for _, pc := range calls {
		if pc.timer != nil {
			pc.timer.Stop()
		}
	}
	p.mu.Unlock()

	for _, pc := range calls {
		pc.done(nil, err)
	}

	return len(calls)
}

// Len returns the number of outstanding calls.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}

// RemoteError turns an error frame into an error matching the sentinel of its code.
func RemoteError(f *wire.Frame) error {
	return fmt.Errorf("%s.%s: %s: %w", f.Target, f.Method, f.Error, berr.FromCode(f.Code))
}
