package broker

import (
	"sync"

	"github.com/next-trace/scg-comms-stack/contract/comms"
)

type delivery struct {
	subject string
	data    []byte
}

// lane funnels deliveries from client goroutines into one ordered stream.
type lane struct {
	in       comms.Inbound
	ch       chan delivery
	errs     chan error
	failOnce sync.Once
	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func startLane(in comms.Inbound, buffer int) *lane {
	l := &lane{
		in:   in,
		ch:   make(chan delivery, buffer),
		errs: make(chan error, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go l.run()

	return l
}

// deliver blocks while the lane is full so the client applies its own backpressure.
func (l *lane) deliver(subject string, data []byte) {
	select {
	case l.ch <- delivery{subject: subject, data: data}:
	case <-l.quit:
	}
}

func (l *lane) fail(err error) {
	l.failOnce.Do(func() { l.errs <- err })
}

func (l *lane) run() {
	defer close(l.done)

	for {
		select {
		case <-l.quit:
			return
		case err := <-l.errs:
			l.in.HandleTransportError(err)

			return
		case d := <-l.ch:
			select {
			case <-l.quit:
				return
			default:
			}

			l.in.HandleFrame(d.subject, d.data)
		}
	}
}

func (l *lane) stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}
