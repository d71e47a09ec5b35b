// Package topics keeps the topic -> subscription mapping and delivers notifications
// to every subscription in wire order on that subscription's own goroutine.
package topics

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/next-trace/scg-comms-stack/contract/comms"
	"github.com/next-trace/scg-comms-stack/wire"
)

// ids are process-wide so they stay unique across stack re-initialization.
var nextID atomic.Int64

// NextID returns a fresh subscription id. The first id is 1.
func NextID() int64 { return nextID.Add(1) }

type event struct {
	n   *wire.Notification
	err string
}

type subscription struct {
	id       int64
	topic    string
	listener comms.NotificationListener

	mailbox chan event
	quit    chan struct{}
	done    chan struct{}
}

func (s *subscription) run() {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.mailbox:
			// quit wins over queued events so nothing fires after Remove.
			select {
			case <-s.quit:
				return
			default:
			}

			if ev.n != nil {
				s.listener.OnNotification(ev.n.ID, ev.n.Message, ev.n.Timestamp)
			} else {
				s.listener.OnError(ev.err)
			}
		}
	}
}

// Registry maps topics to their subscriptions.
type Registry struct {
	mu      sync.RWMutex
	byTopic map[string]map[int64]*subscription
	byID    map[int64]*subscription

	buffer  int
	dropped atomic.Uint64
	logger  *slog.Logger
}

// New creates a registry whose subscriptions buffer up to buffer undelivered events.
func New(buffer int, logger *slog.Logger) *Registry {
	if buffer < 1 {
		buffer = 1
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Registry{
		byTopic: make(map[string]map[int64]*subscription),
		byID:    make(map[int64]*subscription),
		buffer:  buffer,
		logger:  logger,
	}
}

// Add registers listener on topic under id and starts its worker.
// first reports whether it is the only subscription on the topic.
func (r *Registry) Add(id int64, topic string, listener comms.NotificationListener) (first bool) {
	s := &subscription{
		id:       id,
		topic:    topic,
		listener: listener,
		mailbox:  make(chan event, r.buffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	r.mu.Lock()

	set, ok := r.byTopic[topic]
	if !ok {
		set = make(map[int64]*subscription)
		r.byTopic[topic] = set
	}

	set[id] = s
	r.byID[id] = s
	first = len(set) == 1

	r.mu.Unlock()

	go s.run()

	return first
}

// Remove unregisters id and waits for an in-flight callback to return.
// ok is false for unknown ids; last reports whether the topic has no subscriptions left.
func (r *Registry) Remove(id int64) (topic string, last, ok bool) {
	r.mu.Lock()

	s, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return "", false, false
	}

	delete(r.byID, id)

	set := r.byTopic[s.topic]
	delete(set, id)

	if len(set) == 0 {
		delete(r.byTopic, s.topic)

		last = true
	}

	r.mu.Unlock()

	close(s.quit)
	<-s.done

	return s.topic, last, true
}

// Deliver enqueues n for every subscription of topic. It never blocks: a full
// mailbox drops the notification for that subscription.
func (r *Registry) Deliver(topic string, n wire.Notification) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byTopic[topic]
	for _, s := range set {
		r.post(s, event{n: &n})
	}

	return len(set)
}

// Fail posts message to the OnError of every subscription.
func (r *Registry) Fail(message string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.byID {
		r.post(s, event{err: message})
	}
}

func (r *Registry) post(s *subscription, ev event) {
	select {
	case s.mailbox <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("subscription mailbox full, dropping event",
			slog.String("topic", s.topic), slog.Int64("subscription_id", s.id))
	}
}

// Close removes every subscription and waits for their workers. It returns the topics that were active.
func (r *Registry) Close() []string {
	r.mu.Lock()

	subs := make([]*subscription, 0, len(r.byID))
	for _, s := range r.byID {
		subs = append(subs, s)
	}

	topics := make([]string, 0, len(r.byTopic))
	for t := range r.byTopic {
		topics = append(topics, t)
	}

	r.byID = make(map[int64]*subscription)
	r.byTopic = make(map[string]map[int64]*subscription)

	r.mu.Unlock()

	for _, s := range subs {
		close(s.quit)
	}

	for _, s := range subs {
		<-s.done
	}

	sort.Strings(topics)

	return topics
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// Has reports whether id is registered.
func (r *Registry) Has(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byID[id]

	return ok
}

// Dropped returns how many events were discarded because a mailbox was full.
func (r *Registry) Dropped() uint64 { return r.dropped.Load() }
