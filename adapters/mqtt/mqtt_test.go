package mqtt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/next-trace/scg-comms-stack/adapters/mqtt"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

type token struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)

	return t
}

func (t *token) Wait() bool                     { <-t.done; return true }
func (t *token) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakePaho struct {
	mu           sync.Mutex
	published    map[string][]byte
	handlers     map[string]pahomqtt.MessageHandler
	disconnected bool
	pubErr       error
}

func newFakePaho() *fakePaho {
	return &fakePaho{published: map[string][]byte{}, handlers: map[string]pahomqtt.MessageHandler{}}
}

func (f *fakePaho) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, _ := payload.([]byte)
	f.published[topic] = b

	return doneToken(f.pubErr)
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[topic] = cb

	return doneToken(nil)
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range topics {
		delete(f.handlers, t)
	}

	return doneToken(nil)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakePaho) handler(topic string) pahomqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.handlers[topic]
}

type inbound struct{ frames chan string }

func (i inbound) HandleFrame(subject string, data []byte) { i.frames <- subject + "=" + string(data) }
func (i inbound) HandleTransportError(error)              {}

func TestTopicMapping(t *testing.T) {
	if got := mqtt.TopicFor("comms.topic.news"); got != "comms/topic/news" {
		t.Fatalf("TopicFor: %s", got)
	}

	if got := mqtt.SubjectFor("comms/topic/news"); got != "comms.topic.news" {
		t.Fatalf("SubjectFor: %s", got)
	}
}

func TestMQTT_PublishSubscribeDeliver(t *testing.T) {
	fp := newFakePaho()
	in := inbound{frames: make(chan string, 4)}

	ep := mqtt.New(func(_ context.Context, h mqtt.Hooks) (mqtt.Client, error) {
		return mqtt.NewPahoClient(fp, 1, h.Deliver), nil
	})

	if err := ep.Open(t.Context(), in); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := ep.Publish(t.Context(), "comms.topic.news", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if string(fp.published["comms/topic/news"]) != "x" {
		t.Fatalf("published %v", fp.published)
	}

	if err := ep.Listen("comms.topic.news"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	h := fp.handler("comms/topic/news")
	if h == nil {
		t.Fatalf("no handler registered")
	}

	h(nil, message{topic: "comms/topic/news", payload: []byte("hello")})

	select {
	case got := <-in.frames:
		if got != "comms.topic.news=hello" {
			t.Fatalf("delivered %s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("message not delivered")
	}

	if err := ep.Unlisten("comms.topic.news"); err != nil || fp.handler("comms/topic/news") != nil {
		t.Fatalf("unlisten: %v", err)
	}

	if err := ep.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if !fp.disconnected {
		t.Fatalf("client not disconnected")
	}
}

func TestMQTT_PublishErrorIsTransport(t *testing.T) {
	fp := newFakePaho()
	fp.pubErr = errors.New("not connected")

	ep := mqtt.New(func(_ context.Context, h mqtt.Hooks) (mqtt.Client, error) {
		return mqtt.NewPahoClient(fp, 0, h.Deliver), nil
	})

	if err := ep.Open(t.Context(), inbound{frames: make(chan string, 1)}); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ep.Close()

	if err := ep.Publish(t.Context(), "s", nil); !errors.Is(err, berr.ErrTransport) {
		t.Fatalf("want transport error, got %v", err)
	}
}

func TestNewWithPaho_Validation(t *testing.T) {
	if _, err := mqtt.NewWithPaho(mqtt.Config{}); !errors.Is(err, berr.ErrConfiguration) {
		t.Fatalf("empty broker: %v", err)
	}

	if _, err := mqtt.NewWithPaho(mqtt.Config{Broker: "tcp://localhost:1883", QoS: 3}); !errors.Is(err, berr.ErrConfiguration) {
		t.Fatalf("bad qos: %v", err)
	}
}
