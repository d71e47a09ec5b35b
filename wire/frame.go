package wire

import (
	"fmt"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

// Kind tells the dispatch core which registry a frame belongs to.
type Kind uint8

const (
	KindNotification Kind = iota + 1
	KindRequest
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Method names a remote procedure offered by a service.
type Method string

const (
	MethodEcho Method = "echo"
	MethodAdd  Method = "add"
)

// Notification is the pub/sub payload.
type Notification struct {
	ID        int32  `json:"id"        msgpack:"id"`
	Message   string `json:"message"   msgpack:"message"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}

// Echo carries the echo request message, or the response message.
type Echo struct {
	Message string `json:"message" msgpack:"message"`
}

// Add carries the operands of an add request, or the sum of a response.
type Add struct {
	A   int32 `json:"a"             msgpack:"a"`
	B   int32 `json:"b"             msgpack:"b"`
	Sum int32 `json:"sum,omitempty" msgpack:"sum,omitempty"`
}

// Frame is the envelope every message travels in.
// Target is the topic for notifications and the service name for requests and responses.
type Frame struct {
	Kind          Kind              `json:"kind"                   msgpack:"kind"`
	Target        string            `json:"target"                 msgpack:"target"`
	Method        Method            `json:"method,omitempty"       msgpack:"method,omitempty"`
	CorrelationID uint64            `json:"correlation_id,omitempty" msgpack:"correlation_id,omitempty"`
	ReplyTo       string            `json:"reply_to,omitempty"     msgpack:"reply_to,omitempty"`
	Code          string            `json:"code,omitempty"         msgpack:"code,omitempty"`
	Error         string            `json:"error,omitempty"        msgpack:"error,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"      msgpack:"headers,omitempty"`

	Notification *Notification `json:"notification,omitempty" msgpack:"notification,omitempty"`
	Echo         *Echo         `json:"echo,omitempty"         msgpack:"echo,omitempty"`
	Add          *Add          `json:"add,omitempty"          msgpack:"add,omitempty"`
}

// Validate checks the envelope invariants of a decoded frame. Payload presence on requests
// is checked by the service that handles them so it can answer with an error frame.
func (f *Frame) Validate() error {
	switch f.Kind {
	case KindNotification:
		if f.Target == "" {
			return fmt.Errorf("notification without topic: %w", berr.ErrMalformedFrame)
		}

		if f.Notification == nil {
			return fmt.Errorf("notification %q without payload: %w", f.Target, berr.ErrMalformedFrame)
		}
	case KindRequest:
		if f.Target == "" || f.ReplyTo == "" || f.CorrelationID == 0 {
			return fmt.Errorf("request missing target, reply-to or correlation id: %w", berr.ErrMalformedFrame)
		}
	case KindResponse, KindError:
		if f.CorrelationID == 0 {
			return fmt.Errorf("%s without correlation id: %w", f.Kind, berr.ErrMalformedFrame)
		}
	default:
		return fmt.Errorf("%s: %w", f.Kind, berr.ErrMalformedFrame)
	}

	return nil
}
