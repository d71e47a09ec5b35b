package comms

import "context"

// State is the lifecycle of a transport endpoint: Down -> Connecting -> Up -> Down.
type State int32

const (
	StateDown State = iota
	StateConnecting
	StateUp
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateConnecting:
		return "connecting"
	case StateUp:
		return "up"
	default:
		return "unknown"
	}
}

// Inbound receives everything an endpoint brings in from the network.
//
// Endpoints call HandleFrame from a single delivery lane, so frames arrive in wire order.
// HandleTransportError is called at most once per Open, after which the endpoint is Down.
// Implementations must not block for long; the delivery lane is shared by every subject.
type Inbound interface {
	HandleFrame(subject string, data []byte)
	HandleTransportError(err error)
}

// Endpoint abstracts the network or IPC substrate carrying frames between stacks.
// Library users provide an implementation backed by their broker (NATS, RabbitMQ, Kafka, MQTT, libp2p, in-memory).
type Endpoint interface {
	// Open binds the endpoint and starts delivering to in. It blocks until Up or failure.
	Open(ctx context.Context, in Inbound) error
	// Publish hands data off to the substrate. Success does not confirm delivery.
	Publish(ctx context.Context, subject string, data []byte) error
	// Listen starts delivering frames published on subject.
	Listen(subject string) error
	// Unlisten stops delivering frames published on subject.
	Unlisten(subject string) error
	State() State
	// Close tears the endpoint down. No Inbound call happens after Close returns.
	Close() error
}

// Resolver is implemented by endpoints that can tell whether anybody listens on a subject.
// The dispatch core uses it to fail calls to unserved services immediately.
type Resolver interface {
	Reachable(subject string) bool
}
