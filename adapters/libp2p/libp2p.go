// Package libp2p carries frames over a gossipsub mesh. Every stack subject is a gossipsub
// topic; peers are found through bootstrap addresses and, optionally, mDNS.
//
// A mesh has no single connection to lose, so the endpoint never reports a transport error
// on its own; peers joining and leaving only change who receives frames.
package libp2p

import (
	"context"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/next-trace/scg-comms-stack/adapters/internal/broker"
	"github.com/next-trace/scg-comms-stack/contract/comms"
)

type (
	Client = broker.Client
	Dialer = broker.Dialer
	Hooks  = broker.Hooks
)

// Endpoint implements comms.Endpoint over gossipsub.
type Endpoint struct{ *broker.Endpoint }

var _ comms.Endpoint = (*Endpoint)(nil)

func New(dial Dialer) *Endpoint { return &Endpoint{broker.New("libp2p", dial)} }

// Subscription is the part of *pubsub.Subscription the reader uses.
type Subscription interface {
	Next(ctx context.Context) (*pubsub.Message, error)
	Cancel()
}

// Pump forwards messages from sub to deliver until sub is cancelled or ctx ends.
// Frames we published ourselves are delivered too, the same way every other broker loops them back.
func Pump(ctx context.Context, subject string, sub Subscription, deliver func(string, []byte)) {
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			return
		}

		deliver(subject, append([]byte(nil), m.Data...))
	}
}
