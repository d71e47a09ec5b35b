// Package nats carries frames over NATS core subjects. Stack subjects map to NATS
// subjects one to one.
package nats

import (
	"github.com/next-trace/scg-comms-stack/adapters/internal/broker"
	"github.com/next-trace/scg-comms-stack/contract/comms"
)

type (
	Client = broker.Client
	Dialer = broker.Dialer
	Hooks  = broker.Hooks
)

// Endpoint implements comms.Endpoint over a NATS connection.
type Endpoint struct{ *broker.Endpoint }

var _ comms.Endpoint = (*Endpoint)(nil)

// New creates an endpoint over dial. Tests pass a dialer returning a fake Client.
func New(dial Dialer) *Endpoint { return &Endpoint{broker.New("nats", dial)} }
