package stack

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/next-trace/scg-comms-stack/adapters/inmemory"
	"github.com/next-trace/scg-comms-stack/adapters/kafka"
	"github.com/next-trace/scg-comms-stack/adapters/libp2p"
	"github.com/next-trace/scg-comms-stack/adapters/mqtt"
	"github.com/next-trace/scg-comms-stack/adapters/nats"
	"github.com/next-trace/scg-comms-stack/adapters/rabbitmq"
	"github.com/next-trace/scg-comms-stack/config"
	"github.com/next-trace/scg-comms-stack/contract/comms"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

// EndpointFor builds the endpoint cfg.Transport selects. Nothing connects until Open.
func EndpointFor(cfg config.Config) (comms.Endpoint, error) {
	t := cfg.Transport

	switch t.Kind {
	case config.TransportMemory:
		return inmemory.New(inmemory.Named(t.Memory.Network)), nil
	case config.TransportNATS:
		name := t.NATS.Name
		if name == "" {
			name = cfg.AppName
		}

		return endpoint(nats.NewWithNATS(nats.Config{URL: t.NATS.URL, Name: name, ConnTimeout: t.NATS.ConnTimeout}))
	case config.TransportRabbitMQ:
		return endpoint(rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         t.RabbitMQ.URL,
			Exchange:    t.RabbitMQ.Exchange,
			ConnTimeout: t.RabbitMQ.ConnTimeout,
		}))
	case config.TransportKafka:
		return endpoint(kafka.NewWithKgo(kafka.Config{Brokers: t.Kafka.Brokers, ClientID: t.Kafka.ClientID}))
	case config.TransportMQTT:
		id := t.MQTT.ClientID
		if id == "" {
			// brokers kick the older session when two clients share an id
			id = cfg.AppName + "-" + uuid.NewString()[:8]
		}

		return endpoint(mqtt.NewWithPaho(mqtt.Config{
			Broker:      t.MQTT.Broker,
			ClientID:    id,
			QoS:         t.MQTT.QoS,
			ConnTimeout: t.MQTT.ConnTimeout,
		}))
	case config.TransportLibp2p:
		return endpoint(libp2p.NewWithHost(libp2p.Config{
			ListenAddrs: t.Libp2p.ListenAddrs,
			Bootstrap:   t.Libp2p.Bootstrap,
			Rendezvous:  t.Libp2p.Rendezvous,
			MDNS:        t.Libp2p.MDNS,
		}))
	default:
		return nil, fmt.Errorf("transport kind %q: %w", t.Kind, berr.ErrConfiguration)
	}
}

// endpoint keeps a typed nil out of the interface on error.
func endpoint[E comms.Endpoint](ep E, err error) (comms.Endpoint, error) {
	if err != nil {
		return nil, err
	}

	return ep, nil
}
