package libp2p

import (
	"context"
	"errors"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

// Concrete go-libp2p host and gossipsub backed dialer and constructor.

const defaultListenAddr = "/ip4/0.0.0.0/tcp/0"

type Config struct {
	ListenAddrs []string
	Bootstrap   []string
	Rendezvous  string
	MDNS        bool
}

// ParseMultiaddrs parses addrs, skipping empty entries.
func ParseMultiaddrs(addrs []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(addrs))

	for _, s := range addrs {
		if s == "" {
			continue
		}

		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid multiaddr %q: %w", s, err)
		}

		out = append(out, a)
	}

	return out, nil
}

type gossipClient struct {
	ctx     context.Context
	cancel  context.CancelFunc
	host    host.Host
	ps      *pubsub.PubSub
	deliver func(string, []byte)

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	wg     sync.WaitGroup
	mdns   mdns.Service
}

func (c *gossipClient) join(subject string) (*pubsub.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.topics[subject]; ok {
		return t, nil
	}

	t, err := c.ps.Join(subject)
	if err != nil {
		return nil, err
	}

	c.topics[subject] = t

	return t, nil
}

func (c *gossipClient) Publish(ctx context.Context, subject string, data []byte) error {
	t, err := c.join(subject)
	if err != nil {
		return err
	}

	return t.Publish(ctx, data)
}

func (c *gossipClient) Subscribe(subject string) (func() error, error) {
	t, err := c.join(subject)
	if err != nil {
		return nil, err
	}

	sub, err := t.Subscribe()
	if err != nil {
		return nil, err
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		Pump(c.ctx, subject, sub, c.deliver)
	}()

	return func() error {
		sub.Cancel()

		return nil
	}, nil
}

func (c *gossipClient) Close() error {
	c.cancel()

	if c.mdns != nil {
		_ = c.mdns.Close()
	}

	c.mu.Lock()
	for _, t := range c.topics {
		_ = t.Close()
	}
	c.topics = map[string]*pubsub.Topic{}
	c.mu.Unlock()

	err := c.host.Close()

	c.wg.Wait()

	return err
}

type mdnsNotifee struct {
	ctx  context.Context
	host host.Host
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	_ = n.host.Connect(n.ctx, info)
}

// Dial returns a Dialer that starts a host, joins gossipsub and connects the bootstrap peers.
// Open fails only if no bootstrap peer is reachable while some were configured.
func Dial(cfg Config) Dialer {
	return func(ctx context.Context, h Hooks) (Client, error) {
		listen, err := ParseMultiaddrs(cfg.ListenAddrs)
		if err != nil {
			return nil, err
		}

		if len(listen) == 0 {
			a, _ := ma.NewMultiaddr(defaultListenAddr)
			listen = append(listen, a)
		}

		bootstrap, err := ParseMultiaddrs(cfg.Bootstrap)
		if err != nil {
			return nil, err
		}

		hst, err := libp2p.New(libp2p.ListenAddrs(listen...))
		if err != nil {
			return nil, fmt.Errorf("create host: %w", err)
		}

		// the mesh outlives the connect context
		life, cancel := context.WithCancel(context.Background())

		ps, err := pubsub.NewGossipSub(life, hst)
		if err != nil {
			cancel()
			_ = hst.Close()

			return nil, fmt.Errorf("create gossipsub: %w", err)
		}

		c := &gossipClient{
			ctx:     life,
			cancel:  cancel,
			host:    hst,
			ps:      ps,
			deliver: h.Deliver,
			topics:  make(map[string]*pubsub.Topic),
		}

		if cfg.MDNS {
			c.mdns = mdns.NewMdnsService(hst, cfg.Rendezvous, &mdnsNotifee{ctx: life, host: hst})
			if err := c.mdns.Start(); err != nil {
				_ = c.Close()

				return nil, fmt.Errorf("start mdns: %w", err)
			}
		}

		var lastErr error

		connected := 0

		for _, addr := range bootstrap {
			info, err := peer.AddrInfoFromP2pAddr(addr)
			if err != nil {
				lastErr = err

				continue
			}

			if err := hst.Connect(ctx, *info); err != nil {
				lastErr = err

				continue
			}

			connected++
		}

		if len(bootstrap) > 0 && connected == 0 {
			_ = c.Close()

			return nil, fmt.Errorf("no bootstrap peer reachable: %w", lastErr)
		}

		return c, nil
	}
}

// NewWithHost validates cfg and returns an endpoint that starts its host on Open.
func NewWithHost(cfg Config) (*Endpoint, error) {
	if _, err := ParseMultiaddrs(cfg.ListenAddrs); err != nil {
		return nil, fmt.Errorf("libp2p listen addrs: %w", errors.Join(berr.ErrConfiguration, err))
	}

	if _, err := ParseMultiaddrs(cfg.Bootstrap); err != nil {
		return nil, fmt.Errorf("libp2p bootstrap: %w", errors.Join(berr.ErrConfiguration, err))
	}

	if cfg.MDNS && cfg.Rendezvous == "" {
		return nil, fmt.Errorf("libp2p mdns needs a rendezvous: %w", berr.ErrConfiguration)
	}

	return New(Dial(cfg)), nil
}
