package memory

import (
	"context"
	"fmt"

	"github.com/next-trace/scg-comms-stack/adapters/inmemory"
	"github.com/next-trace/scg-comms-stack/stack"
)

// New constructs an active stack on a private in-memory network and returns it
// along with a cleanup function that shuts it down. Options apply after the endpoint,
// so WithEndpoint still wins.
func New(appName string, opts ...stack.Option) (*stack.Stack, func(), error) {
	return NewOn(inmemory.NewNetwork(), appName, opts...)
}

// NewOn is New on a caller-provided network, so several stacks can talk to each other.
func NewOn(n *inmemory.Network, appName string, opts ...stack.Option) (*stack.Stack, func(), error) {
	opts = append([]stack.Option{stack.WithEndpoint(inmemory.New(n))}, opts...)
	s := stack.New(opts...)

	if err := s.Open(context.Background(), appName, ""); err != nil {
		return nil, nil, fmt.Errorf("memory stack %q: %w", appName, err)
	}

	return s, s.Shutdown, nil
}
