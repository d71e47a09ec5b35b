package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec turns frames into bytes and back. Implementations must be safe for concurrent use.
type Codec interface {
	Name() string
	Encode(f *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)
}

type jsonCodec struct{}

// JSON returns the encoding/json codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Encode(f *Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", errors.Join(berr.ErrSerialization, err))
	}

	return b, nil
}

func (jsonCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("json decode: %w", errors.Join(berr.ErrMalformedFrame, err))
	}

	return &f, nil
}

type msgpackCodec struct{}

// Msgpack returns the msgpack codec; frames are smaller than JSON and keep int widths.
func Msgpack() Codec { return msgpackCodec{} }

func (msgpackCodec) Name() string { return CodecMsgpack }

func (msgpackCodec) Encode(f *Frame) ([]byte, error) {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", errors.Join(berr.ErrSerialization, err))
	}

	return b, nil
}

func (msgpackCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", errors.Join(berr.ErrMalformedFrame, err))
	}

	return &f, nil
}

// Registry maps codec names to codecs.
type Registry struct{ byName map[string]Codec }

// NewRegistry constructs a registry preloaded with the JSON and msgpack codecs.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Msgpack())

	return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) { r.byName[c.Name()] = c }

// Get returns a codec by name.
func (r *Registry) Get(name string) (Codec, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("codec %q: %w", name, berr.ErrConfiguration)
	}

	return c, nil
}

// Names lists registered codec names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}

	sort.Strings(out)

	return out
}
