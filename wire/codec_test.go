package wire_test

import (
	"errors"
	"math"
	"testing"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/wire"
)

func TestCodecs_PreserveFrameFields(t *testing.T) {
	in := &wire.Frame{
		Kind:          wire.KindRequest,
		Target:        "SampleRpc",
		Method:        wire.MethodAdd,
		CorrelationID: 42,
		ReplyTo:       "comms._inbox.app.x",
		Headers:       map[string]string{"app": "demo"},
		Add:           &wire.Add{A: math.MaxInt32, B: math.MinInt32},
	}

	for _, c := range []wire.Codec{wire.JSON(), wire.Msgpack()} {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}

		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", c.Name(), err)
		}

		if out.Kind != in.Kind || out.Target != in.Target || out.Method != in.Method ||
			out.CorrelationID != in.CorrelationID || out.ReplyTo != in.ReplyTo {
			t.Fatalf("%s envelope mismatch: %+v", c.Name(), out)
		}

		if out.Add == nil || out.Add.A != math.MaxInt32 || out.Add.B != math.MinInt32 {
			t.Fatalf("%s add payload mismatch: %+v", c.Name(), out.Add)
		}

		if out.Headers["app"] != "demo" {
			t.Fatalf("%s headers: %+v", c.Name(), out.Headers)
		}

		if err := out.Validate(); err != nil {
			t.Fatalf("%s validate: %v", c.Name(), err)
		}
	}
}

func TestCodecs_DecodeGarbage(t *testing.T) {
	for _, c := range []wire.Codec{wire.JSON(), wire.Msgpack()} {
		_, err := c.Decode([]byte{0xc1, 0x00, 0x7b})
		if !errors.Is(err, berr.ErrMalformedFrame) {
			t.Fatalf("%s: want ErrMalformedFrame, got %v", c.Name(), err)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := wire.NewRegistry()

	if _, err := r.Get("json"); err != nil {
		t.Fatalf("json: %v", err)
	}

	if _, err := r.Get("msgpack"); err != nil {
		t.Fatalf("msgpack: %v", err)
	}

	if _, err := r.Get("xml"); !errors.Is(err, berr.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "json" || names[1] != "msgpack" {
		t.Fatalf("names=%v", names)
	}
}

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name string
		f    wire.Frame
		ok   bool
	}{
		{"notification", wire.Frame{Kind: wire.KindNotification, Target: "t", Notification: &wire.Notification{}}, true},
		{"notification no topic", wire.Frame{Kind: wire.KindNotification, Notification: &wire.Notification{}}, false},
		{"notification no payload", wire.Frame{Kind: wire.KindNotification, Target: "t"}, false},
		{"request", wire.Frame{Kind: wire.KindRequest, Target: "s", ReplyTo: "r", CorrelationID: 1}, true},
		{"request no reply", wire.Frame{Kind: wire.KindRequest, Target: "s", CorrelationID: 1}, false},
		{"response", wire.Frame{Kind: wire.KindResponse, CorrelationID: 9}, true},
		{"error no id", wire.Frame{Kind: wire.KindError}, false},
		{"unknown kind", wire.Frame{Kind: 77}, false},
	}

	for _, tc := range tests {
		err := tc.f.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected %v", tc.name, err)
		}

		if !tc.ok && !errors.Is(err, berr.ErrMalformedFrame) {
			t.Fatalf("%s: want ErrMalformedFrame, got %v", tc.name, err)
		}
	}
}
