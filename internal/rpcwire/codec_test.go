package rpcwire

import "testing"

type sample struct {
	A string
	B int
}

func TestCodecMarshalUnmarshalRoundTrip(t *testing.T) {
	var c Codec
	in := sample{A: "x", B: 7}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestCodecName(t *testing.T) {
	var c Codec
	if c.Name() != Name {
		t.Fatalf("Name() = %q, want %q", c.Name(), Name)
	}
}
