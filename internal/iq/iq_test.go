package iq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestBytesRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 3, 1024} {
		raw := make([]byte, n*BytesPerSample)
		for i := 0; i < n*2; i++ {
			// Stay clear of NaN payloads, which may not survive float conversion.
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(rng.Float32()*2-1))
		}

		samples, err := BytesToIQ(raw)
		if err != nil {
			t.Fatalf("n=%d: BytesToIQ failed: %v", n, err)
		}
		if len(samples) != n {
			t.Fatalf("n=%d: got %d samples", n, len(samples))
		}
		if back := IQToBytes(samples); !bytes.Equal(back, raw) {
			t.Fatalf("n=%d: round trip changed bytes", n)
		}
	}
}

func TestSamplesRoundTripPreservesOrder(t *testing.T) {
	in := []complex64{complex(1, -1), complex(0.5, 0.25), complex(-3, 7)}
	buf := IQToBytes(in)
	if len(buf) != 8*len(in) {
		t.Fatalf("expected %d bytes got %d", 8*len(in), len(buf))
	}
	out, err := BytesToIQ(buf)
	if err != nil {
		t.Fatalf("BytesToIQ failed: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: expected %v got %v", i, in[i], out[i])
		}
	}
}

func TestIQToBytesDoesNotAlias(t *testing.T) {
	in := []complex64{complex(1, 2)}
	buf := IQToBytes(in)
	in[0] = complex(9, 9)
	out, _ := BytesToIQ(buf)
	if out[0] != complex(1, 2) {
		t.Fatalf("buffer followed caller mutation: %v", out[0])
	}
}

func TestBytesToIQRejectsMisaligned(t *testing.T) {
	_, err := BytesToIQ(make([]byte, 12))
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestLayoutIsInterleavedLittleEndian(t *testing.T) {
	buf := IQToBytes([]complex64{complex(1, -2)})
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}
	if !bytes.Equal(buf, want) {
		t.Fatalf("unexpected layout % x", buf)
	}
}
