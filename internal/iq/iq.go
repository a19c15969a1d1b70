// Package iq converts between the CF32 wire layout used on the data channel
// and in-memory complex samples.
//
// The wire layout is packed little-endian float32 pairs: I0 Q0 I1 Q1 ...,
// eight bytes per sample, matching SoapySDR's SOAPY_SDR_CF32 format on the
// hosts we run on.
package iq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BytesPerSample is the size of one interleaved I/Q pair on the wire.
const BytesPerSample = 8

// ErrMisaligned reports a buffer whose length is not a whole number of samples.
var ErrMisaligned = errors.New("iq: buffer length not a multiple of 8")

// BytesToIQ reinterprets buf as consecutive (I, Q) float32 pairs.
func BytesToIQ(buf []byte) ([]complex64, error) {
	if len(buf)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMisaligned, len(buf))
	}

	n := len(buf) / BytesPerSample
	out := make([]complex64, n)
	for k := 0; k < n; k++ {
		off := k * BytesPerSample
		i := math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		q := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		out[k] = complex(i, q)
	}
	return out, nil
}

// IQToBytes flattens samples into a freshly allocated wire buffer of exactly
// 8*len(samples) bytes. The result never aliases samples, so it may be handed
// to a data channel while the caller keeps mutating its own slice.
func IQToBytes(samples []complex64) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for k, s := range samples {
		off := k * BytesPerSample
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(imag(s)))
	}
	return buf
}

// Samples returns the number of whole samples in a wire buffer of n bytes.
func Samples(n int) int { return n / BytesPerSample }

// Bytes returns the wire size of n samples.
func Bytes(n int) int { return n * BytesPerSample }
