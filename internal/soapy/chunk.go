package soapy

import (
	"math"

	"github.com/rjboer/gosoapy/internal/iq"
)

const (
	// RXChunkBase is the receive chunk, in samples, at the 1 MHz reference rate.
	RXChunkBase = 16384
	// TXChunkSize is the transmit chunk, in samples, for chunked sends.
	TXChunkSize = RXChunkBase * 2
	// ContinuousTX means "send whatever batch is queued, unchunked".
	ContinuousTX = -1

	referenceRate = 1e6
)

// ScaledChunk is RXChunkBase times the whole number of MHz in rate. It is zero
// below 1 MHz.
func ScaledChunk(rate float64) int {
	mult := math.Floor(rate / referenceRate)
	if mult < 0 || math.IsNaN(mult) {
		return 0
	}
	return RXChunkBase * int(mult)
}

// Chunker owns the chunk sizes of one Backend.
type Chunker struct {
	rx int
}

// NewChunker starts at RXChunkBase.
func NewChunker() Chunker { return Chunker{rx: RXChunkBase} }

// Adapt rescales the receive chunk for rate. Rates below the reference would
// scale to zero; those are clamped to RXChunkBase and reported as clamped.
func (c *Chunker) Adapt(rate float64) (clamped bool) {
	n := ScaledChunk(rate)
	if n < RXChunkBase {
		c.rx = RXChunkBase
		return true
	}
	c.rx = n
	return false
}

// RX is the current receive chunk in samples.
func (c Chunker) RX() int {
	if c.rx == 0 {
		return RXChunkBase
	}
	return c.rx
}

// TX is the transmit chunk in samples, or ContinuousTX.
func (c Chunker) TX(continuous bool) int {
	if continuous {
		return ContinuousTX
	}
	return TXChunkSize
}

// Split cuts a wire buffer into transmit pieces on sample boundaries. In
// continuous mode the whole buffer is one piece.
func (c Chunker) Split(buf []byte, continuous bool) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	size := c.TX(continuous)
	if size == ContinuousTX {
		return [][]byte{buf}
	}
	step := iq.Bytes(size)
	out := make([][]byte, 0, (len(buf)+step-1)/step)
	for off := 0; off < len(buf); off += step {
		end := min(off+step, len(buf))
		out = append(out, buf[off:end])
	}
	return out
}
