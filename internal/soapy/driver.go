// Package soapy adapts a SoapySDR device to the worker-process contract:
// lifecycle, synchronous chunked streaming and the normalized parameter set.
package soapy

import (
	"fmt"
)

// Driver is the native SoapySDR surface the Backend drives. All methods act
// on the single device handle owned by the driver and on the channel and
// direction selected through SetDirection.
//
// Stream buffers are raw CF32: interleaved little-endian float32 I/Q pairs,
// eight bytes per sample. ReadStream and WriteStream report samples, not
// bytes, and may transfer fewer than the buffer holds.
type Driver interface {
	Enumerate(args string) ([]string, error)
	Open(args string) error
	Close() error
	LastError() string
	Representation() string

	SetDirection(tx bool)
	SetSubdevice(mapping string) error
	SetFrequency(hz float64) error
	SetSampleRate(hz float64) error
	SetBandwidth(hz float64) error
	// SetGain takes a gain normalized to 0..1 of the device's overall range.
	SetGain(normalized float64) error
	Antenna() (string, error)
	Antennas() ([]string, error)
	SetAntenna(name string) error

	SetupStream() error
	ActivateStream(numElems int) error
	ReadStream(buf []byte) (int, error)
	WriteStream(buf []byte) (int, error)
	// DeactivateStream and CloseStream must be safe without a stream.
	DeactivateStream() error
	CloseStream() error
}

// NativeError is a failed driver call with its SoapySDR return code.
type NativeError struct {
	Op  string
	Ret int
	Msg string
}

func (e *NativeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, ErrToStr(e.Ret))
	}
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Msg, e.Ret)
}

// Code implements device.Coder.
func (e *NativeError) Code() int { return e.Ret }

// NewDriver returns the driver registered under name: "sim" for the
// simulator, "native" for libSoapySDR (requires the soapysdr build tag).
func NewDriver(name string) (Driver, error) {
	switch name {
	case "sim", "":
		return NewSim(), nil
	case "native":
		return newNative()
	default:
		return nil, fmt.Errorf("unknown driver %q (want sim or native)", name)
	}
}
