package soapy

import (
	"errors"
	"fmt"

	"github.com/rjboer/gosoapy/internal/device"
)

// SoapySDR stream return codes, from SoapySDR/Errors.h.
const (
	CodeTimeout      = -1
	CodeStreamError  = -2
	CodeCorruption   = -3
	CodeOverflow     = -4
	CodeNotSupported = -5
	CodeTimeError    = -6
	CodeUnderflow    = -7
)

// CodeAntennaUnsupported is returned for an antenna index outside the list
// the device reports.
const CodeAntennaUnsupported = 4711

var knownErrors = map[int]string{
	CodeAntennaUnsupported: "Antenna index not supported on this device",
}

// ErrToStr mirrors SoapySDR_errToStr.
func ErrToStr(code int) string {
	switch code {
	case CodeTimeout:
		return "TIMEOUT"
	case CodeStreamError:
		return "STREAM_ERROR"
	case CodeCorruption:
		return "CORRUPTION"
	case CodeOverflow:
		return "OVERFLOW"
	case CodeNotSupported:
		return "NOT_SUPPORTED"
	case CodeTimeError:
		return "TIME_ERROR"
	case CodeUnderflow:
		return "UNDERFLOW"
	}
	return fmt.Sprintf("UNKNOWN_%d", code)
}

// Explain returns the fixed message for a known code, or the driver's last
// error text otherwise.
func Explain(code int, d Driver) string {
	if msg, ok := knownErrors[code]; ok {
		return msg
	}
	if d == nil {
		return ""
	}
	return d.LastError()
}

// Lifecycle misuse.
var (
	ErrNotOpen       = errors.New("soapy: device not open")
	ErrNotConfigured = errors.New("soapy: device not configured")
	ErrNotPrepared   = errors.New("soapy: stream not prepared for this direction")
	ErrBusy          = errors.New("soapy: device already open")
	ErrHandleSpent   = errors.New("soapy: worker already opened a device; start a new worker")
)

func (b *Backend) explain(err error) string {
	var ne *NativeError
	if !errors.As(err, &ne) {
		return ""
	}
	return Explain(device.ErrorCode(err), b.drv)
}
