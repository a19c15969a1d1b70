//go:build soapysdr

package soapy

/*
#cgo LDFLAGS: -lSoapySDR
#include <stdlib.h>
#include <SoapySDR/Device.h>
#include <SoapySDR/Errors.h>
#include <SoapySDR/Types.h>

static int gosoapy_read(SoapySDRDevice *d, SoapySDRStream *s, void *buf, size_t n, long timeoutUs) {
	void *buffs[] = {buf};
	int flags = 0;
	long long timeNs = 0;
	return SoapySDRDevice_readStream(d, s, buffs, n, &flags, &timeNs, timeoutUs);
}

static int gosoapy_write(SoapySDRDevice *d, SoapySDRStream *s, const void *buf, size_t n, long timeoutUs) {
	const void *buffs[] = {buf};
	int flags = 0;
	return SoapySDRDevice_writeStream(d, s, buffs, n, &flags, 0, timeoutUs);
}
*/
import "C"

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/rjboer/gosoapy/internal/iq"
)

const streamTimeoutUs = 1_000_000

// nativeDriver binds libSoapySDR (API 0.8) for one device, channel 0.
type nativeDriver struct {
	dev       *C.SoapySDRDevice
	stream    *C.SoapySDRStream
	direction C.int
	channel   C.size_t
}

func newNative() (Driver, error) {
	return &nativeDriver{direction: C.SOAPY_SDR_RX}, nil
}

func lastError() string { return C.GoString(C.SoapySDRDevice_lastError()) }

func check(op string, ret C.int) error {
	if ret == 0 {
		return nil
	}
	return &NativeError{Op: op, Ret: int(ret), Msg: lastError()}
}

func (d *nativeDriver) requireOpen(op string) error {
	if d.dev == nil {
		return &NativeError{Op: op, Ret: CodeStreamError, Msg: "device not open"}
	}
	return nil
}

func (d *nativeDriver) Enumerate(args string) ([]string, error) {
	cargs := C.CString(args)
	defer C.free(unsafe.Pointer(cargs))

	var n C.size_t
	list := C.SoapySDRDevice_enumerateStrArgs(cargs, &n)
	if list == nil {
		return nil, nil
	}
	defer C.SoapySDRKwargsList_clear(list, n)

	items := unsafe.Slice(list, int(n))
	out := make([]string, 0, len(items))
	for i := range items {
		s := C.SoapySDRKwargs_toString(&items[i])
		out = append(out, C.GoString(s))
		C.SoapySDR_free(unsafe.Pointer(s))
	}
	return out, nil
}

func (d *nativeDriver) Open(args string) error {
	if d.dev != nil {
		return &NativeError{Op: "open", Ret: -1, Msg: "device already open"}
	}
	cargs := C.CString(args)
	defer C.free(unsafe.Pointer(cargs))

	dev := C.SoapySDRDevice_makeStrArgs(cargs)
	if dev == nil {
		return &NativeError{Op: "open", Ret: -1, Msg: lastError()}
	}
	d.dev = dev
	return nil
}

func (d *nativeDriver) Close() error {
	if d.dev == nil {
		return nil
	}
	ret := C.SoapySDRDevice_unmake(d.dev)
	d.dev = nil
	return check("close", ret)
}

func (d *nativeDriver) LastError() string { return lastError() }

func (d *nativeDriver) Representation() string {
	if d.dev == nil {
		return ""
	}
	key := C.SoapySDRDevice_getHardwareKey(d.dev)
	defer C.SoapySDR_free(unsafe.Pointer(key))
	info := C.SoapySDRDevice_getHardwareInfo(d.dev)
	defer C.SoapySDRKwargs_clear(&info)
	infoStr := C.SoapySDRKwargs_toString(&info)
	defer C.SoapySDR_free(unsafe.Pointer(infoStr))
	return fmt.Sprintf("%s {%s}", C.GoString(key), C.GoString(infoStr))
}

func (d *nativeDriver) SetDirection(tx bool) {
	if tx {
		d.direction = C.SOAPY_SDR_TX
		return
	}
	d.direction = C.SOAPY_SDR_RX
}

func (d *nativeDriver) SetSubdevice(mapping string) error {
	if err := d.requireOpen("set_subdevice"); err != nil {
		return err
	}
	if strings.TrimSpace(mapping) == "" {
		return nil
	}
	cmap := C.CString(mapping)
	defer C.free(unsafe.Pointer(cmap))
	return check("set_subdevice", C.SoapySDRDevice_setFrontendMapping(d.dev, d.direction, cmap))
}

func (d *nativeDriver) SetFrequency(hz float64) error {
	if err := d.requireOpen("set_frequency"); err != nil {
		return err
	}
	return check("set_frequency", C.SoapySDRDevice_setFrequency(d.dev, d.direction, d.channel, C.double(hz), nil))
}

func (d *nativeDriver) SetSampleRate(hz float64) error {
	if err := d.requireOpen("set_sample_rate"); err != nil {
		return err
	}
	return check("set_sample_rate", C.SoapySDRDevice_setSampleRate(d.dev, d.direction, d.channel, C.double(hz)))
}

func (d *nativeDriver) SetBandwidth(hz float64) error {
	if err := d.requireOpen("set_bandwidth"); err != nil {
		return err
	}
	return check("set_bandwidth", C.SoapySDRDevice_setBandwidth(d.dev, d.direction, d.channel, C.double(hz)))
}

func (d *nativeDriver) SetGain(normalized float64) error {
	if err := d.requireOpen("set_gain"); err != nil {
		return err
	}
	r := C.SoapySDRDevice_getGainRange(d.dev, d.direction, d.channel)
	value := float64(r.minimum) + normalized*(float64(r.maximum)-float64(r.minimum))
	return check("set_gain", C.SoapySDRDevice_setGain(d.dev, d.direction, d.channel, C.double(value)))
}

func (d *nativeDriver) Antenna() (string, error) {
	if err := d.requireOpen("get_antenna"); err != nil {
		return "", err
	}
	name := C.SoapySDRDevice_getAntenna(d.dev, d.direction, d.channel)
	defer C.SoapySDR_free(unsafe.Pointer(name))
	return C.GoString(name), nil
}

func (d *nativeDriver) Antennas() ([]string, error) {
	if err := d.requireOpen("list_antennas"); err != nil {
		return nil, err
	}
	var n C.size_t
	list := C.SoapySDRDevice_listAntennas(d.dev, d.direction, d.channel, &n)
	if list == nil {
		return nil, nil
	}
	defer C.SoapySDRStrings_clear(&list, n)

	out := make([]string, 0, int(n))
	for _, s := range unsafe.Slice(list, int(n)) {
		out = append(out, C.GoString(s))
	}
	return out, nil
}

func (d *nativeDriver) SetAntenna(name string) error {
	if err := d.requireOpen("set_antenna"); err != nil {
		return err
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return check("set_antenna", C.SoapySDRDevice_setAntenna(d.dev, d.direction, d.channel, cname))
}

func (d *nativeDriver) SetupStream() error {
	if err := d.requireOpen("setup_stream"); err != nil {
		return err
	}
	if d.stream != nil {
		return nil
	}
	format := C.CString("CF32")
	defer C.free(unsafe.Pointer(format))
	channels := []C.size_t{d.channel}

	stream := C.SoapySDRDevice_setupStream(d.dev, d.direction, format, &channels[0], 1, nil)
	if stream == nil {
		return &NativeError{Op: "setup_stream", Ret: CodeStreamError, Msg: lastError()}
	}
	d.stream = stream
	return nil
}

func (d *nativeDriver) ActivateStream(numElems int) error {
	if d.stream == nil {
		return &NativeError{Op: "activate_stream", Ret: CodeStreamError, Msg: "stream not set up"}
	}
	return check("activate_stream", C.SoapySDRDevice_activateStream(d.dev, d.stream, 0, 0, C.size_t(numElems)))
}

// ReadStream treats a timeout as zero samples so callers keep blocking.
func (d *nativeDriver) ReadStream(buf []byte) (int, error) {
	if d.stream == nil {
		return 0, &NativeError{Op: "read_stream", Ret: CodeStreamError, Msg: "stream not set up"}
	}
	n := iq.Samples(len(buf))
	if n == 0 {
		return 0, nil
	}
	ret := C.gosoapy_read(d.dev, d.stream, unsafe.Pointer(&buf[0]), C.size_t(n), streamTimeoutUs)
	switch {
	case ret >= 0:
		return int(ret), nil
	case ret == CodeTimeout:
		return 0, nil
	default:
		return 0, &NativeError{Op: "read_stream", Ret: int(ret), Msg: C.GoString(C.SoapySDR_errToStr(ret))}
	}
}

func (d *nativeDriver) WriteStream(buf []byte) (int, error) {
	if d.stream == nil {
		return 0, &NativeError{Op: "write_stream", Ret: CodeStreamError, Msg: "stream not set up"}
	}
	n := iq.Samples(len(buf))
	if n == 0 {
		return 0, nil
	}
	ret := C.gosoapy_write(d.dev, d.stream, unsafe.Pointer(&buf[0]), C.size_t(n), streamTimeoutUs)
	switch {
	case ret >= 0:
		return int(ret), nil
	case ret == CodeTimeout:
		return 0, nil
	default:
		return 0, &NativeError{Op: "write_stream", Ret: int(ret), Msg: C.GoString(C.SoapySDR_errToStr(ret))}
	}
}

func (d *nativeDriver) DeactivateStream() error {
	if d.dev == nil || d.stream == nil {
		return nil
	}
	return check("deactivate_stream", C.SoapySDRDevice_deactivateStream(d.dev, d.stream, 0, 0))
}

func (d *nativeDriver) CloseStream() error {
	if d.dev == nil || d.stream == nil {
		return nil
	}
	ret := C.SoapySDRDevice_closeStream(d.dev, d.stream)
	d.stream = nil
	return check("close_stream", ret)
}
