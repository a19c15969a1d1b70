package soapy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/iq"
	"github.com/rjboer/gosoapy/internal/ipc"
	"github.com/rjboer/gosoapy/internal/logging"
)

// Backend runs the SoapySDR lifecycle inside a worker process. It is not safe
// for concurrent use; the worker calls it from a single loop.
type Backend struct {
	drv    Driver
	status device.Reporter
	log    logging.Logger
	table  *device.Table
	chunk  Chunker

	state      device.State
	spent      bool
	identifier string
	configured bool
	dir        device.Direction
	continuous bool
}

// NewBackend wires drv to a status sink. status may be nil, in which case
// status lines only go to the log.
func NewBackend(drv Driver, status device.Reporter, log logging.Logger) *Backend {
	b := &Backend{
		drv:    drv,
		status: status,
		log:    logging.Or(log).With(logging.F("component", "soapy")),
		chunk:  NewChunker(),
	}
	table, err := device.NewTable(b.bindings()...)
	if err != nil {
		// The binding list is static; a failure here is a programming error.
		panic(err)
	}
	b.table = table
	return b
}

func (b *Backend) State() device.State { return b.state }

// ChunkSize is the receive chunk the next PrepareReceive will use.
func (b *Backend) ChunkSize() int { return b.chunk.RX() }

// Keys lists the parameter keys Configure and Apply accept.
func (b *Backend) Keys() []device.Command { return b.table.Keys() }

func (b *Backend) report(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	b.log.Debug("status", logging.F("text", text))
	if b.status != nil {
		b.status.Report(text)
	}
}

// ListDevices enumerates the devices the driver can see.
func (b *Backend) ListDevices() ([]string, error) {
	return b.drv.Enumerate("")
}

// AdaptChunkSize recomputes the receive chunk for rate. It must run before
// PrepareReceive; the sample-rate setter calls it on every change.
func (b *Backend) AdaptChunkSize(rate float64) {
	if b.chunk.Adapt(rate) {
		b.log.Warn("sample rate below 1 MHz, receive chunk clamped",
			logging.F("rate", rate), logging.F("chunk", b.chunk.RX()))
		return
	}
	b.log.Debug("receive chunk adapted", logging.F("rate", rate), logging.F("chunk", b.chunk.RX()))
}

// Open acquires the device named by identifier, or the first device when it
// is empty. A failed open leaves the Backend closed and may be retried; only
// one open may succeed per Backend.
func (b *Backend) Open(identifier string) error {
	if b.state != device.Closed {
		return ErrBusy
	}
	if b.spent {
		return ErrHandleSpent
	}

	b.state = device.Opening
	err := b.drv.Open(identifier)
	if identifier != "" {
		b.report("OPEN (%s):%d", identifier, device.ErrorCode(err))
	} else {
		b.report("OPEN:%d", device.ErrorCode(err))
	}
	if err != nil {
		b.report("%s", b.drv.LastError())
		b.state = device.Closed
		return fmt.Errorf("open %q: %w", identifier, err)
	}

	b.state = device.Open
	b.spent = true
	b.identifier = identifier
	b.report("%s", b.drv.Representation())
	b.log.Info("device opened", logging.F("identifier", identifier))
	return nil
}

// Configure selects the direction and applies params through the setter
// table. Field failures are reported individually; the device stays open.
func (b *Backend) Configure(tx bool, params device.Parameters) error {
	switch b.state {
	case device.Open:
	case device.Closed:
		return ErrNotOpen
	default:
		return ErrBusy
	}
	b.configured = false
	b.dir = device.RX
	if tx {
		b.dir = device.TX
	}

	b.drv.SetDirection(tx)
	if err := device.Configure(device.ReporterFunc(func(s string) { b.report("%s", s) }), b.table, params, b.explain); err != nil {
		b.log.Warn("configuration incomplete", logging.Err(err))
		return fmt.Errorf("configure: %w", err)
	}
	b.configured = true

	antenna, err := b.drv.Antenna()
	if err != nil {
		b.log.Warn("read antenna", logging.Err(err))
	}
	antennas, err := b.drv.Antennas()
	if err != nil {
		b.log.Warn("list antennas", logging.Err(err))
	}
	b.report("Current antenna is %s (possible antennas: %s)", antenna, strings.Join(antennas, ", "))
	return nil
}

// Apply changes one parameter on an open device, as the orchestrator does
// while streaming.
func (b *Backend) Apply(key device.Command, v device.Value) error {
	switch b.state {
	case device.Open, device.StreamReady, device.Streaming:
	default:
		return ErrNotOpen
	}
	params := device.Parameters{{Key: key, Value: v}}
	return device.Configure(device.ReporterFunc(func(s string) { b.report("%s", s) }), b.table, params, b.explain)
}

// PrepareReceive sets up and activates an RX stream sized to the current chunk.
func (b *Backend) PrepareReceive() error {
	if err := b.requireConfigured(device.RX); err != nil {
		return err
	}
	return b.startStream(b.chunk.RX())
}

// PrepareSend sets up and activates a TX stream. The driver manages its own
// buffering, so the stream is always requested with zero elements; continuous
// selects unchunked forwarding in Send.
func (b *Backend) PrepareSend(continuous bool) error {
	if err := b.requireConfigured(device.TX); err != nil {
		return err
	}
	b.continuous = continuous
	return b.startStream(0)
}

func (b *Backend) requireConfigured(dir device.Direction) error {
	if b.state != device.Open {
		if b.state == device.Closed {
			return ErrNotOpen
		}
		return ErrBusy
	}
	if !b.configured {
		return ErrNotConfigured
	}
	if b.dir != dir {
		return fmt.Errorf("%w: configured for %s", ErrNotPrepared, b.dir)
	}
	return nil
}

func (b *Backend) startStream(numElems int) error {
	b.report("Initializing stream...")
	err := b.drv.SetupStream()
	if err == nil {
		err = b.drv.ActivateStream(numElems)
	}
	b.report("Initialize stream:%d", device.ErrorCode(err))
	if err != nil {
		if msg := b.explain(err); msg != "" {
			b.report("%s", msg)
		}
		return fmt.Errorf("start %s stream: %w", b.dir, err)
	}
	b.state = device.StreamReady
	b.log.Info("stream ready", logging.F("direction", b.dir.String()), logging.F("elems", numElems))
	return nil
}

func (b *Backend) streaming(dir device.Direction) error {
	if b.state != device.StreamReady && b.state != device.Streaming {
		return ErrNotPrepared
	}
	if b.dir != dir {
		return fmt.Errorf("%w: stream is %s", ErrNotPrepared, b.dir)
	}
	return nil
}

// Receive reads exactly one chunk from the driver and hands it to data as a
// single frame. It blocks until the chunk is full or the driver fails; a
// partial chunk is never delivered.
func (b *Backend) Receive(data ipc.Data) error {
	if err := b.streaming(device.RX); err != nil {
		return err
	}
	n := b.chunk.RX()
	buf := make([]byte, iq.Bytes(n))
	for filled := 0; filled < n; {
		got, err := b.drv.ReadStream(buf[iq.Bytes(filled):])
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		filled += got
	}
	b.state = device.Streaming
	return data.Send(buf)
}

// Send writes one batch of CF32 samples. Outside continuous mode the batch
// goes out in TXChunkSize pieces; in continuous mode it is forwarded whole.
func (b *Backend) Send(buf []byte) error {
	if err := b.streaming(device.TX); err != nil {
		return err
	}
	if len(buf)%iq.BytesPerSample != 0 {
		return fmt.Errorf("send: %w", iq.ErrMisaligned)
	}
	for _, piece := range b.chunk.Split(buf, b.continuous) {
		for off := 0; off < len(piece); {
			n, err := b.drv.WriteStream(piece[off:])
			if err != nil {
				return fmt.Errorf("write stream: %w", err)
			}
			off += iq.Bytes(n)
		}
	}
	b.state = device.Streaming
	return nil
}

// Close deactivates and releases the stream, then closes the device. It runs
// every step whatever failed before, reports the outcome and never fails. On
// a Backend that holds no device it does nothing.
func (b *Backend) Close() {
	if b.state == device.Closed {
		return
	}
	b.state = device.Closing

	var errs []error
	if err := b.drv.DeactivateStream(); err != nil {
		errs = append(errs, err)
	}
	if err := b.drv.CloseStream(); err != nil {
		errs = append(errs, err)
	}
	err := b.drv.Close()
	if err != nil {
		errs = append(errs, err)
	}
	b.report("CLOSE:%d", device.ErrorCode(err))

	if len(errs) > 0 {
		b.log.Warn("teardown incomplete", logging.Err(errors.Join(errs...)))
	} else {
		b.log.Info("device closed", logging.F("identifier", b.identifier))
	}
	b.state = device.Closed
	b.configured = false
}
