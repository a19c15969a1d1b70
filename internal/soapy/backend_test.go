package soapy

import (
	"errors"
	"strings"
	"testing"

	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/iq"
	"github.com/rjboer/gosoapy/internal/ipc"
)

type statusLog struct{ lines []string }

func (s *statusLog) Report(text string) { s.lines = append(s.lines, text) }

func (s *statusLog) contains(text string) bool {
	for _, l := range s.lines {
		if l == text {
			return true
		}
	}
	return false
}

// frameSink collects the frames Receive hands over.
type frameSink struct{ frames [][]byte }

func (f *frameSink) Send(frame []byte) error {
	f.frames = append(f.frames, frame)
	return nil
}

func (f *frameSink) Recv() ([]byte, error) { return nil, errors.New("write-only sink") }

func rxSettings(rate float64) device.Parameters {
	s := &Settings{Frequency: 100e6, SampleRate: rate, Bandwidth: rate, Gain: 30}
	return s.DeviceParameters()
}

func newTestBackend(t *testing.T) (*Backend, *SimDriver, *statusLog) {
	t.Helper()
	sim := NewSim()
	status := &statusLog{}
	return NewBackend(sim, status, nil), sim, status
}

func TestOpenReportsAndDescribes(t *testing.T) {
	b, _, status := newTestBackend(t)
	if err := b.Open(""); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if b.State() != device.Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
	if len(status.lines) != 2 || status.lines[0] != "OPEN:0" {
		t.Fatalf("unexpected status %q", status.lines)
	}
	if !strings.Contains(status.lines[1], "serial=sim0001") {
		t.Fatalf("expected representation, got %q", status.lines[1])
	}
}

func TestOpenFailureThenRetry(t *testing.T) {
	b, _, status := newTestBackend(t)

	err := b.Open("nonexistent-id")
	if err == nil {
		t.Fatalf("expected open to fail")
	}
	if device.ErrorCode(err) != -1 {
		t.Fatalf("expected code -1, got %d", device.ErrorCode(err))
	}
	if b.State() != device.Closed {
		t.Fatalf("failed open must leave the backend closed, got %s", b.State())
	}
	if !status.contains("OPEN (nonexistent-id):-1") || !status.contains("SoapySDR::Device::make() no match") {
		t.Fatalf("unexpected status %q", status.lines)
	}

	if err := b.Open("serial=sim0001"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !status.contains("OPEN (serial=sim0001):0") {
		t.Fatalf("unexpected status %q", status.lines)
	}
}

func TestOpenOnlyOnce(t *testing.T) {
	b, _, _ := newTestBackend(t)
	if err := b.Open(""); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := b.Open(""); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	b.Close()
	if err := b.Open(""); !errors.Is(err, ErrHandleSpent) {
		t.Fatalf("expected ErrHandleSpent, got %v", err)
	}
}

func TestLifecycleOrdering(t *testing.T) {
	b, _, _ := newTestBackend(t)
	if err := b.Configure(false, rxSettings(2e6)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("configure before open: %v", err)
	}
	if err := b.PrepareReceive(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("prepare before open: %v", err)
	}
	if err := b.Receive(&frameSink{}); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("receive before prepare: %v", err)
	}

	if err := b.Open(""); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := b.PrepareReceive(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("prepare before configure: %v", err)
	}
	if err := b.Configure(false, rxSettings(2e6)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := b.PrepareSend(false); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("TX prepare on RX configuration: %v", err)
	}
	if err := b.PrepareReceive(); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := b.Configure(false, rxSettings(2e6)); !errors.Is(err, ErrBusy) {
		t.Fatalf("configure while streaming: %v", err)
	}
	if err := b.Send(make([]byte, 8)); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("send on RX stream: %v", err)
	}
}

func TestReceiveChunkAtTwoMegahertz(t *testing.T) {
	b, _, status := newTestBackend(t)
	if err := b.Open(""); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := b.Configure(false, rxSettings(2e6)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if b.ChunkSize() != 32768 {
		t.Fatalf("expected chunk 32768, got %d", b.ChunkSize())
	}
	if err := b.PrepareReceive(); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if !status.contains("Initializing stream...") || !status.contains("Initialize stream:0") {
		t.Fatalf("missing stream status in %q", status.lines)
	}
	if !status.contains("Current antenna is RX (possible antennas: RX, TX/RX)") {
		t.Fatalf("missing antenna status in %q", status.lines)
	}

	sink := &frameSink{}
	if err := b.Receive(sink); err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(sink.frames) != 1 || len(sink.frames[0]) != 32768*iq.BytesPerSample {
		t.Fatalf("expected one frame of %d bytes", 32768*iq.BytesPerSample)
	}
	if b.State() != device.Streaming {
		t.Fatalf("expected Streaming, got %s", b.State())
	}
}

func TestReceiveAssemblesPartialReads(t *testing.T) {
	b, sim, _ := newTestBackend(t)
	sim.MaxRead = 1000
	_ = b.Open("")
	if err := b.Configure(false, rxSettings(1e6)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := b.PrepareReceive(); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	sink := &frameSink{}
	if err := b.Receive(sink); err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	samples, err := iq.BytesToIQ(sink.frames[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != RXChunkBase {
		t.Fatalf("expected %d samples, got %d", RXChunkBase, len(samples))
	}
	// Tone has unit amplitude; an unfilled tail would be zero.
	last := samples[len(samples)-1]
	if real(last)*real(last)+imag(last)*imag(last) < 0.5 {
		t.Fatalf("chunk tail not filled: %v", last)
	}
}

func TestSubMegahertzRateClamps(t *testing.T) {
	b, sim, _ := newTestBackend(t)
	_ = b.Open("")
	if err := b.Configure(false, rxSettings(999_999)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if ScaledChunk(999_999) != 0 || b.ChunkSize() != RXChunkBase {
		t.Fatalf("expected clamp to %d, got %d", RXChunkBase, b.ChunkSize())
	}
	if err := b.PrepareReceive(); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if sim.ActiveElems() != RXChunkBase {
		t.Fatalf("stream activated with %d elements", sim.ActiveElems())
	}
}

func TestConfigureGainIsNormalized(t *testing.T) {
	b, sim, status := newTestBackend(t)
	_ = b.Open("")
	if err := b.Configure(false, rxSettings(2e6)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if sim.Gain() != 0.3 {
		t.Fatalf("driver saw gain %v, want 0.3", sim.Gain())
	}
	if !status.contains("SET_RF_GAIN to 0.3:0") {
		t.Fatalf("missing gain report in %q", status.lines)
	}

	if err := b.Apply(device.SetRFGain, device.FloatValue(NormalizeGain(50))); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if sim.Gain() != 0.5 {
		t.Fatalf("driver saw gain %v, want 0.5", sim.Gain())
	}
}

func TestAntennaIndexOutOfRange(t *testing.T) {
	b, _, status := newTestBackend(t)
	_ = b.Open("")
	s := &Settings{AntennaIndex: 7, Frequency: 100e6, SampleRate: 2e6, Bandwidth: 2e6}
	err := b.Configure(false, s.DeviceParameters())
	if err == nil {
		t.Fatalf("expected configure to fail")
	}
	if device.ErrorCode(err) != CodeAntennaUnsupported {
		t.Fatalf("expected code %d, got %d", CodeAntennaUnsupported, device.ErrorCode(err))
	}
	want := "SET_ANTENNA_INDEX to 7:4711 (Antenna index not supported on this device)"
	if !status.contains(want) {
		t.Fatalf("missing %q in %q", want, status.lines)
	}
	// Fields after the failure are still applied.
	if !status.contains("SET_FREQUENCY to 100000000:0") {
		t.Fatalf("later fields not applied: %q", status.lines)
	}
	if b.State() != device.Open {
		t.Fatalf("device must stay open, got %s", b.State())
	}
}

func TestExplainFallsBackToLastError(t *testing.T) {
	sim := NewSim()
	sim.FailOn("set_frequency", CodeNotSupported)
	if got := Explain(CodeAntennaUnsupported, sim); got != "Antenna index not supported on this device" {
		t.Fatalf("unexpected message %q", got)
	}
	_ = sim.Open("")
	_ = sim.SetFrequency(1)
	if got := Explain(CodeNotSupported, sim); got != "set_frequency failed: NOT_SUPPORTED" {
		t.Fatalf("unexpected fallback %q", got)
	}
	if Explain(CodeNotSupported, nil) != "" {
		t.Fatalf("nil driver should explain nothing")
	}
}

func TestSendSplitsIntoChunks(t *testing.T) {
	b, sim, _ := newTestBackend(t)
	_ = b.Open("")
	if err := b.Configure(true, rxSettings(2e6)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := b.PrepareSend(false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if sim.ActiveElems() != 0 {
		t.Fatalf("TX stream must activate with 0 elements, got %d", sim.ActiveElems())
	}
	n := TXChunkSize*2 + 100
	if err := b.Send(iq.IQToBytes(make([]complex64, n))); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sim.Written() != n {
		t.Fatalf("expected %d samples written, got %d", n, sim.Written())
	}
	if err := b.Send(make([]byte, 5)); !errors.Is(err, iq.ErrMisaligned) {
		t.Fatalf("expected misalignment error, got %v", err)
	}
}

func TestContinuousSendForwardsWhole(t *testing.T) {
	b, sim, _ := newTestBackend(t)
	_ = b.Open("")
	_ = b.Configure(true, rxSettings(2e6))
	if err := b.PrepareSend(true); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := b.Send(iq.IQToBytes(make([]complex64, 50000))); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sim.Written() != 50000 {
		t.Fatalf("expected 50000 samples written, got %d", sim.Written())
	}
}

func TestCloseMidStream(t *testing.T) {
	b, sim, status := newTestBackend(t)
	_ = b.Open("")
	_ = b.Configure(false, rxSettings(2e6))
	_ = b.PrepareReceive()
	_ = b.Receive(&frameSink{})

	b.Close()
	if b.State() != device.Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
	calls := sim.Calls()
	tail := calls[len(calls)-3:]
	want := []string{"deactivate_stream", "close_stream", "close"}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("teardown order %v, want %v", tail, want)
		}
	}
	if status.lines[len(status.lines)-1] != "CLOSE:0" {
		t.Fatalf("expected CLOSE:0, got %q", status.lines[len(status.lines)-1])
	}
}

func TestCloseRunsEveryStepOnFailure(t *testing.T) {
	b, sim, status := newTestBackend(t)
	_ = b.Open("")
	sim.FailOn("deactivate_stream", CodeStreamError)
	sim.FailOn("close", CodeCorruption)

	b.Close()
	calls := sim.Calls()
	if calls[len(calls)-1] != "close" || calls[len(calls)-2] != "close_stream" {
		t.Fatalf("teardown skipped a step: %v", calls)
	}
	if !status.contains("CLOSE:-3") {
		t.Fatalf("expected CLOSE:-3 in %q", status.lines)
	}
	if b.State() != device.Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
}

func TestCloseWhenClosedIsNoop(t *testing.T) {
	b, sim, status := newTestBackend(t)
	b.Close()
	b.Close()
	if len(sim.Calls()) != 0 || len(status.lines) != 0 {
		t.Fatalf("close on a closed backend touched the driver: %v %q", sim.Calls(), status.lines)
	}
}

func TestReceiveIntoPipe(t *testing.T) {
	worker, orchestrator := ipc.Pipe()
	defer worker.Close()

	b, _, _ := newTestBackend(t)
	_ = b.Open("")
	_ = b.Configure(false, rxSettings(3e6))
	_ = b.PrepareReceive()
	if err := b.Receive(worker.Data()); err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	frame, err := orchestrator.Data().Recv()
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if len(frame) != iq.Bytes(ScaledChunk(3e6)) {
		t.Fatalf("unexpected frame length %d", len(frame))
	}
}
