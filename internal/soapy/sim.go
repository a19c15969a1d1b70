package soapy

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/rjboer/gosoapy/internal/iq"
)

// SimDriver synthesizes a complex tone at a fixed offset from the tuned
// frequency. It stands in for hardware in tests and in `-driver sim` workers.
type SimDriver struct {
	mu sync.Mutex

	// Devices are the kwargs strings Enumerate returns.
	Devices []string
	// AntennaNames are the antennas of every simulated device.
	AntennaNames []string
	// ToneOffset is the tone position relative to the tuned frequency in Hz.
	ToneOffset float64
	// NoiseLevel is the standard deviation of the added noise per component.
	NoiseLevel float64
	// MaxRead limits the samples returned by one ReadStream; 0 means no limit.
	MaxRead int

	fail    map[string]int
	lastErr string
	calls   []string

	open      bool
	current   string
	tx        bool
	subdevice string
	antenna   string
	freq      float64
	rate      float64
	bandwidth float64
	gain      float64

	stream  bool
	active  bool
	elems   int
	phase   float64
	written int
}

// NewSim returns a simulator with one device and two antennas.
func NewSim() *SimDriver {
	return &SimDriver{
		Devices:      []string{"driver=sim, label=Simulated SDR, serial=sim0001"},
		AntennaNames: []string{"RX", "TX/RX"},
		ToneOffset:   200e3,
		NoiseLevel:   1e-4,
		rate:         2e6,
	}
}

// FailOn makes the named operation fail with code until cleared with code 0.
// Operation names match the entries of Calls.
func (s *SimDriver) FailOn(op string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[string]int{}
	}
	if code == 0 {
		delete(s.fail, op)
		return
	}
	s.fail[op] = code
}

// Calls returns the driver operations invoked so far, in order.
func (s *SimDriver) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Gain returns the last normalized gain the driver received.
func (s *SimDriver) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// Written returns the number of samples transmitted.
func (s *SimDriver) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// ActiveElems returns the element count of the last stream activation.
func (s *SimDriver) ActiveElems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elems
}

// enter records op and returns the injected failure for it, if any. Stream
// reads and writes are not recorded. The caller holds s.mu.
func (s *SimDriver) enter(op string) error {
	if op != "read_stream" && op != "write_stream" {
		s.calls = append(s.calls, op)
	}
	if code, ok := s.fail[op]; ok {
		s.lastErr = fmt.Sprintf("%s failed: %s", op, ErrToStr(code))
		return &NativeError{Op: op, Ret: code}
	}
	return nil
}

func (s *SimDriver) requireOpen(op string) error {
	if err := s.enter(op); err != nil {
		return err
	}
	if !s.open {
		s.lastErr = "device not open"
		return &NativeError{Op: op, Ret: CodeStreamError, Msg: s.lastErr}
	}
	return nil
}

func (s *SimDriver) Enumerate(args string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("enumerate"); err != nil {
		return nil, err
	}
	var out []string
	for _, d := range s.Devices {
		if matchArgs(d, args) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *SimDriver) Open(args string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("open"); err != nil {
		return err
	}
	for _, d := range s.Devices {
		if matchArgs(d, args) {
			s.open = true
			s.current = d
			if len(s.AntennaNames) > 0 {
				s.antenna = s.AntennaNames[0]
			}
			return nil
		}
	}
	s.lastErr = "SoapySDR::Device::make() no match"
	return &NativeError{Op: "open", Ret: -1, Msg: s.lastErr}
}

func (s *SimDriver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("close"); err != nil {
		return err
	}
	s.open = false
	s.stream = false
	s.active = false
	return nil
}

func (s *SimDriver) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *SimDriver) Representation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("SoapySDR simulator {%s}", s.current)
}

func (s *SimDriver) SetDirection(tx bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "set_direction")
	s.tx = tx
}

func (s *SimDriver) SetSubdevice(mapping string) error {
	return s.set("set_subdevice", func() { s.subdevice = mapping })
}

func (s *SimDriver) SetFrequency(hz float64) error {
	return s.set("set_frequency", func() { s.freq = hz })
}

func (s *SimDriver) SetSampleRate(hz float64) error {
	if hz <= 0 {
		s.mu.Lock()
		s.lastErr = fmt.Sprintf("invalid sample rate %g", hz)
		s.mu.Unlock()
		return &NativeError{Op: "set_sample_rate", Ret: CodeNotSupported, Msg: "invalid sample rate"}
	}
	return s.set("set_sample_rate", func() { s.rate = hz })
}

func (s *SimDriver) SetBandwidth(hz float64) error {
	return s.set("set_bandwidth", func() { s.bandwidth = hz })
}

func (s *SimDriver) SetGain(normalized float64) error {
	return s.set("set_gain", func() { s.gain = normalized })
}

func (s *SimDriver) set(op string, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(op); err != nil {
		return err
	}
	apply()
	return nil
}

func (s *SimDriver) Antenna() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen("get_antenna"); err != nil {
		return "", err
	}
	return s.antenna, nil
}

func (s *SimDriver) Antennas() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen("list_antennas"); err != nil {
		return nil, err
	}
	return append([]string(nil), s.AntennaNames...), nil
}

func (s *SimDriver) SetAntenna(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen("set_antenna"); err != nil {
		return err
	}
	for _, a := range s.AntennaNames {
		if a == name {
			s.antenna = name
			return nil
		}
	}
	s.lastErr = fmt.Sprintf("unknown antenna %q", name)
	return &NativeError{Op: "set_antenna", Ret: CodeNotSupported, Msg: s.lastErr}
}

func (s *SimDriver) SetupStream() error {
	return s.set("setup_stream", func() { s.stream = true })
}

func (s *SimDriver) ActivateStream(numElems int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen("activate_stream"); err != nil {
		return err
	}
	if !s.stream {
		s.lastErr = "stream not set up"
		return &NativeError{Op: "activate_stream", Ret: CodeStreamError, Msg: s.lastErr}
	}
	s.active = true
	s.elems = numElems
	return nil
}

func (s *SimDriver) ReadStream(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen("read_stream"); err != nil {
		return 0, err
	}
	if !s.active || s.tx {
		s.lastErr = "no active RX stream"
		return 0, &NativeError{Op: "read_stream", Ret: CodeStreamError, Msg: s.lastErr}
	}

	n := iq.Samples(len(buf))
	if s.MaxRead > 0 && n > s.MaxRead {
		n = s.MaxRead
	}
	samples := make([]complex64, n)
	step := 2 * math.Pi * s.ToneOffset / s.rate
	for i := range samples {
		noiseI := rand.NormFloat64() * s.NoiseLevel
		noiseQ := rand.NormFloat64() * s.NoiseLevel
		samples[i] = complex64(complex(math.Cos(s.phase)+noiseI, math.Sin(s.phase)+noiseQ))
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}
	copy(buf, iq.IQToBytes(samples))
	return n, nil
}

func (s *SimDriver) WriteStream(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen("write_stream"); err != nil {
		return 0, err
	}
	if !s.active || !s.tx {
		s.lastErr = "no active TX stream"
		return 0, &NativeError{Op: "write_stream", Ret: CodeStreamError, Msg: s.lastErr}
	}
	n := iq.Samples(len(buf))
	s.written += n
	return n, nil
}

func (s *SimDriver) DeactivateStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("deactivate_stream"); err != nil {
		return err
	}
	s.active = false
	return nil
}

func (s *SimDriver) CloseStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("close_stream"); err != nil {
		return err
	}
	s.stream = false
	s.active = false
	return nil
}

// matchArgs reports whether every key=value pair in args appears in the
// device kwargs string. Empty args match any device; a bare token is a key
// with an empty value.
func matchArgs(device, args string) bool {
	have := parseKwargs(device)
	for k, v := range parseKwargs(args) {
		if got, ok := have[k]; !ok || got != v {
			return false
		}
	}
	return true
}

func parseKwargs(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		k, v, _ := strings.Cut(part, "=")
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
