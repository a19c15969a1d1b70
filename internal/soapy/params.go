package soapy

import (
	"fmt"

	"github.com/rjboer/gosoapy/internal/device"
)

// bindings is the worker-side half of the parameter contract: one setter per
// key that Settings.DeviceParameters reports.
func (b *Backend) bindings() []device.Binding {
	return []device.Binding{
		{Key: device.SetSubdevice, Kind: device.KindString, Set: func(v device.Value) error {
			s, _ := v.Str()
			return b.drv.SetSubdevice(s)
		}},
		{Key: device.SetAntennaIndex, Kind: device.KindInt, Set: b.setAntennaIndex},
		{Key: device.SetFrequency, Kind: device.KindFloat, Set: floatSetter(b.drv.SetFrequency)},
		{Key: device.SetSampleRate, Kind: device.KindFloat, Set: b.setSampleRate},
		{Key: device.SetBandwidth, Kind: device.KindFloat, Set: floatSetter(b.drv.SetBandwidth)},
		{Key: device.SetRFGain, Kind: device.KindFloat, Set: floatSetter(b.drv.SetGain)},
		{Key: device.Identifier, Kind: device.KindString, Set: b.setIdentifier},
	}
}

func floatSetter(set func(float64) error) device.Setter {
	return func(v device.Value) error {
		f, _ := v.Float()
		return set(f)
	}
}

func (b *Backend) setAntennaIndex(v device.Value) error {
	idx, _ := v.Int()
	names, err := b.drv.Antennas()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= int64(len(names)) {
		return &NativeError{
			Op:  "set antenna",
			Ret: CodeAntennaUnsupported,
			Msg: fmt.Sprintf("index %d of %d antennas", idx, len(names)),
		}
	}
	return b.drv.SetAntenna(names[idx])
}

func (b *Backend) setSampleRate(v device.Value) error {
	rate, _ := v.Float()
	if err := b.drv.SetSampleRate(rate); err != nil {
		return err
	}
	b.AdaptChunkSize(rate)
	return nil
}

// setIdentifier accepts the identifier the device was opened with. The handle
// cannot be re-targeted, so a different identifier is an error.
func (b *Backend) setIdentifier(v device.Value) error {
	id, _ := v.Str()
	if id != "" && b.identifier != "" && id != b.identifier {
		return fmt.Errorf("identifier %q differs from opened device %q", id, b.identifier)
	}
	return nil
}

// Settings is the orchestrator-side view of one SoapySDR device. It keeps the
// configuration in the orchestrator's units and pushes changes to the worker
// through an attached Commander.
type Settings struct {
	Subdevice    string
	AntennaIndex int
	Frequency    float64
	SampleRate   float64
	Bandwidth    float64
	// Gain is in the orchestrator's 0–100 domain and is never stored scaled.
	Gain   float64
	Serial string

	cmd device.Commander
}

// Attach routes future setter calls to c. A nil Commander detaches.
func (s *Settings) Attach(c device.Commander) { s.cmd = c }

// HasMultiDeviceSupport is always true: SoapySDR opens by identifier.
func (s *Settings) HasMultiDeviceSupport() bool { return true }

// DeviceParameters snapshots the configuration in the fixed key order the
// worker's Configure expects. The gain is reported in driver scale.
func (s *Settings) DeviceParameters() device.Parameters {
	return device.Parameters{
		{Key: device.SetSubdevice, Value: device.StringValue(s.Subdevice)},
		{Key: device.SetAntennaIndex, Value: device.IntValue(int64(s.AntennaIndex))},
		{Key: device.SetFrequency, Value: device.FloatValue(s.Frequency)},
		{Key: device.SetSampleRate, Value: device.FloatValue(s.SampleRate)},
		{Key: device.SetBandwidth, Value: device.FloatValue(s.Bandwidth)},
		{Key: device.SetRFGain, Value: device.FloatValue(NormalizeGain(s.Gain))},
		{Key: device.Identifier, Value: device.StringValue(s.Serial)},
	}
}

// SetGain stores gain and forwards it to the device.
func (s *Settings) SetGain(gain float64) error {
	s.Gain = gain
	return s.SetDeviceGain(gain)
}

// SetDeviceGain forwards gain, scaled by GainScale, through the generic gain
// entry point. gain must be in the orchestrator's domain.
func (s *Settings) SetDeviceGain(gain float64) error {
	return device.SetDeviceGain(s.cmd, NormalizeGain(gain))
}

func (s *Settings) SetFrequency(hz float64) error {
	s.Frequency = hz
	return s.send(device.SetFrequency, device.FloatValue(hz))
}

func (s *Settings) SetSampleRate(hz float64) error {
	s.SampleRate = hz
	return s.send(device.SetSampleRate, device.FloatValue(hz))
}

func (s *Settings) SetBandwidth(hz float64) error {
	s.Bandwidth = hz
	return s.send(device.SetBandwidth, device.FloatValue(hz))
}

func (s *Settings) SetAntennaIndex(idx int) error {
	s.AntennaIndex = idx
	return s.send(device.SetAntennaIndex, device.IntValue(int64(idx)))
}

func (s *Settings) SetSubdevice(mapping string) error {
	s.Subdevice = mapping
	return s.send(device.SetSubdevice, device.StringValue(mapping))
}

func (s *Settings) send(key device.Command, v device.Value) error {
	if s.cmd == nil {
		return nil
	}
	return s.cmd.SendCommand(key, v)
}
