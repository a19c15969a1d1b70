package soapy

import (
	"testing"

	"github.com/rjboer/gosoapy/internal/device"
)

type commandLog struct {
	keys []device.Command
	vals []device.Value
}

func (c *commandLog) SendCommand(key device.Command, v device.Value) error {
	c.keys = append(c.keys, key)
	c.vals = append(c.vals, v)
	return nil
}

func TestDeviceParametersOrder(t *testing.T) {
	want := []device.Command{
		device.SetSubdevice,
		device.SetAntennaIndex,
		device.SetFrequency,
		device.SetSampleRate,
		device.SetBandwidth,
		device.SetRFGain,
		device.Identifier,
	}
	for _, s := range []*Settings{
		{},
		{Subdevice: "A:0", AntennaIndex: 1, Frequency: 433.92e6, SampleRate: 2e6, Bandwidth: 1e6, Gain: 40, Serial: "serial=1"},
	} {
		keys := s.DeviceParameters().Keys()
		if len(keys) != len(want) {
			t.Fatalf("expected %d keys got %d", len(want), len(keys))
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("key %d: expected %s got %s", i, want[i], keys[i])
			}
		}
	}
}

func TestEveryReportedKeyIsSettable(t *testing.T) {
	b := NewBackend(NewSim(), nil, nil)
	for _, key := range (&Settings{}).DeviceParameters().Keys() {
		found := false
		for _, k := range b.Keys() {
			if k == key {
				found = true
			}
		}
		if !found {
			t.Fatalf("key %s has no setter", key)
		}
	}
}

func TestGainNormalization(t *testing.T) {
	log := &commandLog{}
	s := &Settings{}
	s.Attach(log)

	for i := 0; i < 3; i++ {
		if err := s.SetGain(40); err != nil {
			t.Fatalf("SetGain failed: %v", err)
		}
	}
	if s.Gain != 40 {
		t.Fatalf("stored gain must stay unscaled, got %v", s.Gain)
	}
	if len(log.keys) != 3 {
		t.Fatalf("expected 3 forwards got %d", len(log.keys))
	}
	for i, v := range log.vals {
		f, _ := v.Float()
		if log.keys[i] != device.SetRFGain || f != 0.4 {
			t.Fatalf("forward %d: %s %v", i, log.keys[i], f)
		}
	}

	gain, _ := s.DeviceParameters().Get(device.SetRFGain)
	if f, _ := gain.Float(); f != 0.4 {
		t.Fatalf("reported gain should be 0.4, got %v", f)
	}
}

func TestSettersForwardWhenAttached(t *testing.T) {
	s := &Settings{}
	if err := s.SetFrequency(100e6); err != nil {
		t.Fatalf("detached setter failed: %v", err)
	}
	log := &commandLog{}
	s.Attach(log)
	_ = s.SetSampleRate(2e6)
	_ = s.SetAntennaIndex(1)
	_ = s.SetSubdevice("A:0")
	_ = s.SetBandwidth(1e6)

	want := []device.Command{device.SetSampleRate, device.SetAntennaIndex, device.SetSubdevice, device.SetBandwidth}
	if len(log.keys) != len(want) {
		t.Fatalf("expected %d forwards got %v", len(want), log.keys)
	}
	for i := range want {
		if log.keys[i] != want[i] {
			t.Fatalf("forward %d: expected %s got %s", i, want[i], log.keys[i])
		}
	}
	if s.Frequency != 100e6 || !s.HasMultiDeviceSupport() {
		t.Fatalf("unexpected settings %#v", s)
	}
}
