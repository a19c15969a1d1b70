// Package device holds the backend-independent half of the radio contract:
// normalized configuration keys, their typed values, the static setter table
// a backend registers, the generic configuration routine and the lifecycle
// states every backend walks through.
package device

import (
	"fmt"
	"strings"
)

// Command is a normalized configuration key. The numeric values are internal;
// the wire and the reports use the names returned by String.
type Command int

const (
	SetSubdevice Command = iota + 1
	SetAntennaIndex
	SetFrequency
	SetSampleRate
	SetBandwidth
	SetRFGain
	SetIFGain
	SetBBGain
	SetFreqCorrection
	SetChannelIndex
	Identifier
)

var commandNames = map[Command]string{
	SetSubdevice:      "SET_SUBDEVICE",
	SetAntennaIndex:   "SET_ANTENNA_INDEX",
	SetFrequency:      "SET_FREQUENCY",
	SetSampleRate:     "SET_SAMPLE_RATE",
	SetBandwidth:      "SET_BANDWIDTH",
	SetRFGain:         "SET_RF_GAIN",
	SetIFGain:         "SET_IF_GAIN",
	SetBBGain:         "SET_BB_GAIN",
	SetFreqCorrection: "SET_FREQUENCY_CORRECTION",
	SetChannelIndex:   "SET_CHANNEL_INDEX",
	Identifier:        "identifier",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// ParseCommand resolves a normalized key name. Names are matched exactly
// except for surrounding whitespace.
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Command) MarshalText() ([]byte, error) {
	name, ok := commandNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown command %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Command) UnmarshalText(b []byte) error {
	parsed, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
