package device

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type codeErr int

func (c codeErr) Error() string { return "native failure" }
func (c codeErr) Code() int     { return int(c) }

func TestParseCommandMatchesString(t *testing.T) {
	for c := range commandNames {
		parsed, err := ParseCommand(c.String())
		if err != nil || parsed != c {
			t.Fatalf("ParseCommand(%q) = %v, %v", c.String(), parsed, err)
		}
	}
	if _, err := ParseCommand("SET_WARP"); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestValueConversions(t *testing.T) {
	if f, err := IntValue(3).Float(); err != nil || f != 3 {
		t.Fatalf("int->float: %v %v", f, err)
	}
	if i, err := FloatValue(4).Int(); err != nil || i != 4 {
		t.Fatalf("integral float->int: %v %v", i, err)
	}
	if _, err := FloatValue(4.5).Int(); !errors.Is(err, ErrKind) {
		t.Fatalf("expected ErrKind for 4.5->int, got %v", err)
	}
	if _, err := StringValue("x").Float(); !errors.Is(err, ErrKind) {
		t.Fatalf("expected ErrKind for string->float, got %v", err)
	}
	if got := FloatValue(100e6).String(); got != "100000000" {
		t.Fatalf("unexpected float rendering %q", got)
	}
}

func TestParametersJSONKeepsOrderAndKinds(t *testing.T) {
	params, err := NewParameters(
		Param{Key: SetSubdevice, Value: StringValue("A:0")},
		Param{Key: SetAntennaIndex, Value: IntValue(1)},
		Param{Key: SetFrequency, Value: FloatValue(433.92e6)},
	)
	if err != nil {
		t.Fatalf("NewParameters failed: %v", err)
	}
	data, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"key":"SET_ANTENNA_INDEX"`) {
		t.Fatalf("key names missing from %s", data)
	}

	var back Parameters
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 3 || back[1].Key != SetAntennaIndex || back[1].Value.Kind() != KindInt {
		t.Fatalf("unexpected decode %#v", back)
	}
	if f, _ := back[2].Value.Float(); f != 433.92e6 {
		t.Fatalf("frequency changed: %v", f)
	}
}

func TestParametersRejectDuplicates(t *testing.T) {
	_, err := NewParameters(
		Param{Key: SetFrequency, Value: FloatValue(1)},
		Param{Key: SetFrequency, Value: FloatValue(2)},
	)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	var p Parameters
	dup := `[{"key":"SET_RF_GAIN","value":{"kind":"float","value":1}},{"key":"SET_RF_GAIN","value":{"kind":"float","value":2}}]`
	if err := json.Unmarshal([]byte(dup), &p); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey from JSON, got %v", err)
	}
}

func TestTableRejectsBadBindings(t *testing.T) {
	set := func(Value) error { return nil }
	if _, err := NewTable(Binding{Key: SetFrequency, Kind: KindFloat}); err == nil {
		t.Fatalf("expected error for nil setter")
	}
	if _, err := NewTable(
		Binding{Key: SetFrequency, Kind: KindFloat, Set: set},
		Binding{Key: SetFrequency, Kind: KindFloat, Set: set},
	); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestConfigureReportsEveryFieldAndContinues(t *testing.T) {
	var freq float64
	var antenna int64
	table, err := NewTable(
		Binding{Key: SetAntennaIndex, Kind: KindInt, Set: func(v Value) error {
			antenna, _ = v.Int()
			return codeErr(4711)
		}},
		Binding{Key: SetFrequency, Kind: KindFloat, Set: func(v Value) error {
			freq, _ = v.Float()
			return nil
		}},
	)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	params, _ := NewParameters(
		Param{Key: SetAntennaIndex, Value: IntValue(9)},
		Param{Key: SetFrequency, Value: IntValue(100000000)},
		Param{Key: SetIFGain, Value: FloatValue(1)},
	)

	var lines []string
	err = Configure(ReporterFunc(func(s string) { lines = append(lines, s) }), table, params,
		func(err error) string {
			if ErrorCode(err) == 4711 {
				return "antenna out of range"
			}
			return ""
		})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if !errors.Is(err, ErrUnsupportedKey) {
		t.Fatalf("expected ErrUnsupportedKey in %v", err)
	}
	if freq != 100e6 || antenna != 9 {
		t.Fatalf("setters not reached: freq=%v antenna=%v", freq, antenna)
	}
	want := []string{
		"SET_ANTENNA_INDEX to 9:4711 (antenna out of range)",
		"SET_FREQUENCY to 100000000:0",
		"SET_IF_GAIN to 1:-1",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines got %v", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q got %q", i, want[i], lines[i])
		}
	}
}

type recordingCommander struct {
	key Command
	val Value
}

func (r *recordingCommander) SendCommand(key Command, v Value) error {
	r.key, r.val = key, v
	return nil
}

func TestSetDeviceGainForwardsUnchanged(t *testing.T) {
	if err := SetDeviceGain(nil, 1); err != nil {
		t.Fatalf("nil commander should be a no-op: %v", err)
	}
	rec := &recordingCommander{}
	if err := SetDeviceGain(rec, 0.42); err != nil {
		t.Fatalf("SetDeviceGain failed: %v", err)
	}
	if f, _ := rec.val.Float(); rec.key != SetRFGain || f != 0.42 {
		t.Fatalf("unexpected forward %v %v", rec.key, rec.val)
	}
}
