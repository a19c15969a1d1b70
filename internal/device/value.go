package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "invalid"
	}
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	default:
		return 0, fmt.Errorf("unknown value kind %q", s)
	}
}

// ErrKind reports a value that cannot be converted to the kind a setter expects.
var ErrKind = errors.New("value kind mismatch")

// Value is a tagged configuration value.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func (v Value) Kind() Kind       { return v.kind }

// Str returns the string payload.
func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: want string, have %s", ErrKind, v.kind)
	}
	return v.s, nil
}

// Int returns the integer payload. Integral floats convert.
func (v Value) Int() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), nil
		}
	}
	return 0, fmt.Errorf("%w: want int, have %s %s", ErrKind, v.kind, v)
}

// Float returns the numeric payload. Integers convert.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.f, nil
	case KindInt:
		return float64(v.i), nil
	}
	return 0, fmt.Errorf("%w: want float, have %s", ErrKind, v.kind)
}

// As converts v to kind k, or fails with ErrKind.
func (v Value) As(k Kind) (Value, error) {
	switch k {
	case KindString:
		s, err := v.Str()
		return StringValue(s), err
	case KindInt:
		i, err := v.Int()
		return IntValue(i), err
	case KindFloat:
		f, err := v.Float()
		return FloatValue(f), err
	}
	return Value{}, fmt.Errorf("%w: invalid target kind", ErrKind)
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return "<nil>"
	}
}

type valueJSON struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON keeps the kind tag so integers and floats survive the trip.
func (v Value) MarshalJSON() ([]byte, error) {
	var raw []byte
	var err error
	switch v.kind {
	case KindString:
		raw, err = json.Marshal(v.s)
	case KindInt:
		raw, err = json.Marshal(v.i)
	case KindFloat:
		raw, err = json.Marshal(v.f)
	default:
		return []byte("null"), nil
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.kind.String(), Value: raw})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var wire valueJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	kind, err := parseKind(wire.Kind)
	if err != nil {
		return err
	}
	out := Value{kind: kind}
	switch kind {
	case KindString:
		err = json.Unmarshal(wire.Value, &out.s)
	case KindInt:
		err = json.Unmarshal(wire.Value, &out.i)
	case KindFloat:
		err = json.Unmarshal(wire.Value, &out.f)
	}
	if err != nil {
		return fmt.Errorf("decode %s value: %w", kind, err)
	}
	*v = out
	return nil
}

// Param pairs a key with its value.
type Param struct {
	Key   Command `json:"key"`
	Value Value   `json:"value"`
}

// ErrDuplicateKey reports a key given twice in one Parameters list.
var ErrDuplicateKey = errors.New("duplicate parameter key")

// Parameters is an ordered key/value list with unique keys.
type Parameters []Param

// NewParameters checks key uniqueness and keeps the given order.
func NewParameters(params ...Param) (Parameters, error) {
	seen := make(map[Command]struct{}, len(params))
	out := make(Parameters, 0, len(params))
	for _, p := range params {
		if _, dup := seen[p.Key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, p.Key)
		}
		seen[p.Key] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Get returns the value stored under key.
func (p Parameters) Get(key Command) (Value, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return Value{}, false
}

// Keys lists the keys in order.
func (p Parameters) Keys() []Command {
	out := make([]Command, len(p))
	for i, param := range p {
		out[i] = param.Key
	}
	return out
}

func (p *Parameters) UnmarshalJSON(b []byte) error {
	var list []Param
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	checked, err := NewParameters(list...)
	if err != nil {
		return err
	}
	*p = checked
	return nil
}
