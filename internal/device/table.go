package device

import (
	"errors"
	"fmt"
)

// Setter applies one already kind-checked value to a backend.
type Setter func(Value) error

// Binding registers the setter for one key.
type Binding struct {
	Key  Command
	Kind Kind
	Set  Setter
}

// ErrUnsupportedKey reports a key the backend registered no setter for.
var ErrUnsupportedKey = errors.New("unsupported parameter key")

// Table is the static key → setter dispatch of one backend. It is built once
// and never changes afterwards.
type Table struct {
	order    []Command
	bindings map[Command]Binding
}

// NewTable validates and freezes the given bindings.
func NewTable(bindings ...Binding) (*Table, error) {
	t := &Table{bindings: make(map[Command]Binding, len(bindings))}
	for _, b := range bindings {
		if _, known := commandNames[b.Key]; !known {
			return nil, fmt.Errorf("binding for unknown key %d", int(b.Key))
		}
		if b.Set == nil {
			return nil, fmt.Errorf("binding %s has no setter", b.Key)
		}
		if _, dup := t.bindings[b.Key]; dup {
			return nil, fmt.Errorf("%w: %s bound twice", ErrDuplicateKey, b.Key)
		}
		t.bindings[b.Key] = b
		t.order = append(t.order, b.Key)
	}
	return t, nil
}

// Keys returns the bound keys in registration order.
func (t *Table) Keys() []Command {
	return append([]Command(nil), t.order...)
}

// Has reports whether key has a setter.
func (t *Table) Has(key Command) bool {
	_, ok := t.bindings[key]
	return ok
}

// Apply converts v to the bound kind and calls the setter.
func (t *Table) Apply(key Command, v Value) error {
	b, ok := t.bindings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedKey, key)
	}
	converted, err := v.As(b.Kind)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return b.Set(converted)
}

// Reporter receives human-readable progress lines.
type Reporter interface {
	Report(text string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(string)

func (f ReporterFunc) Report(text string) { f(text) }

// Coder is implemented by errors that carry a native return code.
type Coder interface {
	Code() int
}

// ErrorCode returns 0 for nil, the native code of a Coder, or -1.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return -1
}

// Configure is the generic configuration routine: it applies params in order
// through t and reports "<KEY> to <value>:<code>" for every field, followed by
// explain(err) for failures when explain is non-nil. A failing field does not
// stop the remaining ones; all failures are returned joined.
func Configure(r Reporter, t *Table, params Parameters, explain func(error) string) error {
	var errs []error
	for _, p := range params {
		err := t.Apply(p.Key, p.Value)
		line := fmt.Sprintf("%s to %s:%d", p.Key, p.Value, ErrorCode(err))
		if err != nil {
			if explain != nil {
				if msg := explain(err); msg != "" {
					line += " (" + msg + ")"
				}
			}
			errs = append(errs, err)
		}
		if r != nil {
			r.Report(line)
		}
	}
	return errors.Join(errs...)
}

// Commander delivers a runtime command to a running backend, usually across
// the process boundary.
type Commander interface {
	SendCommand(key Command, v Value) error
}

// SetDeviceGain is the generic gain entry point. gain must already be in the
// backend's scale; it is forwarded unchanged as SET_RF_GAIN. A nil Commander
// means no backend is attached yet and the call is a no-op.
func SetDeviceGain(c Commander, gain float64) error {
	if c == nil {
		return nil
	}
	return c.SendCommand(SetRFGain, FloatValue(gain))
}
