package parts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Simplici0/shopworks/internal/numeric"
)

type fieldState uint8

const (
	stateUnset fieldState = iota
	stateDerived
	stateManual
)

// Field is a price, labor or machine-time value that is either Manual (entered
// by a user and authoritative) or Auto. An Auto field may carry a value derived
// from its aggregate; the zero Field is Auto with no value.
type Field struct {
	value float64
	state fieldState
}

// Manual returns an authoritative user-entered value, clamped to be non-negative.
func Manual(v float64) Field {
	return Field{value: numeric.SafeQuantity(v), state: stateManual}
}

// Derived returns an Auto field carrying a computed value.
func Derived(v float64) Field {
	return Field{value: numeric.SafeQuantity(v), state: stateDerived}
}

// Auto returns an Auto field without a value.
func Auto() Field {
	return Field{}
}

func (f Field) IsManual() bool { return f.state == stateManual }

func (f Field) IsAuto() bool { return f.state != stateManual }

// HasValue reports whether the field carries a number, manual or derived.
func (f Field) HasValue() bool { return f.state != stateUnset }

// Value returns the carried number and whether there is one.
func (f Field) Value() (float64, bool) {
	return f.value, f.state != stateUnset
}

// Or returns the carried number, or def when the field has none.
func (f Field) Or(def float64) float64 {
	if f.state == stateUnset {
		return def
	}
	return f.value
}

// Equal reports whether both fields are in the same state and, when they carry
// values, those values agree within numeric.Tolerance.
func (f Field) Equal(other Field) bool {
	if f.state != other.state {
		return false
	}
	if f.state == stateUnset {
		return true
	}
	return math.Abs(f.value-other.value) <= numeric.Tolerance
}

func (f Field) String() string {
	switch f.state {
	case stateManual:
		return fmt.Sprintf("manual(%s)", strconv.FormatFloat(f.value, 'f', -1, 64))
	case stateDerived:
		return fmt.Sprintf("auto(%s)", strconv.FormatFloat(f.value, 'f', -1, 64))
	default:
		return "auto"
	}
}

type fieldJSON struct {
	Value  *float64 `json:"value"`
	Manual bool     `json:"manual"`
}

// MarshalJSON encodes an unset field as null and anything else as
// {"value": x, "manual": bool}.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.state == stateUnset {
		return []byte("null"), nil
	}
	v := f.value
	return json.Marshal(fieldJSON{Value: &v, Manual: f.state == stateManual})
}

// UnmarshalJSON accepts null (auto), a bare number (manual) or the object form.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = Auto()
		return nil
	}
	if data[0] != '{' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode field value: %w", err)
		}
		*f = Manual(v)
		return nil
	}
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode field object: %w", err)
	}
	switch {
	case raw.Value == nil:
		*f = Auto()
	case raw.Manual:
		*f = Manual(*raw.Value)
	default:
		*f = Derived(*raw.Value)
	}
	return nil
}
