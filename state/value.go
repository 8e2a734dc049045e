package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies the scalar type held by a Value.
type ValueKind string

const (
	// KindString indicates a string-valued entry.
	KindString ValueKind = "string"

	// KindNumber indicates a numeric entry. All numbers are stored as
	// float64, matching JSON semantics.
	KindNumber ValueKind = "number"

	// KindBool indicates a boolean entry.
	KindBool ValueKind = "bool"
)

// Value is a scalar world-state value: a string, a number, or a boolean.
//
// The zero Value is a valid empty string. Construct values with the
// String, Number, and Bool helpers:
//
//	s := state.String("deployed")
//	n := state.Number(42)
//	b := state.Bool(true)
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// String returns a string-kinded Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a number-kinded Value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool returns a bool-kinded Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Kind returns the scalar type of the value. The zero Value reports
// KindString.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindString
	}
	return v.kind
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return v.str == o.str
	}
}

// Interface returns the value as its native Go type: string, float64,
// or bool. This is used when exposing a state to expression evaluation.
func (v Value) Interface() any {
	switch v.Kind() {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return v.str
	}
}

// Float returns the numeric content and whether the value is a number.
func (v Value) Float() (float64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	return v.num, true
}

// canonical returns an unambiguous serialization of the value used for
// State.Key. Strings are quoted so separator characters cannot collide
// with the surrounding encoding.
func (v Value) canonical() string {
	switch v.Kind() {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	default:
		return "s:" + strconv.Quote(v.str)
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.Kind() {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// MarshalJSON encodes the value as its plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a JSON scalar into the matching value kind.
// Objects, arrays, and null are rejected: world states hold scalars only.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = String(t)
	case bool:
		*v = Bool(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("state: invalid number %q: %w", t.String(), err)
		}
		*v = Number(f)
	default:
		return fmt.Errorf("state: value must be a string, number, or bool, got %T", raw)
	}
	return nil
}

// FromInterface converts a native scalar into a Value. Supported inputs
// are string, bool, all integer and float types, and json.Number.
func FromInterface(raw any) (Value, error) {
	switch t := raw.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("state: invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("state: unsupported value type %T", raw)
	}
}
