package runtime

import (
	"context"
	"strconv"
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

// Value is a single reading delivered by a protocol engine.
type Value struct {
	Null   bool     `json:"null,omitempty"`
	Err    bool     `json:"error,omitempty"`
	Type   string   `json:"type"`
	Raw    string   `json:"raw"`
	Number *float64 `json:"number,omitempty"`
}

type FloatFormat interface {
	Format(v float64) string
}

func NullValue(typ string) Value {
	return Value{Null: true, Type: typ}
}

// ErrorValue carries an engine side error for a tag, Raw holds the error text.
func ErrorValue(typ string, text string) Value {
	return Value{Err: true, Type: typ, Raw: text}
}

func NumberValue(typ string, n float64, raw string) Value {
	if len(raw) == 0 {
		raw = strconv.FormatFloat(n, 'g', -1, 64)
	}
	return Value{Type: typ, Raw: raw, Number: &n}
}

func TextValue(typ string, raw string) Value {
	return Value{Type: typ, Raw: raw}
}

// IsValue reports whether v holds a usable reading.
func (v Value) IsValue() bool {
	return !v.Null && !v.Err
}

// ErrorText is the error description of an error value, empty otherwise.
func (v Value) ErrorText() string {
	if v.Err {
		return v.Raw
	}
	return ""
}

// Format renders the value for the log file. Numeric readings go through ff when given.
func (v Value) Format(ff FloatFormat) string {
	if v.IsValue() && ff != nil && v.Number != nil {
		return ff.Format(*v.Number)
	}
	return v.Raw
}
