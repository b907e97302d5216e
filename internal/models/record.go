package models

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags the scalar held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is one scalar cell of an ingested row (string, number, boolean or null)
type Value struct {
	Kind Kind
	Str  string // string payload, or the literal text of a number
	Num  float64
	Bool bool
}

// Null returns the null value
func Null() Value { return Value{Kind: KindNull} }

// String builds a string value
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool builds a boolean value
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number builds a numeric value from a float
func Number(f float64) Value {
	return Value{Kind: KindNumber, Num: f, Str: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NumberLiteral builds a numeric value keeping the literal text (e.g. a json.Number).
// Returns false if the literal is not a number.
func NumberLiteral(lit string) (Value, bool) {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, false
	}
	return Value{Kind: KindNumber, Num: f, Str: lit}, true
}

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Text renders the value the way it would be displayed to a user
func (v Value) Text() string {
	switch v.Kind {
	case KindString, KindNumber:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Numbers longer than maxNumberLen or scaled beyond 10^±maxDecimalExponent are non-numeric
const (
	maxNumberLen       = 64
	maxDecimalExponent = 30
)

// Decimal parses the value as an exact decimal number.
// Strings must hold a finite number once trimmed; booleans and nulls never parse.
func (v Value) Decimal() (decimal.Decimal, bool) {
	switch v.Kind {
	case KindNumber:
		if d, ok := parseDecimal(v.Str); ok {
			return d, true
		}
		if v.Str != "" || math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return decimal.Decimal{}, false
		}
		return checkRange(decimal.NewFromFloat(v.Num))
	case KindString:
		return parseDecimal(strings.TrimSpace(v.Str))
	default:
		return decimal.Decimal{}, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" || len(s) > maxNumberLen {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return checkRange(d)
}

func checkRange(d decimal.Decimal) (decimal.Decimal, bool) {
	if exp := d.Exponent(); exp < -maxDecimalExponent || exp > maxDecimalExponent {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Record is one ingested row: observed key -> scalar, keys kept in first-seen order
type Record struct {
	keys   []string
	values map[string]Value
}

// NewRecord creates an empty record
func NewRecord() Record {
	return Record{values: make(map[string]Value)}
}

// Set stores a value; re-setting a key keeps its original position
func (r *Record) Set(key string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value under key and whether the key is present
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len is the number of keys
func (r Record) Len() int { return len(r.keys) }
