package models

import (
	"fmt"
)

// recordOf builds a record from alternating key/value pairs
func recordOf(pairs ...any) Record {
	rec := NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		rec.Set(pairs[i].(string), valueOf(pairs[i+1]))
	}
	return rec
}

// valueOf converts a plain Go scalar into a Value
func valueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case float64:
		return Number(t)
	default:
		panic(fmt.Sprintf("valueOf: unsupported %T", x))
	}
}
