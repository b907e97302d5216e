package services

import (
	"fmt"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

// recordOf builds a record from alternating key/value pairs
func recordOf(pairs ...any) models.Record {
	rec := models.NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		rec.Set(pairs[i].(string), valueOf(pairs[i+1]))
	}
	return rec
}

// valueOf converts a plain Go scalar into a Value
func valueOf(x any) models.Value {
	switch t := x.(type) {
	case nil:
		return models.Null()
	case models.Value:
		return t
	case string:
		return models.String(t)
	case bool:
		return models.Bool(t)
	case int:
		return models.Number(float64(t))
	case float64:
		return models.Number(t)
	default:
		panic(fmt.Sprintf("valueOf: unsupported %T", x))
	}
}
