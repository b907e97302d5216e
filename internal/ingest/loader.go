// Package ingest turns raw CSV or JSON uploads into flat records for analysis.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

const (
	// MaxRows caps how many rows of one upload are analysed
	MaxRows = 200

	maxNestingDepth = 4
)

// Format is the upload encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidJSON       = errors.New("invalid JSON format")
	ErrInvalidCSV        = errors.New("CSV parsing error")
)

// Batch is the ingested, truncated record set of one upload
type Batch struct {
	Format     Format
	Records    []models.Record
	Attempted  int  // rows looked at, at most MaxRows
	LinesTotal int  // line items seen across parsed rows
	Truncated  bool // input had more than MaxRows rows
}

// Parsed is the number of rows that produced a record
func (b *Batch) Parsed() int { return len(b.Records) }

// ParseFormat validates a format name; empty means auto-detect
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "csv", "text/csv":
		return FormatCSV, nil
	case "json", "application/json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// DetectFormat guesses JSON when the payload starts like a JSON document, CSV otherwise
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatCSV
}

// Load ingests data in the given format; an empty format is auto-detected
func Load(data []byte, format Format) (*Batch, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	switch format {
	case FormatJSON:
		return LoadJSON(data)
	case FormatCSV:
		return LoadCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// LoadCSV reads a header row followed by data rows. Rows whose column count
// differs from the header are counted as attempted but not parsed.
func LoadCSV(r io.Reader) (*Batch, error) {
	batch := &Batch{Format: FormatCSV}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return batch, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		if batch.Attempted >= MaxRows {
			batch.Truncated = true
			break
		}
		batch.Attempted++

		if len(row) != len(header) {
			continue
		}
		rec := models.NewRecord()
		for i, key := range header {
			if key == "" {
				continue
			}
			rec.Set(key, models.String(row[i]))
		}
		batch.Records = append(batch.Records, rec)
		batch.LinesTotal++
	}

	return batch, nil
}

// LoadJSON accepts an array of objects, or an object holding an "invoices"
// or "lines" array. Nested objects are flattened to dotted keys.
func LoadJSON(data []byte) (*Batch, error) {
	batch := &Batch{Format: FormatJSON}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	doc, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidJSON)
	}

	var rows []any
	switch t := doc.(type) {
	case []any:
		rows = t
	case *object:
		if inv, ok := t.vals["invoices"].([]any); ok {
			rows = inv
		} else if lines, ok := t.vals["lines"].([]any); ok {
			rows = lines
		}
	}

	if len(rows) > MaxRows {
		rows = rows[:MaxRows]
		batch.Truncated = true
	}

	for _, row := range rows {
		batch.Attempted++
		obj, ok := row.(*object)
		if !ok {
			continue
		}
		rec := models.NewRecord()
		flatten(&rec, "", obj, 0)
		batch.Records = append(batch.Records, rec)

		if lines, ok := obj.vals["lines"].([]any); ok {
			batch.LinesTotal += len(lines)
		} else {
			batch.LinesTotal++
		}
	}

	return batch, nil
}

// object is a decoded JSON object that remembers key order
type object struct {
	keys []string
	vals map[string]any
}

// decodeValue reads one JSON value, keeping object keys in document order
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil // string, json.Number, bool or nil
	}

	switch delim {
	case '{':
		obj := &object{vals: make(map[string]any)}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.vals[key]; !dup {
				obj.keys = append(obj.keys, key)
			}
			obj.vals[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// flatten copies scalars of obj into rec, prefixing nested keys with their parent path
func flatten(rec *models.Record, prefix string, obj *object, depth int) {
	for _, key := range obj.keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := obj.vals[key].(type) {
		case nil:
			rec.Set(path, models.Null())
		case string:
			rec.Set(path, models.String(v))
		case bool:
			rec.Set(path, models.Bool(v))
		case json.Number:
			if num, ok := models.NumberLiteral(v.String()); ok {
				rec.Set(path, num)
			} else {
				rec.Set(path, models.String(v.String()))
			}
		case *object:
			if depth+1 < maxNestingDepth {
				flatten(rec, path, v, depth+1)
			}
		}
		// arrays carry line items or lists; they are not scalar cells
	}
}
