// Package models defines the domain types for the Cetus client.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one search hit. Field order is preserved from the wire so that
// CSV headers and re-encoded JSON follow the server's layout.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{fields: orderedmap.New[string, any]()}
}

// RecordOf builds a record from alternating key/value pairs. It panics on an
// odd argument count or a non-string key, so it is meant for literals.
func RecordOf(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("models: RecordOf needs key/value pairs")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Set assigns a field, appending it if new.
func (r Record) Set(key string, value any) {
	r.fields.Set(key, value)
}

// Get returns a field value.
func (r Record) Get(key string) (any, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// String returns a field formatted as text, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Keys returns field names in wire order.
func (r Record) Keys() []string {
	if r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of fields.
func (r Record) Len() int {
	if r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// UUID returns the record identifier.
func (r Record) UUID() string {
	return r.String("uuid")
}

// RawTimestamp returns the index timestamp field exactly as delivered.
func (r Record) RawTimestamp(idx Index) string {
	return r.String(idx.TimestampField())
}

// Timestamp parses the index timestamp field.
func (r Record) Timestamp(idx Index) (time.Time, error) {
	raw := r.RawTimestamp(idx)
	if raw == "" {
		return time.Time{}, fmt.Errorf("record %q has no %s", r.UUID(), idx.TimestampField())
	}
	return ParseTimestamp(raw)
}

// MarshalJSON encodes the record as an object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

// UnmarshalJSON decodes an object, keeping field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("models: record must be a JSON object")
	}
	m := orderedmap.New[string, any]()
	if err := m.UnmarshalJSON(trimmed); err != nil {
		return err
	}
	r.fields = m
	return nil
}

// FormatValue renders a field value the way CSV and table output show it:
// scalars verbatim, everything else as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the ISO-8601 variants the API emits. Values without
// a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTimestamp renders t with microsecond precision and no zone suffix,
// the form the search API accepts in range filters.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}
