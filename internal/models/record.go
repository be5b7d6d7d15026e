package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FieldID is the mandatory identity field of every record.
const FieldID = "id"

// TempIDPrefix marks ids assigned locally while offline. The remote replaces
// them with its own ids on insert.
const TempIDPrefix = "temp_"

// IsTempID reports whether id was assigned locally and never synced.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ErrInvalidRecord indicates that a record has no usable string id
var ErrInvalidRecord = errors.New("record must have a non-empty string id")

// Record is an opaque document: an ordered set of named fields with a
// mandatory string "id". The sync engine never looks at other fields except
// during merge resolution.
//
// Field order is preserved through JSON round-trips so that records written
// back to the remote keep the shape the caller gave them.
type Record struct {
	values map[string]any
	keys   []string
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// ID returns the record id or an empty string when absent or not a string.
func (r *Record) ID() string {
	if r == nil {
		return ""
	}
	id, _ := r.values[FieldID].(string)
	return id
}

// SetID sets the record id, keeping its position if it already exists.
func (r *Record) SetID(id string) {
	r.Set(FieldID, id)
}

// Validate checks that the record carries a non-empty string id.
func (r *Record) Validate() error {
	if r.ID() == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Get returns a field value.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Set inserts or replaces a field. New fields are appended at the end.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Delete removes a field. Missing fields are ignored.
func (r *Record) Delete(key string) {
	if _, exists := r.values[key]; !exists {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		values: make(map[string]any, len(r.values)),
		keys:   make([]string, len(r.keys)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = cloneValue(v)
	}
	return c
}

// Overlay returns a copy of r with the given fields of src written on top.
// When fields is empty every field of src is used. The id of r is kept.
func (r *Record) Overlay(src *Record, fields []string) *Record {
	out := r.Clone()
	if out == nil {
		out = NewRecord()
	}
	if src == nil {
		return out
	}
	if len(fields) == 0 {
		fields = src.keys
	}
	id, hasID := out.values[FieldID]
	for _, k := range fields {
		if v, ok := src.values[k]; ok {
			out.Set(k, cloneValue(v))
		}
	}
	if hasID {
		out.values[FieldID] = id
	}
	return out
}

// Equal reports whether two records hold the same fields with the same
// values. Field order is ignored. Values are compared by their JSON encoding,
// so json.Number("30") decoded from the wire equals the Go int 30.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == nil && other == nil
	}
	if len(r.values) != len(other.values) {
		return false
	}
	for k, v := range r.values {
		ov, ok := other.values[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// String renders the record as JSON, for logs.
func (r *Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid record: %v>", err)
	}
	return string(data)
}

// MarshalJSON writes the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the order of its top-level keys.
// Numbers are kept as json.Number so that large integers survive untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	r.values = make(map[string]any)
	r.keys = r.keys[:0]

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read field name: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode field %q: %w", key, err)
		}
		r.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read record end: %w", err)
	}
	return nil
}

func valuesEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case *Record:
		return t.Clone()
	default:
		return v
	}
}
