// Package serialization encodes request bodies and decodes response bodies
// for the ArangoDB HTTP API.
package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Options controls how a request body is encoded.
type Options struct {
	// IgnoreNullValues drops object members whose value is null.
	IgnoreNullValues bool
}

// Serializer converts between Go values and wire payloads.
type Serializer interface {
	Serialize(v any, opts Options) ([]byte, error)
	Deserialize(r io.Reader, v any) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

// NewJSON returns the default JSON serializer.
func NewJSON() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize encodes v as JSON.
func (JSONSerializer) Serialize(v any, opts Options) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !opts.IgnoreNullValues {
		return data, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(dropNulls(generic))
}

// Deserialize decodes a single JSON document from r into v.
func (JSONSerializer) Deserialize(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	// anything but whitespace before EOF, including a stray ] or }, is invalid
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after JSON document")
	}
	return nil
}

func dropNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = dropNulls(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = dropNulls(val)
		}
		return t
	default:
		return v
	}
}

// DecodeError reports a response body that could not be turned into the
// expected type.
type DecodeError struct {
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
