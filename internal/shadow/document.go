package shadow

import (
	"encoding/json"
	"fmt"
)

// Value is a single node of a shadow document: a scalar, an ordered
// sequence, or a nested Document. The set is closed so that Merge's
// recursion is exhaustive; the transport codec rejects anything else.
type Value interface {
	isValue()
}

// Document is an arbitrarily deep mapping from field name to Value.
// A Document held as a device's cached state is treated as immutable:
// it is replaced wholesale on every publish, never mutated in place.
type Document map[string]Value

// Sequence is an ordered list of values.
type Sequence []Value

// String is a scalar string field.
type String string

// Number is a scalar numeric field. JSON numbers decode to Number.
type Number float64

// Bool is a scalar boolean field.
type Bool bool

// Null is an explicit null field. Distinct from an absent key: a null in a
// change document overwrites the base field, an absent key leaves it alone.
type Null struct{}

func (Document) isValue() {}
func (Sequence) isValue() {}
func (String) isValue()   {}
func (Number) isValue()   {}
func (Bool) isValue()     {}
func (Null) isValue()     {}

// FromAny converts a decoded JSON object (map[string]any) into a Document.
// Returns ErrMalformedDocument if a value is not representable as a scalar,
// sequence, or nested document.
func FromAny(m map[string]any) (Document, error) {
	doc := make(Document, len(m))
	for k, raw := range m {
		v, err := valueFromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

// valueFromAny converts one decoded JSON value into a Value.
func valueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	// Convenience for documents built in Go code rather than decoded JSON.
	case int:
		return Number(t), nil
	case int64:
		return Number(t), nil
	case float32:
		return Number(t), nil
	case []any:
		seq := make(Sequence, 0, len(t))
		for i, elem := range t {
			v, err := valueFromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq = append(seq, v)
		}
		return seq, nil
	case map[string]any:
		return FromAny(t)
	case Value:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedDocument, raw)
	}
}

// Any converts the Document back into plain Go values suitable for
// encoding/json or map-based consumers.
func (d Document) Any() map[string]any {
	m := make(map[string]any, len(d))
	for k, v := range d {
		m[k] = valueToAny(v)
	}
	return m
}

func valueToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(t)
	case Number:
		return float64(t)
	case Bool:
		return bool(t)
	case Sequence:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = valueToAny(elem)
		}
		return out
	case Document:
		return t.Any()
	default:
		// Unreachable: Value is a closed set.
		return nil
	}
}

// MarshalJSON encodes the document as a plain JSON object.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Any())
}

// UnmarshalJSON decodes a JSON object into the document.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	doc, err := FromAny(raw)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}
