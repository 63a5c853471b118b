package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the object union of a fact.
type ValueKind string

// The four object kinds. The set is closed: readers switch exhaustively.
const (
	KindText    ValueKind = "Text"
	KindNumber  ValueKind = "Number"
	KindBoolean ValueKind = "Boolean"
	KindEntity  ValueKind = "Entity"
)

// Value is the object position of a fact: a scalar or a reference to
// another entity. Entity values express graph edges; traversal is a query
// for all facts about the referenced subject.
//
// Value is a tagged union persisted as discriminated JSON
// ({"type":"Text","value":...}). It is modeled with an explicit kind field
// rather than an interface because the set of kinds is fixed.
type Value struct {
	kind ValueKind
	text string
	num  float64
	b    bool
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Entity returns a reference to another entity by subject name.
func Entity(subject string) Value { return Value{kind: KindEntity, text: subject} }

// Kind returns the discriminant.
func (v Value) Kind() ValueKind { return v.kind }

// AsText returns the string payload of a Text value.
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// AsNumber returns the numeric payload of a Number value.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBoolean returns the payload of a Boolean value.
func (v Value) AsBoolean() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsEntity returns the referenced subject of an Entity value.
func (v Value) AsEntity() (string, bool) { return v.text, v.kind == KindEntity }

// String renders the payload without the discriminant. Used for the
// synthetic full-text document and for logging.
func (v Value) String() string {
	switch v.kind {
	case KindText, KindEntity:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

type valueJSON struct {
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the discriminated form.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindText, KindEntity:
		payload = v.text
	case KindNumber:
		payload = v.num
	case KindBoolean:
		payload = v.b
	default:
		return nil, fmt.Errorf("value has no kind")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.kind, Value: raw})
}

// UnmarshalJSON decodes the discriminated form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(data, &vj); err != nil {
		return err
	}
	switch vj.Type {
	case KindText, KindEntity:
		var s string
		if err := json.Unmarshal(vj.Value, &s); err != nil {
			return err
		}
		*v = Value{kind: vj.Type, text: s}
	case KindNumber:
		var n float64
		if err := json.Unmarshal(vj.Value, &n); err != nil {
			return err
		}
		*v = Value{kind: KindNumber, num: n}
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(vj.Value, &b); err != nil {
			return err
		}
		*v = Value{kind: KindBoolean, b: b}
	default:
		return fmt.Errorf("unknown value kind %q", vj.Type)
	}
	return nil
}
