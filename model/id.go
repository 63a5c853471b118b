package model

import "github.com/oklog/ulid/v2"

// FactId is the stable, time-sortable identifier of a fact.
//
// It is a 26-character crockford-base32 string: a 48-bit millisecond
// timestamp followed by 80 bits of randomness. Byte-wise ordering of two
// ids matches their creation order at millisecond resolution, which is what
// makes the composite fact keys range-scannable in insertion order.
type FactId string

// NewFactId returns a fresh id stamped with the current wall clock.
func NewFactId() FactId {
	return FactId(ulid.Make().String())
}

// ParseFactId validates that s is a well-formed id.
func ParseFactId(s string) (FactId, error) {
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", err
	}
	return FactId(s), nil
}

// String returns the raw 26-character form.
func (id FactId) String() string { return string(id) }
