package kronroe

import "github.com/kronroe-db/kronroe/model"

// Fact is the fundamental unit of storage. See model.Fact.
type Fact = model.Fact

// FactId is the stable, time-sortable identifier of a fact.
type FactId = model.FactId

// Value is the object union of a fact: Text, Number, Boolean, or Entity.
type Value = model.Value

// Text returns a text value.
func Text(s string) Value { return model.Text(s) }

// Number returns a numeric value.
func Number(n float64) Value { return model.Number(n) }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return model.Boolean(b) }

// Entity returns a reference to another entity, expressing a graph edge.
// Traversal is a query for all facts about the referenced subject.
func Entity(subject string) Value { return model.Entity(subject) }
