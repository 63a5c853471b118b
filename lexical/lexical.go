// Package lexical defines the interface for the full-text index over facts.
//
// The engine feeds each fact in as a synthetic document and retrieves
// ranked candidates; hybrid retrieval fuses these ranks with the vector
// channel using reciprocal rank fusion.
package lexical

import "github.com/kronroe-db/kronroe/model"

// Candidate is a scored match from a lexical search.
type Candidate struct {
	ID    model.FactId
	Score float64
}

// Index is the interface for a lexical search index.
type Index interface {
	// Add indexes a document for the given fact. Re-adding an id replaces
	// its previous document.
	Add(id model.FactId, text string) error
	// Delete removes a document from the index.
	Delete(id model.FactId) error
	// Search returns up to k candidates ranked by relevance, best first.
	// Ties are broken by id byte order. A query that yields no terms
	// returns an empty slice, not an error.
	Search(query string, k int) ([]Candidate, error)
	// Close releases the index.
	Close() error
}
