// Package kronroe is an embedded temporal property graph database.
//
// The core primitive is a Fact: a subject-predicate-object triple
// augmented with bi-temporal metadata. Valid time (ValidFrom/ValidTo)
// captures when something was true in the world; transaction time
// (RecordedAt/ExpiredAt) captures when the store learned and believed it.
// Both axes are storage primitives enforced by the engine, not
// application-layer conventions.
//
// The engine runs in-process: no server, no network protocol, no
// cross-process coordinator. Writes are ACID on an embedded key-value
// substrate; reads run on snapshots.
//
// # Quick start
//
//	db, err := kronroe.Open("./my-graph")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Assert a fact
//	id, _ := db.AssertFact("alice", "works_at", kronroe.Entity("Acme"), time.Now())
//
//	// Query current state
//	facts, _ := db.CurrentFacts("alice", "works_at")
//
//	// Point-in-time query on the valid-time axis
//	then, _ := time.Parse(time.RFC3339, "2024-03-01T00:00:00Z")
//	factsThen, _ := db.FactsAt("alice", "works_at", then)
//
//	// Correct while preserving history
//	newID, _ := db.CorrectFact(id, "alice", "works_at", kronroe.Entity("Beta"), time.Now())
//	_ = newID
//
// # Retrieval
//
// Beyond the temporal readers, facts are retrievable three ways: ranked
// full-text search (Search), flat cosine similarity over caller-supplied
// embeddings with temporal gating (SearchByVector), and experimental
// hybrid rank fusion of both channels (SearchHybrid, enabled with
// WithHybridSearch). Kronroe never generates embeddings; callers supply
// them.
//
// # History
//
// Nothing erases data. Invalidation and correction fill in the closing
// timestamps of existing records; AllFactsAbout always returns the
// complete per-subject history.
package kronroe
