package kronroe

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kronroe-db/kronroe/codec"
	"github.com/kronroe-db/kronroe/lexical"
	"github.com/kronroe-db/kronroe/lexical/bm25"
	"github.com/kronroe-db/kronroe/model"
	"github.com/kronroe-db/kronroe/storage"
	"github.com/kronroe-db/kronroe/vector"
)

// TemporalGraph is the embedded temporal property graph database.
//
// Bi-temporal facts are the storage primitive: every fact carries a valid
// time axis (when it was true in the world) and a transaction time axis
// (when the store believed it). All writes are ACID and serialized through
// a single writer; reads run on snapshots.
//
// The full-text and vector indexes are read-through caches over the facts
// and embeddings tables. They are rebuilt on open and appended after each
// committed write, so a crash between commit and cache update costs
// nothing: the next open restores consistency from disk.
type TemporalGraph struct {
	store  *storage.DB
	codec  codec.Codec
	logger *Logger
	now    func() time.Time

	// writeMu serializes every mutation and the post-commit cache
	// updates. The substrate serializes its own transactions too; holding
	// the lock across commit plus cache insert keeps the caches in commit
	// order.
	writeMu sync.Mutex
	closed  atomic.Bool

	text    lexical.Index // nil when full-text is disabled
	vectors *vector.Index // nil when vector is disabled
	hybrid  bool
}

// Open opens or creates a durable database rooted at dir. Fails with a
// StorageError if the path is unwritable.
func Open(dir string, opts ...Option) (*TemporalGraph, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	store, err := storage.Open(dir, storage.Options{SyncWrites: o.syncWrites})
	if err != nil {
		return nil, storageErr("open", err)
	}
	return newGraph(store, o)
}

// OpenInMemory opens a volatile database against a memory backend. Used by
// browser sandboxes and tests; contents are lost on Close.
func OpenInMemory(opts ...Option) (*TemporalGraph, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	store, err := storage.OpenInMemory(storage.Options{})
	if err != nil {
		return nil, storageErr("open", err)
	}
	return newGraph(store, o)
}

func newGraph(store *storage.DB, o options) (*TemporalGraph, error) {
	if o.hybrid && (!o.fulltext || !o.vector) {
		store.Close()
		return nil, ErrFeatureUnavailable
	}

	g := &TemporalGraph{
		store:  store,
		codec:  o.codec,
		logger: o.logger,
		now:    o.now,
		hybrid: o.hybrid,
	}
	if o.fulltext {
		g.text = bm25.New()
	}
	if o.vector {
		g.vectors = vector.New()
	}
	if err := g.rebuildCaches(); err != nil {
		store.Close()
		return nil, err
	}
	return g, nil
}

// rebuildCaches restores the in-memory index caches from the facts and
// embeddings tables. The two rebuilds are independent scans and run
// concurrently.
func (g *TemporalGraph) rebuildCaches() error {
	var eg errgroup.Group
	if g.text != nil {
		eg.Go(g.rebuildTextIndex)
	}
	if g.vectors != nil {
		eg.Go(g.rebuildVectorIndex)
	}
	return eg.Wait()
}

func (g *TemporalGraph) rebuildTextIndex() error {
	entries := 0
	err := g.store.View(func(tx *storage.Txn) error {
		return tx.PrefixScan(storage.TableFacts, "", func(key string, value []byte) error {
			var f model.Fact
			if err := g.codec.Unmarshal(value, &f); err != nil {
				return serializationErr(key, err)
			}
			entries++
			return g.text.Add(f.ID, factDocument(&f))
		})
	})
	g.logger.LogRebuild(context.Background(), "fulltext", entries, err)
	return err
}

func (g *TemporalGraph) rebuildVectorIndex() error {
	entries := 0
	err := g.store.View(func(tx *storage.Txn) error {
		return tx.PrefixScan(storage.TableEmbeddings, "", func(key string, value []byte) error {
			vec, err := codec.UnpackFloat32(value)
			if err != nil {
				return serializationErr(key, err)
			}
			if ok := g.vectors.Insert(model.FactId(key), vec); !ok {
				return serializationErr(key, &ErrDimensionMismatch{
					Expected: g.vectors.Dim(),
					Actual:   len(vec),
				})
			}
			entries++
			return nil
		})
	})
	g.logger.LogRebuild(context.Background(), "vector", entries, err)
	return err
}

// resetCaches discards and rebuilds the in-memory index caches, e.g.
// after a restore replaced the table contents. Caller holds writeMu.
func (g *TemporalGraph) resetCaches() error {
	if g.text != nil {
		g.text = bm25.New()
	}
	if g.vectors != nil {
		g.vectors = vector.New()
	}
	return g.rebuildCaches()
}

// Close releases the database. Every subsequent operation returns
// ErrClosed.
func (g *TemporalGraph) Close() error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.closed.Swap(true) {
		return nil
	}
	if g.text != nil {
		g.text.Close()
	}
	return storageErr("close", g.store.Close())
}

func (g *TemporalGraph) checkOpen() error {
	if g.closed.Load() {
		return ErrClosed
	}
	return nil
}

// factDocument is the synthetic text indexed for a fact:
// "<subject> <predicate> <value>". Snake_case predicates are additionally
// indexed as separate words so "works at" matches works_at.
func factDocument(f *model.Fact) string {
	doc := f.Subject + " " + f.Predicate + " " + f.Object.String()
	spaced := predicateWords(f.Predicate)
	if spaced != f.Predicate {
		doc += " " + spaced
	}
	return doc
}

func predicateWords(predicate string) string {
	out := []byte(predicate)
	for i, c := range out {
		if c == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

func (g *TemporalGraph) newFact(subject, predicate string, object Value, validFrom time.Time, confidence float64, source string) model.Fact {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return model.Fact{
		ID:         model.NewFactId(),
		Subject:    subject,
		Predicate:  predicate,
		Object:     object,
		ValidFrom:  validFrom.UTC(),
		RecordedAt: g.now().UTC(),
		Confidence: confidence,
		Source:     source,
	}
}

// writeFactInTxn writes the fact row and its id-index entry inside an
// already-open write transaction. The caller owns the transaction.
func (g *TemporalGraph) writeFactInTxn(tx *storage.Txn, f *model.Fact) error {
	raw, err := g.codec.Marshal(f)
	if err != nil {
		return serializationErr(string(f.ID), err)
	}
	key := factKey(f.Subject, f.Predicate, f.ID)
	if err := tx.Set(storage.TableFacts, key, raw); err != nil {
		return err
	}
	return tx.Set(storage.TableIDIndex, f.ID.String(), []byte(key))
}

// indexFact appends the committed fact to the full-text cache. Must be
// called with writeMu held, after the commit.
func (g *TemporalGraph) indexFact(f *model.Fact) {
	if g.text != nil {
		_ = g.text.Add(f.ID, factDocument(f))
	}
}

// AssertFact creates a new fact and returns its id. recorded_at is the
// current wall clock; confidence defaults to 1.0.
func (g *TemporalGraph) AssertFact(subject, predicate string, object Value, validFrom time.Time) (FactId, error) {
	return g.assert(subject, predicate, object, validFrom, 1.0, "")
}

// AssertFactWithConfidence creates a new fact with an explicit confidence
// score. Confidence is clamped to [0, 1].
func (g *TemporalGraph) AssertFactWithConfidence(subject, predicate string, object Value, validFrom time.Time, confidence float64) (FactId, error) {
	return g.assert(subject, predicate, object, validFrom, confidence, "")
}

// AssertFactWithSource creates a new fact tagged with a free-form
// provenance string (conversation id, document id, ...).
func (g *TemporalGraph) AssertFactWithSource(subject, predicate string, object Value, validFrom time.Time, source string) (FactId, error) {
	return g.assert(subject, predicate, object, validFrom, 1.0, source)
}

func (g *TemporalGraph) assert(subject, predicate string, object Value, validFrom time.Time, confidence float64, source string) (FactId, error) {
	if err := g.checkOpen(); err != nil {
		return "", err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	f := g.newFact(subject, predicate, object, validFrom, confidence, source)
	err := g.store.Update(func(tx *storage.Txn) error {
		return g.writeFactInTxn(tx, &f)
	})
	if err != nil {
		g.logger.LogAssert(context.Background(), subject, predicate, "", err)
		return "", translateError("assert", err)
	}
	g.indexFact(&f)
	g.logger.LogAssert(context.Background(), subject, predicate, f.ID, nil)
	return f.ID, nil
}

// AssertFactWithEmbedding atomically writes the fact row and its embedding
// in one transaction, then updates the in-memory vector index.
//
// The first embedding ever written fixes the index dimension; later writes
// with a different dimension fail with ErrDimensionMismatch and leave the
// store untouched. Kronroe never generates embeddings — callers supply
// them.
func (g *TemporalGraph) AssertFactWithEmbedding(subject, predicate string, object Value, validFrom time.Time, embedding []float32) (FactId, error) {
	if err := g.checkOpen(); err != nil {
		return "", err
	}
	if g.vectors == nil {
		return "", ErrFeatureUnavailable
	}
	if len(embedding) == 0 {
		return "", ErrEmptyEmbedding
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if dim, ok := g.vectors.CheckDim(len(embedding)); !ok {
		return "", &ErrDimensionMismatch{Expected: dim, Actual: len(embedding)}
	}

	f := g.newFact(subject, predicate, object, validFrom, 1.0, "")
	first := g.vectors.Len() == 0
	err := g.store.Update(func(tx *storage.Txn) error {
		if err := g.writeFactInTxn(tx, &f); err != nil {
			return err
		}
		if err := tx.Set(storage.TableEmbeddings, f.ID.String(), codec.PackFloat32(embedding)); err != nil {
			return err
		}
		if first {
			return tx.Set(storage.TableMeta, metaKeyEmbeddingDim,
				[]byte(strconv.Itoa(len(embedding))))
		}
		return nil
	})
	if err != nil {
		g.logger.LogAssert(context.Background(), subject, predicate, "", err)
		return "", translateError("assert_with_embedding", err)
	}

	// Cache update after the durable commit: a crash between the two is
	// repaired by the rebuild on the next open.
	g.vectors.Insert(f.ID, embedding)
	g.indexFact(&f)
	g.logger.LogAssert(context.Background(), subject, predicate, f.ID, nil)
	return f.ID, nil
}

// AssertFactIdempotent creates a new fact unless idempotencyKey was seen
// before, in which case the original id is returned and nothing is
// written. The key-to-id mapping commits in the same transaction as the
// fact, so at most one fact exists per key even across crashes and
// retries.
func (g *TemporalGraph) AssertFactIdempotent(subject, predicate string, object Value, validFrom time.Time, idempotencyKey string) (FactId, error) {
	if err := g.checkOpen(); err != nil {
		return "", err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	var (
		f       model.Fact
		created bool
	)
	err := g.store.Update(func(tx *storage.Txn) error {
		existing, err := tx.Get(storage.TableIdempotency, idempotencyKey)
		if err == nil {
			f.ID = model.FactId(existing)
			return nil
		}
		if err != storage.ErrKeyNotFound {
			return err
		}

		f = g.newFact(subject, predicate, object, validFrom, 1.0, "")
		created = true
		if err := g.writeFactInTxn(tx, &f); err != nil {
			return err
		}
		return tx.Set(storage.TableIdempotency, idempotencyKey, []byte(f.ID))
	})
	if err != nil {
		return "", translateError("assert_idempotent", err)
	}
	if created {
		g.indexFact(&f)
	}
	return f.ID, nil
}

// FactByID returns the fact with the given id, or ErrNotFound.
func (g *TemporalGraph) FactByID(id FactId) (Fact, error) {
	if err := g.checkOpen(); err != nil {
		return Fact{}, err
	}
	var f model.Fact
	err := g.store.View(func(tx *storage.Txn) error {
		got, err := g.loadFactTxn(tx, id)
		if err != nil {
			return err
		}
		f = got.fact
		return nil
	})
	if err != nil {
		return Fact{}, err
	}
	return f, nil
}

type loadedFact struct {
	key  string
	fact model.Fact
}

// loadFactTxn resolves a fact id to its row through the id-index table.
func (g *TemporalGraph) loadFactTxn(tx *storage.Txn, id FactId) (loadedFact, error) {
	key, err := tx.Get(storage.TableIDIndex, id.String())
	if err == storage.ErrKeyNotFound {
		return loadedFact{}, ErrNotFound
	}
	if err != nil {
		return loadedFact{}, storageErr("fact_by_id", err)
	}
	raw, err := tx.Get(storage.TableFacts, string(key))
	if err == storage.ErrKeyNotFound {
		// Id-index entry without a row: store damage.
		return loadedFact{}, serializationErr(string(key), err)
	}
	if err != nil {
		return loadedFact{}, storageErr("fact_by_id", err)
	}
	var f model.Fact
	if err := g.codec.Unmarshal(raw, &f); err != nil {
		return loadedFact{}, serializationErr(string(key), err)
	}
	return loadedFact{key: string(key), fact: f}, nil
}

// CurrentFacts returns the facts for (subject, predicate) that are open on
// both axes: no valid_to and no expired_at. Results are in creation order.
func (g *TemporalGraph) CurrentFacts(subject, predicate string) ([]Fact, error) {
	return g.scanFacts(predicatePrefix(subject, predicate), func(f *model.Fact) bool {
		return f.IsCurrent()
	})
}

// FactsAt returns the facts for (subject, predicate) valid at the instant
// at on the valid-time axis: valid_from <= at < valid_to (an unset
// valid_to is +infinity), excluding expired records.
func (g *TemporalGraph) FactsAt(subject, predicate string, at time.Time) ([]Fact, error) {
	return g.scanFacts(predicatePrefix(subject, predicate), func(f *model.Fact) bool {
		return f.ValidAt(at)
	})
}

// AllFactsAbout returns every fact ever recorded for an entity across all
// predicates, including retracted and corrected records. Nothing is ever
// removed from this history.
func (g *TemporalGraph) AllFactsAbout(subject string) ([]Fact, error) {
	return g.scanFacts(subjectPrefix(subject), func(*model.Fact) bool { return true })
}

// CountFacts returns the total number of fact rows.
func (g *TemporalGraph) CountFacts() (int, error) {
	n := 0
	_, err := g.scanFacts("", func(*model.Fact) bool {
		n++
		return false
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// scanFacts scans the facts table under prefix in key (creation) order. A
// row that fails to decode fails the whole call: silently skipping damaged
// rows would make temporal queries quietly wrong.
func (g *TemporalGraph) scanFacts(prefix string, keep func(*model.Fact) bool) ([]Fact, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	var out []Fact
	err := g.store.View(func(tx *storage.Txn) error {
		return tx.PrefixScan(storage.TableFacts, prefix, func(key string, value []byte) error {
			var f model.Fact
			if err := g.codec.Unmarshal(value, &f); err != nil {
				return serializationErr(key, err)
			}
			if keep(&f) {
				out = append(out, f)
			}
			return nil
		})
	})
	if err != nil {
		return nil, translateError("scan", err)
	}
	return out, nil
}

// InvalidateFact closes the fact in transaction time by setting
// expired_at to now. Valid time is untouched: the record still reads as
// true-in-the-world for its valid interval, but the store no longer
// believes it. Use CloseFactValidity to end a fact on the valid-time axis.
//
// Invalidating an already-expired fact is a no-op.
func (g *TemporalGraph) InvalidateFact(id FactId) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	now := g.now().UTC()
	err := g.store.Update(func(tx *storage.Txn) error {
		loaded, err := g.loadFactTxn(tx, id)
		if err != nil {
			return err
		}
		if loaded.fact.ExpiredAt != nil {
			return nil
		}
		loaded.fact.ExpiredAt = &now
		return g.rewriteFactTxn(tx, &loaded)
	})
	g.logger.LogInvalidate(context.Background(), id, err)
	return translateError("invalidate", err)
}

// CloseFactValidity ends the fact on the valid-time axis by setting
// valid_to to at. The record stays active in transaction time; FactsAt
// continues to return it for instants before at. Fails with
// ErrInvalidInterval if at precedes valid_from.
func (g *TemporalGraph) CloseFactValidity(id FactId, at time.Time) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	at = at.UTC()
	err := g.store.Update(func(tx *storage.Txn) error {
		loaded, err := g.loadFactTxn(tx, id)
		if err != nil {
			return err
		}
		if at.Before(loaded.fact.ValidFrom) {
			return ErrInvalidInterval
		}
		loaded.fact.ValidTo = &at
		return g.rewriteFactTxn(tx, &loaded)
	})
	return translateError("close_validity", err)
}

// CorrectFact supersedes a fact: the old record's expired_at and the new
// record commit in one transaction, so no snapshot ever sees the history
// half-corrected. Returns the replacement's id.
//
// The replacement may change subject, predicate, and object; it does not
// inherit the old fact's embedding.
func (g *TemporalGraph) CorrectFact(id FactId, subject, predicate string, object Value, validFrom time.Time) (FactId, error) {
	if err := g.checkOpen(); err != nil {
		return "", err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	now := g.now().UTC()
	replacement := g.newFact(subject, predicate, object, validFrom, 1.0, "")
	err := g.store.Update(func(tx *storage.Txn) error {
		loaded, err := g.loadFactTxn(tx, id)
		if err != nil {
			return err
		}
		loaded.fact.ExpiredAt = &now
		if err := g.rewriteFactTxn(tx, &loaded); err != nil {
			return err
		}
		return g.writeFactInTxn(tx, &replacement)
	})
	if err != nil {
		g.logger.LogCorrect(context.Background(), id, "", err)
		return "", translateError("correct", err)
	}
	g.indexFact(&replacement)
	g.logger.LogCorrect(context.Background(), id, replacement.ID, nil)
	return replacement.ID, nil
}

// rewriteFactTxn persists a mutated fact back under its existing key. Only
// the closing timestamps are ever rewritten this way.
func (g *TemporalGraph) rewriteFactTxn(tx *storage.Txn, loaded *loadedFact) error {
	raw, err := g.codec.Marshal(&loaded.fact)
	if err != nil {
		return serializationErr(loaded.key, err)
	}
	return tx.Set(storage.TableFacts, loaded.key, raw)
}

// translateError normalizes substrate failures to StorageError while
// letting the engine's own typed errors and sentinels pass through.
func translateError(op string, err error) error {
	switch err.(type) {
	case nil:
		return nil
	case *StorageError, *SerializationError, *ErrDimensionMismatch:
		return err
	}
	switch err {
	case ErrNotFound, ErrClosed, ErrFeatureUnavailable, ErrInvalidInterval,
		ErrEmptyEmbedding, ErrInvalidK:
		return err
	}
	return storageErr(op, err)
}
