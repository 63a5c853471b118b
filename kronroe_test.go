package kronroe

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T, opts ...Option) *TemporalGraph {
	t.Helper()
	db, err := OpenInMemory(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func dt(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestAssertAndRetrieveCurrentFact(t *testing.T) {
	db := openMem(t)

	_, err := db.AssertFact("alice", "works_at", Text("Acme"), time.Now())
	require.NoError(t, err)

	facts, err := db.CurrentFacts("alice", "works_at")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "alice", facts[0].Subject)
	assert.Equal(t, "works_at", facts[0].Predicate)
	got, ok := facts[0].Object.AsText()
	require.True(t, ok)
	assert.Equal(t, "Acme", got)
	assert.Equal(t, 1.0, facts[0].Confidence)
}

func TestFactByIDRoundTrip(t *testing.T) {
	db := openMem(t)
	validFrom := dt(t, "2023-05-01T00:00:00Z")

	id, err := db.AssertFactWithConfidence("alice", "height_cm", Number(172), validFrom, 0.8)
	require.NoError(t, err)

	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, "alice", f.Subject)
	assert.Equal(t, "height_cm", f.Predicate)
	n, ok := f.Object.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 172.0, n)
	assert.True(t, f.ValidFrom.Equal(validFrom))
	assert.Nil(t, f.ValidTo)
	assert.Nil(t, f.ExpiredAt)
	assert.Equal(t, 0.8, f.Confidence)
}

func TestFactByIDNotFound(t *testing.T) {
	db := openMem(t)
	_, err := db.FactByID("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfidenceClamped(t *testing.T) {
	db := openMem(t)

	id, err := db.AssertFactWithConfidence("a", "p", Text("v"), time.Now(), 1.7)
	require.NoError(t, err)
	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Confidence)

	id, err = db.AssertFactWithConfidence("a", "p", Text("v"), time.Now(), -0.3)
	require.NoError(t, err)
	f, err = db.FactByID(id)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.Confidence)
}

func TestSourceProvenance(t *testing.T) {
	db := openMem(t)

	id, err := db.AssertFactWithSource("alice", "works_at", Text("Acme"), time.Now(), "conv-42")
	require.NoError(t, err)
	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.Equal(t, "conv-42", f.Source)
}

func TestPointInTimeQuery(t *testing.T) {
	db := openMem(t)
	jan := dt(t, "2024-01-01T00:00:00Z")

	_, err := db.AssertFact("alice", "works_at", Text("Acme"), jan)
	require.NoError(t, err)

	inMarch, err := db.FactsAt("alice", "works_at", dt(t, "2024-03-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, inMarch, 1, "should find 1 fact valid in March")

	beforeStart, err := db.FactsAt("alice", "works_at", dt(t, "2023-12-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, beforeStart, "should find no facts before valid_from")
}

// Employment history: assert Acme then Beta, close Acme's validity when
// Beta starts, and check both point-in-time views.
func TestPointInTimeEmployment(t *testing.T) {
	db := openMem(t)

	acmeID, err := db.AssertFact("alice", "works_at", Entity("Acme"), dt(t, "2023-01-01T00:00:00Z"))
	require.NoError(t, err)
	_, err = db.AssertFact("alice", "works_at", Entity("Beta"), dt(t, "2024-06-01T00:00:00Z"))
	require.NoError(t, err)
	require.NoError(t, db.CloseFactValidity(acmeID, dt(t, "2024-06-01T00:00:00Z")))

	mid2023, err := db.FactsAt("alice", "works_at", dt(t, "2023-06-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, mid2023, 1)
	employer, ok := mid2023[0].Object.AsEntity()
	require.True(t, ok)
	assert.Equal(t, "Acme", employer)

	late2024, err := db.FactsAt("alice", "works_at", dt(t, "2024-12-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, late2024, 1)
	employer, ok = late2024[0].Object.AsEntity()
	require.True(t, ok)
	assert.Equal(t, "Beta", employer)
}

func TestInvalidatePreservesHistory(t *testing.T) {
	db := openMem(t)
	jan := dt(t, "2024-01-01T00:00:00Z")

	id, err := db.AssertFact("alice", "works_at", Text("Acme"), jan)
	require.NoError(t, err)
	require.NoError(t, db.InvalidateFact(id))

	current, err := db.CurrentFacts("alice", "works_at")
	require.NoError(t, err)
	assert.Empty(t, current, "fact should no longer be current after invalidation")

	// Invalidation is transaction time only: the record keeps its open
	// valid interval but the store no longer believes it.
	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.NotNil(t, f.ExpiredAt)
	assert.Nil(t, f.ValidTo)

	all, err := db.AllFactsAbout("alice")
	require.NoError(t, err)
	assert.Len(t, all, 1, "history is preserved")
}

func TestInvalidateTwiceIsNoop(t *testing.T) {
	db := openMem(t)

	id, err := db.AssertFact("a", "p", Text("v"), time.Now())
	require.NoError(t, err)
	require.NoError(t, db.InvalidateFact(id))

	f1, err := db.FactByID(id)
	require.NoError(t, err)
	require.NoError(t, db.InvalidateFact(id))
	f2, err := db.FactByID(id)
	require.NoError(t, err)
	assert.True(t, f1.ExpiredAt.Equal(*f2.ExpiredAt), "second invalidate must not move expired_at")
}

func TestInvalidateMissingFact(t *testing.T) {
	db := openMem(t)
	err := db.InvalidateFact("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseFactValidity(t *testing.T) {
	db := openMem(t)
	jan := dt(t, "2024-01-01T00:00:00Z")
	jun := dt(t, "2024-06-01T00:00:00Z")

	id, err := db.AssertFact("alice", "works_at", Text("Acme"), jan)
	require.NoError(t, err)
	require.NoError(t, db.CloseFactValidity(id, jun))

	// Still active in transaction time, so historical queries see it.
	inMarch, err := db.FactsAt("alice", "works_at", dt(t, "2024-03-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, inMarch, 1)

	after, err := db.FactsAt("alice", "works_at", dt(t, "2024-09-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, after, "fact should not appear after valid_to")

	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.Nil(t, f.ExpiredAt)

	// Closing before valid_from is rejected.
	id2, err := db.AssertFact("bob", "works_at", Text("Acme"), jun)
	require.NoError(t, err)
	err = db.CloseFactValidity(id2, jan)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestCorrectFactPreservesHistory(t *testing.T) {
	db := openMem(t)
	now := time.Now()

	oldID, err := db.AssertFact("bob", "role", Text("engineer"), now)
	require.NoError(t, err)
	newID, err := db.CorrectFact(oldID, "bob", "role", Text("senior engineer"), now)
	require.NoError(t, err)
	require.NotEqual(t, oldID, newID)

	old, err := db.FactByID(oldID)
	require.NoError(t, err)
	assert.NotNil(t, old.ExpiredAt, "old record is expired")

	repl, err := db.FactByID(newID)
	require.NoError(t, err)
	got, ok := repl.Object.AsText()
	require.True(t, ok)
	assert.Equal(t, "senior engineer", got)
	assert.False(t, repl.RecordedAt.Before(*old.ExpiredAt),
		"expired_at must not exceed the superseding recorded_at")

	current, err := db.CurrentFacts("bob", "role")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, newID, current[0].ID)

	all, err := db.AllFactsAbout("bob")
	require.NoError(t, err)
	assert.Len(t, all, 2, "both records remain in history")
}

func TestCorrectFactCanMoveSubject(t *testing.T) {
	db := openMem(t)

	oldID, err := db.AssertFact("bob", "role", Text("engineer"), time.Now())
	require.NoError(t, err)
	newID, err := db.CorrectFact(oldID, "robert", "role", Text("engineer"), time.Now())
	require.NoError(t, err)

	bobs, err := db.AllFactsAbout("bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.NotNil(t, bobs[0].ExpiredAt)

	roberts, err := db.AllFactsAbout("robert")
	require.NoError(t, err)
	require.Len(t, roberts, 1)
	assert.Equal(t, newID, roberts[0].ID)
}

func TestAllFactsAboutEntity(t *testing.T) {
	db := openMem(t)
	now := time.Now()

	for _, p := range []string{"works_at", "has_role", "has_skill"} {
		_, err := db.AssertFact("alice", p, Text("x"), now)
		require.NoError(t, err)
	}
	_, err := db.AssertFact("bob", "works_at", Text("Acme"), now)
	require.NoError(t, err)

	facts, err := db.AllFactsAbout("alice")
	require.NoError(t, err)
	require.Len(t, facts, 3)
	for _, f := range facts {
		assert.Equal(t, "alice", f.Subject)
	}
}

func TestValueTypes(t *testing.T) {
	db := openMem(t)
	now := time.Now()

	_, err := db.AssertFact("alice", "score", Number(0.95), now)
	require.NoError(t, err)
	_, err = db.AssertFact("alice", "is_active", Boolean(true), now)
	require.NoError(t, err)
	_, err = db.AssertFact("alice", "knows", Entity("bob"), now)
	require.NoError(t, err)

	facts, err := db.CurrentFacts("alice", "score")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	n, ok := facts[0].Object.AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 0.95, n, 1e-9)

	facts, err = db.CurrentFacts("alice", "is_active")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	b, ok := facts[0].Object.AsBoolean()
	require.True(t, ok)
	assert.True(t, b)

	facts, err = db.CurrentFacts("alice", "knows")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	e, ok := facts[0].Object.AsEntity()
	require.True(t, ok)
	assert.Equal(t, "bob", e)
}

// Facts for a fixed (subject, predicate) come back in assertion order:
// the trailing sortable id orders the series.
func TestOrderStability(t *testing.T) {
	db := openMem(t)
	now := time.Now()

	var ids []FactId
	for i := 0; i < 8; i++ {
		id, err := db.AssertFact("sensor", "reading", Number(float64(i)), now)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	facts, err := db.CurrentFacts("sensor", "reading")
	require.NoError(t, err)
	require.Len(t, facts, len(ids))
	for i, f := range facts {
		assert.Equal(t, ids[i], f.ID)
	}
	assert.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }),
		"ids must be lexicographically creation-ordered")
}

func TestRecordedAtMonotonic(t *testing.T) {
	db := openMem(t)

	var prev time.Time
	for i := 0; i < 10; i++ {
		id, err := db.AssertFact("a", "p", Number(float64(i)), time.Now())
		require.NoError(t, err)
		f, err := db.FactByID(id)
		require.NoError(t, err)
		assert.False(t, f.RecordedAt.Before(prev), "recorded_at must be non-decreasing")
		prev = f.RecordedAt
	}
}

func TestIdempotentAssert(t *testing.T) {
	db := openMem(t)
	now := time.Now()

	first, err := db.AssertFactIdempotent("u", "pref", Text("dark"), now, "ep-001")
	require.NoError(t, err)
	second, err := db.AssertFactIdempotent("u", "pref", Text("dark"), now, "ep-001")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same idempotency key must dedupe")

	all, err := db.AllFactsAbout("u")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	third, err := db.AssertFactIdempotent("u", "pref", Text("dark"), now, "ep-002")
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "different keys create independent facts")
}

func TestIdempotentAssertSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	db, err := Open(dir)
	require.NoError(t, err)
	first, err := db.AssertFactIdempotent("alice", "works_at", Text("Acme"), now, "evt-reopen")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	second, err := db.AssertFactIdempotent("alice", "works_at", Text("Acme"), now, "evt-reopen")
	require.NoError(t, err)
	assert.Equal(t, first, second, "idempotency mapping must persist across reopen")

	facts, err := db.AllFactsAbout("alice")
	require.NoError(t, err)
	assert.Len(t, facts, 1, "reopen + retry must not duplicate facts")
}

func TestHistoryPreservation(t *testing.T) {
	db := openMem(t)
	now := time.Now()

	id1, err := db.AssertFact("alice", "works_at", Text("Acme"), now)
	require.NoError(t, err)
	id2, err := db.AssertFact("alice", "has_role", Text("engineer"), now)
	require.NoError(t, err)
	require.NoError(t, db.InvalidateFact(id1))
	id3, err := db.CorrectFact(id2, "alice", "has_role", Text("manager"), now)
	require.NoError(t, err)

	all, err := db.AllFactsAbout("alice")
	require.NoError(t, err)
	require.Len(t, all, 3, "nothing is ever removed")
	seen := map[FactId]bool{}
	for _, f := range all {
		seen[f.ID] = true
	}
	assert.True(t, seen[id1] && seen[id2] && seen[id3])
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	id, err := db.AssertFactWithEmbedding("alice", "interest", Text("go"), time.Now(),
		[]float32{1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopen simulates recovery: the vector cache is rebuilt from the
	// embeddings table.
	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", f.Subject)

	hits, err := db.SearchByVector([]float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].Fact.ID)
}

func TestClosedDatabaseErrors(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.AssertFact("a", "p", Text("v"), time.Now())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.CurrentFacts("a", "p")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Search("q", 5)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, db.Close(), "double close is a no-op")
}

func TestFeatureGating(t *testing.T) {
	t.Run("WithoutVector", func(t *testing.T) {
		db := openMem(t, WithoutVector())
		_, err := db.AssertFactWithEmbedding("a", "p", Text("v"), time.Now(), []float32{1})
		assert.ErrorIs(t, err, ErrFeatureUnavailable)
		_, err = db.SearchByVector([]float32{1}, 1, nil)
		assert.ErrorIs(t, err, ErrFeatureUnavailable)
	})

	t.Run("WithoutFullText", func(t *testing.T) {
		db := openMem(t, WithoutFullText())
		_, err := db.Search("anything", 5)
		assert.ErrorIs(t, err, ErrFeatureUnavailable)
	})

	t.Run("HybridRequiresChannels", func(t *testing.T) {
		_, err := OpenInMemory(WithHybridSearch(), WithoutVector())
		assert.ErrorIs(t, err, ErrFeatureUnavailable)
	})

	t.Run("HybridDisabledByDefault", func(t *testing.T) {
		db := openMem(t)
		_, err := db.SearchHybrid("q", []float32{1}, DefaultHybridParams())
		assert.ErrorIs(t, err, ErrFeatureUnavailable)
	})
}

func TestCountFacts(t *testing.T) {
	db := openMem(t)
	for i := 0; i < 4; i++ {
		_, err := db.AssertFact("a", "p", Number(float64(i)), time.Now())
		require.NoError(t, err)
	}
	n, err := db.CountFacts()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFixedClock(t *testing.T) {
	fixed := dt(t, "2025-03-01T12:00:00Z")
	db := openMem(t, WithClock(func() time.Time { return fixed }))

	id, err := db.AssertFact("a", "p", Text("v"), fixed)
	require.NoError(t, err)
	f, err := db.FactByID(id)
	require.NoError(t, err)
	assert.True(t, f.RecordedAt.Equal(fixed))

	require.NoError(t, db.InvalidateFact(id))
	f, err = db.FactByID(id)
	require.NoError(t, err)
	assert.True(t, f.ExpiredAt.Equal(fixed))
}
