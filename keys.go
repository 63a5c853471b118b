package kronroe

import "github.com/kronroe-db/kronroe/model"

// Fact rows live under composite string keys:
//
//	"<subject>:<predicate>:<fact_id>"
//
// A prefix scan on "<subject>:" yields every fact about one entity; a scan
// on "<subject>:<predicate>:" yields the time series for one attribute; the
// trailing time-sortable id orders a series by creation. This layout is the
// on-disk compatibility contract. The id-index table maps a fact id back to
// its primary key so corrections and invalidations are point lookups.

const keySep = ":"

func factKey(subject, predicate string, id model.FactId) string {
	return subject + keySep + predicate + keySep + id.String()
}

func predicatePrefix(subject, predicate string) string {
	return subject + keySep + predicate + keySep
}

func subjectPrefix(subject string) string {
	return subject + keySep
}

// metaKeyEmbeddingDim is the meta-table row recording the established
// embedding dimension. Written once, inside the first embedding's
// transaction.
const metaKeyEmbeddingDim = "embedding_dim"
