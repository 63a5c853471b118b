// Package storage wraps the embedded key-value substrate.
//
// The engine needs an ordered ACID store with named tables, prefix scans,
// snapshot reads, serialized write transactions, and both file-backed and
// in-memory variants. Badger provides all of it; this package narrows its
// surface to exactly what the fact store consumes and realizes named tables
// as key-prefix namespaces over a single keyspace.
package storage

import (
	"bytes"
	"errors"
	"io"

	badger "github.com/dgraph-io/badger/v4"
)

// Table is a named key namespace. Tables are fixed at schema level; the set
// below is the on-disk compatibility contract together with the fact key
// layout.
type Table string

// The engine's tables.
const (
	TableFacts       Table = "facts"
	TableEmbeddings  Table = "embeddings"
	TableIdempotency Table = "idempotency"
	TableIDIndex     Table = "idindex"
	TableMeta        Table = "meta"
)

// ErrKeyNotFound is returned by Txn.Get for absent keys.
var ErrKeyNotFound = errors.New("storage: key not found")

// Options configures the substrate.
type Options struct {
	// SyncWrites forces an fsync on every commit. Durability on commit is
	// guaranteed either way via the value log; SyncWrites removes the OS
	// buffer from the window.
	SyncWrites bool

	// Logger receives badger's internal log output. Nil silences it.
	Logger badger.Logger
}

// DB is the substrate handle. Write transactions are serialized by the
// caller (the engine holds a single writer lock); reads run on snapshots
// and never block writers.
type DB struct {
	db       *badger.DB
	inMemory bool
}

// Open opens or creates a file-backed store rooted at dir.
func Open(dir string, opts Options) (*DB, error) {
	bo := badger.DefaultOptions(dir).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)
	db, err := badger.Open(bo)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// OpenInMemory opens a volatile store. Contents are lost on Close.
func OpenInMemory(opts Options) (*DB, error) {
	bo := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(opts.Logger)
	db, err := badger.Open(bo)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, inMemory: true}, nil
}

// InMemory reports whether the store is volatile.
func (d *DB) InMemory() bool { return d.inMemory }

// Close releases the store. Outstanding transactions must have finished.
func (d *DB) Close() error { return d.db.Close() }

// Update runs fn in a single write transaction. All writes become visible
// together on commit; an error from fn discards every write.
func (d *DB) Update(fn func(*Txn) error) error {
	return d.db.Update(func(bt *badger.Txn) error {
		return fn(&Txn{txn: bt})
	})
}

// View runs fn on a read snapshot taken at call time. Writes committed
// after the snapshot are invisible to fn.
func (d *DB) View(fn func(*Txn) error) error {
	return d.db.View(func(bt *badger.Txn) error {
		return fn(&Txn{txn: bt})
	})
}

// Backup streams every table to w in badger's backup format. Safe to run
// concurrently with readers and writers.
func (d *DB) Backup(w io.Writer) (uint64, error) {
	return d.db.Backup(w, 0)
}

// Load replays a backup stream produced by Backup.
func (d *DB) Load(r io.Reader) error {
	return d.db.Load(r, 16)
}

// Txn is a transaction handle scoped to one Update or View call.
//
// Values returned by badger are borrows against the transaction; every
// accessor below copies them out before returning, so results stay valid
// after the transaction ends and the caller can re-enter the mutation path.
type Txn struct {
	txn *badger.Txn
}

func tkey(t Table, key string) []byte {
	buf := make([]byte, 0, len(t)+1+len(key))
	buf = append(buf, t...)
	buf = append(buf, '/')
	buf = append(buf, key...)
	return buf
}

// Set writes key in table t.
func (tx *Txn) Set(t Table, key string, value []byte) error {
	return tx.txn.Set(tkey(t, key), value)
}

// Get returns an owned copy of the value at key, or ErrKeyNotFound.
func (tx *Txn) Get(t Table, key string) ([]byte, error) {
	item, err := tx.txn.Get(tkey(t, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Has reports whether key exists in table t.
func (tx *Txn) Has(t Table, key string) (bool, error) {
	_, err := tx.txn.Get(tkey(t, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key from table t. Missing keys are not an error.
func (tx *Txn) Delete(t Table, key string) error {
	return tx.txn.Delete(tkey(t, key))
}

// PrefixScan visits every entry in table t whose key starts with prefix, in
// key byte order. The key and value passed to fn are owned copies. A
// non-nil error from fn stops the scan and is returned.
func (tx *Txn) PrefixScan(t Table, prefix string, fn func(key string, value []byte) error) error {
	full := tkey(t, prefix)
	tablePrefix := tkey(t, "")

	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(bytes.TrimPrefix(key, tablePrefix)), value); err != nil {
			return err
		}
	}
	return nil
}
