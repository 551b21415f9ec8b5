package pebbledb

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	log "github.com/inconshreveable/log15"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrTxnDone      = errors.New("transaction already finished")
)

// Database stores every table in pebble's keyspace under a catalog prefix.
// Pebble has no write transactions of its own, so a writer holds an indexed
// batch and the write lock until it finishes.
type Database struct {
	db       *pebble.DB
	readOnly bool
	tables   map[string]dbi.DBI
	mut      sync.Mutex
	writer   sync.Mutex
}

// Open opens the pebble store at path. An empty path keeps everything in
// memory.
func Open(path string, readOnly bool) (*Database, error) {
	opts := &pebble.Options{
		ReadOnly: readOnly,
		Logger:   logger{log.New("pkg", "pebble")},
	}
	if path == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Database{db: db, readOnly: readOnly, tables: make(map[string]dbi.DBI)}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func get(r pebble.Reader, key []byte) ([]byte, error) {
	val, closer, err := r.Get(key)
	if err == pebble.ErrNotFound {
		return nil, dbi.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte{}, val...), nil
}

func (db *Database) OpenTable(name string) (dbi.DBI, error) {
	db.mut.Lock()
	defer db.mut.Unlock()
	if id, ok := db.tables[name]; ok {
		return id, nil
	}
	put := func(k, v []byte) error { return ErrUnknownTable }
	if !db.readOnly {
		db.writer.Lock()
		defer db.writer.Unlock()
		put = func(k, v []byte) error { return db.db.Set(k, v, pebble.Sync) }
	}
	id, err := dbpkg.ResolveTable(func(k []byte) ([]byte, error) { return get(db.db, k) }, put, name)
	if err != nil {
		return 0, err
	}
	db.tables[name] = id
	return id, nil
}

func (db *Database) Begin(writable bool) (dbpkg.Tx, error) {
	if !writable {
		return &pebbleTx{db: db, reader: db.db.NewSnapshot()}, nil
	}
	if db.readOnly {
		return nil, dbi.ErrWriteToReadOnly
	}
	db.writer.Lock()
	batch := db.db.NewIndexedBatch()
	return &pebbleTx{db: db, reader: batch, batch: batch, writable: true}, nil
}

type pebbleTx struct {
	db       *Database
	reader   pebble.Reader
	batch    *pebble.Batch
	writable bool
	done     bool
}

func (tx *pebbleTx) Writable() bool { return tx.writable }

func (tx *pebbleTx) Get(id dbi.DBI, key []byte) ([]byte, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	return get(tx.reader, dbpkg.EncodeKey(id, key))
}

func (tx *pebbleTx) ZeroCopyGet(id dbi.DBI, key []byte, fn func([]byte) error) error {
	if tx.done {
		return ErrTxnDone
	}
	val, closer, err := tx.reader.Get(dbpkg.EncodeKey(id, key))
	if err == pebble.ErrNotFound {
		return dbi.ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(val)
}

func (tx *pebbleTx) Put(id dbi.DBI, key, value []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	if tx.done {
		return ErrTxnDone
	}
	return tx.batch.Set(dbpkg.EncodeKey(id, key), value, nil)
}

func (tx *pebbleTx) Del(id dbi.DBI, key []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	if tx.done {
		return ErrTxnDone
	}
	raw := dbpkg.EncodeKey(id, key)
	if _, err := get(tx.batch, raw); err != nil {
		return err
	}
	return tx.batch.Delete(raw, nil)
}

func (tx *pebbleTx) Cmp(_ dbi.DBI, a, b []byte) int {
	return bytes.Compare(a, b)
}

func (tx *pebbleTx) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	it, err := tx.reader.NewIter(&pebble.IterOptions{
		LowerBound: dbpkg.Prefix(id),
		UpperBound: dbpkg.UpperBound(id),
	})
	if err != nil {
		return nil, err
	}
	return &pebbleCursor{it: it, id: id}, nil
}

func (tx *pebbleTx) finish() error {
	tx.done = true
	if tx.writable {
		defer tx.db.writer.Unlock()
	}
	return tx.reader.Close()
}

func (tx *pebbleTx) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	if tx.writable {
		if err := tx.batch.Commit(pebble.Sync); err != nil {
			tx.finish()
			return err
		}
	}
	return tx.finish()
}

func (tx *pebbleTx) Abort() {
	if !tx.done {
		tx.finish()
	}
}

// logger routes pebble's event logging into log15.
type logger struct {
	log.Logger
}

func (l logger) Infof(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l logger) Fatalf(format string, args ...interface{}) {
	l.Crit(fmt.Sprintf(format, args...))
	panic(fmt.Sprintf(format, args...))
}
