package badgerdb

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v3"
	log "github.com/inconshreveable/log15"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrTxnDone      = errors.New("transaction already finished")
)

// Database stores every table in badger's single keyspace under a prefix
// handed out by the db package catalog.
type Database struct {
	db       *badger.DB
	readOnly bool
	tables   map[string]dbi.DBI
	mut      sync.Mutex
}

// New opens the database at path; an empty path gives an in-memory database.
func New(path string) (*Database, error) {
	return open(path, false)
}

func NewReadOnly(path string) (*Database, error) {
	return open(path, true)
}

func open(path string, readOnly bool) (*Database, error) {
	opt := badger.DefaultOptions(path).WithLogger(logger{log.New("pkg", "badger")})
	if path == "" {
		opt = opt.WithInMemory(true)
	}
	if readOnly {
		opt = opt.WithReadOnly(true)
	}
	db, err := badger.Open(opt)
	if err != nil {
		return nil, err
	}
	return &Database{db: db, readOnly: readOnly, tables: make(map[string]dbi.DBI)}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) OpenTable(name string) (dbi.DBI, error) {
	db.mut.Lock()
	defer db.mut.Unlock()
	if id, ok := db.tables[name]; ok {
		return id, nil
	}
	var id dbi.DBI
	resolve := func(txn *badger.Txn, put func(k, v []byte) error) (err error) {
		id, err = dbpkg.ResolveTable(func(k []byte) ([]byte, error) {
			item, err := txn.Get(k)
			if err == badger.ErrKeyNotFound {
				return nil, dbi.ErrNotFound
			}
			if err != nil {
				return nil, err
			}
			return item.ValueCopy(nil)
		}, put, name)
		return err
	}
	var err error
	if db.readOnly {
		err = db.db.View(func(txn *badger.Txn) error {
			return resolve(txn, func(k, v []byte) error { return ErrUnknownTable })
		})
	} else {
		err = db.db.Update(func(txn *badger.Txn) error {
			return resolve(txn, txn.Set)
		})
	}
	if err != nil {
		return 0, err
	}
	db.tables[name] = id
	return id, nil
}

func (db *Database) Begin(writable bool) (dbpkg.Tx, error) {
	if writable && db.readOnly {
		return nil, dbi.ErrWriteToReadOnly
	}
	return &badgerTx{writable: writable, tx: db.db.NewTransaction(writable)}, nil
}

type badgerTx struct {
	writable bool
	tx       *badger.Txn
	done     bool
}

func (tx *badgerTx) Writable() bool { return tx.writable }

// Get returns a copy of the value at the specified key. The copy can continue
// to exist after the transaction closes, and may be manipulated without having
// problems.
func (tx *badgerTx) Get(id dbi.DBI, key []byte) ([]byte, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	item, err := tx.tx.Get(dbpkg.EncodeKey(id, key))
	if err == badger.ErrKeyNotFound {
		return nil, dbi.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// ZeroCopyGet invokes a closure providing the value at the specified key. This
// value should be parsed and processed within the closure, as its memory may
// be reused soon after.
func (tx *badgerTx) ZeroCopyGet(id dbi.DBI, key []byte, fn func([]byte) error) error {
	if tx.done {
		return ErrTxnDone
	}
	item, err := tx.tx.Get(dbpkg.EncodeKey(id, key))
	if err == badger.ErrKeyNotFound {
		return dbi.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(fn)
}

func (tx *badgerTx) Put(id dbi.DBI, key, value []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	if tx.done {
		return ErrTxnDone
	}
	return tx.tx.Set(dbpkg.EncodeKey(id, key), append([]byte{}, value...))
}

func (tx *badgerTx) Del(id dbi.DBI, key []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	if tx.done {
		return ErrTxnDone
	}
	raw := dbpkg.EncodeKey(id, key)
	if _, err := tx.tx.Get(raw); err == badger.ErrKeyNotFound {
		return dbi.ErrNotFound
	} else if err != nil {
		return err
	}
	return tx.tx.Delete(raw)
}

func (tx *badgerTx) Cmp(_ dbi.DBI, a, b []byte) int {
	return bytes.Compare(a, b)
}

func (tx *badgerTx) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	return &badgerCursor{
		tx:     tx.tx,
		id:     id,
		prefix: dbpkg.Prefix(id),
		upper:  dbpkg.UpperBound(id),
	}, nil
}

func (tx *badgerTx) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	tx.done = true
	if !tx.writable {
		tx.tx.Discard()
		return nil
	}
	return tx.tx.Commit()
}

func (tx *badgerTx) Abort() {
	if !tx.done {
		tx.done = true
		tx.tx.Discard()
	}
}

// logger routes badger's printf-style logging into log15. badger's Info
// output is routine housekeeping, so it is logged at Debug.
type logger struct {
	log.Logger
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l logger) Warningf(format string, args ...interface{}) {
	l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l logger) Infof(format string, args ...interface{}) {
	l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l logger) Debugf(format string, args ...interface{}) {
	l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
