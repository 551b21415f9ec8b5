package boltdb

import (
	"bytes"
	"errors"
	"os"
	"sync"

	bolt "github.com/boltdb/bolt"
	log "github.com/inconshreveable/log15"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrTxnDone      = errors.New("transaction already finished")
)

// Database keeps one bucket per table. DBIs index the bucket names in the
// order they were opened.
type Database struct {
	db    *bolt.DB
	names []string
	ids   map[string]dbi.DBI
	mut   sync.RWMutex
}

func Open(path string, mode os.FileMode, options *bolt.Options) (*Database, error) {
	//if options are not specified default options will be set.
	db, err := bolt.Open(path, mode, options)
	if err != nil {
		return nil, err
	}
	log.Debug("Opened bolt database", "path", path)
	return &Database{db: db, ids: make(map[string]dbi.DBI)}, nil
}

func (db *Database) OpenTable(name string) (dbi.DBI, error) {
	db.mut.Lock()
	defer db.mut.Unlock()
	if id, ok := db.ids[name]; ok {
		return id, nil
	}
	var err error
	if db.db.IsReadOnly() {
		err = db.db.View(func(tx *bolt.Tx) error {
			if tx.Bucket([]byte(name)) == nil {
				return ErrUnknownTable
			}
			return nil
		})
	} else {
		err = db.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(name))
			return err
		})
	}
	if err != nil {
		return 0, err
	}
	db.names = append(db.names, name)
	id := dbi.DBI(len(db.names))
	db.ids[name] = id
	return id, nil
}

func (db *Database) bucketName(id dbi.DBI) ([]byte, error) {
	db.mut.RLock()
	defer db.mut.RUnlock()
	if id == 0 || int(id) > len(db.names) {
		return nil, ErrUnknownTable
	}
	return []byte(db.names[id-1]), nil
}

func (db *Database) Begin(writable bool) (dbpkg.Tx, error) {
	tx, err := db.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{db: db, tx: tx, writable: writable}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

type boltTx struct {
	db       *Database
	tx       *bolt.Tx
	writable bool
	done     bool
}

func (tx *boltTx) bucket(id dbi.DBI) (*bolt.Bucket, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	name, err := tx.db.bucketName(id)
	if err != nil {
		return nil, err
	}
	bk := tx.tx.Bucket(name)
	if bk == nil {
		return nil, ErrUnknownTable
	}
	return bk, nil
}

// lookup seeks rather than calling Bucket.Get, which cannot tell a missing
// key from one holding a nil value.
func lookup(bk *bolt.Bucket, key []byte) ([]byte, bool) {
	k, v := bk.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	if v == nil {
		v = []byte{}
	}
	return v, true
}

func (tx *boltTx) Writable() bool { return tx.writable }

// Get returns the value at key. It points into the memory map and is only
// valid for the life of the transaction.
func (tx *boltTx) Get(id dbi.DBI, key []byte) ([]byte, error) {
	bk, err := tx.bucket(id)
	if err != nil {
		return nil, err
	}
	v, ok := lookup(bk, key)
	if !ok {
		return nil, dbi.ErrNotFound
	}
	return v, nil
}

func (tx *boltTx) ZeroCopyGet(id dbi.DBI, key []byte, fn func([]byte) error) error {
	val, err := tx.Get(id, key)
	if err != nil {
		return err
	}
	return fn(val)
}

func (tx *boltTx) Put(id dbi.DBI, key, value []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	bk, err := tx.bucket(id)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	return bk.Put(key, value)
}

func (tx *boltTx) Del(id dbi.DBI, key []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	bk, err := tx.bucket(id)
	if err != nil {
		return err
	}
	if _, ok := lookup(bk, key); !ok {
		return dbi.ErrNotFound
	}
	return bk.Delete(key)
}

func (tx *boltTx) Cmp(_ dbi.DBI, a, b []byte) int {
	return bytes.Compare(a, b)
}

func (tx *boltTx) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	bk, err := tx.bucket(id)
	if err != nil {
		return nil, err
	}
	return &boltCursor{cursor: bk.Cursor()}, nil
}

func (tx *boltTx) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	tx.done = true
	if !tx.writable {
		return tx.tx.Rollback()
	}
	return tx.tx.Commit()
}

func (tx *boltTx) Abort() {
	if !tx.done {
		tx.done = true
		tx.tx.Rollback()
	}
}

// boltCursor adapts bolt's cursor, which returns a nil key instead of an
// error and panics when stepped before it has been positioned.
type boltCursor struct {
	cursor     *bolt.Cursor
	positioned bool
}

func (c *boltCursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	if c.cursor == nil {
		return nil, errors.New("cursor closed")
	}
	var k []byte
	switch op {
	case dbi.First:
		k, _ = c.cursor.First()
	case dbi.Last:
		k, _ = c.cursor.Last()
	case dbi.SetRange:
		k, _ = c.cursor.Seek(key)
	case dbi.Next:
		if !c.positioned {
			return c.Get(nil, dbi.First)
		}
		k, _ = c.cursor.Next()
	case dbi.Prev:
		if !c.positioned {
			return c.Get(nil, dbi.Last)
		}
		k, _ = c.cursor.Prev()
	default:
		return nil, errors.New("unsupported cursor op " + op.String())
	}
	c.positioned = true
	if k == nil {
		return nil, dbi.ErrNotFound
	}
	return k, nil
}

func (c *boltCursor) Close() {
	c.cursor = nil
}
