package lmdb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"

	lmdb "github.com/bmatsuo/lmdb-go/lmdb"
	log "github.com/inconshreveable/log15"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

var ErrTxnDone = errors.New("transaction already finished")

type Config struct {
	MapSize  int64
	MaxDBs   int
	NoSubdir bool
	ReadOnly bool
	Mode     os.FileMode
}

//todo: investigate the needs of cardinal to set the mapsize
func DefaultConfig() Config {
	return Config{
		MapSize: 1 << 30,
		MaxDBs:  16,
		Mode:    0644,
	}
}

type Database struct {
	env      *lmdb.Env
	readOnly bool
}

// Open opens the environment at path. Read transactions are not tied to OS
// threads (NoTLS); write transactions pin the goroutine that began them to
// its thread until they finish.
func Open(path string, cfg Config) (*Database, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, err
	}
	if err := env.SetMaxDBs(cfg.MaxDBs); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.SetMapSize(cfg.MapSize); err != nil {
		env.Close()
		return nil, err
	}
	flags := uint(lmdb.NoTLS)
	if cfg.NoSubdir {
		flags |= lmdb.NoSubdir
	}
	if cfg.ReadOnly {
		flags |= lmdb.Readonly
	}
	mode := cfg.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := env.Open(path, flags, mode); err != nil {
		env.Close()
		return nil, err
	}
	log.Debug("Opened lmdb environment", "path", path, "mapsize", cfg.MapSize, "readonly", cfg.ReadOnly)
	return &Database{env: env, readOnly: cfg.ReadOnly}, nil
}

func (db *Database) Close() error {
	return db.env.Close()
}

// OpenTable opens the named DBI in a short transaction of its own, creating
// it unless the environment is read-only. The empty name is the root DBI.
func (db *Database) OpenTable(name string) (dbi.DBI, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var txnFlags, dbiFlags uint
	if db.readOnly {
		txnFlags = lmdb.Readonly
	} else {
		dbiFlags = lmdb.Create
	}
	txn, err := db.env.BeginTxn(nil, txnFlags)
	if err != nil {
		return 0, err
	}
	var id lmdb.DBI
	if name == "" {
		id, err = txn.OpenRoot(0)
	} else {
		id, err = txn.OpenDBI(name, dbiFlags)
	}
	if err != nil {
		txn.Abort()
		return 0, err
	}
	// The handle only outlives the transaction once it is committed.
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return dbi.DBI(id), nil
}

func (db *Database) Begin(writable bool) (dbpkg.Tx, error) {
	if writable && db.readOnly {
		return nil, dbi.ErrWriteToReadOnly
	}
	var flags uint
	if writable {
		runtime.LockOSThread()
	} else {
		flags = lmdb.Readonly
	}
	txn, err := db.env.BeginTxn(nil, flags)
	if err != nil {
		if writable {
			runtime.UnlockOSThread()
		}
		return nil, err
	}
	return &lmdbTx{tx: txn, writable: writable}, nil
}

type lmdbTx struct {
	tx       *lmdb.Txn
	writable bool
	done     bool
}

func notFound(err error) error {
	if lmdb.IsNotFound(err) {
		return dbi.ErrNotFound
	}
	return err
}

func (tx *lmdbTx) Writable() bool { return tx.writable }

// Get returns a copy of the value at the specified key.
func (tx *lmdbTx) Get(id dbi.DBI, key []byte) ([]byte, error) {
	if len(key) == 0 {
		// LMDB cannot hold an empty key, so it is never present.
		return nil, dbi.ErrNotFound
	}
	value, err := tx.tx.Get(lmdb.DBI(id), key)
	if err != nil {
		return nil, notFound(err)
	}
	return value, nil
}

// ZeroCopyGet hands fn the value straight from the memory map. It must not
// be retained after fn returns.
func (tx *lmdbTx) ZeroCopyGet(id dbi.DBI, key []byte, fn func([]byte) error) error {
	if len(key) == 0 {
		return dbi.ErrNotFound
	}
	tx.tx.RawRead = true
	value, err := tx.tx.Get(lmdb.DBI(id), key)
	tx.tx.RawRead = false
	if err != nil {
		return notFound(err)
	}
	return fn(value)
}

func (tx *lmdbTx) Put(id dbi.DBI, key, value []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	return tx.tx.Put(lmdb.DBI(id), key, value, 0)
}

func (tx *lmdbTx) Del(id dbi.DBI, key []byte) error {
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	if len(key) == 0 {
		return dbi.ErrNotFound
	}
	return notFound(tx.tx.Del(lmdb.DBI(id), key, nil))
}

// Cmp is LMDB's default key order: memcmp, then the shorter key first. DBIs
// are never opened with ReverseKey or IntegerKey.
func (tx *lmdbTx) Cmp(_ dbi.DBI, a, b []byte) int {
	return bytes.Compare(a, b)
}

func (tx *lmdbTx) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	cur, err := tx.tx.OpenCursor(lmdb.DBI(id))
	if err != nil {
		return nil, err
	}
	return &lmCursor{cursor: cur}, nil
}

func (tx *lmdbTx) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	tx.done = true
	if tx.writable {
		defer runtime.UnlockOSThread()
	}
	return tx.tx.Commit()
}

func (tx *lmdbTx) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	tx.tx.Abort()
	if tx.writable {
		runtime.UnlockOSThread()
	}
}

var cursorOps = map[dbi.CursorOp]uint{
	dbi.First:    lmdb.First,
	dbi.Last:     lmdb.Last,
	dbi.Next:     lmdb.Next,
	dbi.Prev:     lmdb.Prev,
	dbi.SetRange: lmdb.SetRange,
}

type lmCursor struct {
	cursor *lmdb.Cursor
	closed bool
}

func (c *lmCursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	lop, ok := cursorOps[op]
	if !ok {
		return nil, fmt.Errorf("unsupported cursor op %v", op)
	}
	if op != dbi.SetRange {
		key = nil
	} else if len(key) == 0 {
		// Every stored key is at or after the empty key.
		lop = lmdb.First
		key = nil
	}
	k, _, err := c.cursor.Get(key, nil, lop)
	if err != nil {
		return nil, notFound(err)
	}
	return k, nil
}

func (c *lmCursor) Close() {
	if !c.closed {
		c.closed = true
		c.cursor.Close()
	}
}
