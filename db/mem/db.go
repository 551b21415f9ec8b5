package mem

import (
	"errors"
	"sync"

	"github.com/google/btree"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrTxnDone      = errors.New("transaction already finished")
	ErrCursorClosed = errors.New("cursor closed")
)

const degree = 32

type item struct {
	key   []byte
	value []byte
}

type tree = btree.BTreeG[item]

// Database is an ordered in-memory engine. Every transaction works on
// copy-on-write clones of the table trees taken at Begin, so readers see a
// stable snapshot and a writer's changes only become visible on Commit.
type Database struct {
	names     map[string]dbi.DBI
	trees     map[dbi.DBI]*tree
	cmp       dbi.Comparator
	closed    bool
	locker    *sync.Mutex
	wlocker   *sync.Mutex
	semaphore chan struct{}
}

type Option func(*Database)

// WithComparator sets the key order of every table in the database.
func WithComparator(cmp dbi.Comparator) Option {
	return func(db *Database) {
		db.cmp = cmp
	}
}

// NewMemoryDatabase returns an empty database allowing at most
// concurrentReaders open transactions at once. Values below one allow one.
func NewMemoryDatabase(concurrentReaders int, opts ...Option) *Database {
	if concurrentReaders < 1 {
		concurrentReaders = 1
	}
	db := &Database{
		names:     make(map[string]dbi.DBI),
		trees:     make(map[dbi.DBI]*tree),
		cmp:       dbi.DefaultComparator,
		locker:    &sync.Mutex{},
		wlocker:   &sync.Mutex{},
		semaphore: make(chan struct{}, concurrentReaders),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *Database) newTree() *tree {
	cmp := db.cmp
	return btree.NewG(degree, func(a, b item) bool {
		return cmp(a.key, b.key) < 0
	})
}

func (db *Database) OpenTable(name string) (dbi.DBI, error) {
	db.locker.Lock()
	defer db.locker.Unlock()
	if db.closed {
		return 0, dbi.ErrClosed
	}
	if id, ok := db.names[name]; ok {
		return id, nil
	}
	id := dbi.DBI(len(db.names) + 1)
	db.names[name] = id
	db.trees[id] = db.newTree()
	return id, nil
}

// snapshot clones every committed tree. Clone mutates the source tree's
// copy-on-write state, so it runs under the exclusive lock.
func (db *Database) snapshot() (map[dbi.DBI]*tree, error) {
	db.locker.Lock()
	defer db.locker.Unlock()
	if db.closed {
		return nil, dbi.ErrClosed
	}
	trees := make(map[dbi.DBI]*tree, len(db.trees))
	for id, t := range db.trees {
		trees[id] = t.Clone()
	}
	return trees, nil
}

func (db *Database) Begin(writable bool) (dbpkg.Tx, error) {
	if writable {
		db.wlocker.Lock()
	}
	db.semaphore <- struct{}{}
	trees, err := db.snapshot()
	if err != nil {
		<-db.semaphore
		if writable {
			db.wlocker.Unlock()
		}
		return nil, err
	}
	return &transaction{db: db, trees: trees, writable: writable}, nil
}

func (db *Database) Close() error {
	db.locker.Lock()
	defer db.locker.Unlock()
	db.closed = true
	return nil
}

func (db *Database) apply(trees map[dbi.DBI]*tree) error {
	db.locker.Lock()
	defer db.locker.Unlock()
	if db.closed {
		return dbi.ErrClosed
	}
	for id, t := range trees {
		db.trees[id] = t
	}
	return nil
}

type transaction struct {
	db       *Database
	trees    map[dbi.DBI]*tree
	writable bool
	done     bool
}

func (tx *transaction) tree(id dbi.DBI) (*tree, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	t, ok := tx.trees[id]
	if !ok {
		return nil, ErrUnknownTable
	}
	return t, nil
}

func (tx *transaction) Writable() bool { return tx.writable }

func (tx *transaction) Get(id dbi.DBI, key []byte) ([]byte, error) {
	t, err := tx.tree(id)
	if err != nil {
		return nil, err
	}
	if it, ok := t.Get(item{key: key}); ok {
		return it.value, nil
	}
	return nil, dbi.ErrNotFound
}

func (tx *transaction) ZeroCopyGet(id dbi.DBI, key []byte, fn func([]byte) error) error {
	v, err := tx.Get(id, key)
	if err != nil {
		return err
	}
	return fn(v)
}

func (tx *transaction) Put(id dbi.DBI, key, value []byte) error {
	t, err := tx.tree(id)
	if err != nil {
		return err
	}
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	t.ReplaceOrInsert(item{
		key:   append([]byte{}, key...),
		value: append([]byte{}, value...),
	})
	return nil
}

func (tx *transaction) Del(id dbi.DBI, key []byte) error {
	t, err := tx.tree(id)
	if err != nil {
		return err
	}
	if !tx.writable {
		return dbi.ErrWriteToReadOnly
	}
	if _, ok := t.Delete(item{key: key}); !ok {
		return dbi.ErrNotFound
	}
	return nil
}

func (tx *transaction) Cmp(_ dbi.DBI, a, b []byte) int {
	return tx.db.cmp(a, b)
}

func (tx *transaction) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	t, err := tx.tree(id)
	if err != nil {
		return nil, err
	}
	return &cursor{tx: tx, tree: t}, nil
}

func (tx *transaction) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	defer tx.release()
	if !tx.writable {
		return nil
	}
	return tx.db.apply(tx.trees)
}

func (tx *transaction) Abort() {
	if !tx.done {
		tx.release()
	}
}

func (tx *transaction) release() {
	tx.done = true
	tx.trees = nil
	<-tx.db.semaphore
	if tx.writable {
		tx.db.wlocker.Unlock()
	}
}
