package badgerdb

import (
	"bytes"
	"errors"

	badger "github.com/dgraph-io/badger/v3"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

// badgerCursor emulates a bidirectional cursor with badger iterators.
// A read-write transaction only tolerates one live iterator, so changing
// direction closes the current iterator and re-seeks a new one from the
// remembered key.
type badgerCursor struct {
	tx      *badger.Txn
	id      dbi.DBI
	prefix  []byte
	upper   []byte
	it      *badger.Iterator
	reverse bool
	// key is the user key the cursor last settled on; synced is set while
	// the live iterator still sits on it.
	key    []byte
	synced bool
	closed bool
}

func (c *badgerCursor) iterator(reverse bool) *badger.Iterator {
	if c.it != nil && c.reverse == reverse {
		return c.it
	}
	if c.it != nil {
		c.it.Close()
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = reverse
	c.it = c.tx.NewIterator(opts)
	c.reverse = reverse
	c.synced = false
	return c.it
}

func (c *badgerCursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	if c.closed {
		return nil, errors.New("cursor closed")
	}
	switch op {
	case dbi.First:
		c.iterator(false).Seek(c.prefix)
		return c.settle(true)
	case dbi.Last:
		// Reverse seek finds the largest key <= upper; upper itself is never a
		// table key.
		c.iterator(true).Seek(c.upper)
		return c.settle(true)
	case dbi.SetRange:
		c.iterator(false).Seek(dbpkg.EncodeKey(c.id, key))
		return c.settle(true)
	case dbi.Next:
		if c.key == nil {
			return c.Get(nil, dbi.First)
		}
		return c.step(false)
	case dbi.Prev:
		if c.key == nil {
			return c.Get(nil, dbi.Last)
		}
		return c.step(true)
	}
	return nil, errors.New("unsupported cursor op " + op.String())
}

// step moves one key past c.key in the given direction.
func (c *badgerCursor) step(reverse bool) ([]byte, error) {
	synced := c.synced && c.reverse == reverse
	it := c.iterator(reverse)
	if synced {
		it.Next()
		return c.settle(false)
	}
	it.Seek(dbpkg.EncodeKey(c.id, c.key))
	if it.ValidForPrefix(c.prefix) {
		if k, _ := dbpkg.DecodeKey(c.id, it.Item().Key()); bytes.Equal(k, c.key) {
			it.Next()
		}
	}
	return c.settle(false)
}

// settle reports the key under the live iterator. When nothing is there an
// absolute positioning leaves the cursor unpositioned, while a failed step
// keeps the previous key.
func (c *badgerCursor) settle(absolute bool) ([]byte, error) {
	if !c.it.ValidForPrefix(c.prefix) {
		c.synced = false
		if absolute {
			c.key = nil
		}
		return nil, dbi.ErrNotFound
	}
	k, ok := dbpkg.DecodeKey(c.id, c.it.Item().KeyCopy(nil))
	if !ok {
		c.synced = false
		return nil, dbi.ErrNotFound
	}
	c.key, c.synced = k, true
	return k, nil
}

func (c *badgerCursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
}
