package mem

import (
	dbi "github.com/openrelayxyz/cardinal-dbi"
)

// cursor remembers the key it sits on and re-seeks from it on every step,
// so writes made through the same transaction never invalidate it.
type cursor struct {
	tx     *transaction
	tree   *tree
	key    []byte
	valid  bool
	closed bool
}

func (c *cursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	if c.closed {
		return nil, ErrCursorClosed
	}
	if c.tx.done {
		return nil, ErrTxnDone
	}
	var (
		found item
		ok    bool
	)
	switch op {
	case dbi.First:
		found, ok = c.tree.Min()
	case dbi.Last:
		found, ok = c.tree.Max()
	case dbi.SetRange:
		c.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
			found, ok = it, true
			return false
		})
	case dbi.Next:
		if !c.valid {
			return c.Get(nil, dbi.First)
		}
		c.tree.AscendGreaterOrEqual(item{key: c.key}, func(it item) bool {
			if c.tx.db.cmp(it.key, c.key) == 0 {
				return true
			}
			found, ok = it, true
			return false
		})
		if !ok {
			return nil, dbi.ErrNotFound
		}
	case dbi.Prev:
		if !c.valid {
			return c.Get(nil, dbi.Last)
		}
		c.tree.DescendLessOrEqual(item{key: c.key}, func(it item) bool {
			if c.tx.db.cmp(it.key, c.key) == 0 {
				return true
			}
			found, ok = it, true
			return false
		})
		if !ok {
			return nil, dbi.ErrNotFound
		}
	default:
		return nil, errUnsupportedOp(op)
	}
	if !ok {
		c.valid = false
		return nil, dbi.ErrNotFound
	}
	c.key, c.valid = found.key, true
	return found.key, nil
}

func (c *cursor) Close() {
	c.closed = true
	c.tree = nil
}

type errUnsupportedOp dbi.CursorOp

func (e errUnsupportedOp) Error() string {
	return "unsupported cursor op " + dbi.CursorOp(e).String()
}
