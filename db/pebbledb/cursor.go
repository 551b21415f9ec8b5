package pebbledb

import (
	"errors"

	"github.com/cockroachdb/pebble"
	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

// pebbleCursor wraps an iterator bounded to one table's prefix. Pebble
// iterators step in both directions, so no re-seeking is needed.
type pebbleCursor struct {
	it         *pebble.Iterator
	id         dbi.DBI
	positioned bool
}

func (c *pebbleCursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	if c.it == nil {
		return nil, errors.New("cursor closed")
	}
	var ok bool
	switch op {
	case dbi.First:
		ok = c.it.First()
	case dbi.Last:
		ok = c.it.Last()
	case dbi.SetRange:
		ok = c.it.SeekGE(dbpkg.EncodeKey(c.id, key))
	case dbi.Next:
		if !c.positioned {
			return c.Get(nil, dbi.First)
		}
		ok = c.it.Next()
	case dbi.Prev:
		if !c.positioned {
			return c.Get(nil, dbi.Last)
		}
		ok = c.it.Prev()
	default:
		return nil, errors.New("unsupported cursor op " + op.String())
	}
	c.positioned = true
	if !ok {
		if err := c.it.Error(); err != nil {
			return nil, err
		}
		return nil, dbi.ErrNotFound
	}
	k, valid := dbpkg.DecodeKey(c.id, c.it.Key())
	if !valid {
		return nil, dbi.ErrNotFound
	}
	return append([]byte{}, k...), nil
}

func (c *pebbleCursor) Close() {
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
}
