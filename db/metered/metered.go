// Package metered decorates a TransactionProvider with operation meters and
// an open-cursor gauge.
package metered

import (
	"fmt"
	"sync/atomic"

	"github.com/openrelayxyz/cardinal-types/metrics"
	dbi "github.com/openrelayxyz/cardinal-dbi"
)

type meter interface {
	Mark(int64)
}

type gauge interface {
	Update(int64)
}

type meters struct {
	get, put, del, cursorOpen, cursorOp, errors meter
	cursors                                     gauge
}

func newMeters(name string) *meters {
	prefix := fmt.Sprintf("/dbi/%v", name)
	return &meters{
		get:        metrics.NewMinorMeter(prefix + "/get"),
		put:        metrics.NewMinorMeter(prefix + "/put"),
		del:        metrics.NewMinorMeter(prefix + "/del"),
		cursorOpen: metrics.NewMinorMeter(prefix + "/cursors/opened"),
		cursorOp:   metrics.NewMinorMeter(prefix + "/cursors/op"),
		errors:     metrics.NewMinorMeter(prefix + "/errors"),
		cursors:    metrics.NewMinorGauge(prefix + "/cursors/open"),
	}
}

// Provider is a metered TransactionProvider.
type Provider struct {
	dbi.TransactionProvider
	m      *meters
	open   int64
	opened int64
}

func Wrap(provider dbi.TransactionProvider, name string) *Provider {
	return &Provider{TransactionProvider: provider, m: newMeters(name)}
}

// OpenCursors is the number of cursors opened through the provider that
// have not been closed yet.
func (p *Provider) OpenCursors() int64 {
	return atomic.LoadInt64(&p.open)
}

// CursorsOpened counts every cursor ever opened through the provider.
func (p *Provider) CursorsOpened() int64 {
	return atomic.LoadInt64(&p.opened)
}

func (p *Provider) Transaction() (dbi.Txn, error) {
	txn, err := p.TransactionProvider.Transaction()
	if err != nil {
		return nil, err
	}
	return &meteredTxn{Txn: txn, p: p}, nil
}

func (p *Provider) mark(m meter, err error) {
	m.Mark(1)
	if err != nil && err != dbi.ErrNotFound {
		p.m.errors.Mark(1)
	}
}

type meteredTxn struct {
	dbi.Txn
	p *Provider
}

func (tx *meteredTxn) Get(id dbi.DBI, key []byte) ([]byte, error) {
	val, err := tx.Txn.Get(id, key)
	tx.p.mark(tx.p.m.get, err)
	return val, err
}

func (tx *meteredTxn) ZeroCopyGet(id dbi.DBI, key []byte, fn func([]byte) error) error {
	err := tx.Txn.ZeroCopyGet(id, key, fn)
	tx.p.mark(tx.p.m.get, err)
	return err
}

func (tx *meteredTxn) Put(id dbi.DBI, key, value []byte) error {
	err := tx.Txn.Put(id, key, value)
	tx.p.mark(tx.p.m.put, err)
	return err
}

func (tx *meteredTxn) Del(id dbi.DBI, key []byte) error {
	err := tx.Txn.Del(id, key)
	tx.p.mark(tx.p.m.del, err)
	return err
}

func (tx *meteredTxn) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	cur, err := tx.Txn.OpenCursor(id)
	tx.p.mark(tx.p.m.cursorOpen, err)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&tx.p.opened, 1)
	tx.p.m.cursors.Update(atomic.AddInt64(&tx.p.open, 1))
	return &meteredCursor{Cursor: cur, p: tx.p}, nil
}

type meteredCursor struct {
	dbi.Cursor
	p      *Provider
	closed bool
}

func (c *meteredCursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	k, err := c.Cursor.Get(key, op)
	c.p.mark(c.p.m.cursorOp, err)
	return k, err
}

func (c *meteredCursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.Cursor.Close()
	c.p.m.cursors.Update(atomic.AddInt64(&c.p.open, -1))
}
