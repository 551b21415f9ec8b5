package dbi_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
	"github.com/openrelayxyz/cardinal-dbi/db/mem"
)

var errInjected = errors.New("injected failure")

// faultProvider wraps a real provider, counting cursors and optionally
// failing or panicking on a chosen cursor op.
type faultProvider struct {
	dbi.TransactionProvider
	failOp   dbi.CursorOp
	fail     bool
	panicky  bool
	open     int
	txnCalls int
}

func (p *faultProvider) Transaction() (dbi.Txn, error) {
	p.txnCalls++
	txn, err := p.TransactionProvider.Transaction()
	if err != nil {
		return nil, err
	}
	return &faultTxn{Txn: txn, p: p}, nil
}

type faultTxn struct {
	dbi.Txn
	p *faultProvider
}

func (tx *faultTxn) OpenCursor(id dbi.DBI) (dbi.Cursor, error) {
	cur, err := tx.Txn.OpenCursor(id)
	if err != nil {
		return nil, err
	}
	tx.p.open++
	return &faultCursor{Cursor: cur, p: tx.p}, nil
}

type faultCursor struct {
	dbi.Cursor
	p *faultProvider
}

func (c *faultCursor) Get(key []byte, op dbi.CursorOp) ([]byte, error) {
	if c.p.fail && op == c.p.failOp {
		if c.p.panicky {
			panic("engine exploded")
		}
		return nil, errInjected
	}
	return c.Cursor.Get(key, op)
}

func (c *faultCursor) Close() {
	c.p.open--
	c.Cursor.Close()
}

func setup(t *testing.T, keys ...string) (*dbpkg.Session, *faultProvider, *dbi.Table) {
	t.Helper()
	s := dbpkg.NewSession(mem.NewMemoryDatabase(4))
	t.Cleanup(func() { s.Close() })
	id, err := s.Database().OpenTable("Cardinal")
	require.NoError(t, err)
	p := &faultProvider{TransactionProvider: s}
	table := dbi.New(p, id, dbi.WithName("Cardinal"))
	require.NoError(t, s.Update(func() error {
		for _, k := range keys {
			if err := table.Put([]byte(k), []byte("v:"+k)); err != nil {
				return err
			}
		}
		return nil
	}))
	return s, p, table
}

func TestCursorReleasedOnError(t *testing.T) {
	calls := map[string]struct {
		op dbi.CursorOp
		fn func(*dbi.Table) ([]byte, bool, error)
	}{
		"first":      {dbi.First, (*dbi.Table).First},
		"last":       {dbi.Last, (*dbi.Table).Last},
		"next":       {dbi.SetRange, func(t *dbi.Table) ([]byte, bool, error) { return t.Next([]byte("a")) }},
		"nextStep":   {dbi.Next, func(t *dbi.Table) ([]byte, bool, error) { return t.Next([]byte("a")) }},
		"prev":       {dbi.SetRange, func(t *dbi.Table) ([]byte, bool, error) { return t.Prev([]byte("c")) }},
		"prevStep":   {dbi.Prev, func(t *dbi.Table) ([]byte, bool, error) { return t.Prev([]byte("c")) }},
		"prevLast":   {dbi.Last, func(t *dbi.Table) ([]byte, bool, error) { return t.Prev([]byte("z")) }},
		"lowerBound": {dbi.SetRange, func(t *dbi.Table) ([]byte, bool, error) { return t.LowerBound([]byte("b")) }},
	}
	for name, tc := range calls {
		for _, panicky := range []bool{false, true} {
			s, p, table := setup(t, "a", "c", "e")
			p.fail, p.failOp, p.panicky = true, tc.op, panicky
			require.NoError(t, s.View(func() error {
				k, found, err := tc.fn(table)
				require.Error(t, err, name)
				assert.False(t, found, name)
				assert.Nil(t, k, name)

				var dbiErr *dbi.Error
				require.ErrorAs(t, err, &dbiErr, name)
				if panicky {
					assert.ErrorIs(t, err, dbi.ErrEnginePanic, name)
				} else {
					assert.ErrorIs(t, err, errInjected, name)
				}
				assert.Zero(t, p.open, "%v left a cursor open", name)
				return nil
			}))
		}
	}
}

func TestCursorReleasedOnSuccess(t *testing.T) {
	s, p, table := setup(t, "a", "c", "e")
	require.NoError(t, s.View(func() error {
		for _, fn := range []func() ([]byte, bool, error){
			table.First,
			table.Last,
			func() ([]byte, bool, error) { return table.Next([]byte("e")) },
			func() ([]byte, bool, error) { return table.Prev([]byte("a")) },
			func() ([]byte, bool, error) { return table.LowerBound([]byte("f")) },
		} {
			_, _, err := fn()
			require.NoError(t, err)
			assert.Zero(t, p.open)
		}
		return nil
	}))
}

func TestNavigationLaws(t *testing.T) {
	s, _, table := setup(t, "b", "d", "f", "h")
	probes := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	require.NoError(t, s.View(func() error {
		for _, probe := range probes {
			k := []byte(probe)
			lb, lbFound, err := table.LowerBound(k)
			require.NoError(t, err)
			if ok, _ := table.Has(k); ok {
				require.True(t, lbFound)
				assert.Equal(t, k, lb, "lowerBound of a present key is the key")
			}
			next, nextFound, err := table.Next(k)
			require.NoError(t, err)
			if nextFound {
				assert.Positive(t, bytes.Compare(next, k), "next(%v)", probe)
				prev, prevFound, err := table.Prev(next)
				require.NoError(t, err)
				if prevFound {
					assert.LessOrEqual(t, bytes.Compare(prev, k), 0, "prev(next(%v))", probe)
				}
			}
			prev, prevFound, err := table.Prev(k)
			require.NoError(t, err)
			if prevFound {
				assert.Negative(t, bytes.Compare(prev, k), "prev(%v)", probe)
			}
		}
		return nil
	}))
}

func TestClosedNeverTouchesStore(t *testing.T) {
	s, p, table := setup(t, "a")
	require.NoError(t, s.Close())
	p.txnCalls = 0

	ops := map[string]func() error{
		"put":           func() error { return table.Put([]byte("a"), []byte("b")) },
		"get":           func() error { _, _, err := table.Get([]byte("a")); return err },
		"del":           func() error { _, err := table.Del([]byte("a")); return err },
		"has":           func() error { _, err := table.Has([]byte("a")); return err },
		"first":         func() error { _, _, err := table.First(); return err },
		"last":          func() error { _, _, err := table.Last(); return err },
		"next":          func() error { _, _, err := table.Next([]byte("a")); return err },
		"prev":          func() error { _, _, err := table.Prev([]byte("a")); return err },
		"lowerBound":    func() error { _, _, err := table.LowerBound([]byte("a")); return err },
		"nextNil":       func() error { _, _, err := table.Next(nil); return err },
		"prevNil":       func() error { _, _, err := table.Prev(nil); return err },
		"lowerBoundNil": func() error { _, _, err := table.LowerBound(nil); return err },
	}
	for name, op := range ops {
		err := op()
		assert.ErrorIs(t, err, dbi.ErrClosed, name)
		assert.True(t, dbi.IsClosed(err), name)
	}
	assert.Zero(t, p.txnCalls)
}

func TestErrorOp(t *testing.T) {
	s, _, table := setup(t)
	require.NoError(t, s.Close())
	_, _, err := table.LowerBound([]byte("a"))
	var dbiErr *dbi.Error
	require.ErrorAs(t, err, &dbiErr)
	assert.Equal(t, "lowerBound", dbiErr.Op)
	assert.Equal(t, "dbi lowerBound: Closed.", err.Error())
}

func TestValuesAreCopies(t *testing.T) {
	s, _, table := setup(t, "a")
	require.NoError(t, s.Update(func() error {
		v, _, err := table.Get([]byte("a"))
		require.NoError(t, err)
		v[0] = 'X'
		again, _, err := table.Get([]byte("a"))
		require.NoError(t, err)
		assert.Equal(t, "v:a", string(again))
		return nil
	}))
}

func TestNoTransaction(t *testing.T) {
	_, _, table := setup(t, "a")
	_, _, err := table.Get([]byte("a"))
	assert.ErrorIs(t, err, dbi.ErrNoTransaction)
	_, _, err = table.First()
	assert.ErrorIs(t, err, dbi.ErrNoTransaction)
}

func TestComparatorOverride(t *testing.T) {
	reverse := func(a, b []byte) int { return bytes.Compare(b, a) }
	s := dbpkg.NewSession(mem.NewMemoryDatabase(1, mem.WithComparator(reverse)))
	defer s.Close()
	table, err := s.Table("reversed", dbi.WithComparator(reverse))
	require.NoError(t, err)
	require.NoError(t, s.Update(func() error {
		for _, k := range []string{"a", "b", "c"} {
			if err := table.Put([]byte(k), nil); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, s.View(func() error {
		k, _, err := table.First()
		require.NoError(t, err)
		assert.Equal(t, "c", string(k))
		k, _, err = table.Next([]byte("c"))
		require.NoError(t, err)
		assert.Equal(t, "b", string(k))
		k, _, err = table.Prev([]byte("b"))
		require.NoError(t, err)
		assert.Equal(t, "c", string(k))
		return nil
	}))
}

func TestTableString(t *testing.T) {
	table := dbi.New(nil, 7)
	assert.Equal(t, "dbi-7", table.Name())
	assert.Equal(t, dbi.DBI(7), table.DBI())
	assert.Equal(t, "Table(dbi-7, dbi=7)", table.String())
	_, _, err := table.First()
	assert.ErrorIs(t, err, dbi.ErrClosed)
}
