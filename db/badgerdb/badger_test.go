package badgerdb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
	"github.com/openrelayxyz/cardinal-dbi/db/dbtest"
)

var keys = [3]string{"Hello", "Yellow", "Mellow"}
var values = [3]string{"World", "Furled", "Burled"}

func TestConformance(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) dbpkg.Database {
		db, err := New("")
		require.NoError(t, err)
		return db
	}, dbtest.Options{EmptyKey: true})
}

func TestUpdateTx(t *testing.T) {
	path := t.TempDir()
	db, err := New(path)
	if err != nil {
		t.Fatalf(err.Error())
	}
	id, err := db.OpenTable("Cardinal")
	if err != nil {
		t.Fatalf(err.Error())
	}
	err = dbpkg.Update(db, func(tx dbpkg.Tx) error {
		for i := 0; i <= len(keys)-1; i++ {
			if err := tx.Put(id, []byte(keys[i]), []byte(values[i])); err != nil {
				return err
			}
		}
		for i := 0; i <= len(keys)-1; i++ {
			val, err := tx.Get(id, []byte(keys[i]))
			if err != nil {
				return err
			}
			if !bytes.Equal(val, []byte(values[i])) {
				t.Errorf("Unexpected value for %v: %v", keys[i], string(val))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf(err.Error())
	}
	db.Close()

	rdb, err := NewReadOnly(path)
	if err != nil {
		t.Fatalf(err.Error())
	}
	defer rdb.Close()
	if _, err := rdb.OpenTable("Missing"); err != ErrUnknownTable {
		t.Errorf("Expected ErrUnknownTable, got %v", err)
	}
	rid, err := rdb.OpenTable("Cardinal")
	if err != nil {
		t.Fatalf(err.Error())
	}
	if rid != id {
		t.Errorf("Table id changed across reopen: %v != %v", rid, id)
	}
	if _, err := rdb.Begin(true); err != dbi.ErrWriteToReadOnly {
		t.Errorf("Expected error beginning write tx on read-only db")
	}
	err = dbpkg.View(rdb, func(tx dbpkg.Tx) error {
		if err := tx.Put(rid, []byte("Goodbuy"), []byte("Horses")); err == nil {
			t.Errorf("Expected error calling Put() inside view tx")
		}
		for i := 0; i <= len(keys)-1; i++ {
			val, err := tx.Get(rid, []byte(keys[i]))
			if err != nil {
				return err
			}
			if !bytes.Equal(val, []byte(values[i])) {
				t.Errorf("Unexpected value for %v: %v", keys[i], string(val))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf(err.Error())
	}
}

// A read-write transaction panics if two iterators are live; switching
// direction must close the first.
func TestCursorDirectionSwitch(t *testing.T) {
	db, err := New("")
	require.NoError(t, err)
	defer db.Close()
	id, err := db.OpenTable("Cardinal")
	require.NoError(t, err)

	tx, err := db.Begin(true)
	require.NoError(t, err)
	defer tx.Abort()
	for _, k := range keys {
		require.NoError(t, tx.Put(id, []byte(k), nil))
	}

	cur, err := tx.OpenCursor(id)
	require.NoError(t, err)
	defer cur.Close()

	steps := []struct {
		op   dbi.CursorOp
		key  string
		want string
	}{
		{dbi.SetRange, "I", "Mellow"},
		{dbi.Prev, "", "Hello"},
		{dbi.Next, "", "Mellow"},
		{dbi.Next, "", "Yellow"},
		{dbi.Prev, "", "Mellow"},
		{dbi.Last, "", "Yellow"},
		{dbi.First, "", "Hello"},
	}
	for _, s := range steps {
		var seek []byte
		if s.key != "" {
			seek = []byte(s.key)
		}
		k, err := cur.Get(seek, s.op)
		require.NoError(t, err, "%v", s.op)
		assert.Equal(t, s.want, string(k), "%v", s.op)
	}
	_, err = cur.Get(nil, dbi.Prev)
	assert.ErrorIs(t, err, dbi.ErrNotFound)

	// A second cursor can only open its iterator after the first is closed.
	cur.Close()
	cur2, err := tx.OpenCursor(id)
	require.NoError(t, err)
	defer cur2.Close()
	k, err := cur2.Get(nil, dbi.Last)
	require.NoError(t, err)
	assert.Equal(t, "Yellow", string(k))
}
