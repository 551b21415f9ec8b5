package pebbledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
	"github.com/openrelayxyz/cardinal-dbi/db/dbtest"
)

func TestConformance(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) dbpkg.Database {
		db, err := Open("", false)
		require.NoError(t, err)
		return db
	}, dbtest.Options{EmptyKey: true})
}

func TestReopenReadOnly(t *testing.T) {
	path := t.TempDir()
	db, err := Open(path, false)
	require.NoError(t, err)
	s := dbpkg.NewSession(db)
	table, err := s.Table("Cardinal")
	require.NoError(t, err)
	dbtest.Fill(t, s, table, "Hello", "Yellow", "Mellow")
	require.NoError(t, s.Close())

	db, err = Open(path, true)
	require.NoError(t, err)
	s = dbpkg.NewSession(db)
	defer s.Close()

	_, err = s.Table("Missing")
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.ErrorIs(t, s.Begin(true), dbi.ErrWriteToReadOnly)

	table, err = s.Table("Cardinal")
	require.NoError(t, err)
	require.NoError(t, s.View(func() error {
		k, found, err := table.Last()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Yellow", string(k))
		v, found, err := table.Get([]byte("Mellow"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v:Mellow", string(v))
		return nil
	}))
}

func TestSnapshotReader(t *testing.T) {
	db, err := Open("", false)
	require.NoError(t, err)
	defer db.Close()
	id, err := db.OpenTable("Cardinal")
	require.NoError(t, err)

	reader, err := db.Begin(false)
	require.NoError(t, err)
	defer reader.Abort()

	require.NoError(t, dbpkg.Update(db, func(tx dbpkg.Tx) error {
		return tx.Put(id, []byte("late"), []byte("write"))
	}))

	_, err = reader.Get(id, []byte("late"))
	assert.ErrorIs(t, err, dbi.ErrNotFound)

	require.NoError(t, dbpkg.View(db, func(tx dbpkg.Tx) error {
		v, err := tx.Get(id, []byte("late"))
		require.NoError(t, err)
		assert.Equal(t, "write", string(v))
		return nil
	}))
}

func TestWritersSerialize(t *testing.T) {
	db, err := Open("", false)
	require.NoError(t, err)
	defer db.Close()
	id, err := db.OpenTable("Cardinal")
	require.NoError(t, err)

	first, err := db.Begin(true)
	require.NoError(t, err)
	require.NoError(t, first.Put(id, []byte("k"), []byte("first")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := db.Begin(true)
		if !assert.NoError(t, err) {
			return
		}
		v, err := second.Get(id, []byte("k"))
		assert.NoError(t, err)
		assert.Equal(t, "first", string(v))
		second.Abort()
	}()
	require.NoError(t, first.Commit())
	<-done
}
