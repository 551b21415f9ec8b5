package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
	"github.com/openrelayxyz/cardinal-dbi/db/mem"
)

func TestSessionLifecycle(t *testing.T) {
	s := dbpkg.NewSession(mem.NewMemoryDatabase(2))
	assert.True(t, s.IsOpened())

	_, err := s.Transaction()
	assert.ErrorIs(t, err, dbi.ErrNoTransaction)
	assert.ErrorIs(t, s.Commit(), dbi.ErrNoTransaction)
	s.Abort()

	require.NoError(t, s.Begin(false))
	assert.ErrorIs(t, s.Begin(true), dbpkg.ErrTxnActive)
	txn, err := s.Transaction()
	require.NoError(t, err)
	assert.NotNil(t, txn)
	require.NoError(t, s.Commit())

	require.NoError(t, s.Begin(true))
	require.NoError(t, s.Close())
	assert.False(t, s.IsOpened())
	_, err = s.Transaction()
	assert.ErrorIs(t, err, dbi.ErrClosed)
	assert.ErrorIs(t, s.Commit(), dbi.ErrClosed)
	assert.NoError(t, s.Close())

	_, err = s.Table("late")
	assert.ErrorIs(t, err, dbi.ErrClosed)
}

func TestSessionUpdateRollsBack(t *testing.T) {
	s := dbpkg.NewSession(mem.NewMemoryDatabase(2))
	defer s.Close()
	table, err := s.Table("Cardinal")
	require.NoError(t, err)
	assert.Equal(t, "Cardinal", table.Name())

	err = s.Update(func() error {
		require.NoError(t, table.Put([]byte("k"), []byte("v")))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	require.NoError(t, s.View(func() error {
		ok, err := table.Has([]byte("k"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	// The failed Update must not leave its transaction behind.
	require.NoError(t, s.Begin(true))
	s.Abort()
}

func TestDatabaseHelpers(t *testing.T) {
	database := mem.NewMemoryDatabase(2)
	defer database.Close()
	id, err := database.OpenTable("Cardinal")
	require.NoError(t, err)

	require.NoError(t, dbpkg.Update(database, func(tx dbpkg.Tx) error {
		assert.True(t, tx.Writable())
		return tx.Put(id, []byte("Hello"), []byte("World"))
	}))
	require.NoError(t, dbpkg.View(database, func(tx dbpkg.Tx) error {
		assert.False(t, tx.Writable())
		v, err := tx.Get(id, []byte("Hello"))
		require.NoError(t, err)
		assert.Equal(t, "World", string(v))
		return nil
	}))
	err = dbpkg.Update(database, func(tx dbpkg.Tx) error {
		require.NoError(t, tx.Put(id, []byte("Hello"), []byte("Gone")))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, dbpkg.View(database, func(tx dbpkg.Tx) error {
		v, err := tx.Get(id, []byte("Hello"))
		require.NoError(t, err)
		assert.Equal(t, "World", string(v))
		return nil
	}))
}
