package dbi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbi "github.com/openrelayxyz/cardinal-dbi"
)

func TestToBytes(t *testing.T) {
	b, err := dbi.ToBytes("Hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), b)

	src := []byte{0x00, 0xff}
	b, err = dbi.ToBytes(src)
	require.NoError(t, err)
	src[0] = 0x01
	assert.Equal(t, []byte{0x00, 0xff}, b, "byte slices are copied")

	for _, bad := range []interface{}{42, nil, 3.5, []string{"a"}} {
		_, err := dbi.ToBytes(bad)
		assert.ErrorIs(t, err, dbi.ErrBadInput, "%#v", bad)
	}
}

func TestLoose(t *testing.T) {
	s, p, table := setup(t, "a", "c")
	loose := table.Loose()
	require.NoError(t, s.Update(func() error {
		require.NoError(t, loose.Put("e", []byte("v:e")))
		v, found, err := loose.Get([]byte("e"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v:e", string(v))

		ok, err := loose.Has("c")
		require.NoError(t, err)
		assert.True(t, ok)

		existed, err := loose.Del("c")
		require.NoError(t, err)
		assert.True(t, existed)

		k, found, err := loose.Next("a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "e", string(k))

		k, found, err = loose.Prev("e")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "a", string(k))

		k, _, err = loose.LowerBound(nil)
		require.NoError(t, err)
		assert.Equal(t, "a", string(k))

		_, found, err = loose.Next([]byte(nil))
		require.NoError(t, err)
		assert.False(t, found)

		k, _, err = loose.First()
		require.NoError(t, err)
		assert.Equal(t, "a", string(k))
		k, _, err = loose.Last()
		require.NoError(t, err)
		assert.Equal(t, "e", string(k))
		return nil
	}))

	require.NoError(t, s.View(func() error {
		before := p.txnCalls
		assert.ErrorIs(t, loose.Put(1, "x"), dbi.ErrBadInput)
		assert.ErrorIs(t, loose.Put("x", 1), dbi.ErrBadInput)
		_, _, err := loose.Get(struct{}{})
		assert.ErrorIs(t, err, dbi.ErrBadInput)
		_, _, err = loose.Next(7)
		assert.ErrorIs(t, err, dbi.ErrBadInput)
		assert.Equal(t, before, p.txnCalls, "bad input must not reach the store")
		return nil
	}))
}

func TestLooseClosedFirst(t *testing.T) {
	s, _, table := setup(t)
	require.NoError(t, s.Close())
	loose := table.Loose()
	// Closed wins over bad input.
	assert.ErrorIs(t, loose.Put(1, 2), dbi.ErrClosed)
	_, _, err := loose.Get(3)
	assert.ErrorIs(t, err, dbi.ErrClosed)
	_, err = loose.Del(4)
	assert.ErrorIs(t, err, dbi.ErrClosed)
	_, _, err = loose.Next(5)
	assert.ErrorIs(t, err, dbi.ErrClosed)
}
