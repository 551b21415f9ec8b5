// Package dbtest holds the behaviour every engine must share. Engine tests
// call Run with a constructor for a fresh database.
package dbtest

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

type Options struct {
	// EmptyKey is set for engines that can store the zero-length key.
	EmptyKey bool
}

type Opener func(t *testing.T) dbpkg.Database

func Run(t *testing.T, open Opener, opts Options) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s *dbpkg.Session, opts Options)
	}{
		{name: "point_operations", fn: testPointOperations},
		{name: "binary_round_trip", fn: testBinaryRoundTrip},
		{name: "empty_table", fn: testEmptyTable},
		{name: "empty_key_reads", fn: testEmptyKeyReads},
		{name: "navigation", fn: testNavigation},
		{name: "table_isolation", fn: testTableIsolation},
		{name: "ordered_walk", fn: testOrderedWalk},
		{name: "read_only", fn: testReadOnly},
		{name: "abort_discards", fn: testAbortDiscards},
		{name: "closed", fn: testClosed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := dbpkg.NewSession(open(t))
			defer s.Close() //nolint:errcheck
			tc.fn(t, s, opts)
		})
	}
}

// Fill puts every key with a value derived from it, in one transaction.
func Fill(t *testing.T, s *dbpkg.Session, table *dbi.Table, keys ...string) {
	t.Helper()
	require.NoError(t, s.Update(func() error {
		for _, k := range keys {
			if err := table.Put([]byte(k), []byte("v:"+k)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func testPointOperations(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("points")
	require.NoError(t, err)

	require.NoError(t, s.Update(func() error {
		_, found, err := table.Get([]byte("missing"))
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, table.Put([]byte("Hello"), []byte("World")))
		v, found, err := table.Get([]byte("Hello"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("World"), v)

		ok, err := table.Has([]byte("Hello"))
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, table.Put([]byte("Hello"), []byte("Again")))
		v, _, err = table.Get([]byte("Hello"))
		require.NoError(t, err)
		assert.Equal(t, []byte("Again"), v)
		return nil
	}))

	require.NoError(t, s.Update(func() error {
		existed, err := table.Del([]byte("Hello"))
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = table.Del([]byte("Hello"))
		require.NoError(t, err)
		assert.False(t, existed)

		existed, err = table.Del([]byte("never-there"))
		require.NoError(t, err)
		assert.False(t, existed)

		_, found, err := table.Get([]byte("Hello"))
		require.NoError(t, err)
		assert.False(t, found)
		ok, err := table.Has([]byte("Hello"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func testBinaryRoundTrip(t *testing.T, s *dbpkg.Session, opts Options) {
	table, err := s.Table("binary")
	require.NoError(t, err)

	values := map[string][]byte{
		"empty":  {},
		"zeroes": {0, 0, 0},
		"high":   {0xff, 0x00, 0xfe, 0x80},
	}
	keys := [][]byte{[]byte("empty"), []byte("zeroes"), []byte("high"), {0x00}, {0xff, 0xff}}
	if opts.EmptyKey {
		keys = append(keys, []byte{})
	}
	require.NoError(t, s.Update(func() error {
		for i, k := range keys {
			v, ok := values[string(k)]
			if !ok {
				v = []byte{byte(i), 0x00, byte(i)}
			}
			require.NoError(t, table.Put(k, v))
			got, found, err := table.Get(k)
			require.NoError(t, err)
			require.True(t, found, "key %x", k)
			assert.True(t, bytes.Equal(v, got), "key %x: %x != %x", k, got, v)
		}
		return nil
	}))
	require.NoError(t, s.View(func() error {
		got, found, err := table.Get([]byte("empty"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Len(t, got, 0)

		first, found, err := table.First()
		require.NoError(t, err)
		require.True(t, found)
		if opts.EmptyKey {
			assert.Equal(t, []byte{}, first)
		} else {
			assert.Equal(t, []byte{0x00}, first)
		}
		last, found, err := table.Last()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte{0xff, 0xff}, last)
		return nil
	}))
}

func testEmptyTable(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("empty")
	require.NoError(t, err)
	// A neighbouring table with data must not leak into the empty one.
	other, err := s.Table("other")
	require.NoError(t, err)
	Fill(t, s, other, "a", "b")

	require.NoError(t, s.View(func() error {
		for name, fn := range map[string]func() ([]byte, bool, error){
			"first":      table.First,
			"last":       table.Last,
			"next":       func() ([]byte, bool, error) { return table.Next([]byte("a")) },
			"prev":       func() ([]byte, bool, error) { return table.Prev([]byte("a")) },
			"lowerBound": func() ([]byte, bool, error) { return table.LowerBound(nil) },
		} {
			_, found, err := fn()
			require.NoError(t, err, name)
			assert.False(t, found, name)
		}
		return nil
	}))
}

// testEmptyKeyReads runs on every engine: the empty key is a valid,
// never-stored key even where the engine cannot store it.
func testEmptyKeyReads(t *testing.T, s *dbpkg.Session, opts Options) {
	table, err := s.Table("emptykey")
	require.NoError(t, err)
	Fill(t, s, table, "a", "c")
	empty := []byte{}

	require.NoError(t, s.View(func() error {
		_, found, err := table.Get(empty)
		require.NoError(t, err)
		assert.False(t, found)

		ok, err := table.Has(empty)
		require.NoError(t, err)
		assert.False(t, ok)

		k, found, err := table.LowerBound(empty)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "a", string(k))

		k, found, err = table.Next(empty)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "a", string(k))

		_, found, err = table.Prev(empty)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))

	require.NoError(t, s.Update(func() error {
		existed, err := table.Del(empty)
		require.NoError(t, err)
		assert.False(t, existed)

		err = table.Put(empty, []byte("v"))
		if !opts.EmptyKey {
			assert.Error(t, err, "engine cannot store the empty key")
			return nil
		}
		require.NoError(t, err)
		k, found, err := table.First()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, empty, k)
		k, found, err = table.Next(empty)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "a", string(k))
		return nil
	}))
}

func testNavigation(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("nav")
	require.NoError(t, err)
	Fill(t, s, table, "e", "a", "c")

	type call func([]byte) ([]byte, bool, error)
	cases := []struct {
		op   string
		fn   call
		in   []byte
		want string
	}{
		{"next", table.Next, []byte("a"), "c"},
		{"next", table.Next, []byte("b"), "c"},
		{"next", table.Next, []byte("e"), ""},
		{"next", table.Next, nil, ""},
		{"next", table.Next, []byte("0"), "a"},
		{"prev", table.Prev, []byte("e"), "c"},
		{"prev", table.Prev, []byte("d"), "c"},
		{"prev", table.Prev, []byte("a"), ""},
		{"prev", table.Prev, []byte("f"), "e"},
		{"prev", table.Prev, nil, ""},
		{"lowerBound", table.LowerBound, []byte("b"), "c"},
		{"lowerBound", table.LowerBound, []byte("a"), "a"},
		{"lowerBound", table.LowerBound, []byte("f"), ""},
		{"lowerBound", table.LowerBound, nil, "a"},
	}
	require.NoError(t, s.View(func() error {
		first, found, err := table.First()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "a", string(first))

		last, found, err := table.Last()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "e", string(last))

		for _, tc := range cases {
			got, found, err := tc.fn(tc.in)
			require.NoError(t, err, "%v(%q)", tc.op, tc.in)
			if tc.want == "" {
				assert.False(t, found, "%v(%q) returned %q", tc.op, tc.in, got)
				continue
			}
			require.True(t, found, "%v(%q)", tc.op, tc.in)
			assert.Equal(t, tc.want, string(got), "%v(%q)", tc.op, tc.in)
		}
		return nil
	}))
}

func testTableIsolation(t *testing.T, s *dbpkg.Session, _ Options) {
	left, err := s.Table("left")
	require.NoError(t, err)
	right, err := s.Table("right")
	require.NoError(t, err)
	Fill(t, s, left, "b", "d")
	Fill(t, s, right, "a", "c", "e")

	require.NoError(t, s.View(func() error {
		_, found, err := left.Get([]byte("a"))
		require.NoError(t, err)
		assert.False(t, found)

		k, found, err := left.Last()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "d", string(k))

		_, found, err = left.Next([]byte("d"))
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = left.Prev([]byte("b"))
		require.NoError(t, err)
		assert.False(t, found)

		k, found, err = left.Prev([]byte("z"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "d", string(k))

		k, found, err = right.Prev([]byte("b"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "a", string(k))
		return nil
	}))
}

func testOrderedWalk(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("walk")
	require.NoError(t, err)
	keys := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		keys = append(keys, fmt.Sprintf("k%03d", (i*73)%200))
	}
	Fill(t, s, table, keys...)
	sort.Strings(keys)

	require.NoError(t, s.View(func() error {
		var forward []string
		k, found, err := table.First()
		for ; found && err == nil; k, found, err = table.Next(k) {
			forward = append(forward, string(k))
		}
		require.NoError(t, err)
		assert.Equal(t, keys, forward)

		var backward []string
		k, found, err = table.Last()
		for ; found && err == nil; k, found, err = table.Prev(k) {
			backward = append(backward, string(k))
		}
		require.NoError(t, err)
		require.Len(t, backward, len(keys))
		for i := range keys {
			assert.Equal(t, keys[len(keys)-1-i], backward[i])
		}
		return nil
	}))
}

func testReadOnly(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("readonly")
	require.NoError(t, err)
	Fill(t, s, table, "Hello")

	require.NoError(t, s.View(func() error {
		assert.Error(t, table.Put([]byte("Hello"), []byte("World")), "expected error calling Put() inside view tx")
		_, err := table.Del([]byte("Hello"))
		assert.Error(t, err, "expected error calling Del() inside view tx")
		ok, err := table.Has([]byte("Hello"))
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))
}

func testAbortDiscards(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("abort")
	require.NoError(t, err)
	Fill(t, s, table, "kept")

	require.NoError(t, s.Begin(true))
	require.NoError(t, table.Put([]byte("dropped"), []byte("x")))
	_, err = table.Del([]byte("kept"))
	require.NoError(t, err)
	s.Abort()

	require.NoError(t, s.View(func() error {
		ok, err := table.Has([]byte("dropped"))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = table.Has([]byte("kept"))
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	_, _, err = table.Get([]byte("kept"))
	assert.ErrorIs(t, err, dbi.ErrNoTransaction)
}

func testClosed(t *testing.T, s *dbpkg.Session, _ Options) {
	table, err := s.Table("closed")
	require.NoError(t, err)
	Fill(t, s, table, "a")
	require.NoError(t, s.Close())

	assert.ErrorIs(t, table.Put([]byte("a"), []byte("b")), dbi.ErrClosed)
	_, _, err = table.Get([]byte("a"))
	assert.ErrorIs(t, err, dbi.ErrClosed)
	_, _, err = table.First()
	assert.ErrorIs(t, err, dbi.ErrClosed)
	_, _, err = table.Next(nil)
	assert.ErrorIs(t, err, dbi.ErrClosed)
	assert.ErrorIs(t, s.Begin(false), dbi.ErrClosed)
}
