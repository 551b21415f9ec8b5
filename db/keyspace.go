package db

import (
	"encoding/binary"
	"errors"
	"fmt"

	dbi "github.com/openrelayxyz/cardinal-dbi"
)

// Engines with one flat keyspace (badger, pebble) give every table a
// five byte prefix: the big-endian DBI followed by 0x00. UpperBound swaps the
// separator for 0x01, a key no table can ever hold, so seeking to it (or
// backwards from it) never lands on a neighbouring table.
const prefixLen = 5

// catalogDBI holds name -> DBI records. User tables start at 1.
const catalogDBI dbi.DBI = 0

var (
	// sequenceKey stores the last DBI handed out. Its fifth byte is not 0x00
	// so it falls outside every table.
	sequenceKey = []byte("dbi/seq")

	ErrTooManyTables = errors.New("table id space exhausted")
)

func Prefix(id dbi.DBI) []byte {
	p := make([]byte, prefixLen)
	binary.BigEndian.PutUint32(p, uint32(id))
	return p
}

func UpperBound(id dbi.DBI) []byte {
	p := Prefix(id)
	p[prefixLen-1] = 0x01
	return p
}

// EncodeKey prefixes key with the table prefix.
func EncodeKey(id dbi.DBI, key []byte) []byte {
	out := make([]byte, prefixLen, prefixLen+len(key))
	binary.BigEndian.PutUint32(out, uint32(id))
	return append(out, key...)
}

// DecodeKey strips the table prefix, reporting false if raw belongs to a
// different table.
func DecodeKey(id dbi.DBI, raw []byte) ([]byte, bool) {
	if len(raw) < prefixLen || raw[prefixLen-1] != 0x00 || binary.BigEndian.Uint32(raw) != uint32(id) {
		return nil, false
	}
	return raw[prefixLen:], true
}

// ResolveTable looks name up in the catalog, allocating the next DBI if it is
// not there yet. get must return dbi.ErrNotFound for missing keys.
func ResolveTable(get func([]byte) ([]byte, error), put func(key, value []byte) error, name string) (dbi.DBI, error) {
	catalogKey := EncodeKey(catalogDBI, []byte(name))
	v, err := get(catalogKey)
	if err == nil {
		if len(v) != 4 {
			return 0, fmt.Errorf("corrupt catalog entry for table %q", name)
		}
		return dbi.DBI(binary.BigEndian.Uint32(v)), nil
	}
	if !dbi.IsNotFound(err) {
		return 0, err
	}
	var last uint32
	seq, err := get(sequenceKey)
	switch {
	case err == nil && len(seq) == 4:
		last = binary.BigEndian.Uint32(seq)
	case err == nil:
		return 0, errors.New("corrupt table sequence")
	case !dbi.IsNotFound(err):
		return 0, err
	}
	if last == ^uint32(0) {
		return 0, ErrTooManyTables
	}
	id := make([]byte, 4)
	binary.BigEndian.PutUint32(id, last+1)
	if err := put(sequenceKey, id); err != nil {
		return 0, err
	}
	if err := put(catalogKey, id); err != nil {
		return 0, err
	}
	return dbi.DBI(last + 1), nil
}
