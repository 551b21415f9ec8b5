package dbi

import (
	"bytes"
	"fmt"
)

// DBI identifies a named table inside an environment. Its meaning is
// engine-specific; only the engine that issued it can interpret it.
type DBI uint32

type KeyValue struct {
	Key   []byte `avro:"key"`
	Value []byte `avro:"value"`
}

func (kv KeyValue) String() string {
	return fmt.Sprintf(`{"%x": "%x"}`, kv.Key, kv.Value)
}

// CursorOp selects how Cursor.Get positions the cursor.
type CursorOp uint

const (
	// First positions at the minimum key.
	First CursorOp = iota
	// Last positions at the maximum key.
	Last
	// Next steps one key forward from the current position.
	Next
	// Prev steps one key backward from the current position.
	Prev
	// SetRange positions at the smallest key greater than or equal to the
	// supplied key.
	SetRange
)

func (op CursorOp) String() string {
	switch op {
	case First:
		return "first"
	case Last:
		return "last"
	case Next:
		return "next"
	case Prev:
		return "prev"
	case SetRange:
		return "set_range"
	}
	return fmt.Sprintf("CursorOp(%d)", uint(op))
}

// Comparator orders keys. It returns a negative number when a sorts before b,
// zero when they are equal and a positive number otherwise.
type Comparator func(a, b []byte) int

// DefaultComparator is byte-lexicographic order.
var DefaultComparator Comparator = bytes.Compare

// Cursor is a positioned handle into one table of a transaction.
type Cursor interface {
	// Get moves the cursor according to op and returns the key at the new
	// position. key is only consulted for SetRange. ErrNotFound is returned
	// when the requested position does not exist. The returned slice is only
	// valid until the next call on the cursor.
	Get(key []byte, op CursorOp) ([]byte, error)
	// Close releases the cursor. Closing twice is a no-op.
	Close()
}

// Txn is the slice of a transaction the table layer needs. It is borrowed
// from a TransactionProvider and never committed or aborted here.
type Txn interface {
	// Get returns the value stored for key, or ErrNotFound. The returned
	// slice may alias engine memory and is only valid inside the transaction.
	Get(dbi DBI, key []byte) ([]byte, error)
	// ZeroCopyGet invokes fn with the value stored at key, without copying
	// it. It returns ErrNotFound when the key is absent.
	ZeroCopyGet(dbi DBI, key []byte, fn func([]byte) error) error
	Put(dbi DBI, key, value []byte) error
	// Del removes key, returning ErrNotFound if it was absent.
	Del(dbi DBI, key []byte) error
	OpenCursor(dbi DBI) (Cursor, error)
	// Cmp compares two keys with the ordering of the table.
	Cmp(dbi DBI, a, b []byte) int
}

// TransactionProvider hands out the transaction that operations should run
// against. The transaction must stay valid for the duration of a call.
type TransactionProvider interface {
	Transaction() (Txn, error)
	IsOpened() bool
}
