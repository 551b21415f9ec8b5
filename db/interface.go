package db

import (
	dbi "github.com/openrelayxyz/cardinal-dbi"
)

// Database is an opened storage environment.
type Database interface {
	// OpenTable returns the DBI for the named table, creating it if it does
	// not exist yet.
	OpenTable(name string) (dbi.DBI, error)
	// Begin starts a transaction. Engines allow a single writer at a time.
	Begin(writable bool) (Tx, error)
	Close() error
}

// Tx is an engine transaction. Unlike dbi.Txn, which is only borrowed by
// tables, a Tx is owned by whoever began it and must be committed or aborted.
type Tx interface {
	dbi.Txn
	Writable() bool
	Commit() error
	// Abort discards the transaction. Aborting a finished transaction is a
	// no-op.
	Abort()
}

// Update runs fn in a writable transaction, committing if fn succeeds.
func Update(database Database, fn func(Tx) error) error {
	return run(database, true, fn)
}

// View runs fn in a read-only transaction.
func View(database Database, fn func(Tx) error) error {
	return run(database, false, fn)
}

func run(database Database, writable bool, fn func(Tx) error) error {
	tx, err := database.Begin(writable)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := fn(tx); err != nil {
		return err
	}
	if !writable {
		return nil
	}
	return tx.Commit()
}
