package db

import (
	"errors"
	"sync"

	log "github.com/inconshreveable/log15"
	dbi "github.com/openrelayxyz/cardinal-dbi"
)

var (
	ErrTxnActive = errors.New("transaction already active")
)

// Session owns a Database and the transaction currently in use. It is the
// TransactionProvider that tables borrow from: tables never see Begin,
// Commit or Abort.
type Session struct {
	database Database
	tx       Tx
	closed   bool
	mut      sync.Mutex
	log      log.Logger
}

var _ dbi.TransactionProvider = (*Session)(nil)

func NewSession(database Database) *Session {
	return &Session{
		database: database,
		log:      log.New("pkg", "db/session"),
	}
}

func (s *Session) Database() Database {
	return s.database
}

// Transaction returns the active transaction.
func (s *Session) Transaction() (dbi.Txn, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return nil, dbi.ErrClosed
	}
	if s.tx == nil {
		return nil, dbi.ErrNoTransaction
	}
	return s.tx, nil
}

func (s *Session) IsOpened() bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return !s.closed
}

func (s *Session) Begin(writable bool) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return dbi.ErrClosed
	}
	if s.tx != nil {
		return ErrTxnActive
	}
	tx, err := s.database.Begin(writable)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// Commit commits the active transaction. The session has no transaction
// afterwards, whether or not the commit succeeded.
func (s *Session) Commit() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return dbi.ErrClosed
	}
	if s.tx == nil {
		return dbi.ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	if !tx.Writable() {
		tx.Abort()
		return nil
	}
	return tx.Commit()
}

func (s *Session) Abort() {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.tx != nil {
		s.tx.Abort()
		s.tx = nil
	}
}

// Update runs fn inside a writable transaction, committing when fn returns
// nil and aborting otherwise.
func (s *Session) Update(fn func() error) error {
	return s.run(true, fn)
}

// View runs fn inside a read-only transaction.
func (s *Session) View(fn func() error) error {
	return s.run(false, fn)
}

func (s *Session) run(writable bool, fn func() error) error {
	if err := s.Begin(writable); err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			s.Abort()
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	done = true
	return s.Commit()
}

// Table opens, creating if necessary, the named table and binds it to this
// session. Tables must be opened outside of an active transaction.
func (s *Session) Table(name string, opts ...dbi.Option) (*dbi.Table, error) {
	if !s.IsOpened() {
		return nil, dbi.ErrClosed
	}
	id, err := s.database.OpenTable(name)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Opened table", "name", name, "dbi", id)
	opts = append([]dbi.Option{dbi.WithName(name), dbi.WithLogger(log.New("table", name))}, opts...)
	return dbi.New(s, id, opts...), nil
}

// Close aborts any active transaction and closes the database. Tables bound
// to the session fail with dbi.ErrClosed from then on.
func (s *Session) Close() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return nil
	}
	if s.tx != nil {
		s.log.Warn("Aborting active transaction on close")
		s.tx.Abort()
		s.tx = nil
	}
	s.closed = true
	return s.database.Close()
}
