package dbi

import (
	"fmt"

	log "github.com/inconshreveable/log15"
)

// Table binds a DBI to a TransactionProvider. Every call borrows the
// provider's current transaction for its own duration only, so a Table can be
// reused across any number of transactions until the environment closes.
type Table struct {
	name     string
	dbi      DBI
	provider TransactionProvider
	cmp      Comparator
	log      log.Logger
}

type Option func(*Table)

// WithComparator overrides the comparator used for navigation tie-breaks.
// It must agree with the order the engine stores keys in; by default the
// transaction's own Cmp is used.
func WithComparator(cmp Comparator) Option {
	return func(t *Table) {
		t.cmp = cmp
	}
}

func WithLogger(logger log.Logger) Option {
	return func(t *Table) {
		t.log = logger
	}
}

func WithName(name string) Option {
	return func(t *Table) {
		t.name = name
	}
}

func New(provider TransactionProvider, dbi DBI, opts ...Option) *Table {
	t := &Table{
		dbi:      dbi,
		provider: provider,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.name == "" {
		t.name = fmt.Sprintf("dbi-%d", dbi)
	}
	if t.log == nil {
		t.log = log.New("table", t.name)
	}
	return t
}

func (t *Table) Name() string { return t.name }
func (t *Table) DBI() DBI     { return t.dbi }

func (t *Table) check() error {
	if t.provider == nil || !t.provider.IsOpened() {
		return ErrClosed
	}
	return nil
}

func (t *Table) txn() (Txn, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.provider.Transaction()
}

func (t *Table) compare(txn Txn, a, b []byte) int {
	if t.cmp != nil {
		return t.cmp(a, b)
	}
	return txn.Cmp(t.dbi, a, b)
}

// Put stores value at key, replacing any previous value.
func (t *Table) Put(key, value []byte) error {
	err := guard("put", func() error {
		txn, err := t.txn()
		if err != nil {
			return err
		}
		return txn.Put(t.dbi, key, value)
	})
	if err != nil {
		t.log.Debug("Put failed", "key", fmt.Sprintf("%x", key), "error", err)
	}
	return err
}

// Get returns a copy of the value stored at key. A missing key is reported
// through found, not as an error.
func (t *Table) Get(key []byte) (value []byte, found bool, err error) {
	err = guard("get", func() error {
		txn, err := t.txn()
		if err != nil {
			return err
		}
		v, err := txn.Get(t.dbi, key)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		value = append([]byte{}, v...)
		found = true
		return nil
	})
	if err != nil {
		t.log.Debug("Get failed", "key", fmt.Sprintf("%x", key), "error", err)
		return nil, false, err
	}
	return value, found, nil
}

// Del removes key. Removing a missing key succeeds; existed tells the two
// cases apart.
func (t *Table) Del(key []byte) (existed bool, err error) {
	err = guard("del", func() error {
		txn, err := t.txn()
		if err != nil {
			return err
		}
		err = txn.Del(t.dbi, key)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return nil
	})
	if err != nil {
		t.log.Debug("Del failed", "key", fmt.Sprintf("%x", key), "error", err)
		return false, err
	}
	return existed, nil
}

// Has reports whether key is present without copying its value.
func (t *Table) Has(key []byte) (found bool, err error) {
	err = guard("has", func() error {
		txn, err := t.txn()
		if err != nil {
			return err
		}
		err = txn.ZeroCopyGet(t.dbi, key, func([]byte) error { return nil })
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		t.log.Debug("Has failed", "key", fmt.Sprintf("%x", key), "error", err)
		return false, err
	}
	return found, nil
}
