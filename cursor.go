package dbi

import (
	"fmt"
)

// seekFunc positions an open cursor and returns the key it settled on.
// Returning ErrNotFound means the navigation result is absent.
type seekFunc func(txn Txn, cur Cursor) ([]byte, error)

// withCursor opens one cursor, runs seek against it and releases the cursor
// on every path out, including a panic inside the engine.
func (t *Table) withCursor(op string, seek seekFunc) (key []byte, found bool, err error) {
	err = guard(op, func() error {
		txn, err := t.txn()
		if err != nil {
			return err
		}
		cur, err := txn.OpenCursor(t.dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		k, err := seek(txn, cur)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		// k points into the cursor; copy before Close runs.
		key = append([]byte{}, k...)
		found = true
		return nil
	})
	if err != nil {
		t.log.Debug("Navigation failed", "op", op, "error", err)
		return nil, false, err
	}
	return key, found, nil
}

// First returns the smallest key in the table.
func (t *Table) First() ([]byte, bool, error) {
	return t.withCursor("first", func(_ Txn, cur Cursor) ([]byte, error) {
		return cur.Get(nil, First)
	})
}

// Last returns the largest key in the table.
func (t *Table) Last() ([]byte, bool, error) {
	return t.withCursor("last", func(_ Txn, cur Cursor) ([]byte, error) {
		return cur.Get(nil, Last)
	})
}

// Next returns the smallest key strictly greater than key. A nil key has no
// successor.
func (t *Table) Next(key []byte) ([]byte, bool, error) {
	if key == nil {
		return t.absent("next")
	}
	return t.withCursor("next", func(txn Txn, cur Cursor) ([]byte, error) {
		found, err := cur.Get(key, SetRange)
		if err != nil {
			return nil, err
		}
		if t.compare(txn, key, found) == 0 {
			return cur.Get(nil, Next)
		}
		return found, nil
	})
}

// Prev returns the largest key strictly less than key. A nil key has no
// predecessor.
func (t *Table) Prev(key []byte) ([]byte, bool, error) {
	if key == nil {
		return t.absent("prev")
	}
	return t.withCursor("prev", func(txn Txn, cur Cursor) ([]byte, error) {
		found, err := cur.Get(key, SetRange)
		if IsNotFound(err) {
			// Nothing at or after key: the predecessor, if any, is the last key.
			found, err = cur.Get(nil, Last)
		}
		if err != nil {
			return nil, err
		}
		if t.compare(txn, key, found) <= 0 {
			return cur.Get(nil, Prev)
		}
		return found, nil
	})
}

// LowerBound returns the smallest key greater than or equal to key. A nil
// key behaves exactly like First.
func (t *Table) LowerBound(key []byte) ([]byte, bool, error) {
	if key == nil {
		return t.First()
	}
	return t.withCursor("lowerBound", func(_ Txn, cur Cursor) ([]byte, error) {
		return cur.Get(key, SetRange)
	})
}

// absent still honours the closed check so a nil anchor on a closed
// environment fails like every other call.
func (t *Table) absent(op string) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, wrapErr(op, err)
	}
	return nil, false, nil
}

func (t *Table) String() string {
	return fmt.Sprintf("Table(%v, dbi=%d)", t.name, t.dbi)
}
