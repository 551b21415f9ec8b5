package dbi

// ToBytes converts a caller argument into a key or value buffer. Strings are
// taken as their UTF-8 bytes and byte slices are copied; any other shape is
// rejected with ErrBadInput.
func ToBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case string:
		return []byte(b), nil
	case []byte:
		return append([]byte{}, b...), nil
	}
	return nil, &Error{Op: "coerce", Err: ErrBadInput}
}

// anchor is ToBytes for navigation arguments, where nil means "no anchor".
func anchor(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && b == nil {
		return nil, nil
	}
	return ToBytes(v)
}

// Loose exposes a Table to callers holding untyped arguments, such as
// decoded RPC parameters. Arguments are coerced before the store is touched.
type Loose struct {
	t *Table
}

func (t *Table) Loose() *Loose {
	return &Loose{t: t}
}

func (l *Loose) Put(key, value interface{}) error {
	if err := l.t.check(); err != nil {
		return wrapErr("put", err)
	}
	k, err := ToBytes(key)
	if err != nil {
		return err
	}
	v, err := ToBytes(value)
	if err != nil {
		return err
	}
	return l.t.Put(k, v)
}

func (l *Loose) Get(key interface{}) ([]byte, bool, error) {
	if err := l.t.check(); err != nil {
		return nil, false, wrapErr("get", err)
	}
	k, err := ToBytes(key)
	if err != nil {
		return nil, false, err
	}
	return l.t.Get(k)
}

func (l *Loose) Del(key interface{}) (bool, error) {
	if err := l.t.check(); err != nil {
		return false, wrapErr("del", err)
	}
	k, err := ToBytes(key)
	if err != nil {
		return false, err
	}
	return l.t.Del(k)
}

func (l *Loose) Has(key interface{}) (bool, error) {
	if err := l.t.check(); err != nil {
		return false, wrapErr("has", err)
	}
	k, err := ToBytes(key)
	if err != nil {
		return false, err
	}
	return l.t.Has(k)
}

func (l *Loose) First() ([]byte, bool, error) { return l.t.First() }
func (l *Loose) Last() ([]byte, bool, error)  { return l.t.Last() }

func (l *Loose) Next(key interface{}) ([]byte, bool, error) {
	return l.navigate("next", key, l.t.Next)
}

func (l *Loose) Prev(key interface{}) ([]byte, bool, error) {
	return l.navigate("prev", key, l.t.Prev)
}

func (l *Loose) LowerBound(key interface{}) ([]byte, bool, error) {
	return l.navigate("lowerBound", key, l.t.LowerBound)
}

func (l *Loose) navigate(op string, key interface{}, fn func([]byte) ([]byte, bool, error)) ([]byte, bool, error) {
	if err := l.t.check(); err != nil {
		return nil, false, wrapErr(op, err)
	}
	k, err := anchor(key)
	if err != nil {
		return nil, false, err
	}
	return fn(k)
}
