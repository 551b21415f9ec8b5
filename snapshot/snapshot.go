// Package snapshot copies a table's contents in and out as avro. Every call
// runs inside whatever transaction the table's provider has active.
package snapshot

import (
	"bytes"
	"errors"

	"github.com/hamba/avro"
	dbi "github.com/openrelayxyz/cardinal-dbi"
)

var (
	snapshotSchema = avro.MustParse(`{
		"type": "array",
		"name": "tableSnapshot",
		"namespace": "cloud.rivet.cardinal.dbi",
		"items": {
			"name": "entry",
			"type": "record",
			"fields": [
				{"name": "key", "type": "bytes"},
				{"name": "value", "type": "bytes"}
			]
		}
	}`)

	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Walk calls fn for every record of t in key order, stopping at the first
// error.
func Walk(t *dbi.Table, fn func(dbi.KeyValue) error) error {
	k, found, err := t.First()
	for ; found && err == nil; k, found, err = t.Next(k) {
		v, ok, err := t.Get(k)
		if err != nil {
			return err
		}
		if !ok {
			// Removed between navigation and lookup; nothing to emit.
			continue
		}
		if err := fn(dbi.KeyValue{Key: k, Value: v}); err != nil {
			return err
		}
	}
	return err
}

func Export(t *dbi.Table) ([]byte, error) {
	records := []dbi.KeyValue{}
	if err := Walk(t, func(kv dbi.KeyValue) error {
		records = append(records, kv)
		return nil
	}); err != nil {
		return nil, err
	}
	return avro.Marshal(snapshotSchema, records)
}

// Import puts every record in data into t and returns how many were written.
// It needs a writable transaction.
func Import(t *dbi.Table, data []byte) (int, error) {
	var records []dbi.KeyValue
	if err := avro.Unmarshal(snapshotSchema, data, &records); err != nil {
		return 0, err
	}
	// Unmarshal stops quietly at EOF and ignores trailing bytes, so a
	// truncated file can still decode. Export's encoding is canonical: the
	// records must encode back to exactly data.
	canonical, err := avro.Marshal(snapshotSchema, records)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(canonical, data) {
		return 0, ErrCorruptSnapshot
	}
	for i, kv := range records {
		if err := t.Put(kv.Key, kv.Value); err != nil {
			return i, err
		}
	}
	return len(records), nil
}
