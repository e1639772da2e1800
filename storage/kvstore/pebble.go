package kvstore

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// pebbleKV is the production KV engine, backed by
// github.com/cockroachdb/pebble (the teacher's own storage engine
// dependency). Pebble has no native buckets, so keys are namespaced as
// bucket || 0x00 || key; ForEach uses a prefix iterator bounded to the
// bucket.
type pebbleKV struct {
	db *pebble.DB
	mu sync.Mutex // serializes Update transactions (single writer)
}

// OpenPebble opens (creating if absent) a pebble store at dir.
func OpenPebble(dir string) (KV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: open pebble")
	}
	return &pebbleKV{db: db}, nil
}

func namespace(bucket, key []byte) []byte {
	out := make([]byte, 0, len(bucket)+1+len(key))
	out = append(out, bucket...)
	out = append(out, 0x00)
	out = append(out, key...)
	return out
}

type pebbleTx struct {
	db      *pebble.DB
	batch   *pebble.Batch // nil for read-only transactions
	pending map[string][]byte
	deleted map[string]struct{}
}

func (p *pebbleKV) View(fn func(Tx) error) error {
	snap := p.db.NewSnapshot()
	defer snap.Close()
	return fn(&readTx{snap: snap})
}

func (p *pebbleKV) Update(fn func(Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := p.db.NewIndexedBatch()
	tx := &pebbleTx{db: p.db, batch: batch}
	if err := fn(tx); err != nil {
		_ = batch.Close()
		return err
	}
	// Storage errors are retried once before being treated as fatal
	// (spec §7 Storage errors).
	if err := batch.Commit(pebble.Sync); err != nil {
		if err2 := batch.Commit(pebble.Sync); err2 != nil {
			return errors.Wrap(err2, "kvstore: pebble commit failed twice, data integrity at risk")
		}
	}
	return nil
}

func (p *pebbleKV) Close() error { return p.db.Close() }

func (t *pebbleTx) Get(bucket, key []byte) ([]byte, bool, error) {
	v, closer, err := t.batch.Get(namespace(bucket, key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "kvstore: get")
	}
	cp := append([]byte(nil), v...)
	_ = closer.Close()
	return cp, true, nil
}

func (t *pebbleTx) Put(bucket, key, value []byte) error {
	if err := t.batch.Set(namespace(bucket, key), value, nil); err != nil {
		return errors.Wrap(err, "kvstore: put")
	}
	return nil
}

func (t *pebbleTx) Delete(bucket, key []byte) error {
	if err := t.batch.Delete(namespace(bucket, key), nil); err != nil {
		return errors.Wrap(err, "kvstore: delete")
	}
	return nil
}

func (t *pebbleTx) ForEach(bucket []byte, fn func(key, value []byte) error) error {
	prefix := append(append([]byte(nil), bucket...), 0x00)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	iter, err := t.batch.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "kvstore: iterate")
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		k := bytes.TrimPrefix(iter.Key(), prefix)
		v, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(k, append([]byte(nil), v...)); err != nil {
			return err
		}
	}
	return nil
}

// readTx is the read-only view over a pebble snapshot.
type readTx struct {
	snap *pebble.Snapshot
}

func (t *readTx) Get(bucket, key []byte) ([]byte, bool, error) {
	v, closer, err := t.snap.Get(namespace(bucket, key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "kvstore: get")
	}
	cp := append([]byte(nil), v...)
	_ = closer.Close()
	return cp, true, nil
}

func (t *readTx) Put(bucket, key, value []byte) error {
	return errors.New("kvstore: write inside a read-only transaction")
}

func (t *readTx) Delete(bucket, key []byte) error {
	return errors.New("kvstore: write inside a read-only transaction")
}

func (t *readTx) ForEach(bucket []byte, fn func(key, value []byte) error) error {
	prefix := append(append([]byte(nil), bucket...), 0x00)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	iter, err := t.snap.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "kvstore: iterate")
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		k := bytes.TrimPrefix(iter.Key(), prefix)
		v, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(k, append([]byte(nil), v...)); err != nil {
			return err
		}
	}
	return nil
}
