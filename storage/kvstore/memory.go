package kvstore

import "sync"

// memoryKV is an in-process KV used by tests, mirroring ethdb/memorydb's role as the teacher's own
// in-memory KeyValueStore reference implementation.
type memoryKV struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemory returns a KV backed by plain Go maps, guarded by a single
// RWMutex for the whole store (acceptable at test scale; spec §5 makes
// the same simplicity-over-precision tradeoff for the mobile block
// cache).
func NewMemory() KV {
	return &memoryKV{buckets: make(map[string]map[string][]byte)}
}

func (m *memoryKV) bucket(name []byte) map[string][]byte {
	b, ok := m.buckets[string(name)]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[string(name)] = b
	}
	return b
}

type memoryTx struct {
	kv       *memoryKV
	writable bool
}

func (m *memoryKV) View(fn func(Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memoryTx{kv: m, writable: false})
}

func (m *memoryKV) Update(fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// snapshot for rollback-on-error, per spec §4.6 rollback semantics.
	snapshot := make(map[string]map[string][]byte, len(m.buckets))
	for name, b := range m.buckets {
		cp := make(map[string][]byte, len(b))
		for k, v := range b {
			cp[k] = v
		}
		snapshot[name] = cp
	}
	err := fn(&memoryTx{kv: m, writable: true})
	if err != nil {
		m.buckets = snapshot
	}
	return err
}

func (m *memoryKV) Close() error { return nil }

func (t *memoryTx) Get(bucket, key []byte) ([]byte, bool, error) {
	b, ok := t.kv.buckets[string(bucket)]
	if !ok {
		return nil, false, nil
	}
	v, ok := b[string(key)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (t *memoryTx) Put(bucket, key, value []byte) error {
	b := t.kv.bucket(bucket)
	cp := make([]byte, len(value))
	copy(cp, value)
	b[string(key)] = cp
	return nil
}

func (t *memoryTx) Delete(bucket, key []byte) error {
	b, ok := t.kv.buckets[string(bucket)]
	if !ok {
		return nil
	}
	delete(b, string(key))
	return nil
}

func (t *memoryTx) ForEach(bucket []byte, fn func(key, value []byte) error) error {
	b, ok := t.kv.buckets[string(bucket)]
	if !ok {
		return nil
	}
	for k, v := range b {
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}
