package ledger

import (
	"sort"
	"strings"
	"sync"
)

// StateDB is the physical world-state store underneath a Ledger. Apply must
// be atomic: every write in the batch lands or none do. Iterate must visit
// keys in ascending lexical order.
type StateDB interface {
	Get(key string) ([]byte, error)
	Apply(writes []Write) error
	Iterate(prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// MemStateDB keeps world state in memory. It backs tests, the seed tool and
// deployments that do not need persistence.
type MemStateDB struct {
	mu    sync.RWMutex
	state map[string][]byte
}

// NewMemStateDB returns an empty in-memory state database.
func NewMemStateDB() *MemStateDB {
	return &MemStateDB{state: make(map[string][]byte)}
}

func (m *MemStateDB) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	return cloneBytes(val), nil
}

func (m *MemStateDB) Apply(writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		if w.Delete {
			delete(m.state, w.Key)
		} else {
			m.state[w.Key] = cloneBytes(w.Value)
		}
	}
	return nil
}

func (m *MemStateDB) Iterate(prefix string, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.state))
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	for _, k := range keys {
		m.mu.RLock()
		val, ok := m.state[k]
		if ok {
			val = cloneBytes(val)
		}
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(k, val); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStateDB) Close() error { return nil }
