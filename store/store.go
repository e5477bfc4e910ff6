package store

import (
	"sync"
)

// Provider is an interface for cache storage.
// It manages named namespaces, each of which holds an independent set of
// cache entries. Namespaces map to cache versions: a version bump opens a
// new namespace, it never migrates an old one in place.
//
// Implementations must be thread-safe!
type Provider interface {
	// Open returns a handle to the namespace with the given name,
	// creating it if it does not exist.
	Open(namespace string) (Store, error)
	// Namespaces returns the names of all namespaces known to the provider.
	Namespaces() ([]string, error)
	// DeleteNamespace removes the namespace and all of its entries.
	// Deleting a namespace that does not exist is not an error.
	DeleteNamespace(namespace string) error
	// Close releases any underlying resources.
	Close() error
}

// Store is a handle to a single namespace.
// It stores and retrieves []byte values, which represent HTTP responses.
// Keys enumerate in insertion order, which is the basis for FIFO eviction.
type Store interface {
	// Get returns the stored bytes for the given key, if the key exists.
	Get(key string) ([]byte, bool, error)
	// Put stores the given bytes under the given key.
	// Overwriting an existing key replaces its bytes atomically but keeps
	// the key's original insertion position.
	Put(key string, bytes []byte) error
	// Delete removes the entry for the given key.
	// Deleting an absent key is not an error.
	Delete(key string) error
	// Keys returns all keys in insertion order.
	Keys() ([]string, error)
	// Len returns the number of entries.
	Len() (int, error)
}

type memNamespace struct {
	entries map[string][]byte
	order   []string
}

// MemProvider is an in-memory provider with no durability.
// It is primarily useful in tests and for the `memory` backend.
type MemProvider struct {
	mutex      *sync.RWMutex
	namespaces map[string]*memNamespace
}

func NewMemProvider() *MemProvider {
	return &MemProvider{
		mutex:      &sync.RWMutex{},
		namespaces: make(map[string]*memNamespace),
	}
}

func (m *MemProvider) Open(namespace string) (Store, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ensure(namespace)
	return &memStore{provider: m, namespace: namespace}, nil
}

// ensure creates the namespace if needed. Callers must hold the write lock.
func (m *MemProvider) ensure(namespace string) *memNamespace {
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = &memNamespace{entries: make(map[string][]byte)}
		m.namespaces[namespace] = ns
	}
	return ns
}

func (m *MemProvider) Namespaces() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	return names, nil
}

func (m *MemProvider) DeleteNamespace(namespace string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *MemProvider) Close() error {
	return nil
}

// memStore resolves its namespace by name on every operation, so a handle
// opened before a DeleteNamespace sees the namespace as empty afterwards.
type memStore struct {
	provider  *MemProvider
	namespace string
}

func (s *memStore) Get(key string) ([]byte, bool, error) {
	s.provider.mutex.RLock()
	defer s.provider.mutex.RUnlock()
	ns, ok := s.provider.namespaces[s.namespace]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := ns.entries[key]
	return bytes, ok, nil
}

func (s *memStore) Put(key string, bytes []byte) error {
	s.provider.mutex.Lock()
	defer s.provider.mutex.Unlock()
	ns := s.provider.ensure(s.namespace)
	if _, ok := ns.entries[key]; !ok {
		ns.order = append(ns.order, key)
	}
	ns.entries[key] = bytes
	return nil
}

func (s *memStore) Delete(key string) error {
	s.provider.mutex.Lock()
	defer s.provider.mutex.Unlock()
	ns, ok := s.provider.namespaces[s.namespace]
	if !ok {
		return nil
	}
	if _, ok := ns.entries[key]; !ok {
		return nil
	}
	delete(ns.entries, key)
	for i, k := range ns.order {
		if k == key {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memStore) Keys() ([]string, error) {
	s.provider.mutex.RLock()
	defer s.provider.mutex.RUnlock()
	ns, ok := s.provider.namespaces[s.namespace]
	if !ok {
		return nil, nil
	}
	keys := make([]string, len(ns.order))
	copy(keys, ns.order)
	return keys, nil
}

func (s *memStore) Len() (int, error) {
	s.provider.mutex.RLock()
	defer s.provider.mutex.RUnlock()
	ns, ok := s.provider.namespaces[s.namespace]
	if !ok {
		return 0, nil
	}
	return len(ns.entries), nil
}
