package store

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"devid/internal/domain"
)

type memoryEntry struct {
	priv   *ecdsa.PrivateKey
	handle domain.KeyHandle
}

// MemoryKeyStore holds keys in process memory only. Entries are lost on exit.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[domain.Alias]memoryEntry
	now  func() time.Time
}

// NewMemoryKeyStore returns an empty in-memory store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[domain.Alias]memoryEntry), now: time.Now}
}

// CreateKeyIfAbsent returns the existing handle for alias or generates one.
func (s *MemoryKeyStore) CreateKeyIfAbsent(alias domain.Alias, spec domain.KeySpec) (domain.KeyHandle, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, err
	}
	if err := checkSpec(spec); err != nil {
		return domain.KeyHandle{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.keys[alias]; ok {
		return e.handle, nil
	}
	now := s.now().UTC()
	priv, cert, err := generateKey(alias, now)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	h := domain.KeyHandle{
		Alias:       alias,
		PublicKey:   &priv.PublicKey,
		Certificate: cert,
		CreatedAt:   now,
	}
	s.keys[alias] = memoryEntry{priv: priv, handle: h}
	return h, nil
}

// GetKey returns the handle for alias.
func (s *MemoryKeyStore) GetKey(alias domain.Alias) (domain.KeyHandle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.keys[alias]
	return e.handle, ok, nil
}

// Sign signs message with the key handle refers to.
func (s *MemoryKeyStore) Sign(handle domain.KeyHandle, message []byte) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.keys[handle.Alias]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, handle.Alias)
	}
	return signWith(e.priv, handle, message)
}

// DeleteKey removes alias and reports whether it existed.
func (s *MemoryKeyStore) DeleteKey(alias domain.Alias) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[alias]
	delete(s.keys, alias)
	return ok, nil
}

// Compile-time assertion that MemoryKeyStore implements domain.KeyStore.
var _ domain.KeyStore = (*MemoryKeyStore)(nil)
