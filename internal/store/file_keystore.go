package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"devid/internal/domain"
)

const (
	keysDir       = "keys"
	keyFileSuffix = ".key.enc"
)

// FileKeyStore keeps one encrypted entry per alias under <dir>/keys.
type FileKeyStore struct {
	dir        string
	passphrase string
	opts       options

	mu      sync.RWMutex
	signers signerCache
}

// NewFileKeyStore returns a FileKeyStore rooted at dir. Private keys are
// sealed with a key derived from passphrase.
func NewFileKeyStore(dir, passphrase string, opts ...Option) *FileKeyStore {
	return &FileKeyStore{dir: dir, passphrase: passphrase, opts: newOptions(opts)}
}

// CreateKeyIfAbsent returns the entry for alias, generating and persisting it first if needed.
func (s *FileKeyStore) CreateKeyIfAbsent(alias domain.Alias, spec domain.KeySpec) (domain.KeyHandle, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, err
	}
	if err := checkSpec(spec); err != nil {
		return domain.KeyHandle{}, err
	}
	if s.passphrase == "" {
		return domain.KeyHandle{}, fmt.Errorf("%w: vault passphrase not configured", domain.ErrStoreUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok, err := s.read(alias); err != nil {
		return domain.KeyHandle{}, err
	} else if ok {
		return e.handle()
	}

	if err := os.MkdirAll(filepath.Join(s.dir, keysDir), 0o700); err != nil {
		return domain.KeyHandle{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	e, priv, err := newEntry(alias, s.passphrase, s.opts)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return domain.KeyHandle{}, err
	}
	if err := createFile(s.path(alias), b, 0o600); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return domain.KeyHandle{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		// Another process created the entry first; its key wins.
		existing, ok, err := s.read(alias)
		if err != nil {
			return domain.KeyHandle{}, err
		}
		if !ok {
			return domain.KeyHandle{}, fmt.Errorf("%w: entry %s vanished during create", domain.ErrStoreUnavailable, alias)
		}
		return existing.handle()
	}
	s.signers.put(alias, priv)
	return e.handle()
}

// GetKey returns the handle for alias without touching the private key.
func (s *FileKeyStore) GetKey(alias domain.Alias) (domain.KeyHandle, bool, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok, err := s.read(alias)
	if err != nil || !ok {
		return domain.KeyHandle{}, false, err
	}
	h, err := e.handle()
	if err != nil {
		return domain.KeyHandle{}, false, err
	}
	return h, true, nil
}

// Sign signs message with the key handle refers to. The entry is re-read so a
// reset from another process is noticed.
func (s *FileKeyStore) Sign(handle domain.KeyHandle, message []byte) ([]byte, error) {
	if err := handle.Alias.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok, err := s.read(handle.Alias)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, handle.Alias)
	}
	priv, err := s.signers.signer(e, s.passphrase)
	if err != nil {
		return nil, err
	}
	return signWith(priv, handle, message)
}

// DeleteKey removes the entry for alias. A missing entry reports false.
func (s *FileKeyStore) DeleteKey(alias domain.Alias) (bool, error) {
	if err := alias.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signers.drop(alias)
	err := os.Remove(s.path(alias))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileKeyStore) path(alias domain.Alias) string {
	return filepath.Join(s.dir, keysDir, alias.String()+keyFileSuffix)
}

func (s *FileKeyStore) read(alias domain.Alias) (keyEntry, bool, error) {
	b, err := readFile(s.path(alias))
	if err != nil {
		return keyEntry{}, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if b == nil {
		return keyEntry{}, false, nil
	}
	var e keyEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return keyEntry{}, false, fmt.Errorf("decoding key entry %s: %w", alias, err)
	}
	if e.V > entryFormatVersion {
		return keyEntry{}, false, fmt.Errorf("unsupported key entry version %d", e.V)
	}
	if e.Alias != alias {
		return keyEntry{}, false, fmt.Errorf("key entry %s: stored alias %q does not match", alias, e.Alias)
	}
	return e, true, nil
}

// Compile-time assertion that FileKeyStore implements domain.KeyStore.
var _ domain.KeyStore = (*FileKeyStore)(nil)
