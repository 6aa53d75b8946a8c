package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"devid/internal/channel"
	"devid/internal/domain"
	"devid/internal/logging"
	"devid/internal/services/identity"
	"devid/internal/store"
)

const sqliteFile = "devid.db"

// Wire bundles the key store, services and channel for the CLI.
type Wire struct {
	Store    domain.KeyStore
	Identity *identity.Service
	Channel  *channel.Handler

	closer io.Closer
}

// NewWire constructs the dependency graph from cfg. opts are applied after
// the options derived from cfg.
func NewWire(cfg Config, opts ...store.Option) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kdf, err := store.ParseKDF(cfg.KDF)
	if err != nil {
		return nil, err
	}
	opts = append([]store.Option{store.WithKDFParams(kdf)}, opts...)

	var (
		ks     domain.KeyStore
		closer io.Closer
	)
	switch cfg.Store {
	case StoreMemory:
		ks = store.NewMemoryKeyStore()
	case StoreFile:
		if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
			return nil, err
		}
		ks = store.NewFileKeyStore(cfg.Home, cfg.Passphrase, opts...)
	case StoreSQLite:
		if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
			return nil, err
		}
		db, err := store.OpenSQLiteKeyStore(filepath.Join(cfg.Home, sqliteFile), cfg.Passphrase, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite key store: %w", err)
		}
		ks, closer = db, db
	case StorePKCS11:
		tok, err := store.OpenPKCS11KeyStore(cfg.PKCS11, opts...)
		if err != nil {
			return nil, fmt.Errorf("open pkcs11 key store: %w", err)
		}
		ks, closer = tok, tok
	}
	logging.Debugf("using %s key store in %s", cfg.Store, cfg.Home)

	ids := identity.New(ks, identity.WithAlias(domain.Alias(cfg.Alias)))
	return &Wire{
		Store:    ks,
		Identity: ids,
		Channel:  channel.NewHandler(ids),
		closer:   closer,
	}, nil
}

// Close releases the key store, if it holds resources.
func (w *Wire) Close() error {
	if w == nil || w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
