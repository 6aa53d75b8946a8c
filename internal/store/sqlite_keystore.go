package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"devid/internal/domain"
)

// keyEntryModel maps the `key_entries` table for Bun queries.
type keyEntryModel struct {
	bun.BaseModel `bun:"table:key_entries"`
	Alias         string    `bun:"alias,pk"`
	Version       int       `bun:"version,notnull"`
	Curve         string    `bun:"curve,notnull"`
	PublicKey     []byte    `bun:"public_key,notnull"`
	Certificate   []byte    `bun:"certificate"`
	Private       []byte    `bun:"private,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func (m keyEntryModel) entry() keyEntry {
	return keyEntry{
		V:           m.Version,
		Alias:       domain.Alias(m.Alias),
		Curve:       m.Curve,
		PublicKey:   m.PublicKey,
		Certificate: m.Certificate,
		CreatedAt:   m.CreatedAt,
		Private:     m.Private,
	}
}

func entryModel(e keyEntry) keyEntryModel {
	return keyEntryModel{
		Alias:       e.Alias.String(),
		Version:     e.V,
		Curve:       e.Curve,
		PublicKey:   e.PublicKey,
		Certificate: e.Certificate,
		Private:     e.Private,
		CreatedAt:   e.CreatedAt,
	}
}

// SQLiteKeyStore keeps encrypted key entries in a SQLite database.
type SQLiteKeyStore struct {
	db         *bun.DB
	passphrase string
	opts       options
	signers    signerCache
}

// OpenSQLiteKeyStore opens (or creates) the database at dsn and ensures the
// key_entries table exists.
func OpenSQLiteKeyStore(dsn, passphrase string, opts ...Option) (*SQLiteKeyStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*keyEntryModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: creating key_entries: %v", domain.ErrStoreUnavailable, err)
	}
	return &SQLiteKeyStore{db: db, passphrase: passphrase, opts: newOptions(opts)}, nil
}

// Close releases the database.
func (s *SQLiteKeyStore) Close() error { return s.db.Close() }

// CreateKeyIfAbsent inserts a new entry unless alias exists. The insert uses
// ON CONFLICT DO NOTHING, so a concurrent creator's key wins.
func (s *SQLiteKeyStore) CreateKeyIfAbsent(alias domain.Alias, spec domain.KeySpec) (domain.KeyHandle, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, err
	}
	if err := checkSpec(spec); err != nil {
		return domain.KeyHandle{}, err
	}
	if s.passphrase == "" {
		return domain.KeyHandle{}, fmt.Errorf("%w: vault passphrase not configured", domain.ErrStoreUnavailable)
	}
	ctx := context.Background()

	if e, ok, err := s.read(ctx, alias); err != nil {
		return domain.KeyHandle{}, err
	} else if ok {
		return e.handle()
	}

	e, priv, err := newEntry(alias, s.passphrase, s.opts)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	row := entryModel(e)
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT (alias) DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("%w: inserting key entry: %v", domain.ErrStoreUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		s.signers.put(alias, priv)
		return e.handle()
	}

	existing, ok, err := s.read(ctx, alias)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	if !ok {
		return domain.KeyHandle{}, fmt.Errorf("%w: entry %s vanished during create", domain.ErrStoreUnavailable, alias)
	}
	return existing.handle()
}

// GetKey returns the handle stored for alias.
func (s *SQLiteKeyStore) GetKey(alias domain.Alias) (domain.KeyHandle, bool, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, false, err
	}
	e, ok, err := s.read(context.Background(), alias)
	if err != nil || !ok {
		return domain.KeyHandle{}, false, err
	}
	h, err := e.handle()
	if err != nil {
		return domain.KeyHandle{}, false, err
	}
	return h, true, nil
}

// Sign signs message with the key handle refers to.
func (s *SQLiteKeyStore) Sign(handle domain.KeyHandle, message []byte) ([]byte, error) {
	if err := handle.Alias.Validate(); err != nil {
		return nil, err
	}
	e, ok, err := s.read(context.Background(), handle.Alias)
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

// DeleteKey removes alias and reports whether a row was deleted.
func (s *SQLiteKeyStore) DeleteKey(alias domain.Alias) (bool, error) {
	if err := alias.Validate(); err != nil {
		return false, err
	}
	s.signers.drop(alias)
	res, err := s.db.NewDelete().Model((*keyEntryModel)(nil)).Where("alias = ?", alias.String()).Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteKeyStore) read(ctx context.Context, alias domain.Alias) (keyEntry, bool, error) {
	var row keyEntryModel
	err := s.db.NewSelect().Model(&row).Where("alias = ?", alias.String()).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return keyEntry{}, false, nil
	}
	if err != nil {
		return keyEntry{}, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if row.Version > entryFormatVersion {
		return keyEntry{}, false, fmt.Errorf("unsupported key entry version %d", row.Version)
	}
	return row.entry(), true, nil
}

// Compile-time assertion that SQLiteKeyStore implements domain.KeyStore.
var _ domain.KeyStore = (*SQLiteKeyStore)(nil)
