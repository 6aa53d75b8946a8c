package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"devid/internal/domain"
	"devid/internal/store"
)

func TestSQLiteKeyStore_PersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "keys.db")
	pass := "Correct-Horse-9!"

	first, err := store.OpenSQLiteKeyStore(dsn, pass, fastKDF)
	if err != nil {
		t.Fatalf("OpenSQLiteKeyStore: %v", err)
	}
	h, err := first.CreateKeyIfAbsent(domain.DefaultAlias, domain.DefaultKeySpec())
	if err != nil {
		t.Fatalf("CreateKeyIfAbsent: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := store.OpenSQLiteKeyStore(dsn, pass, fastKDF)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()

	got, ok, err := second.GetKey(domain.DefaultAlias)
	if err != nil || !ok {
		t.Fatalf("GetKey after reopen: ok=%v err=%v", ok, err)
	}
	if !got.PublicKey.Equal(h.PublicKey) {
		t.Fatal("key changed across reopen")
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not persisted")
	}
	if _, err := second.Sign(got, []byte("m")); err != nil {
		t.Fatalf("Sign after reopen: %v", err)
	}
}

func TestSQLiteKeyStore_WrongPassphrase_Fails(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "keys.db")
	first, err := store.OpenSQLiteKeyStore(dsn, "correct", fastKDF)
	if err != nil {
		t.Fatalf("OpenSQLiteKeyStore: %v", err)
	}
	if _, err := first.CreateKeyIfAbsent(domain.DefaultAlias, domain.DefaultKeySpec()); err != nil {
		t.Fatalf("CreateKeyIfAbsent: %v", err)
	}
	_ = first.Close()

	wrong, err := store.OpenSQLiteKeyStore(dsn, "wrong", fastKDF)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = wrong.Close() }()
	h, _, err := wrong.GetKey(domain.DefaultAlias)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if _, err := wrong.Sign(h, []byte("m")); !errors.Is(err, domain.ErrWrongPassphrase) {
		t.Fatalf("want ErrWrongPassphrase, got %v", err)
	}
}
