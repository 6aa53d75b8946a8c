//go:build cgo

package store_test

import (
	"os"
	"strconv"
	"testing"

	"devid/internal/domain"
	"devid/internal/store"
)

// The token suite runs against a real module, for example SoftHSM:
//
//	softhsm2-util --init-token --free --label devid --pin 1234 --so-pin 0000
//	DEVID_TEST_PKCS11_MODULE=/usr/lib/softhsm/libsofthsm2.so \
//	DEVID_TEST_PKCS11_SLOT=<slot> DEVID_TEST_PKCS11_PIN=1234 go test ./internal/store
func init() {
	tokenBackends = append(tokenBackends, backend{"pkcs11", openTestToken})
}

func openTestToken(t *testing.T) domain.KeyStore {
	t.Helper()
	module := os.Getenv("DEVID_TEST_PKCS11_MODULE")
	if module == "" {
		t.Skip("DEVID_TEST_PKCS11_MODULE not set")
	}
	slot, err := strconv.ParseUint(os.Getenv("DEVID_TEST_PKCS11_SLOT"), 10, 32)
	if err != nil {
		t.Fatalf("DEVID_TEST_PKCS11_SLOT: %v", err)
	}
	s, err := store.OpenPKCS11KeyStore(store.PKCS11Config{
		Module: module,
		Slot:   uint(slot),
		PIN:    os.Getenv("DEVID_TEST_PKCS11_PIN"),
	})
	if err != nil {
		t.Fatalf("OpenPKCS11KeyStore: %v", err)
	}
	// Tests share the token, so start and finish with an empty default slot.
	if _, err := s.DeleteKey(domain.DefaultAlias); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.DeleteKey(domain.DefaultAlias)
		_ = s.Close()
	})
	return s
}

func TestOpenPKCS11KeyStore_MissingModule(t *testing.T) {
	if _, err := store.OpenPKCS11KeyStore(store.PKCS11Config{}); err == nil {
		t.Fatal("expected error without a module path")
	}
	if _, err := store.OpenPKCS11KeyStore(store.PKCS11Config{Module: "/nonexistent/libpkcs11.so"}); err == nil {
		t.Fatal("expected error for a module that cannot be loaded")
	}
}
