package commands_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"devid/cmd/devid/commands"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("DEVID_PASSPHRASE", "")
	return tmp
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := commands.NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClaimThenVerify(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "--store", "memory", "claim")
	if err != nil {
		t.Fatalf("claim: %v\n%s", err, out)
	}
	var resp struct {
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("claim output is not JSON: %v\n%s", err, out)
	}
	for _, k := range []string{"deviceId", "publicKey", "nonce", "signature", "alg", "timestamp"} {
		if _, ok := resp.Result[k]; !ok {
			t.Fatalf("claim missing %q: %s", k, out)
		}
	}

	got, err := run(t, out, "verify", "--max-skew", "1m")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, got)
	}
	if !strings.HasPrefix(got, "OK\n") {
		t.Fatalf("unexpected verify output: %q", got)
	}

	tampered := strings.Replace(out, `"alg": "ES256"`, `"alg": "RS256"`, 1)
	if _, err := run(t, tampered, "verify", "-"); err == nil {
		t.Fatal("verify accepted a tampered claim")
	}
}

func TestCall_UnknownMethod(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "--store", "memory", "call", "getAttestation")
	if err == nil {
		t.Fatal("expected error for unimplemented method")
	}
	if !strings.Contains(out, `"notImplemented": true`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestClaim_MissingPassphrase(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "claim")
	if err == nil || !strings.Contains(err.Error(), "CLAIM_ERROR") {
		t.Fatalf("want CLAIM_ERROR, got %v", err)
	}
	if !strings.Contains(out, `"code": "CLAIM_ERROR"`) {
		t.Fatalf("error response not printed: %s", out)
	}
}

func TestFileStoreLifecycle(t *testing.T) {
	tmp := isolate(t)
	home := filepath.Join(tmp, "data")
	base := []string{"--home", home, "-p", "correct horse"}

	out, err := run(t, "", append(base, "cert")...)
	if err != nil || !strings.Contains(out, "No identity") {
		t.Fatalf("cert before init: %v %q", err, out)
	}

	out, err = run(t, "", append(base, "init")...)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Device ID: ") {
		t.Fatalf("unexpected init output: %q", out)
	}
	again, err := run(t, "", append(base, "init")...)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if again != out {
		t.Fatalf("init is not idempotent:\n%s\n%s", out, again)
	}

	out, err = run(t, "", append(base, "cert")...)
	if err != nil || !strings.HasPrefix(out, "-----BEGIN CERTIFICATE-----") {
		t.Fatalf("cert after init: %v %q", err, out)
	}

	if out, err := run(t, "", append(base, "reset")...); err != nil || !strings.Contains(out, "Identity reset.") {
		t.Fatalf("reset: %v %q", err, out)
	}
	out, err = run(t, "", append(base, "cert")...)
	if err != nil || !strings.Contains(out, "No identity") {
		t.Fatalf("cert after reset: %v %q", err, out)
	}
}

func TestConfigWrite(t *testing.T) {
	tmp := isolate(t)
	path := filepath.Join(tmp, "out", "devid.yaml")

	out, err := run(t, "", "--store", "sqlite", "-p", "secret", "config", "write", "--path", path)
	if err != nil {
		t.Fatalf("config write: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = run(t, "", "--config", path, "--home", filepath.Join(tmp, "h"), "-p", "secret", "init")
	if err != nil {
		t.Fatalf("init with written config: %v\n%s", err, out)
	}
}
