package vault

import (
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"cognical/internal/apperr"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	store := map[string]string{}
	v := New("/tmp/test/cognical.db")
	v.getSecret = func(service, account string) (string, error) {
		s, ok := store[service+"/"+account]
		if !ok {
			return "", keyring.ErrNotFound
		}
		return s, nil
	}
	v.setSecret = func(service, account, secret string) error {
		store[service+"/"+account] = secret
		return nil
	}
	v.deleteSecret = func(service, account string) error {
		key := service + "/" + account
		if _, ok := store[key]; !ok {
			return keyring.ErrNotFound
		}
		delete(store, key)
		return nil
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	first, err := v.Encrypt("sk-abc")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := v.Encrypt("sk-abc")
	if err != nil {
		t.Fatalf("encrypt again: %v", err)
	}
	if first == second {
		t.Fatalf("identical plaintexts produced identical ciphertexts")
	}
	if !strings.HasPrefix(first, "v1:") {
		t.Fatalf("missing version prefix: %q", first)
	}
	for _, ct := range []string{first, second} {
		plain, err := v.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if plain != "sk-abc" {
			t.Fatalf("round trip got %q", plain)
		}
	}
}

func TestDecryptAfterRotationFails(t *testing.T) {
	v := newTestVault(t)
	ct, err := v.Encrypt("sk-abc")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := v.ClearMasterSecret(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	// clearing twice is idempotent
	if err := v.ClearMasterSecret(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	_, err = v.Decrypt(ct)
	if err == nil {
		t.Fatalf("decrypt under rotated master succeeded")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindCrypto {
		t.Fatalf("expected crypto error, got %v", err)
	}
}

func TestDecryptRejectsUnknownPrefix(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Decrypt("v2:AAAA")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindFormat {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	master := make([]byte, masterLen)
	if _, err := rand.Read(master); err != nil {
		t.Fatal(err)
	}
	ct, err := encryptWithMaster(master, "payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	// flip one character inside the base64 body
	body := []byte(ct)
	i := len(body) - 2
	if body[i] == 'A' {
		body[i] = 'B'
	} else {
		body[i] = 'A'
	}
	if _, err := decryptWithMaster(master, string(body)); err == nil {
		t.Fatalf("tampered ciphertext decrypted")
	}
}

func TestAccountDerivationIsStable(t *testing.T) {
	a := accountFor("/home/u/.cognical/cognical.db")
	b := accountFor("/home/u/.cognical/cognical.db")
	c := accountFor("/elsewhere/cognical.db")
	if a != b {
		t.Fatalf("same path produced different accounts: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different paths share an account")
	}
	if !strings.HasPrefix(a, "cognical-") {
		t.Fatalf("unexpected account format %q", a)
	}
}
