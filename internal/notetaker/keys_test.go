package notetaker

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func testCipher(t *testing.T) *KeyCipher {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	kc, err := NewKeyCipher(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatal(err)
	}
	return kc
}

func TestKeyCipherRoundTrip(t *testing.T) {
	kc := testCipher(t)

	const secret = "fathom-api-key-123"
	sealed, err := kc.Encrypt(secret)
	if err != nil {
		t.Fatal(err)
	}
	if sealed == secret {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := kc.Decrypt(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if got != secret {
		t.Errorf("Decrypt = %q, want %q", got, secret)
	}

	// Two encryptions of the same plaintext must differ (random nonce).
	sealed2, err := kc.Encrypt(secret)
	if err != nil {
		t.Fatal(err)
	}
	if sealed == sealed2 {
		t.Error("nonce reuse: identical ciphertexts")
	}
}

func TestKeyCipherWrongKey(t *testing.T) {
	kc1 := testCipher(t)
	kc2 := testCipher(t)

	sealed, err := kc1.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := kc2.Decrypt(sealed); err == nil {
		t.Error("expected authentication failure with wrong key")
	}
}

func TestNewKeyCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewKeyCipher("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewKeyCipher(short); err == nil {
		t.Error("expected error for short key")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	kc := testCipher(t)
	if _, err := kc.Decrypt(base64.StdEncoding.EncodeToString([]byte("xx"))); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}
