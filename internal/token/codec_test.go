package token

import (
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCodecRoundTrip(t *testing.T) {
	c, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	secret := "1//refresh-token-value"
	sealed, err := c.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == secret {
		t.Error("ciphertext must differ from plaintext")
	}
	if strings.Contains(sealed, secret) {
		t.Error("ciphertext must not leak the plaintext")
	}

	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != secret {
		t.Errorf("round trip mismatch: %q", plain)
	}
}

func TestCodecNonceVaries(t *testing.T) {
	c, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	a, _ := c.Encrypt("same secret")
	b, _ := c.Encrypt("same secret")
	if a == b {
		t.Error("two encryptions of the same value must not be identical")
	}
}

func TestCodecPassthrough(t *testing.T) {
	c, err := NewCodec("")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	sealed, err := c.Encrypt("plain")
	if err != nil || sealed != "plain" {
		t.Errorf("empty key must pass through, got %q, %v", sealed, err)
	}
	plain, err := c.Decrypt("plain")
	if err != nil || plain != "plain" {
		t.Errorf("empty key must pass through, got %q, %v", plain, err)
	}
}

func TestCodecRejectsBadKeys(t *testing.T) {
	if _, err := NewCodec("nothex"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := NewCodec("0011"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestCodecRejectsTampering(t *testing.T) {
	c, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	sealed, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := c.Decrypt("not base64!!"); err == nil {
		t.Error("expected error for malformed ciphertext")
	}
	if _, err := c.Decrypt("AAAA"); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
	// Flip one character of valid ciphertext.
	tampered := []byte(sealed)
	if tampered[10] == 'A' {
		tampered[10] = 'B'
	} else {
		tampered[10] = 'A'
	}
	if _, err := c.Decrypt(string(tampered)); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}
