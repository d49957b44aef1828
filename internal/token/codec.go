package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec encrypts refresh tokens at rest. An empty key yields a passthrough
// codec for local development.
type Codec struct {
	key []byte
}

func NewCodec(hexKey string) (*Codec, error) {
	if hexKey == "" {
		return &Codec{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("token key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Codec{key: key}, nil
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c.key == nil {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if c.key == nil {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode stored token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("stored token too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt stored token: %w", err)
	}
	return string(plain), nil
}
