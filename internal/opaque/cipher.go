package opaque

import (
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinKeyLength is the shortest accepted master key.
const MinKeyLength = 32

var ErrKeyTooShort = errors.New("opaque: master key must be at least 32 bytes")

var hkdfInfo = []byte("apiauth/opaque-token/v1")

// deriveAEAD expands the master key and salt into a one-off key and nonce.
// Every salt yields a distinct key, so the nonce never repeats under a key.
func deriveAEAD(masterKey, salt []byte) (cipher.AEAD, []byte, error) {
	if len(masterKey) < MinKeyLength {
		return nil, nil, ErrKeyTooShort
	}

	material := make([]byte, chacha20poly1305.KeySize+chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, salt, hkdfInfo), material); err != nil {
		return nil, nil, fmt.Errorf("opaque: derive key: %w", err)
	}

	aead, err := chacha20poly1305.New(material[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, nil, fmt.Errorf("opaque: create cipher: %w", err)
	}

	return aead, material[chacha20poly1305.KeySize:], nil
}

func seal(masterKey, salt, plaintext []byte) ([]byte, error) {
	aead, nonce, err := deriveAEAD(masterKey, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(salt), len(salt)+len(plaintext)+aead.Overhead())
	copy(out, salt)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

func open(masterKey, salt, sealed []byte) ([]byte, error) {
	aead, nonce, err := deriveAEAD(masterKey, salt)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, sealed, nil)
}
