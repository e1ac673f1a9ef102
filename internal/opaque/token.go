// Package opaque implements the encrypted identifier blob carried inside
// access tokens. The blob is opaque to clients: it is the salt followed by the
// sealed 32-byte payload, rendered with codec.Safe64.
package opaque

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/codec"
)

const (
	// SaltLength is the number of random bytes prefixed to every sealed payload.
	SaltLength = 16
	// PayloadLength is the size of the plaintext: token id followed by the
	// reserved field.
	PayloadLength = 32
)

// Token identifies a server-side token record.
type Token struct {
	ID uuid.UUID
	// Reserved is written as zeros and not interpreted on parse. It used to
	// hold a group id.
	Reserved [16]byte
}

// Issue mints a token with a fresh random identifier.
func Issue() Token {
	return Token{ID: uuid.New()}
}

// New wraps an existing identifier.
func New(id uuid.UUID) Token {
	return Token{ID: id}
}

// String returns the compact form of the token id, safe for logs.
func (t Token) String() string {
	return codec.ShortID(t.ID)
}

func (t Token) payload() []byte {
	b := make([]byte, PayloadLength)
	copy(b, t.ID[:])
	copy(b[len(t.ID):], t.Reserved[:])
	return b
}

// Serialize seals t under masterKey using a fresh random salt. It reports
// false when sealing is impossible, e.g. the key is misconfigured.
func Serialize(masterKey []byte, t Token) (string, bool) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", false
	}

	sealed, err := seal(masterKey, salt, t.payload())
	if err != nil {
		return "", false
	}

	return codec.Safe64.EncodeToString(sealed), true
}

// Parse opens text produced by Serialize. Any malformed, truncated, tampered
// or foreign input yields false.
func Parse(masterKey []byte, text string) (Token, bool) {
	raw, ok := codec.Safe64.DecodeStringLenient(text)
	if !ok || len(raw) <= SaltLength {
		return Token{}, false
	}

	plain, err := open(masterKey, raw[:SaltLength], raw[SaltLength:])
	if err != nil || len(plain) != PayloadLength {
		return Token{}, false
	}

	var t Token
	copy(t.ID[:], plain[:16])
	copy(t.Reserved[:], plain[16:])
	return t, true
}

// Codec binds Serialize and Parse to a master key loaded at startup.
type Codec struct {
	key []byte
}

// NewCodec validates masterKey and returns a Codec holding a private copy.
func NewCodec(masterKey []byte) (*Codec, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	return &Codec{key: key}, nil
}

// Serialize seals t under the codec key.
func (c *Codec) Serialize(t Token) (string, bool) {
	return Serialize(c.key, t)
}

// Parse opens text under the codec key.
func (c *Codec) Parse(text string) (Token, bool) {
	return Parse(c.key, text)
}
