// Package password hashes and verifies user passwords with Argon2id.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/dtroode/apiauth-server/internal/codec"
)

// Argon2id parameters of newly created hashes.
const (
	Memory      uint32 = 16384
	Time        uint32 = 2
	Parallelism uint8  = 2
	KeyLen      uint32 = 32
	SaltLen            = 16
)

const prefix = "$argon2id$v=19$"

// ErrMalformedHash is returned for a stored hash that cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// Hash returns an encoded Argon2id hash of password in the form
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<key>.
func Hash(password string) (string, error) {
	return hashWith(rand.Reader, password)
}

func hashWith(random io.Reader, password string) (string, error) {
	salt := make([]byte, SaltLen)
	if _, err := io.ReadFull(random, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, Time, Memory, Parallelism, KeyLen)

	return fmt.Sprintf("%sm=%d,t=%d,p=%d$%s$%s", prefix, Memory, Time, Parallelism,
		codec.Safe64.EncodeToString(salt), codec.Safe64.EncodeToString(key)), nil
}

// Verify reports whether password matches encoded. The parameters stored in
// encoded are used, so hashes made with older settings keep working.
func Verify(encoded, password string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decode(encoded string) (params, error) {
	rest, ok := strings.CutPrefix(encoded, prefix)
	if !ok {
		return params{}, ErrMalformedHash
	}

	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return params{}, ErrMalformedHash
	}

	var p params
	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return params{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return params{}, ErrMalformedHash
	}

	var err error
	if p.salt, err = codec.Safe64.DecodeString(parts[1]); err != nil || len(p.salt) == 0 {
		return params{}, ErrMalformedHash
	}
	if p.key, err = codec.Safe64.DecodeString(parts[2]); err != nil || len(p.key) == 0 {
		return params{}, ErrMalformedHash
	}

	return p, nil
}
