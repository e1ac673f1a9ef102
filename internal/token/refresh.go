package token

import (
	"io"

	"github.com/dtroode/apiauth-server/internal/codec"
)

// refreshTokenBytes is the amount of randomness in a refresh token.
const refreshTokenBytes = 128

func newRefreshToken(random io.Reader) (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(random, b); err != nil {
		return "", err
	}
	return codec.Safe64.EncodeToString(b), nil
}
