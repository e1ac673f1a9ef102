package codec

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID renders a 16-byte identifier as 26 Hex32 symbols. The nil UUID
// renders as "0".
func ShortID(id uuid.UUID) string {
	if id == uuid.Nil {
		return "0"
	}
	return Hex32.EncodeToString(id[:])
}

// ParseShortID accepts the ShortID form, canonical UUID text or "0".
func ParseShortID(s string) (uuid.UUID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, false
	}
	if s == "0" {
		return uuid.Nil, true
	}
	if id, err := uuid.Parse(s); err == nil {
		return id, true
	}

	b, ok := Hex32.DecodeStringLenient(s)
	if !ok || len(b) != 16 {
		return uuid.Nil, false
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
