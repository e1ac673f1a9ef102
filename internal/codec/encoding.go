// Package codec implements the padding-free, URL-safe text encodings used for
// opaque tokens and compact identifiers.
package codec

import "strings"

const invalidSymbol = 0xFF

// Encoding is a binary-to-text encoding over an alphabet of 2^bits symbols.
// Encoding never emits padding. Decoding skips ASCII whitespace anywhere in the
// input and, for encodings that allow it, trailing '=' padding.
type Encoding struct {
	alphabet  string
	decodeMap [256]byte
	bits      uint
	allowPad  bool
}

var (
	// Safe64 is the URL-safe 6-bit encoding (A-Z a-z 0-9 - _). Decoding also
	// accepts '+' and '/' so standard base64 producers interoperate.
	Safe64 = newEncoding(
		"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_",
		6, true,
		map[byte]byte{'+': '-', '/': '_'},
	)

	// Hex32 is the 5-bit encoding with alphabet 0-9 a-v. Decoding accepts upper
	// case letters as well.
	Hex32 = newEncoding(
		"0123456789abcdefghijklmnopqrstuv",
		5, false,
		upperCaseAliases("abcdefghijklmnopqrstuv"),
	)
)

func newEncoding(alphabet string, bits uint, allowPad bool, aliases map[byte]byte) *Encoding {
	if len(alphabet) != 1<<bits {
		panic("codec: alphabet length does not match symbol width")
	}

	e := &Encoding{alphabet: alphabet, bits: bits, allowPad: allowPad}
	for i := range e.decodeMap {
		e.decodeMap[i] = invalidSymbol
	}
	for i := 0; i < len(alphabet); i++ {
		e.decodeMap[alphabet[i]] = byte(i)
	}
	for alias, canonical := range aliases {
		e.decodeMap[alias] = e.decodeMap[canonical]
	}

	return e
}

func upperCaseAliases(lower string) map[byte]byte {
	aliases := make(map[byte]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		aliases[lower[i]-'a'+'A'] = lower[i]
	}
	return aliases
}

// EncodedLen returns the length of the encoding of n source bytes.
func (e *Encoding) EncodedLen(n int) int {
	return (n*8 + int(e.bits) - 1) / int(e.bits)
}

// EncodeToString returns the encoding of src. An empty src yields "".
func (e *Encoding) EncodeToString(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(e.EncodedLen(len(src)))

	mask := uint32(1)<<e.bits - 1
	var acc uint32
	var n uint
	for _, b := range src {
		acc = acc<<8 | uint32(b)
		n += 8
		for n >= e.bits {
			n -= e.bits
			sb.WriteByte(e.alphabet[(acc>>n)&mask])
		}
	}
	if n > 0 {
		sb.WriteByte(e.alphabet[(acc<<(e.bits-n))&mask])
	}

	return sb.String()
}

// DecodeString returns the bytes represented by s. Malformed input yields a
// *FormatError. Use it where bad input means a programming or configuration
// mistake.
func (e *Encoding) DecodeString(s string) ([]byte, error) {
	return e.decode(s)
}

// DecodeStringLenient is DecodeString for untrusted input: any malformation
// yields (nil, false) instead of an error.
func (e *Encoding) DecodeStringLenient(s string) ([]byte, bool) {
	out, err := e.decode(s)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (e *Encoding) decode(s string) ([]byte, error) {
	symbols := make([]byte, 0, len(s))
	padded := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSpace(c) {
			continue
		}
		if c == '=' && e.allowPad {
			padded = true
			continue
		}
		if padded {
			return nil, &FormatError{Offset: i, Err: ErrInvalidCharacter}
		}
		v := e.decodeMap[c]
		if v == invalidSymbol {
			return nil, &FormatError{Offset: i, Err: ErrInvalidCharacter}
		}
		symbols = append(symbols, v)
	}

	total := uint(len(symbols)) * e.bits
	if total%8 >= e.bits {
		return nil, &FormatError{Offset: len(s), Err: ErrInvalidLength}
	}

	out := make([]byte, 0, total/8)
	var acc uint32
	var n uint
	for _, v := range symbols {
		acc = acc<<e.bits | uint32(v)
		n += e.bits
		if n >= 8 {
			n -= 8
			out = append(out, byte(acc>>n))
		}
	}
	// Leftover bits must be zero, otherwise two texts would decode to the same bytes.
	if n > 0 && acc&(1<<n-1) != 0 {
		return nil, &FormatError{Offset: len(s), Err: ErrTrailingBits}
	}

	return out, nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
