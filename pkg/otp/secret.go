package otp

import (
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Encoding identifies a text representation of a SecretKey.
type Encoding int

const (
	// EncodingBase32 is RFC 4648 Base32 with padding. It is the canonical
	// form used in provisioning URIs.
	EncodingBase32 Encoding = iota
	// EncodingBase64 is RFC 4648 standard Base64 with padding.
	EncodingBase64
	// EncodingHex is hexadecimal; decoding accepts either case.
	EncodingHex
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingBase32:
		return "base32"
	case EncodingBase64:
		return "base64"
	case EncodingHex:
		return "hex"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// SecretKey is an immutable shared secret.
//
// The bytes are copied in and out so no caller can mutate a key another
// goroutine holds. String and GoString never reveal the key material.
type SecretKey struct {
	value []byte
}

// NewSecretKey creates a SecretKey from a copy of b.
func NewSecretKey(b []byte) (SecretKey, error) {
	if len(b) == 0 {
		return SecretKey{}, fmt.Errorf("%w: key must not be empty", ErrInvalidSecret)
	}
	v := make([]byte, len(b))
	copy(v, b)
	return SecretKey{value: v}, nil
}

// ParseSecretKey decodes s according to enc.
func ParseSecretKey(enc Encoding, s string) (SecretKey, error) {
	var (
		b   []byte
		err error
	)
	switch enc {
	case EncodingBase32:
		b, err = base32.StdEncoding.DecodeString(s)
	case EncodingBase64:
		b, err = base64.StdEncoding.DecodeString(s)
	case EncodingHex:
		b, err = hex.DecodeString(s)
	default:
		return SecretKey{}, fmt.Errorf("%w: unsupported encoding %s", ErrDecode, enc)
	}
	if err != nil {
		return SecretKey{}, fmt.Errorf("%w: %s: %v", ErrDecode, enc, err)
	}
	if len(b) == 0 {
		return SecretKey{}, fmt.Errorf("%w: key must not be empty", ErrInvalidSecret)
	}
	return SecretKey{value: b}, nil
}

// Encode returns the key in the given text representation. Unknown
// encodings yield an empty string.
func (k SecretKey) Encode(enc Encoding) string {
	switch enc {
	case EncodingBase32:
		return base32.StdEncoding.EncodeToString(k.value)
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(k.value)
	case EncodingHex:
		return hex.EncodeToString(k.value)
	}
	return ""
}

// Bytes returns a copy of the key material.
func (k SecretKey) Bytes() []byte {
	b := make([]byte, len(k.value))
	copy(b, k.value)
	return b
}

// Len returns the key length in bytes.
func (k SecretKey) Len() int { return len(k.value) }

// IsZero reports whether k holds no key material.
func (k SecretKey) IsZero() bool { return len(k.value) == 0 }

// Equal reports whether both keys hold the same bytes, in constant time.
func (k SecretKey) Equal(other SecretKey) bool {
	return subtle.ConstantTimeCompare(k.value, other.value) == 1
}

func (k SecretKey) String() string {
	return fmt.Sprintf("otp.SecretKey(%d bytes, redacted)", len(k.value))
}

func (k SecretKey) GoString() string { return k.String() }
