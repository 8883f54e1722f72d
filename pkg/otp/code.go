package otp

import (
	"crypto/hmac"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/binary"
	"fmt"
)

// GenerateCode computes the RFC 4226 HOTP value of key at counter, reduced
// to cfg.CodeDigits digits with cfg.Algorithm as the HMAC hash.
//
// The result is in [0, cfg.KeyModulus()). It is a pure function of its inputs.
func GenerateCode(key []byte, counter uint64, cfg Config) (int, error) {
	h, ok := cfg.Algorithm.hash()
	if !ok || !h.Available() {
		return 0, fmt.Errorf("%w: HMAC-%s", ErrAlgorithmUnavailable, cfg.Algorithm)
	}
	if len(key) == 0 {
		return 0, fmt.Errorf("%w: key must not be empty", ErrInvalidSecret)
	}
	if cfg.CodeDigits < minCodeDigits || cfg.CodeDigits > maxCodeDigits {
		return 0, fmt.Errorf("%w: digits must be between %d and %d, got %d",
			ErrInvalidConfig, minCodeDigits, maxCodeDigits, cfg.CodeDigits)
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(h.New, key)
	mac.Write(msg[:])
	digest := mac.Sum(nil)

	return truncate(digest) % cfg.KeyModulus(), nil
}

// truncate performs RFC 4226 dynamic truncation: the low nibble of the last
// byte selects four bytes, read big-endian with the sign bit cleared.
func truncate(digest []byte) int {
	offset := digest[len(digest)-1] & 0x0f
	return int(binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7fffffff)
}
