package otp

import (
	"crypto"
	"fmt"
	"time"
)

// Algorithm represents the hash algorithm used for HMAC computation.
type Algorithm string

const (
	// AlgorithmSHA1 uses HMAC-SHA1 (RFC 4226 default, what authenticator apps expect).
	AlgorithmSHA1 Algorithm = "SHA1"
	// AlgorithmSHA256 uses HMAC-SHA256.
	AlgorithmSHA256 Algorithm = "SHA256"
	// AlgorithmSHA512 uses HMAC-SHA512.
	AlgorithmSHA512 Algorithm = "SHA512"
)

// hash maps the algorithm to its crypto.Hash identifier.
func (a Algorithm) hash() (crypto.Hash, bool) {
	switch a {
	case AlgorithmSHA1:
		return crypto.SHA1, true
	case AlgorithmSHA256:
		return crypto.SHA256, true
	case AlgorithmSHA512:
		return crypto.SHA512, true
	}
	return 0, false
}

const (
	// DefaultTimeStep is the RFC 6238 recommended time step.
	DefaultTimeStep = 30 * time.Second
	// DefaultWindowSize is the number of adjacent time steps checked on verification.
	DefaultWindowSize = 3
	// DefaultCodeDigits is the number of digits in a generated code.
	DefaultCodeDigits = 6
	// DefaultSecretBits is the size of a generated secret key. 80 bits encode
	// to exactly 16 Base32 characters.
	DefaultSecretBits = 80
	// DefaultScratchCodes is the number of scratch codes issued with new credentials.
	DefaultScratchCodes = 5
	// DefaultScratchCodeLength is the number of decimal digits of a scratch code.
	DefaultScratchCodeLength = 8

	minCodeDigits        = 6
	maxCodeDigits        = 8
	maxScratchCodeLength = 9
)

// Config holds authenticator configuration.
//
// The zero value is not valid; start from DefaultConfig and override fields.
// Invalid values are reported by Validate and are never adjusted silently.
type Config struct {
	// TimeStep is the duration of one TOTP time step. It must be at least
	// one millisecond since counters are computed on millisecond timestamps.
	TimeStep time.Duration
	// WindowSize is the number of time steps checked around the current
	// one during verification, to tolerate clock skew. Must be >= 1.
	WindowSize int
	// CodeDigits is the number of digits of a code (6, 7 or 8).
	CodeDigits int
	// Algorithm selects the HMAC hash function.
	Algorithm Algorithm
	// SecretBits is the size in bits of generated secret keys. It must be a
	// positive multiple of 8.
	SecretBits int
	// ScratchCodes is the number of scratch codes generated with new credentials.
	ScratchCodes int
	// ScratchCodeLength is the exact number of decimal digits of a scratch code.
	ScratchCodeLength int
}

// DefaultConfig returns the configuration compatible with Google Authenticator.
func DefaultConfig() Config {
	return Config{
		TimeStep:          DefaultTimeStep,
		WindowSize:        DefaultWindowSize,
		CodeDigits:        DefaultCodeDigits,
		Algorithm:         AlgorithmSHA1,
		SecretBits:        DefaultSecretBits,
		ScratchCodes:      DefaultScratchCodes,
		ScratchCodeLength: DefaultScratchCodeLength,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.TimeStep < time.Millisecond {
		return fmt.Errorf("%w: time step must be at least 1ms, got %s", ErrInvalidConfig, c.TimeStep)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.CodeDigits < minCodeDigits || c.CodeDigits > maxCodeDigits {
		return fmt.Errorf("%w: digits must be between %d and %d, got %d",
			ErrInvalidConfig, minCodeDigits, maxCodeDigits, c.CodeDigits)
	}
	if _, ok := c.Algorithm.hash(); !ok {
		return fmt.Errorf("%w: algorithm must be SHA1, SHA256, or SHA512", ErrInvalidConfig)
	}
	if c.SecretBits <= 0 || c.SecretBits%8 != 0 {
		return fmt.Errorf("%w: secret bits must be a positive multiple of 8, got %d", ErrInvalidConfig, c.SecretBits)
	}
	if c.ScratchCodes < 0 {
		return fmt.Errorf("%w: scratch code count must not be negative", ErrInvalidConfig)
	}
	if c.ScratchCodeLength < 1 || c.ScratchCodeLength > maxScratchCodeLength {
		return fmt.Errorf("%w: scratch code length must be between 1 and %d, got %d",
			ErrInvalidConfig, maxScratchCodeLength, c.ScratchCodeLength)
	}
	return nil
}

// KeyModulus returns 10^CodeDigits, the exclusive upper bound of a code.
func (c Config) KeyModulus() int {
	return pow10(c.CodeDigits)
}

// Counter returns the time-step counter for t:
// floor(unix milliseconds / time step milliseconds).
func (c Config) Counter(t time.Time) int64 {
	ms := t.UnixMilli()
	step := c.TimeStep.Milliseconds()
	q := ms / step
	if ms%step != 0 && ms < 0 {
		q--
	}
	return q
}

func (c Config) secretBytes() int {
	return c.SecretBits / 8
}

func pow10(n int) int {
	v := 1
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
