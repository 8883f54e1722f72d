package otp

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bytesPerScratchCode is the number of random bytes consumed per code.
	bytesPerScratchCode = 4

	// maxScratchRedraws bounds the redraws for one slot. Each draw is
	// rejected with probability of roughly 1/10, so hitting this limit means
	// the random source is broken.
	maxScratchRedraws = 64

	scratchHashCost = bcrypt.DefaultCost
)

// ScratchCodeGenerator derives fixed-length decimal recovery codes from
// random bytes.
type ScratchCodeGenerator struct {
	count   int
	length  int
	modulus int
	source  io.Reader
}

// NewScratchCodeGenerator returns a generator for count codes of exactly
// length digits. Replacement draws are read from source, normally the
// authenticator's RandomSource.
func NewScratchCodeGenerator(count, length int, source io.Reader) (*ScratchCodeGenerator, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: scratch code count must not be negative", ErrInvalidConfig)
	}
	if length < 1 || length > maxScratchCodeLength {
		return nil, fmt.Errorf("%w: scratch code length must be between 1 and %d, got %d",
			ErrInvalidConfig, maxScratchCodeLength, length)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: random source is nil", ErrInvalidConfig)
	}
	return &ScratchCodeGenerator{
		count:   count,
		length:  length,
		modulus: pow10(length),
		source:  source,
	}, nil
}

// BufferSize returns the number of bytes FromBuffer consumes.
func (g *ScratchCodeGenerator) BufferSize() int {
	return g.count * bytesPerScratchCode
}

// Generate draws a fresh buffer and derives a full set of scratch codes.
func (g *ScratchCodeGenerator) Generate() ([]int, error) {
	buf := make([]byte, g.BufferSize())
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return nil, fmt.Errorf("otp: read scratch code entropy: %w", err)
	}
	return g.FromBuffer(buf)
}

// FromBuffer derives the scratch codes from buf, one 4-byte chunk per code.
// A chunk that yields too few digits is discarded and replaced by a new
// draw from the random source, never by further bytes of buf.
func (g *ScratchCodeGenerator) FromBuffer(buf []byte) ([]int, error) {
	if len(buf) < g.BufferSize() {
		return nil, fmt.Errorf("otp: scratch code buffer too small: need %d bytes, got %d", g.BufferSize(), len(buf))
	}

	codes := make([]int, 0, g.count)
	for i := 0; i < g.count; i++ {
		chunk := buf[i*bytesPerScratchCode : (i+1)*bytesPerScratchCode]
		if code, ok := g.fromChunk(chunk); ok {
			codes = append(codes, code)
			continue
		}
		code, err := g.redraw()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func (g *ScratchCodeGenerator) redraw() (int, error) {
	var chunk [bytesPerScratchCode]byte
	for attempt := 0; attempt < maxScratchRedraws; attempt++ {
		if _, err := io.ReadFull(g.source, chunk[:]); err != nil {
			return 0, fmt.Errorf("otp: read scratch code entropy: %w", err)
		}
		if code, ok := g.fromChunk(chunk[:]); ok {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: random source produced %d unusable scratch code draws in a row",
		ErrAlgorithmUnavailable, maxScratchRedraws)
}

func (g *ScratchCodeGenerator) fromChunk(chunk []byte) (int, bool) {
	code := int(binary.BigEndian.Uint32(chunk)&0x7fffffff) % g.modulus
	return code, code >= g.modulus/10
}

// ValidScratchCode reports whether code has exactly length decimal digits.
func ValidScratchCode(code, length int) bool {
	if length < 1 || length > maxScratchCodeLength {
		return false
	}
	m := pow10(length)
	return code >= m/10 && code < m
}

// HashScratchCode returns a bcrypt hash of code suitable for storage.
func HashScratchCode(code int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strconv.Itoa(code)), scratchHashCost)
	if err != nil {
		return "", fmt.Errorf("otp: hash scratch code: %w", err)
	}
	return string(hash), nil
}

// CompareScratchCode reports whether code matches a hash produced by HashScratchCode.
func CompareScratchCode(code int, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strconv.Itoa(code))) == nil
}
