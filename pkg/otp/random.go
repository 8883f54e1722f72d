package otp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/chacha20"
)

// DefaultReseedThreshold is the number of draws served by one generator
// before it is replaced with a freshly keyed one.
const DefaultReseedThreshold = 1_000_000

// RandomSource is a cryptographically secure byte source that rekeys
// itself after a fixed number of draws.
//
// Each generator is a ChaCha20 keystream keyed from the entropy reader.
// Draws take a unique nonce from an atomic counter and never lock; only
// the replacement of an exhausted generator is serialized.
//
// A RandomSource is safe for concurrent use. Create one and share it.
type RandomSource struct {
	entropy   io.Reader
	threshold int64

	ops     atomic.Int64
	gen     atomic.Pointer[generator]
	reseeds atomic.Int64
	mu      sync.Mutex
}

// RandomOption configures a RandomSource.
type RandomOption func(*RandomSource)

// WithEntropy sets the reader used to key each generator. Defaults to crypto/rand.Reader.
func WithEntropy(r io.Reader) RandomOption {
	return func(s *RandomSource) {
		s.entropy = r
	}
}

// WithReseedThreshold sets how many draws a generator serves before it is replaced.
func WithReseedThreshold(n int64) RandomOption {
	return func(s *RandomSource) {
		s.threshold = n
	}
}

// NewRandomSource creates a RandomSource and keys its first generator.
// It fails with ErrAlgorithmUnavailable when no entropy can be read.
func NewRandomSource(opts ...RandomOption) (*RandomSource, error) {
	s := &RandomSource{
		entropy:   rand.Reader,
		threshold: DefaultReseedThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.entropy == nil {
		return nil, fmt.Errorf("%w: entropy reader is nil", ErrInvalidConfig)
	}
	if s.threshold <= 0 {
		return nil, fmt.Errorf("%w: reseed threshold must be positive, got %d", ErrInvalidConfig, s.threshold)
	}

	g, err := newGenerator(s.entropy)
	if err != nil {
		return nil, err
	}
	s.gen.Store(g)
	return s, nil
}

// NextBytes returns n random bytes.
func (s *RandomSource) NextBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("otp: negative random length %d", n)
	}
	b := make([]byte, n)
	if _, err := s.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Read fills p with random bytes. It implements io.Reader and always
// fills p completely unless an error is returned.
func (s *RandomSource) Read(p []byte) (int, error) {
	if s.ops.Add(1) > s.threshold {
		if err := s.reseed(); err != nil {
			return 0, err
		}
	}
	s.gen.Load().fill(p)
	return len(p), nil
}

// reseed swaps in a new generator. Many goroutines may cross the threshold
// together; the second check under the lock lets only the first one swap.
func (s *RandomSource) reseed() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ops.Load() <= s.threshold {
		return nil
	}
	g, err := newGenerator(s.entropy)
	if err != nil {
		return err
	}
	s.gen.Store(g)
	s.ops.Store(0)
	s.reseeds.Add(1)
	return nil
}

type generator struct {
	key   [chacha20.KeySize]byte
	draws atomic.Uint64
}

func newGenerator(entropy io.Reader) (*generator, error) {
	g := &generator{}
	if _, err := io.ReadFull(entropy, g.key[:]); err != nil {
		return nil, fmt.Errorf("%w: secure random source: %v", ErrAlgorithmUnavailable, err)
	}
	return g, nil
}

func (g *generator) fill(p []byte) {
	var nonce [chacha20.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[chacha20.NonceSize-8:], g.draws.Add(1))

	c, err := chacha20.NewUnauthenticatedCipher(g.key[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed above.
		panic("otp: chacha20: " + err.Error())
	}
	clear(p)
	c.XORKeyStream(p, p)
}
