package otp

import (
	"crypto/subtle"
	"time"
)

// Credentials is a freshly enrolled secret with its informational
// verification code and recovery codes. Persisting it is the caller's job.
type Credentials struct {
	// SecretKey is the shared secret to register on the user's device.
	SecretKey SecretKey
	// VerificationCode is the code at time step 0 (the UNIX epoch). It is
	// meant for display during enrollment and is never used to authorize.
	VerificationCode int
	// ScratchCodes are single-use recovery codes.
	ScratchCodes []int
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithRandomSource shares an existing RandomSource with the authenticator.
func WithRandomSource(src *RandomSource) Option {
	return func(a *Authenticator) {
		a.random = src
	}
}

// WithClock sets the clock used by the methods that work on the current time.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// Authenticator creates and verifies time-based one-time passwords.
// It holds no mutable state of its own and is safe for concurrent use.
type Authenticator struct {
	cfg     Config
	random  *RandomSource
	scratch *ScratchCodeGenerator
	now     func() time.Time
}

// NewAuthenticator creates a new TOTP authenticator.
// The configuration is validated and an error is returned if invalid.
// A RandomSource is created unless one is supplied with WithRandomSource.
func NewAuthenticator(cfg Config, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Authenticator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.random == nil {
		src, err := NewRandomSource()
		if err != nil {
			return nil, err
		}
		a.random = src
	}

	scratch, err := NewScratchCodeGenerator(cfg.ScratchCodes, cfg.ScratchCodeLength, a.random)
	if err != nil {
		return nil, err
	}
	a.scratch = scratch
	return a, nil
}

// Config returns a copy of the authenticator configuration.
func (a *Authenticator) Config() Config {
	return a.cfg
}

// CreateCredentials generates a new secret key, its verification code at
// time step 0 and a set of scratch codes, all from a single random buffer.
func (a *Authenticator) CreateCredentials() (Credentials, error) {
	if a == nil {
		return Credentials{}, ErrNilAuthenticator
	}

	secretLen := a.cfg.secretBytes()
	buf, err := a.random.NextBytes(secretLen + a.scratch.BufferSize())
	if err != nil {
		return Credentials{}, err
	}
	defer clear(buf)

	key, err := NewSecretKey(buf[:secretLen])
	if err != nil {
		return Credentials{}, err
	}
	code, err := GenerateCode(key.value, 0, a.cfg)
	if err != nil {
		return Credentials{}, err
	}
	scratch, err := a.scratch.FromBuffer(buf[secretLen:])
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		SecretKey:        key,
		VerificationCode: code,
		ScratchCodes:     scratch,
	}, nil
}

// GenerateScratchCodes returns a new set of scratch codes without touching
// the secret key.
func (a *Authenticator) GenerateScratchCodes() ([]int, error) {
	if a == nil {
		return nil, ErrNilAuthenticator
	}
	return a.scratch.Generate()
}

// CreateOneTimePassword returns the code of key for the current time.
func (a *Authenticator) CreateOneTimePassword(key SecretKey) (int, error) {
	if a == nil {
		return 0, ErrNilAuthenticator
	}
	return a.CreateOneTimePasswordAt(key, a.now())
}

// CreateOneTimePasswordAt returns the code of key for the time step containing t.
func (a *Authenticator) CreateOneTimePasswordAt(key SecretKey, t time.Time) (int, error) {
	if a == nil {
		return 0, ErrNilAuthenticator
	}
	return GenerateCode(key.value, uint64(a.cfg.Counter(t)), a.cfg)
}

// Authorize checks code against key at the current time.
func (a *Authenticator) Authorize(key SecretKey, code int) (bool, error) {
	if a == nil {
		return false, ErrNilAuthenticator
	}
	return a.AuthorizeAt(key, code, a.now())
}

// AuthorizeAt checks code against key at time t, accepting any time step
// in the window around t. For a window size w the offsets
// -((w-1)/2) through w/2 are tried in ascending order, so an even window
// tolerates one more step of a client clock running ahead.
//
// Codes outside [1, KeyModulus) are rejected without computing an HMAC.
// A non-matching code is reported as false, not as an error; errors only
// signal a broken environment or an empty key.
func (a *Authenticator) AuthorizeAt(key SecretKey, code int, t time.Time) (bool, error) {
	if a == nil {
		return false, ErrNilAuthenticator
	}
	if code <= 0 || code >= a.cfg.KeyModulus() {
		return false, nil
	}

	counter := a.cfg.Counter(t)
	start := -((a.cfg.WindowSize - 1) / 2)
	end := a.cfg.WindowSize / 2
	for i := start; i <= end; i++ {
		want, err := GenerateCode(key.value, uint64(counter+int64(i)), a.cfg)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeEq(int32(want), int32(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}
