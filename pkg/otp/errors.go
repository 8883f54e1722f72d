package otp

import "errors"

var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("otp: invalid configuration")

	// ErrInvalidSecret indicates the secret key material is unusable (for example empty).
	ErrInvalidSecret = errors.New("otp: invalid secret key")

	// ErrDecode indicates a secret key could not be decoded from its text form.
	ErrDecode = errors.New("otp: malformed secret key encoding")

	// ErrAlgorithmUnavailable indicates the runtime cannot provide a required
	// HMAC or secure random primitive. It is an environment fault, not bad
	// input, and retrying will not help.
	ErrAlgorithmUnavailable = errors.New("otp: algorithm unavailable")

	// ErrNilAuthenticator indicates a nil authenticator was used.
	ErrNilAuthenticator = errors.New("otp: authenticator is nil")
)
