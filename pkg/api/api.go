package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-totp/pkg/otp"
)

// Handler defines the contract for a second-factor backend.
// The implementation should return nil on success or an error on failure.
type Handler interface {
	Authenticate(ctx context.Context, username, code string) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, username, code string) error

// Authenticate executes the underlying function.
func (f HandlerFunc) Authenticate(ctx context.Context, username, code string) error {
	return f(ctx, username, code)
}

// BackendName identifies a registered second-factor backend.
type BackendName string

const (
	BackendTOTP    BackendName = "totp"
	BackendScratch BackendName = "scratch"
)

// Backend represents a named second-factor backend.
type Backend struct {
	Name    BackendName
	Handler Handler
}

// Config contains the ordered list of backends the service should attempt.
type Config struct {
	Backends []Backend
}

// Service coordinates second-factor checks across configured backends.
type Service struct {
	backends []Backend
}

var (
	// ErrNoBackends indicates the service was initialised without any backends.
	ErrNoBackends = errors.New("api: no authentication backends configured")
	// ErrBackendNotFound indicates a requested backend name does not exist.
	ErrBackendNotFound = errors.New("api: requested backend not configured")
	// ErrMissingUsername indicates the request does not name a user.
	ErrMissingUsername = errors.New("api: username is required")
	// ErrMissingCode indicates the request does not contain a code.
	ErrMissingCode = errors.New("api: code required")
	// ErrInvalidCode indicates the code was rejected by the backend.
	ErrInvalidCode = errors.New("api: invalid code")
)

// NewService builds a Service from the supplied configuration.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Backends) == 0 {
		return nil, ErrNoBackends
	}

	backends := make([]Backend, 0, len(cfg.Backends))
	seen := map[BackendName]struct{}{}
	for i, b := range cfg.Backends {
		if b.Handler == nil {
			return nil, fmt.Errorf("api: backend at index %d has no handler", i)
		}
		if _, ok := seen[b.Name]; ok {
			return nil, fmt.Errorf("api: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
		backends = append(backends, b)
	}

	return &Service{backends: backends}, nil
}

// Request contains the second-factor code and optional target backend.
type Request struct {
	Backend  BackendName
	Username string
	Code     string
}

// Verify checks the code using the named backend, or each configured
// backend in order until one accepts it.
func (s *Service) Verify(ctx context.Context, req Request) error {
	if s == nil || len(s.backends) == 0 {
		return ErrNoBackends
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Username == "" {
		return ErrMissingUsername
	}
	if strings.TrimSpace(req.Code) == "" {
		return ErrMissingCode
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var targets []Backend
	if req.Backend != "" {
		for _, b := range s.backends {
			if b.Name == req.Backend {
				targets = append(targets, b)
				break
			}
		}
		if len(targets) == 0 {
			return ErrBackendNotFound
		}
	} else {
		targets = s.backends
	}

	var errs []error
	for _, b := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Handler.Authenticate(ctx, req.Username, req.Code); err == nil {
			return nil
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}

	return errors.Join(errs...)
}

// KeyResolver looks up the TOTP secret enrolled for a user.
type KeyResolver interface {
	SecretKey(ctx context.Context, username string) (otp.SecretKey, error)
}

// ScratchResolver looks up the bcrypt hashes of a user's unused scratch codes,
// as produced by otp.HashScratchCode.
type ScratchResolver interface {
	ScratchCodeHashes(ctx context.Context, username string) ([]string, error)
}

type totpAuthorizer interface {
	Authorize(key otp.SecretKey, code int) (bool, error)
}

// TOTP creates a Handler that authorizes a time-based code for the user's
// enrolled secret. It does not remember accepted time steps; callers that
// need replay protection must track them.
func TOTP(auth totpAuthorizer, keys KeyResolver) Handler {
	return HandlerFunc(func(ctx context.Context, username, code string) error {
		n, err := parseCode(code)
		if err != nil {
			return err
		}
		key, err := keys.SecretKey(ctx, username)
		if err != nil {
			return fmt.Errorf("api: resolve secret: %w", err)
		}
		ok, err := auth.Authorize(key, n)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCode
		}
		return nil
	})
}

// ScratchMatch is passed to the callback of ScratchWithCallback when a
// scratch code matches. Index refers to the list the resolver returned and
// may be stale by the time the callback runs; consume by Hash.
type ScratchMatch struct {
	Username string
	Index    int
	Hash     string
}

// Scratch creates a Handler that accepts one of the user's scratch codes.
func Scratch(hashes ScratchResolver) Handler {
	return ScratchWithCallback(hashes, nil)
}

// ScratchWithCallback is Scratch with a hook invoked on a match, typically
// used to mark the code as consumed. An error from used fails the check.
func ScratchWithCallback(hashes ScratchResolver, used func(ctx context.Context, m ScratchMatch) error) Handler {
	return HandlerFunc(func(ctx context.Context, username, code string) error {
		n, err := parseCode(code)
		if err != nil {
			return err
		}
		list, err := hashes.ScratchCodeHashes(ctx, username)
		if err != nil {
			return fmt.Errorf("api: resolve scratch codes: %w", err)
		}
		for i, h := range list {
			if !otp.CompareScratchCode(n, h) {
				continue
			}
			if used != nil {
				if err := used(ctx, ScratchMatch{Username: username, Index: i, Hash: h}); err != nil {
					return err
				}
			}
			return nil
		}
		return ErrInvalidCode
	})
}

// parseCode accepts decimal digits only, with surrounding spaces trimmed.
func parseCode(code string) (int, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ErrMissingCode
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: code must be numeric", ErrInvalidCode)
		}
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	return n, nil
}

var _ totpAuthorizer = (*otp.Authenticator)(nil)
