package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-totp/pkg/otp"
)

type stubHandler struct {
	err      error
	calls    int
	username string
	code     string
}

func (s *stubHandler) Authenticate(ctx context.Context, username, code string) error {
	s.calls++
	s.username = username
	s.code = code
	return s.err
}

func TestVerifySuccessFirstBackend(t *testing.T) {
	first := &stubHandler{err: nil}
	second := &stubHandler{err: errors.New("should not be called")}

	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: first}, {Name: BackendScratch, Handler: second}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	req := Request{Username: "user", Code: "123456"}
	if err := svc.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if first.calls != 1 {
		t.Fatalf("expected first backend to be called once, got %d", first.calls)
	}
	if second.calls != 0 {
		t.Fatalf("expected second backend not to be called, got %d", second.calls)
	}
	if first.username != "user" || first.code != "123456" {
		t.Fatalf("request not forwarded: %+v", first)
	}
}

func TestVerifyFallbackOnFailure(t *testing.T) {
	first := &stubHandler{err: errors.New("failure")}
	second := &stubHandler{}
	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: first}, {Name: BackendScratch, Handler: second}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	if err := svc.Verify(context.Background(), Request{Username: "user", Code: "12345678"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("unexpected call counts: first=%d second=%d", first.calls, second.calls)
	}
}

func TestVerifyPreferredBackend(t *testing.T) {
	first := &stubHandler{err: errors.New("failure")}
	second := &stubHandler{}
	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: first}, {Name: BackendScratch, Handler: second}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	if err := svc.Verify(context.Background(), Request{Backend: BackendScratch, Username: "user", Code: "12345678"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if first.calls != 0 || second.calls != 1 {
		t.Fatalf("unexpected call counts: first=%d second=%d", first.calls, second.calls)
	}
}

func TestVerifyUnknownBackend(t *testing.T) {
	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: &stubHandler{}}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	err = svc.Verify(context.Background(), Request{Backend: BackendScratch, Username: "user", Code: "1"})
	if !errors.Is(err, ErrBackendNotFound) {
		t.Fatalf("expected ErrBackendNotFound, got %v", err)
	}
}

func TestVerifyAggregatesErrors(t *testing.T) {
	first := &stubHandler{err: errors.New("failure one")}
	second := &stubHandler{err: ErrInvalidCode}
	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: first}, {Name: BackendScratch, Handler: second}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	err = svc.Verify(context.Background(), Request{Username: "user", Code: "123456"})
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	for _, backend := range []BackendName{BackendTOTP, BackendScratch} {
		if !strings.Contains(err.Error(), string(backend)) {
			t.Fatalf("expected error to contain backend %s", backend)
		}
	}
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected joined error to wrap ErrInvalidCode, got %v", err)
	}
}

func TestVerifyNoBackends(t *testing.T) {
	svc := &Service{}
	if err := svc.Verify(context.Background(), Request{Username: "user", Code: "123456"}); !errors.Is(err, ErrNoBackends) {
		t.Fatalf("expected ErrNoBackends, got %v", err)
	}
	if _, err := NewService(Config{}); !errors.Is(err, ErrNoBackends) {
		t.Fatalf("expected ErrNoBackends, got %v", err)
	}
}

func TestNewServiceRejectsBadBackends(t *testing.T) {
	if _, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP}}}); err == nil {
		t.Fatal("expected error for backend without handler")
	}
	dup := []Backend{{Name: BackendTOTP, Handler: &stubHandler{}}, {Name: BackendTOTP, Handler: &stubHandler{}}}
	if _, err := NewService(Config{Backends: dup}); err == nil {
		t.Fatal("expected error for duplicate backend name")
	}
}

func TestVerifyContextCancellation(t *testing.T) {
	handler := &stubHandler{err: context.DeadlineExceeded}
	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: handler}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Verify(ctx, Request{Username: "user", Code: "123456"}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("expected no backend call after cancellation, got %d", handler.calls)
	}
}

func TestValidationErrors(t *testing.T) {
	svc, err := NewService(Config{Backends: []Backend{{Name: BackendTOTP, Handler: &stubHandler{}}}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	if err := svc.Verify(context.Background(), Request{Code: "123456"}); !errors.Is(err, ErrMissingUsername) {
		t.Fatalf("expected ErrMissingUsername, got %v", err)
	}
	if err := svc.Verify(context.Background(), Request{Username: "user", Code: "  "}); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected ErrMissingCode, got %v", err)
	}
}

type mapKeys map[string]otp.SecretKey

func (m mapKeys) SecretKey(ctx context.Context, username string) (otp.SecretKey, error) {
	key, ok := m[username]
	if !ok {
		return otp.SecretKey{}, errors.New("unknown user")
	}
	return key, nil
}

type mapScratch map[string][]string

func (m mapScratch) ScratchCodeHashes(ctx context.Context, username string) ([]string, error) {
	hashes, ok := m[username]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return hashes, nil
}

func TestTOTPHandler(t *testing.T) {
	key, err := otp.NewSecretKey([]byte("12345678901234567890"))
	if err != nil {
		t.Fatalf("NewSecretKey error: %v", err)
	}
	// Time step 1 of the RFC 4226 seed yields 287082.
	now := time.Unix(45, 0)
	auth, err := otp.NewAuthenticator(otp.DefaultConfig(), otp.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewAuthenticator error: %v", err)
	}
	handler := TOTP(auth, mapKeys{"alice": key})

	tests := []struct {
		name     string
		username string
		code     string
		wantErr  error
		anyErr   bool
	}{
		{name: "valid code", username: "alice", code: "287082"},
		{name: "valid code with spaces", username: "alice", code: " 287082 "},
		{name: "adjacent step", username: "alice", code: "359152"},
		{name: "wrong code", username: "alice", code: "111111", wantErr: ErrInvalidCode},
		{name: "zero code", username: "alice", code: "000000", wantErr: ErrInvalidCode},
		{name: "non numeric", username: "alice", code: "28708a", wantErr: ErrInvalidCode},
		{name: "signed", username: "alice", code: "+287082", wantErr: ErrInvalidCode},
		{name: "empty", username: "alice", code: "", wantErr: ErrMissingCode},
		{name: "unknown user", username: "bob", code: "287082", anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Authenticate(context.Background(), tt.username, tt.code)
			switch {
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error")
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestScratchHandler(t *testing.T) {
	codes := []int{12345678, 87654321}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		h, err := otp.HashScratchCode(c)
		if err != nil {
			t.Fatalf("HashScratchCode error: %v", err)
		}
		hashes[i] = h
	}

	var matched []ScratchMatch
	handler := ScratchWithCallback(mapScratch{"alice": hashes}, func(ctx context.Context, m ScratchMatch) error {
		matched = append(matched, m)
		return nil
	})

	if err := handler.Authenticate(context.Background(), "alice", strconv.Itoa(codes[1])); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matched) != 1 || matched[0].Index != 1 || matched[0].Username != "alice" || matched[0].Hash != hashes[1] {
		t.Fatalf("unexpected matches %+v", matched)
	}
	if err := handler.Authenticate(context.Background(), "alice", "11111111"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if err := handler.Authenticate(context.Background(), "bob", "12345678"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestScratchHandlerCallbackError(t *testing.T) {
	h, err := otp.HashScratchCode(12345678)
	if err != nil {
		t.Fatalf("HashScratchCode error: %v", err)
	}
	consumeErr := errors.New("already used")
	handler := ScratchWithCallback(mapScratch{"alice": {h}}, func(ctx context.Context, m ScratchMatch) error {
		return consumeErr
	})
	if err := handler.Authenticate(context.Background(), "alice", "12345678"); !errors.Is(err, consumeErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := Scratch(mapScratch{"alice": {h}}).Authenticate(context.Background(), "alice", "12345678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// consumingStore hands out snapshots of the hash list and removes consumed
// codes by hash, like a store backing ScratchWithCallback would.
type consumingStore struct {
	mu     sync.Mutex
	hashes []string
}

func (s *consumingStore) ScratchCodeHashes(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hashes...), nil
}

func (s *consumingStore) consume(_ context.Context, m ScratchMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.hashes {
		if h == m.Hash {
			s.hashes = append(s.hashes[:i:i], s.hashes[i+1:]...)
			return nil
		}
	}
	return ErrInvalidCode
}

func TestScratchHandlerConcurrentConsume(t *testing.T) {
	codes := []int{11111111, 22222222, 33333333}
	store := &consumingStore{}
	for _, c := range codes {
		h, err := otp.HashScratchCode(c)
		if err != nil {
			t.Fatalf("HashScratchCode error: %v", err)
		}
		store.hashes = append(store.hashes, h)
	}
	handler := ScratchWithCallback(store, store.consume)

	// Every goroutine sees the full list, so the indexes it matches are
	// stale once another code has been removed.
	var wg sync.WaitGroup
	errs := make([]error, len(codes))
	for i, c := range codes {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = handler.Authenticate(context.Background(), "alice", strconv.Itoa(c))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("code %d rejected: %v", codes[i], err)
		}
	}
	if len(store.hashes) != 0 {
		t.Fatalf("expected all codes consumed, %d left", len(store.hashes))
	}
	for _, c := range codes {
		if err := handler.Authenticate(context.Background(), "alice", strconv.Itoa(c)); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected reused code %d to be rejected, got %v", c, err)
		}
	}
}

func TestServiceWithOTPBackends(t *testing.T) {
	auth, err := otp.NewAuthenticator(otp.DefaultConfig())
	if err != nil {
		t.Fatalf("NewAuthenticator error: %v", err)
	}
	creds, err := auth.CreateCredentials()
	if err != nil {
		t.Fatalf("CreateCredentials error: %v", err)
	}
	hash, err := otp.HashScratchCode(creds.ScratchCodes[0])
	if err != nil {
		t.Fatalf("HashScratchCode error: %v", err)
	}

	svc, err := NewService(Config{Backends: []Backend{
		{Name: BackendTOTP, Handler: TOTP(auth, mapKeys{"alice": creds.SecretKey})},
		{Name: BackendScratch, Handler: Scratch(mapScratch{"alice": {hash}})},
	}})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	code, err := auth.CreateOneTimePassword(creds.SecretKey)
	if err != nil {
		t.Fatalf("CreateOneTimePassword error: %v", err)
	}
	if code != 0 {
		if err := svc.Verify(context.Background(), Request{Username: "alice", Code: strconv.Itoa(code)}); err != nil {
			t.Fatalf("expected TOTP code to verify, got %v", err)
		}
	}
	if err := svc.Verify(context.Background(), Request{Username: "alice", Code: strconv.Itoa(creds.ScratchCodes[0])}); err != nil {
		t.Fatalf("expected scratch code to verify, got %v", err)
	}
}
