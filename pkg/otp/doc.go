// Package otp implements TOTP (RFC 6238) code generation and verification
// on top of HOTP (RFC 4226) dynamic truncation.
//
// It is the engine behind a second-factor flow: enroll a user with a new
// secret and scratch codes, then verify the codes their authenticator app
// produces. The package stores nothing; persisting secrets, remembering
// which time step was already used and delivering codes are left to the
// caller.
//
// # Enrollment
//
//	auth, err := otp.NewAuthenticator(otp.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	creds, err := auth.CreateCredentials()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	secret := creds.SecretKey.Encode(otp.EncodingBase32)
//	// Store secret and the scratch codes, show them to the user once.
//
// # Verification
//
//	key, err := otp.ParseSecretKey(otp.EncodingBase32, secret)
//	if err != nil {
//	    return err
//	}
//	ok, err := auth.Authorize(key, 123456)
//	if err != nil {
//	    return err // broken environment, not a wrong code
//	}
//	if !ok {
//	    // reject
//	}
//
// With the default window size of 3, the previous, current and next time
// steps are accepted.
//
// # Configuration
//
// Config is validated once by NewAuthenticator. Out of range values are
// rejected with ErrInvalidConfig rather than adjusted.
//
//	cfg := otp.DefaultConfig()
//	cfg.CodeDigits = 8
//	cfg.WindowSize = 5
//	cfg.Algorithm = otp.AlgorithmSHA256
//
// # Random source
//
// RandomSource feeds secret and scratch code generation. It rekeys itself
// after DefaultReseedThreshold draws. Construct one and share it between
// authenticators with WithRandomSource.
//
// # Thread Safety
//
// Authenticator, RandomSource and SecretKey are safe for concurrent use.
// GenerateCode is a pure function.
package otp
