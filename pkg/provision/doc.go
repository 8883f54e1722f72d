// Package provision builds the artifacts an authenticator app needs to
// enroll a secret: the otpauth:// key URI, a QR code image of it, and the
// legacy Google Chart QR code URL.
//
//	creds, _ := auth.CreateCredentials()
//	uri, err := provision.URI("MyApp", "user@example.com", creds.SecretKey, auth.Config())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	img, err := provision.QRCode("MyApp", "user@example.com", creds.SecretKey, auth.Config(), 256, 256)
//
// The URI contains the secret. Send it only over a secure channel.
package provision
