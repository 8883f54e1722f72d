package provision

import (
	"errors"
	"fmt"
	"image"
	"net/url"
	"strconv"
	"strings"
	"time"

	gootp "github.com/pquerna/otp"

	"github.com/jeremyhahn/go-totp/pkg/otp"
)

const googleChartURL = "https://chart.googleapis.com/chart?chs=200x200&chld=M%7C0&cht=qr&chl="

var (
	// ErrInvalidLabel indicates the issuer or account name cannot form a key URI label.
	ErrInvalidLabel = errors.New("provision: invalid label")
	// ErrInvalidKey indicates the secret key is missing.
	ErrInvalidKey = errors.New("provision: invalid secret key")
)

// URI returns the otpauth://totp key URI for the account.
//
// The label is "issuer:account", or just the account when issuer is empty.
// Neither part may contain a colon. The secret is Base32 without padding.
// The otpauth period is whole seconds, so a time step that is not a whole
// number of seconds is rejected with otp.ErrInvalidConfig.
func URI(issuer, account string, key otp.SecretKey, cfg otp.Config) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", fmt.Errorf("%w: account name must not be empty", ErrInvalidLabel)
	}
	if strings.Contains(account, ":") {
		return "", fmt.Errorf("%w: account name cannot contain ':'", ErrInvalidLabel)
	}
	if strings.Contains(issuer, ":") {
		return "", fmt.Errorf("%w: issuer cannot contain ':'", ErrInvalidLabel)
	}
	if key.IsZero() {
		return "", ErrInvalidKey
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if cfg.TimeStep%time.Second != 0 {
		return "", fmt.Errorf("%w: time step %s is not a whole number of seconds", otp.ErrInvalidConfig, cfg.TimeStep)
	}

	v := url.Values{}
	v.Set("secret", strings.TrimRight(key.Encode(otp.EncodingBase32), "="))
	if issuer != "" {
		v.Set("issuer", issuer)
	}
	v.Set("algorithm", string(cfg.Algorithm))
	v.Set("digits", strconv.Itoa(cfg.CodeDigits))
	v.Set("period", strconv.FormatInt(int64(cfg.TimeStep/time.Second), 10))

	label := account
	if issuer != "" {
		label = issuer + ":" + account
	}
	return fmt.Sprintf("otpauth://totp/%s?%s", url.PathEscape(label), v.Encode()), nil
}

// QRCodeURL returns a Google Chart API URL rendering the key URI as a
// 200x200 QR code.
func QRCodeURL(issuer, account string, key otp.SecretKey, cfg otp.Config) (string, error) {
	uri, err := URI(issuer, account, key, cfg)
	if err != nil {
		return "", err
	}
	return googleChartURL + url.QueryEscape(uri), nil
}

// Key returns the key URI parsed as a github.com/pquerna/otp Key, for
// callers that already work with that package.
func Key(issuer, account string, key otp.SecretKey, cfg otp.Config) (*gootp.Key, error) {
	uri, err := URI(issuer, account, key, cfg)
	if err != nil {
		return nil, err
	}
	k, err := gootp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("provision: parse key uri: %w", err)
	}
	return k, nil
}

// QRCode renders the key URI as a QR code image of the given size.
func QRCode(issuer, account string, key otp.SecretKey, cfg otp.Config, width, height int) (image.Image, error) {
	k, err := Key(issuer, account, key, cfg)
	if err != nil {
		return nil, err
	}
	img, err := k.Image(width, height)
	if err != nil {
		return nil, fmt.Errorf("provision: render qr code: %w", err)
	}
	return img, nil
}
