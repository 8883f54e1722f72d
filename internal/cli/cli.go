// Package cli implements the otpctl command line tool.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-totp/pkg/otp"
	"github.com/jeremyhahn/go-totp/pkg/provision"
)

const (
	keySecret   = "secret"
	keyEncoding = "encoding"
	keyAt       = "at"
)

// ErrRejected is returned by the verify command when the code does not match.
var ErrRejected = errors.New("code rejected")

type app struct {
	now     func() time.Time
	entropy io.Reader

	v   *viper.Viper
	log *slog.Logger
	cfg otp.Config
}

// New returns the otpctl root command.
func New() *cobra.Command {
	return newRoot(&app{now: time.Now})
}

// Execute runs otpctl with os.Args and returns the process exit code.
func Execute() int {
	a := &app{now: time.Now}
	root := newRoot(a)
	if err := root.Execute(); err != nil {
		if a.log != nil {
			a.log.Debug("command failed", "error", err)
		}
		fmt.Fprintln(root.ErrOrStderr(), "otpctl:", err)
		return 1
	}
	return 0
}

func newRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "otpctl",
		Short:         "Generate and verify RFC 6238 time-based one-time passwords",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConfigFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		v, err := newViper(root.PersistentFlags())
		if err != nil {
			return err
		}
		a.v = v
		a.log = newLogger(cmd.ErrOrStderr(), v.GetString(keyLogLevel), v.GetString(keyLogFormat))

		cfg, err := otpConfig(v)
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.log.Debug("configuration loaded",
			"config_file", v.ConfigFileUsed(),
			"step", cfg.TimeStep,
			"window", cfg.WindowSize,
			"digits", cfg.CodeDigits,
			"algorithm", cfg.Algorithm)
		return nil
	}

	root.AddCommand(a.generateCmd())
	root.AddCommand(a.codeCmd())
	root.AddCommand(a.verifyCmd())
	root.AddCommand(a.uriCmd())
	return root
}

func (a *app) authenticator() (*otp.Authenticator, error) {
	opts := []otp.Option{otp.WithClock(a.now)}
	if a.entropy != nil {
		src, err := otp.NewRandomSource(otp.WithEntropy(a.entropy))
		if err != nil {
			return nil, err
		}
		opts = append(opts, otp.WithRandomSource(src))
	}
	return otp.NewAuthenticator(a.cfg, opts...)
}

func addSecretFlags(cmd *cobra.Command) {
	cmd.Flags().String(keySecret, "", "shared secret (or "+envPrefix+"_SECRET)")
	cmd.Flags().String(keyEncoding, "base32", "secret encoding: base32, base64 or hex")
}

func (a *app) secretKey(cmd *cobra.Command) (otp.SecretKey, error) {
	if err := a.v.BindPFlag(keySecret, cmd.Flags().Lookup(keySecret)); err != nil {
		return otp.SecretKey{}, err
	}
	s := strings.TrimSpace(a.v.GetString(keySecret))
	if s == "" {
		return otp.SecretKey{}, fmt.Errorf("secret required (--%s or %s_SECRET)", keySecret, envPrefix)
	}
	encName, _ := cmd.Flags().GetString(keyEncoding)
	enc, err := parseEncoding(encName)
	if err != nil {
		return otp.SecretKey{}, err
	}
	return otp.ParseSecretKey(enc, s)
}

func (a *app) formatCode(code int) string {
	return fmt.Sprintf("%0*d", a.cfg.CodeDigits, code)
}

type generateOutput struct {
	Secret           string   `json:"secret"`
	VerificationCode string   `json:"verification_code"`
	ScratchCodes     []string `json:"scratch_codes"`
	URI              string   `json:"uri,omitempty"`
}

func (a *app) generateCmd() *cobra.Command {
	var (
		issuer  string
		account string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a new secret with its verification and scratch codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := a.authenticator()
			if err != nil {
				return err
			}
			creds, err := auth.CreateCredentials()
			if err != nil {
				return err
			}

			out := generateOutput{
				Secret:           creds.SecretKey.Encode(otp.EncodingBase32),
				VerificationCode: a.formatCode(creds.VerificationCode),
			}
			for _, c := range creds.ScratchCodes {
				out.ScratchCodes = append(out.ScratchCodes, strconv.Itoa(c))
			}
			if account != "" {
				if out.URI, err = provision.URI(issuer, account, creds.SecretKey, a.cfg); err != nil {
					return err
				}
			}
			a.log.Info("credentials generated", "scratch_codes", len(out.ScratchCodes))

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintf(w, "Secret:            %s\n", out.Secret)
			fmt.Fprintf(w, "Verification code: %s\n", out.VerificationCode)
			fmt.Fprintf(w, "Scratch codes:     %s\n", strings.Join(out.ScratchCodes, " "))
			if out.URI != "" {
				fmt.Fprintf(w, "URI:               %s\n", out.URI)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer for the provisioning URI")
	cmd.Flags().StringVar(&account, "account", "", "account name; when set a provisioning URI is printed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) codeCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Print the code for a secret at the current or given time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.secretKey(cmd)
			if err != nil {
				return err
			}
			t, err := parseTime(at, a.now)
			if err != nil {
				return err
			}
			auth, err := a.authenticator()
			if err != nil {
				return err
			}
			code, err := auth.CreateOneTimePasswordAt(key, t)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.formatCode(code))
			return nil
		},
	}
	addSecretFlags(cmd)
	cmd.Flags().StringVar(&at, keyAt, "", "time as RFC 3339 or unix seconds (default now)")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "verify CODE",
		Short: "Check a code against a secret; exits non-zero when rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("code must be numeric: %w", err)
			}
			key, err := a.secretKey(cmd)
			if err != nil {
				return err
			}
			t, err := parseTime(at, a.now)
			if err != nil {
				return err
			}
			auth, err := a.authenticator()
			if err != nil {
				return err
			}
			ok, err := auth.AuthorizeAt(key, code, t)
			if err != nil {
				return err
			}
			if !ok {
				a.log.Warn("code rejected", "at", t.UTC())
				return ErrRejected
			}
			a.log.Info("code accepted", "at", t.UTC())
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	addSecretFlags(cmd)
	cmd.Flags().StringVar(&at, keyAt, "", "time as RFC 3339 or unix seconds (default now)")
	return cmd
}

func (a *app) uriCmd() *cobra.Command {
	var (
		issuer  string
		account string
		qrURL   bool
		pngPath string
		size    int
	)
	cmd := &cobra.Command{
		Use:   "uri",
		Short: "Print the otpauth:// provisioning URI for a secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.secretKey(cmd)
			if err != nil {
				return err
			}

			if pngPath != "" {
				img, err := provision.QRCode(issuer, account, key, a.cfg, size, size)
				if err != nil {
					return err
				}
				f, err := os.Create(pngPath)
				if err != nil {
					return err
				}
				if err := png.Encode(f, img); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				a.log.Info("qr code written", "path", pngPath, "size", size)
			}

			var out string
			if qrURL {
				out, err = provision.QRCodeURL(issuer, account, key, a.cfg)
			} else {
				out, err = provision.URI(issuer, account, key, a.cfg)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	addSecretFlags(cmd)
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer name")
	cmd.Flags().StringVar(&account, "account", "", "account name (required)")
	cmd.Flags().BoolVar(&qrURL, "qr-url", false, "print a Google Chart QR code URL instead of the URI")
	cmd.Flags().StringVar(&pngPath, "png", "", "also write the QR code as a PNG file")
	cmd.Flags().IntVar(&size, "size", 256, "PNG width and height in pixels")
	return cmd
}
