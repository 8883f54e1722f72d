package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-totp/pkg/otp"
)

const envPrefix = "OTPCTL"

// Setting keys shared by flags, environment and config file.
const (
	keyConfig       = "config"
	keyStep         = "step"
	keyWindow       = "window"
	keyDigits       = "digits"
	keyAlgorithm    = "algorithm"
	keySecretBits   = "secret-bits"
	keyScratchCodes = "scratch-codes"
	keyLogLevel     = "log-level"
	keyLogFormat    = "log-format"
)

func addConfigFlags(fs *pflag.FlagSet) {
	def := otp.DefaultConfig()
	fs.String(keyConfig, "", "config file (yaml, json or toml)")
	fs.Duration(keyStep, def.TimeStep, "time step size")
	fs.Int(keyWindow, def.WindowSize, "number of time steps accepted during verification")
	fs.Int(keyDigits, def.CodeDigits, "code digits (6-8)")
	fs.String(keyAlgorithm, string(def.Algorithm), "HMAC algorithm: SHA1, SHA256 or SHA512")
	fs.Int(keySecretBits, def.SecretBits, "generated secret size in bits")
	fs.Int(keyScratchCodes, def.ScratchCodes, "number of scratch codes to generate")
	fs.String(keyLogLevel, "warn", "log level: debug, info, warn or error")
	fs.String(keyLogFormat, "text", "log format: text or json")
}

// newViper layers flags over OTPCTL_* environment variables over the
// optional config file.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// otpConfig builds and validates the authenticator configuration.
func otpConfig(v *viper.Viper) (otp.Config, error) {
	cfg := otp.DefaultConfig()
	cfg.TimeStep = v.GetDuration(keyStep)
	cfg.WindowSize = v.GetInt(keyWindow)
	cfg.CodeDigits = v.GetInt(keyDigits)
	cfg.Algorithm = otp.Algorithm(strings.ToUpper(v.GetString(keyAlgorithm)))
	cfg.SecretBits = v.GetInt(keySecretBits)
	cfg.ScratchCodes = v.GetInt(keyScratchCodes)
	if err := cfg.Validate(); err != nil {
		return otp.Config{}, err
	}
	return cfg, nil
}

func parseEncoding(s string) (otp.Encoding, error) {
	switch strings.ToLower(s) {
	case "base32", "":
		return otp.EncodingBase32, nil
	case "base64":
		return otp.EncodingBase64, nil
	case "hex":
		return otp.EncodingHex, nil
	}
	return 0, fmt.Errorf("unknown encoding %q (want base32, base64 or hex)", s)
}

// parseTime accepts RFC 3339 or integer Unix seconds; empty means now.
func parseTime(s string, now func() time.Time) (time.Time, error) {
	if s == "" {
		return now(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339 or unix seconds)", s)
}
