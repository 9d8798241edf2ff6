package services

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20
	qrCodeSize     = 200
)

// TOTPEngine issues and checks RFC 6238 codes: SHA1, six digits, a 30 second
// step and one step of tolerance either side.
type TOTPEngine struct {
	Issuer string
	Now    func() time.Time
}

func NewTOTPEngine(issuer string) *TOTPEngine {
	return &TOTPEngine{Issuer: issuer, Now: time.Now}
}

func (e *TOTPEngine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *TOTPEngine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Generate creates a new base32 secret labelled for accountName.
func (e *TOTPEngine) Generate(accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}

func (e *TOTPEngine) Validate(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.now().UTC(), e.validateOpts())
	return err == nil && ok
}

// CodeAt returns the code for secret at t.
func (e *TOTPEngine) CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, e.validateOpts())
}

// QRCodeDataURL renders the key's otpauth URI as a PNG data URL.
func QRCodeDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
