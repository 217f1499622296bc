// Package totp implements time-based one-time passwords (RFC 6238) with the
// parameters authenticator apps expect by default: SHA-1, 6 digits, 30-second
// time steps.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avelancourt/passguard/internal/common"
)

const (
	// Period is the time-step size in seconds.
	Period = 30

	// Digits is the code length.
	Digits = 6

	secretSize = 20
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewSecret returns a fresh random shared secret, base32-encoded without
// padding, the format authenticator apps accept.
func NewSecret() string {
	return b32.EncodeToString(common.GenerateRandByteArray(secretSize))
}

// ProvisioningURI builds an otpauth:// URI for QR-code enrollment.
func ProvisioningURI(secret, account, issuer string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprintf("%d", Digits))
	v.Set("period", fmt.Sprintf("%d", Period))

	label := url.PathEscape(issuer + ":" + account)
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Validate reports whether candidate matches the code for the secret at time
// at, allowing skew time steps on either side to absorb clock drift.
// Comparison is constant-time per candidate step.
func Validate(secret, candidate string, at time.Time, skew int) bool {
	key, err := decodeSecret(secret)
	if err != nil {
		return false
	}
	candidate = strings.TrimSpace(candidate)
	if len(candidate) != Digits {
		return false
	}

	counter := at.Unix() / Period
	for offset := -skew; offset <= skew; offset++ {
		code := hotp(key, uint64(counter+int64(offset)))
		if subtle.ConstantTimeCompare([]byte(code), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}

// CodeAt computes the code for the given secret and time. Exposed for tests
// and for showing a verification code during enrollment.
func CodeAt(secret string, at time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(at.Unix()/Period)), nil
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	return b32.DecodeString(normalized)
}

// hotp implements RFC 4226 dynamic truncation over HMAC-SHA1.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, code%1000000)
}
