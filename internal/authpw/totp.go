package authpw

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RFC 6238 time-based one-time passwords: SHA-1, 6 digits, 30-second steps.

const (
	totpStep   = 30 * time.Second
	totpDigits = 6
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTOTPSecret returns a 160-bit base32 secret.
func GenerateTOTPSecret() (string, error) {
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(bytes), nil
}

// ProvisioningURL builds the otpauth URL encoded into enrollment QR codes.
func ProvisioningURL(secret, account string) string {
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", "Sitekeeper")
	query.Set("digits", "6")
	query.Set("period", "30")
	return "otpauth://totp/Sitekeeper:" + url.PathEscape(account) + "?" + query.Encode()
}

// VerifyTOTP checks the code against the current step and one step either
// side to absorb clock skew.
func VerifyTOTP(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return false
	}
	counter := at.Unix() / int64(totpStep.Seconds())
	for _, offset := range []int64{0, -1, 1} {
		candidate := counter + offset
		if candidate < 0 {
			continue
		}
		if totpCode(secret, uint64(candidate)) == code {
			return true
		}
	}
	return false
}

func totpCode(secret string, counter uint64) string {
	key, err := totpEncoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return ""
	}

	var message [8]byte
	binary.BigEndian.PutUint64(message[:], counter)

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(message[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", value%1000000)
}
