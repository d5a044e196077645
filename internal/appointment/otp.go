package appointment

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	OTPLength = 6
	// numberCharset drops the ambiguous 0, O, I, 1 and L.
	numberCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// GenerateOTP returns a zero-padded numeric code of the given length drawn
// from crypto/rand.
func GenerateOTP(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", errors.New("OTP length must be between 4 and 10")
	}

	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

func codesEqual(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// GenerateNumber builds a human-readable appointment number, APT-YYYYMMDD-XXXXXX.
func GenerateNumber(date time.Time) (string, error) {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(numberCharset)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate appointment number: %w", err)
		}
		suffix[i] = numberCharset[n.Int64()]
	}
	return fmt.Sprintf("APT-%s-%s", date.Format("20060102"), suffix), nil
}
