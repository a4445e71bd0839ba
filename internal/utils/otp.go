package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// GenerateSecureOTP returns a numeric code of the given length drawn
// uniformly from [10^(length-1), 10^length - 1], so it never has a leading zero.
func GenerateSecureOTP(length int) (string, error) {
	if length < 1 || length > 18 {
		return "", fmt.Errorf("otp length %d out of range", length)
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	high := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	span := new(big.Int).Sub(high, low)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}
	return n.Add(n, low).String(), nil
}

// GenerateReferenceID returns an upper-case booking reference such as
// "APP-3F2A9C1B7E4D4A0C9B8E6F1A2D3C4B5A".
func GenerateReferenceID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(id)
}
