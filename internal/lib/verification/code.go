package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewCode returns a one-time code of length decimal digits.
// Leading zeros are allowed, the code is compared as a string.
func NewCode(length int) (string, error) {
	const op = "lib.verification.NewCode"

	digits := make([]byte, length)

	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}
