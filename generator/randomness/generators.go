// Package randomness provides unbiased sampling from a fixed character
// alphabet, used to name keyfiles this engine generates on the caller's
// behalf.
package randomness

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// alphanumericAlphabet is the 62-character a-zA-Z0-9 alphabet used for
// generated keyfile names.
const alphanumericAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Alphanumeric returns a random string of length characters drawn from the
// 62-character alphanumeric alphabet. Each character is sampled with
// rand.Int against the alphabet size rather than a modulo-reduced random
// byte, so every character is equally likely.
func Alphanumeric(length int) (string, error) {
	runes := []rune(alphanumericAlphabet)
	alphabetSize := big.NewInt(int64(len(runes)))

	out := make([]rune, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("unable to sample random alphanumeric character: %w", err)
		}
		out[i] = runes[idx.Int64()]
	}
	return string(out), nil
}
