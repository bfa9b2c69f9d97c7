// Package random generates the engine's secrets from crypto/rand.
package random

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
)

const resetSecretSize = 32

// OTP returns a uniformly random numeric code of the given width with a
// non-zero leading digit, e.g. for 6 digits a value in [100000, 999999].
func OTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("otp digits out of range")
	}

	min := big.NewInt(1)
	for i := 1; i < digits; i++ {
		min.Mul(min, big.NewInt(10))
	}
	span := new(big.Int).Mul(min, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, min).String(), nil
}

// ResetSecret returns a fresh 256-bit secret, hex encoded.
func ResetSecret() (string, error) {
	var raw [resetSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashSecret is the one-way digest used to store token and reset secrets
// at rest.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}
