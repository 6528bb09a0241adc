// Package otp generates the numeric one-time codes mailed during
// registration and password reset.
package otp

import (
	"crypto/rand"
	"math/big"
)

// codes are six decimal digits, first digit nonzero.
var codeSpan = big.NewInt(900000)

// New returns a uniformly random code in [100000, 999999] drawn from the
// platform CSPRNG.
func New() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String(), nil
}
