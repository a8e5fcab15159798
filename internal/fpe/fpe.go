// Package fpe provides format-preserving encryption of short decimal
// digit strings (one-time passwords) under the symmetric key derived in
// internal/cryptoprim, so an OTP can be tunneled through the user's
// display without changing its shape.
package fpe

import (
	"fmt"

	"github.com/crossmint/signer-frames/internal/cryptoprim"
)

// Radix is the fixed base of the digit strings this service encrypts.
const Radix = 10

// Service is an FF1 instance over radix 10 under a key/tweak pair
// derived once per TEE session from the ECDH-derived symmetric key
// (internal/cryptoprim.DeriveAESKey / DeriveFF1TweakKey).
type Service struct {
	ff1 *cryptoprim.FF1
}

// New constructs a Service. key must be the AES-GCM key derived for
// this session; tweak may be nil.
func New(key, tweak []byte) (*Service, error) {
	ff1, err := cryptoprim.NewFF1(key, tweak, Radix)
	if err != nil {
		return nil, fmt.Errorf("fpe: %w", err)
	}
	return &Service{ff1: ff1}, nil
}

// Encrypt maps a decimal digit string to a same-length decimal digit
// string. Every rune of digits must be '0'-'9'.
func (s *Service) Encrypt(digits string) (string, error) {
	return s.transform(digits, s.ff1.Encrypt)
}

// Decrypt is the inverse of Encrypt.
func (s *Service) Decrypt(digits string) (string, error) {
	return s.transform(digits, s.ff1.Decrypt)
}

func (s *Service) transform(digits string, op func([]byte) ([]byte, error)) (string, error) {
	values, err := toDigitValues(digits)
	if err != nil {
		return "", err
	}
	out, err := op(values)
	if err != nil {
		return "", fmt.Errorf("fpe: %w", err)
	}
	return fromDigitValues(out), nil
}

// toDigitValues converts an ASCII decimal string to digit VALUES
// (0..9), failing on any non-digit rune so a malformed OTP is rejected
// before it reaches FF1.
func toDigitValues(digits string) ([]byte, error) {
	out := make([]byte, len(digits))
	for i, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("fpe: %q is not a decimal digit string", digits)
		}
		out[i] = byte(r - '0')
	}
	return out, nil
}

// fromDigitValues renders digit values back to their ASCII form.
func fromDigitValues(values []byte) string {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = '0' + v
	}
	return string(out)
}
