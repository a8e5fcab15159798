// Package teekey turns the attestation verifier's validated base64
// public key into a usable ECDH key handle for the HPKE channel, so
// callers never re-parse the attestation output by hand.
package teekey

import (
	"crypto/ecdh"
	"encoding/base64"
	"fmt"

	"github.com/crossmint/signer-frames/internal/signererrors"
)

// AttestationSource is the subset of the Attestation Verifier this
// provider depends on.
type AttestationSource interface {
	GetAttestedPublicKey() (string, error)
}

// Provider resolves the current attested TEE public key on demand; it
// holds no state of its own beyond the source it wraps.
type Provider struct {
	source AttestationSource
}

// New constructs a Provider over an attestation source.
func New(source AttestationSource) *Provider {
	return &Provider{source: source}
}

// GetKey returns the attested TEE public key as a parsed ECDH P-256
// key, or NotInitialized if attestation has not yet succeeded.
func (p *Provider) GetKey() (*ecdh.PublicKey, error) {
	b64, err := p.source.GetAttestedPublicKey()
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, signererrors.Wrap(signererrors.KindPublicKeyNotAttested, "attested public key is not valid base64", err)
	}
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("teekey: invalid P-256 public key: %w", err)
	}
	return pub, nil
}
