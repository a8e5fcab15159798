// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package identity manages the client's long-lived ECDH P-256 identity
// key pair, generated once and persisted through an injected storage
// adapter, and derives the device identifier from it: the SHA-256 of
// the public key's SPKI form, rendered as hex.
package identity

import (
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/signererrors"
)

// StorageKey is the fixed key the identity key pair is persisted under
// in the host-provided key-value store.
const StorageKey = "signer:client-identity-key"

// Storage is the generic key-value adapter the host shell provides.
// TTL semantics are the host's concern; the identity entry never
// expires.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// KeyPair is the client's persistent ECDH P-256 identity key pair.
type KeyPair struct {
	priv *ecdh.PrivateKey
	pub  *ecdh.PublicKey
}

// PrivateKey returns the raw ECDH private key, usable directly as the
// HPKE Channel's sender/recipient key.
func (k *KeyPair) PrivateKey() *ecdh.PrivateKey { return k.priv }

// PublicKey returns the raw ECDH public key.
func (k *KeyPair) PublicKey() *ecdh.PublicKey { return k.pub }

// SerializedPublicKey returns the base64 encoding of the KEM-serialized
// public key, the form the backend expects in encryption contexts.
func (k *KeyPair) SerializedPublicKey() string {
	return base64.StdEncoding.EncodeToString(k.pub.Bytes())
}

// Store loads or generates the persistent identity key pair.
type Store struct {
	storage Storage
	log     logger.Logger
	pair    *KeyPair
}

// NewStore constructs a Store. Init must be called before use.
func NewStore(storage Storage, log logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{storage: storage, log: log}
}

// Init reads the identity key pair from storage, generating and
// persisting a new one if absent. It is idempotent to call more than
// once; subsequent calls are no-ops once a pair is loaded.
func (s *Store) Init(ctx context.Context) error {
	if s.pair != nil {
		return nil
	}

	raw, ok, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		s.log.Error("identity key store read failed", logger.Error(err))
		return signererrors.Wrap(signererrors.KindStorageError, "failed to read identity key", err)
	}

	if ok {
		pair, err := decodeKeyPair(raw)
		if err != nil {
			s.log.Error("identity key store holds a corrupt key", logger.Error(err))
			return signererrors.Wrap(signererrors.KindStorageError, "failed to decode stored identity key", err)
		}
		s.pair = pair
		return nil
	}

	pair, err := generateKeyPair()
	if err != nil {
		return signererrors.Wrap(signererrors.KindStorageError, "failed to generate identity key", err)
	}
	if err := s.storage.Set(ctx, StorageKey, encodeKeyPair(pair)); err != nil {
		s.log.Error("identity key store write failed", logger.Error(err))
		return signererrors.Wrap(signererrors.KindStorageError, "failed to persist identity key", err)
	}
	s.pair = pair
	s.log.Info("generated new client identity key pair")
	return nil
}

// GetKeyPair returns the initialized identity key pair.
func (s *Store) GetKeyPair() (*KeyPair, error) {
	if s.pair == nil {
		return nil, signererrors.New(signererrors.KindNotInitialized, "identity key store not initialized")
	}
	return s.pair, nil
}

// GetSerializedPublicKey returns the base64-encoded serialized public key.
func (s *Store) GetSerializedPublicKey() (string, error) {
	pair, err := s.GetKeyPair()
	if err != nil {
		return "", err
	}
	return pair.SerializedPublicKey(), nil
}

func generateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &KeyPair{priv: priv, pub: priv.PublicKey()}, nil
}

func encodeKeyPair(k *KeyPair) []byte {
	return k.priv.Bytes()
}

func decodeKeyPair(raw []byte) (*KeyPair, error) {
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid stored private key: %w", err)
	}
	return &KeyPair{priv: priv, pub: priv.PublicKey()}, nil
}

// DeviceID computes hex(SHA-256(SPKI(public_key))) for the given key
// pair's public key. It is a pure function of the public key: the same
// key pair always yields the same device identifier.
func DeviceID(pair *KeyPair) (string, error) {
	spki, err := spkiBytes(pair.pub)
	if err != nil {
		return "", fmt.Errorf("identity: SPKI marshal: %w", err)
	}
	sum := sha256.Sum256(spki)
	return hex.EncodeToString(sum[:]), nil
}

// spkiBytes renders an ECDH P-256 public key as an X.509
// SubjectPublicKeyInfo. x509.MarshalPKIXPublicKey takes an
// *ecdsa.PublicKey, not *ecdh.PublicKey, so the point is first
// re-expressed as an ecdsa key of the same curve and coordinates.
func spkiBytes(pub *ecdh.PublicKey) ([]byte, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), pub.Bytes())
	if x == nil {
		return nil, fmt.Errorf("identity: invalid P-256 point encoding")
	}
	ecdsaPub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	return x509.MarshalPKIXPublicKey(ecdsaPub)
}
