// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package curvekeys derives per-curve signing keys from a 32-byte seed
// and produces signatures with them. It is stateless by construction:
// the seed is handed in per call and never retained, so the master
// secret's only durable traces are the public keys and signatures it
// yields.
package curvekeys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"

	"github.com/crossmint/signer-frames/internal/signererrors"
)

// KeyType identifies one of the two supported signing curves.
type KeyType string

const (
	Ed25519   KeyType = "ed25519"
	Secp256k1 KeyType = "secp256k1"
)

// Signature pairs signature bytes with the encoding they are rendered
// in, matching the {bytes, encoding} shape the handlers emit.
type Signature struct {
	Bytes    string
	Encoding string
}

// DerivePrivateKey expands seed into a raw private key for keyType:
// ed25519's 64-byte seed-expanded secret key, or secp256k1's 32-byte
// scalar (the seed is used directly, clamped to the curve order by the
// decred library).
func DerivePrivateKey(keyType KeyType, seed []byte) ([]byte, error) {
	if len(seed) != 32 {
		return nil, signererrors.New(signererrors.KindUnsupportedKeyType, "seed must be 32 bytes")
	}
	switch keyType {
	case Ed25519:
		return ed25519.NewKeyFromSeed(seed), nil
	case Secp256k1:
		priv := secp256k1.PrivKeyFromBytes(seed)
		return priv.Serialize(), nil
	default:
		return nil, signererrors.New(signererrors.KindUnsupportedKeyType, string(keyType))
	}
}

// DerivePublicKey returns the encoded public key matching privateKey:
// base58 for ed25519, hex uncompressed for secp256k1.
func DerivePublicKey(keyType KeyType, privateKey []byte) (string, error) {
	switch keyType {
	case Ed25519:
		if len(privateKey) != ed25519.PrivateKeySize {
			return "", signererrors.New(signererrors.KindUnsupportedKeyType, "invalid ed25519 private key length")
		}
		pub := ed25519.PrivateKey(privateKey).Public().(ed25519.PublicKey)
		return base58.Encode(pub), nil
	case Secp256k1:
		priv := secp256k1.PrivKeyFromBytes(privateKey)
		pub := priv.PubKey()
		return hex.EncodeToString(pub.SerializeUncompressed()), nil
	default:
		return "", signererrors.New(signererrors.KindUnsupportedKeyType, string(keyType))
	}
}

// Sign produces a signature over message under privateKey: base58 for
// ed25519 (raw detached signature), hex for secp256k1 (64-byte r||s
// over SHA-256(message)).
func Sign(keyType KeyType, privateKey, message []byte) (Signature, error) {
	switch keyType {
	case Ed25519:
		if len(privateKey) != ed25519.PrivateKeySize {
			return Signature{}, signererrors.New(signererrors.KindUnsupportedKeyType, "invalid ed25519 private key length")
		}
		sig := ed25519.Sign(ed25519.PrivateKey(privateKey), message)
		return Signature{Bytes: base58.Encode(sig), Encoding: "base58"}, nil

	case Secp256k1:
		priv := secp256k1.PrivKeyFromBytes(privateKey)
		hash := sha256.Sum256(message)
		r, s, err := ecdsa.Sign(rand.Reader, priv.ToECDSA(), hash[:])
		if err != nil {
			return Signature{}, signererrors.Wrap(signererrors.KindInvalidSignature, "secp256k1 sign failed", err)
		}
		return Signature{Bytes: hex.EncodeToString(serializeRS(r, s)), Encoding: "hex"}, nil

	default:
		return Signature{}, signererrors.New(signererrors.KindUnsupportedKeyType, string(keyType))
	}
}

// Verify checks a signature produced by Sign against publicKey (used by
// tests and by callers validating a roundtrip independent of the
// signer).
func Verify(keyType KeyType, publicKey, message, signature []byte) (bool, error) {
	switch keyType {
	case Ed25519:
		return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
	case Secp256k1:
		if len(signature) != 64 {
			return false, signererrors.New(signererrors.KindInvalidSignature, "secp256k1 signature must be 64 bytes")
		}
		pub, err := secp256k1.ParsePubKey(publicKey)
		if err != nil {
			return false, signererrors.Wrap(signererrors.KindInvalidSignature, "invalid secp256k1 public key", err)
		}
		hash := sha256.Sum256(message)
		r := new(big.Int).SetBytes(signature[:32])
		s := new(big.Int).SetBytes(signature[32:])
		return ecdsa.Verify(pub.ToECDSA(), hash[:], r, s), nil
	default:
		return false, signererrors.New(signererrors.KindUnsupportedKeyType, string(keyType))
	}
}

func serializeRS(r, s *big.Int) []byte {
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	sig := make([]byte, 64)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig
}
