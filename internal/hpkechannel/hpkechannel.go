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

// Package hpkechannel is the hybrid-encrypted channel to the attested
// TEE peer: base-mode "encrypt to TEE" with no sender authentication,
// and auth-mode "decrypt from TEE" that binds decryption to the
// attested TEE public key as the sender. The suite is fixed to
// DHKEM(P-256, HKDF-SHA-256) / HKDF-SHA-256 / AES-256-GCM.
package hpkechannel

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cloudflare/circl/hpke"

	"github.com/crossmint/signer-frames/internal/signererrors"
)

// Info is the fixed RFC9180 "info" transcript binding for this core's
// HPKE usage. Both encrypt-to-TEE and decrypt-from-TEE use the same
// label so a ciphertext produced for one contract cannot be replayed
// against the other.
var Info = []byte("crossmint-signer-frames/hpke-channel/v1")

var suite = hpke.NewSuite(
	hpke.KEM_P256_HKDF_SHA256,
	hpke.KDF_HKDF_SHA256,
	hpke.AEAD_AES256GCM,
)

var kemScheme = hpke.KEM_P256_HKDF_SHA256.Scheme()

// innerEnvelope is the plaintext record shape HPKE actually encrypts:
// the caller's data wrapped with an encryption context announcing the
// sender's public key.
type innerEnvelope struct {
	Data              json.RawMessage   `json:"data"`
	EncryptionContext encryptionContext `json:"encryption_context"`
}

type encryptionContext struct {
	SenderPublicKeyBase64 string `json:"sender_public_key_base64"`
}

// Sealed is the wire envelope returned by EncryptToTEE and consumed by
// DecryptFromTEE: ciphertext, the HPKE encapsulated key, and the raw
// sender public key bytes.
type Sealed struct {
	Ciphertext      []byte
	EncapsulatedKey []byte
	SenderPublicKey []byte
}

// EncryptToTEE seals record for the TEE's attested public key in HPKE
// base mode: no sender authentication, since the user proves identity
// at a higher layer via OTP.
func EncryptToTEE(clientPub *ecdh.PublicKey, teePub *ecdh.PublicKey, record interface{}) (*Sealed, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, signererrors.Wrap(signererrors.KindMalformedReport, "failed to serialize record", err)
	}
	plaintext, err := json.Marshal(innerEnvelope{
		Data: data,
		EncryptionContext: encryptionContext{
			SenderPublicKeyBase64: base64.StdEncoding.EncodeToString(clientPub.Bytes()),
		},
	})
	if err != nil {
		return nil, signererrors.Wrap(signererrors.KindMalformedReport, "failed to serialize envelope", err)
	}

	recipient, err := kemScheme.UnmarshalBinaryPublicKey(teePub.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: unmarshal recipient public key: %w", err)
	}

	sender, err := suite.NewSender(recipient, Info)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: new sender: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: sender setup: %w", err)
	}
	ciphertext, err := sealer.Seal(plaintext, Info)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: seal: %w", err)
	}

	return &Sealed{
		Ciphertext:      ciphertext,
		EncapsulatedKey: enc,
		SenderPublicKey: clientPub.Bytes(),
	}, nil
}

// DecryptFromTEE opens a Sealed envelope in HPKE auth mode, binding
// decryption to attestedTEEPub as the sender's public key; a message
// sealed by anyone else fails to open. Returns the `data` field of the
// inner envelope.
func DecryptFromTEE(clientPriv *ecdh.PrivateKey, attestedTEEPub *ecdh.PublicKey, sealed *Sealed) (json.RawMessage, error) {
	skR, err := kemScheme.UnmarshalBinaryPrivateKey(clientPriv.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: unmarshal private key: %w", err)
	}
	pkS, err := kemScheme.UnmarshalBinaryPublicKey(attestedTEEPub.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: unmarshal attested sender public key: %w", err)
	}

	receiver, err := suite.NewReceiver(skR, Info)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: new receiver: %w", err)
	}
	opener, err := receiver.SetupAuth(sealed.EncapsulatedKey, pkS)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: receiver auth setup: %w", err)
	}
	plaintext, err := opener.Open(sealed.Ciphertext, Info)
	if err != nil {
		return nil, signererrors.Wrap(signererrors.KindInvalidTEEStatus, "hpke auth-mode decrypt failed", err)
	}

	var env innerEnvelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, signererrors.Wrap(signererrors.KindMalformedReport, "failed to parse inner envelope", err)
	}
	return env.Data, nil
}

// EncryptFromTEEForTest seals record in HPKE auth mode under teePriv as
// the authenticated sender, addressed to clientPub. It exists to let
// this package's own tests exercise DecryptFromTEE without a network
// dependency on a real TEE peer; production code never authenticates
// as the TEE.
func EncryptFromTEEForTest(teePriv *ecdh.PrivateKey, clientPub *ecdh.PublicKey, data json.RawMessage) (*Sealed, error) {
	plaintext, err := json.Marshal(innerEnvelope{Data: data})
	if err != nil {
		return nil, err
	}

	recipient, err := kemScheme.UnmarshalBinaryPublicKey(clientPub.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: unmarshal recipient public key: %w", err)
	}
	skS, err := kemScheme.UnmarshalBinaryPrivateKey(teePriv.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: unmarshal sender private key: %w", err)
	}

	sender, err := suite.NewSender(recipient, Info)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: new sender: %w", err)
	}
	enc, sealer, err := sender.SetupAuth(rand.Reader, skS)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: auth sender setup: %w", err)
	}
	ciphertext, err := sealer.Seal(plaintext, Info)
	if err != nil {
		return nil, fmt.Errorf("hpkechannel: seal: %w", err)
	}

	return &Sealed{Ciphertext: ciphertext, EncapsulatedKey: enc}, nil
}
