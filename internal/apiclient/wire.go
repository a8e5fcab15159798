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

// Package apiclient talks to the signer backend: schema-validated HTTP
// calls with optional HPKE body/response encryption and bounded retry,
// plus a typed façade over the five named backend operations.
package apiclient

// EncryptedEnvelope is the bidirectional encrypted wire shape: all
// three fields must independently satisfy the base64 field pattern.
type EncryptedEnvelope struct {
	Ciphertext      string `json:"ciphertext" validate:"required"`
	EncapsulatedKey string `json:"encapsulatedKey" validate:"required"`
	PublicKey       string `json:"publicKey" validate:"required"`
}

// EncryptionContext carries the client's serialized public key alongside
// a request that has no other way to announce it to the backend (spec
// §4.12's start-onboarding call).
type EncryptionContext struct {
	PublicKey string `json:"public_key" validate:"required"`
}

// StartOnboardingRequest is the unencrypted start-onboarding body.
type StartOnboardingRequest struct {
	AuthID            string            `json:"auth_id" validate:"required"`
	EncryptionContext EncryptionContext `json:"encryption_context" validate:"required"`
	DeviceID          string            `json:"device_id" validate:"required"`
}

// StartOnboardingResponse carries the new-device acknowledgement.
type StartOnboardingResponse struct {
	Status string `json:"status" validate:"required"`
}

// CompleteOnboardingRequest is the encrypted complete-onboarding body,
// carrying the OTP plaintext recovered by FPE decryption.
type CompleteOnboardingRequest struct {
	OTP       string `json:"otp" validate:"required,numeric"`
	PublicKey string `json:"public_key" validate:"required"`
	DeviceID  string `json:"device_id" validate:"required"`
}

// EncryptedMasterSecretResponse is the encrypted master secret record
// the backend serves per device.
type EncryptedMasterSecretResponse struct {
	DeviceID         string                `json:"deviceId" validate:"required"`
	SignerID         string                `json:"signerId" validate:"required"`
	EncryptedUserKey EncryptedUserKeyField `json:"encryptedUserKey" validate:"required"`
	UserKeyHash      UserKeyHashField      `json:"userKeyHash" validate:"required"`

	// SigningPublicKey and Signature are the older signed-variant
	// fields. When the backend still serves them, internal/userkey
	// verifies Signature (ECDSA P-256/SHA-256 over the raw
	// encryptedUserKey.bytes) under SigningPublicKey before accepting
	// the record, rather than silently ignoring it. Both are absent on
	// the current (AES-GCM-only) record shape.
	SigningPublicKey string `json:"signingPublicKey,omitempty" validate:"omitempty,base64"`
	Signature        string `json:"signature,omitempty" validate:"omitempty,base64"`
}

type EncryptedUserKeyField struct {
	Bytes               string `json:"bytes" validate:"required,base64"`
	Encoding            string `json:"encoding" validate:"required"`
	EncryptionPublicKey string `json:"encryptionPublicKey" validate:"required,base64"`
}

type UserKeyHashField struct {
	Bytes     string `json:"bytes" validate:"required,base64"`
	Encoding  string `json:"encoding"`
	Algorithm string `json:"algorithm" validate:"required"`
}

// AttestationResponse is the TEE's attestation payload.
type AttestationResponse struct {
	Quote         string `json:"quote" validate:"required,hexadecimal"`
	PublicKey     string `json:"publicKey" validate:"required,base64"`
	EventLog      string `json:"event_log" validate:"required"`
	HashAlgorithm string `json:"hash_algorithm"`
	Prefix        string `json:"prefix"`
}

// PublicKeyResponse is the development-mode attestation bypass payload.
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey" validate:"required,base64"`
}
