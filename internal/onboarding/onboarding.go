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

// Package onboarding provides the four handlers a host shell drives
// (start-onboarding, complete-onboarding, get-status, sign), wiring
// the identity, attestation, HPKE, user-key, FPE, and curve-key
// components into a small client-side state machine. Each handler is
// independently timed out rather than sharing one connection
// lifecycle.
package onboarding

import (
	"context"
	"crypto/ecdh"
	"fmt"
	"time"

	"github.com/crossmint/signer-frames/internal/apiclient"
	"github.com/crossmint/signer-frames/internal/codec"
	"github.com/crossmint/signer-frames/internal/config"
	"github.com/crossmint/signer-frames/internal/cryptoprim"
	"github.com/crossmint/signer-frames/internal/curvekeys"
	"github.com/crossmint/signer-frames/internal/fpe"
	"github.com/crossmint/signer-frames/internal/identity"
	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/signererrors"
	"github.com/crossmint/signer-frames/internal/userkey"
)

// Status is one of the two client-visible onboarding states, plus the
// error variant every handler can also produce.
type Status string

const (
	StatusNewDevice Status = "new-device"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// Response is the wrapped handler result: success variants use the
// per-handler contract, failures collapse to {status: error, error,
// code?}.
type Response struct {
	Status     Status               `json:"status"`
	PublicKeys map[string]string    `json:"public_keys,omitempty"`
	Signature  *curvekeys.Signature `json:"signature,omitempty"`
	PublicKey  string               `json:"public_key,omitempty"`
	Error      string               `json:"error,omitempty"`
	Code       string               `json:"code,omitempty"`
}

// TEEKeyProvider resolves the attested TEE public key.
type TEEKeyProvider interface {
	GetKey() (*ecdh.PublicKey, error)
}

// API is the subset of internal/apiclient.API the orchestrator drives.
type API interface {
	StartOnboarding(ctx context.Context, req *apiclient.StartOnboardingRequest, auth *apiclient.AuthData) (*apiclient.StartOnboardingResponse, error)
	CompleteOnboarding(ctx context.Context, req *apiclient.CompleteOnboardingRequest, auth *apiclient.AuthData) (*apiclient.EncryptedMasterSecretResponse, error)
}

// UserKeyManager is the subset of internal/userkey.Manager the
// orchestrator drives.
type UserKeyManager interface {
	TryGetMasterSecret(ctx context.Context, deviceID string, auth *apiclient.AuthData) ([userkey.SeedSize]byte, bool, error)
	Ingest(deviceID string, record *apiclient.EncryptedMasterSecretResponse)
}

// IdentityStore is the subset of internal/identity.Store the
// orchestrator drives.
type IdentityStore interface {
	Init(ctx context.Context) error
	GetKeyPair() (*identity.KeyPair, error)
}

// Orchestrator wires the core's components into the four handlers.
type Orchestrator struct {
	identity IdentityStore
	teeKey   TEEKeyProvider
	api      API
	users    UserKeyManager
	timeout  time.Duration
	log      logger.Logger
}

// New constructs an Orchestrator. timeout is the per-handler soft
// wall-clock budget (default: config.Default().HandlerTimeout).
func New(identityStore IdentityStore, teeKey TEEKeyProvider, api API, users UserKeyManager, timeout time.Duration, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	if timeout <= 0 {
		timeout = config.Default().HandlerTimeout
	}
	return &Orchestrator{identity: identityStore, teeKey: teeKey, api: api, users: users, timeout: timeout, log: log}
}

// StartOnboarding reports ready (with public keys) if the master
// secret is already recoverable, and otherwise registers this device
// with the backend and reports new-device.
func (o *Orchestrator) StartOnboarding(ctx context.Context, authID string, auth *apiclient.AuthData) Response {
	return o.handle(ctx, func(ctx context.Context) Response {
		pair, deviceID, err := o.identityInfo(ctx)
		if err != nil {
			return errorResponse(err)
		}

		seed, ok, err := o.users.TryGetMasterSecret(ctx, deviceID, auth)
		if err != nil {
			return errorResponse(err)
		}
		if ok {
			pubs, err := derivePublicKeys(seed[:])
			if err != nil {
				return errorResponse(err)
			}
			return Response{Status: StatusReady, PublicKeys: pubs}
		}

		_, err = o.api.StartOnboarding(ctx, &apiclient.StartOnboardingRequest{
			AuthID:            authID,
			EncryptionContext: apiclient.EncryptionContext{PublicKey: pair.SerializedPublicKey()},
			DeviceID:          deviceID,
		}, auth)
		if err != nil {
			return errorResponse(err)
		}
		return Response{Status: StatusNewDevice}
	})
}

// CompleteOnboarding decrypts the FPE-tunneled OTP, submits it to the
// backend, and recovers the master secret from the returned record.
func (o *Orchestrator) CompleteOnboarding(ctx context.Context, otpCiphertext string, auth *apiclient.AuthData) Response {
	return o.handle(ctx, func(ctx context.Context) Response {
		pair, deviceID, err := o.identityInfo(ctx)
		if err != nil {
			return errorResponse(err)
		}

		teePub, err := o.teeKey.GetKey()
		if err != nil {
			return errorResponse(err)
		}

		otp, err := o.decryptOTP(pair, teePub, otpCiphertext)
		if err != nil {
			return errorResponse(err)
		}

		record, err := o.api.CompleteOnboarding(ctx, &apiclient.CompleteOnboardingRequest{
			OTP:       otp,
			PublicKey: pair.SerializedPublicKey(),
			DeviceID:  deviceID,
		}, auth)
		if err != nil {
			return errorResponse(err)
		}
		o.users.Ingest(deviceID, record)

		seed, ok, err := o.users.TryGetMasterSecret(ctx, deviceID, auth)
		if err != nil {
			return errorResponse(err)
		}
		if !ok {
			return errorResponse(signererrors.New(signererrors.KindHashMismatch, "master secret could not be recovered from the completed record"))
		}
		pubs, err := derivePublicKeys(seed[:])
		if err != nil {
			return errorResponse(err)
		}
		return Response{Status: StatusReady, PublicKeys: pubs}
	})
}

// GetStatus is a pure read of the user key manager's output.
func (o *Orchestrator) GetStatus(ctx context.Context, auth *apiclient.AuthData) Response {
	return o.handle(ctx, func(ctx context.Context) Response {
		_, deviceID, err := o.identityInfo(ctx)
		if err != nil {
			return errorResponse(err)
		}

		seed, ok, err := o.users.TryGetMasterSecret(ctx, deviceID, auth)
		if err != nil {
			return errorResponse(err)
		}
		if !ok {
			return Response{Status: StatusNewDevice}
		}
		pubs, err := derivePublicKeys(seed[:])
		if err != nil {
			return errorResponse(err)
		}
		return Response{Status: StatusReady, PublicKeys: pubs}
	})
}

// Sign requires a recoverable master secret, derives the requested
// curve's private key, decodes the message under its declared
// encoding, and signs.
func (o *Orchestrator) Sign(ctx context.Context, keyType curvekeys.KeyType, message string, messageEncoding codec.Encoding, auth *apiclient.AuthData) Response {
	return o.handle(ctx, func(ctx context.Context) Response {
		_, deviceID, err := o.identityInfo(ctx)
		if err != nil {
			return errorResponse(err)
		}

		seed, ok, err := o.users.TryGetMasterSecret(ctx, deviceID, auth)
		if err != nil {
			return errorResponse(err)
		}
		if !ok {
			return errorResponse(signererrors.New(signererrors.KindNotInitialized, "master secret is not recoverable; complete onboarding first"))
		}

		msgBytes, err := codec.Decode(message, messageEncoding)
		if err != nil {
			return errorResponse(err)
		}

		priv, err := curvekeys.DerivePrivateKey(keyType, seed[:])
		if err != nil {
			return errorResponse(err)
		}
		pub, err := curvekeys.DerivePublicKey(keyType, priv)
		if err != nil {
			return errorResponse(err)
		}
		sig, err := curvekeys.Sign(keyType, priv, msgBytes)
		if err != nil {
			return errorResponse(err)
		}
		return Response{Status: StatusReady, Signature: &sig, PublicKey: pub}
	})
}

func (o *Orchestrator) identityInfo(ctx context.Context) (*identity.KeyPair, string, error) {
	if err := o.identity.Init(ctx); err != nil {
		return nil, "", err
	}
	pair, err := o.identity.GetKeyPair()
	if err != nil {
		return nil, "", err
	}
	deviceID, err := identity.DeviceID(pair)
	if err != nil {
		return nil, "", err
	}
	return pair, deviceID, nil
}

// decryptOTP derives the session's FF1 key/tweak pair from the
// client's persistent identity and the attested TEE public key and
// uses it to recover the OTP plaintext.
func (o *Orchestrator) decryptOTP(pair *identity.KeyPair, teePub *ecdh.PublicKey, ciphertext string) (string, error) {
	key, err := cryptoprim.DeriveAESKey(pair.PrivateKey(), teePub)
	if err != nil {
		return "", err
	}
	tweak, err := cryptoprim.DeriveFF1TweakKey(pair.PrivateKey(), teePub)
	if err != nil {
		return "", err
	}
	svc, err := fpe.New(key, tweak)
	if err != nil {
		return "", err
	}
	return svc.Decrypt(ciphertext)
}

// handle runs fn with a soft wall-clock timeout: past the budget,
// handle synthesizes an error response without forcibly cancelling fn,
// which keeps running in the background and is simply abandoned.
func (o *Orchestrator) handle(ctx context.Context, fn func(context.Context) Response) Response {
	resultCh := make(chan Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- errorResponse(fmt.Errorf("onboarding: handler panicked: %v", r))
			}
		}()
		resultCh <- fn(ctx)
	}()

	select {
	case res := <-resultCh:
		return res
	case <-time.After(o.timeout):
		o.log.Warn("onboarding handler exceeded its timeout budget", logger.Duration("timeout", o.timeout))
		return errorResponse(signererrors.New(signererrors.KindTimeout, "handler exceeded its timeout budget"))
	}
}

// derivePublicKeys derives both curves' public keys from seed
// concurrently and joins the results; the two derivations are
// independent of each other.
func derivePublicKeys(seed []byte) (map[string]string, error) {
	types := []curvekeys.KeyType{curvekeys.Ed25519, curvekeys.Secp256k1}

	type result struct {
		kt  curvekeys.KeyType
		pub string
		err error
	}
	ch := make(chan result, len(types))
	for _, kt := range types {
		kt := kt
		go func() {
			priv, err := curvekeys.DerivePrivateKey(kt, seed)
			if err != nil {
				ch <- result{kt: kt, err: err}
				return
			}
			pub, err := curvekeys.DerivePublicKey(kt, priv)
			ch <- result{kt: kt, pub: pub, err: err}
		}()
	}

	out := make(map[string]string, len(types))
	var firstErr error
	for range types {
		r := <-ch
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[string(r.kt)] = r.pub
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// errorResponse converts any error into the {status: error, error,
// code?} shape. Only the closed set of codes in internal/signererrors
// is re-exposed as a machine-readable code.
func errorResponse(err error) Response {
	resp := Response{Status: StatusError, Error: err.Error()}
	if se, ok := signererrors.As(err); ok {
		if code, has := se.Code(); has {
			resp.Code = code
		}
	}
	return resp
}
