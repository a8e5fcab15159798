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

package apiclient

import (
	"context"
	"fmt"

	"github.com/crossmint/signer-frames/internal/config"
	"github.com/crossmint/signer-frames/internal/logger"
)

// API is the façade over the Request Executor: it fixes method, path,
// encryption flag, and schemas for each named signer-backend operation
// so callers never construct a Spec by hand.
type API struct {
	executor *Executor
	log      logger.Logger
}

// NewAPI constructs an API façade around an Executor.
func NewAPI(cfg config.Config, environment config.Environment, identity ClientIdentity, teeKey TEEKeyProvider, appID string, log logger.Logger) *API {
	if log == nil {
		log = logger.Default()
	}
	return &API{
		executor: NewExecutor(cfg, environment, identity, teeKey, appID, log),
		log:      log,
	}
}

// StartOnboarding registers a new device identity with the backend
// (unencrypted POST /start-onboarding).
func (a *API) StartOnboarding(ctx context.Context, req *StartOnboardingRequest, auth *AuthData) (*StartOnboardingResponse, error) {
	var out StartOnboardingResponse
	err := a.executor.Execute(ctx, Spec{
		Method:     "POST",
		EndpointFn: func(interface{}) string { return "/start-onboarding" },
		Input:      req,
		Output:     &out,
		Encrypted:  false,
		Auth:       auth,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteOnboarding submits the FPE-decrypted OTP plaintext to the
// backend as an HPKE-encrypted POST /complete-onboarding body.
func (a *API) CompleteOnboarding(ctx context.Context, req *CompleteOnboardingRequest, auth *AuthData) (*EncryptedMasterSecretResponse, error) {
	var out EncryptedMasterSecretResponse
	err := a.executor.Execute(ctx, Spec{
		Method:     "POST",
		EndpointFn: func(interface{}) string { return "/complete-onboarding" },
		Input:      req,
		Output:     &out,
		Encrypted:  true,
		Auth:       auth,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEncryptedMasterSecret fetches the caller's encrypted master secret
// record (GET /{device_id}/encrypted-user-key).
func (a *API) GetEncryptedMasterSecret(ctx context.Context, deviceID string, auth *AuthData) (*EncryptedMasterSecretResponse, error) {
	var out EncryptedMasterSecretResponse
	err := a.executor.Execute(ctx, Spec{
		Method:     "GET",
		EndpointFn: func(interface{}) string { return fmt.Sprintf("/%s/encrypted-user-key", deviceID) },
		Input:      nil,
		Output:     &out,
		Encrypted:  false,
		Auth:       auth,
		SkipInput:  true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAttestation fetches the TEE's current attestation quote, public
// key, and event log (GET /attestation).
func (a *API) GetAttestation(ctx context.Context) (*AttestationResponse, error) {
	var out AttestationResponse
	err := a.executor.Execute(ctx, Spec{
		Method:     "GET",
		EndpointFn: func(interface{}) string { return "/attestation" },
		Input:      nil,
		Output:     &out,
		Encrypted:  false,
		SkipInput:  true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPublicKey fetches the TEE public key directly without attestation
// verification. It exists only for the development-mode bypass path
// and must never be reachable when DevBypass is disabled.
func (a *API) GetPublicKey(ctx context.Context) (*PublicKeyResponse, error) {
	var out PublicKeyResponse
	err := a.executor.Execute(ctx, Spec{
		Method:     "GET",
		EndpointFn: func(interface{}) string { return "/attestation/public-key" },
		Input:      nil,
		Output:     &out,
		Encrypted:  false,
		SkipInput:  true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
