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
	"bytes"
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/crossmint/signer-frames/internal/backoff"
	"github.com/crossmint/signer-frames/internal/config"
	"github.com/crossmint/signer-frames/internal/hpkechannel"
	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/schema"
	"github.com/crossmint/signer-frames/internal/signererrors"
)

// ClientIdentity is the subset of internal/identity.KeyPair the
// executor needs to seal/open HPKE envelopes.
type ClientIdentity interface {
	PrivateKey() *ecdh.PrivateKey
	PublicKey() *ecdh.PublicKey
}

// TEEKeyProvider resolves the attested TEE public key (internal/teekey.Provider).
type TEEKeyProvider interface {
	GetKey() (*ecdh.PublicKey, error)
}

// EndpointFn renders the path suffix for a request given its input.
type EndpointFn func(input interface{}) string

// Spec fixes one named operation's method, path, schemas, and
// encryption flag.
type Spec struct {
	Method     string
	EndpointFn EndpointFn
	Input      interface{}
	Output     interface{} // pointer; decoded into and schema-validated
	Encrypted  bool
	Auth       *AuthData
	SkipInput  bool // true for GET requests with no body to validate
}

// Executor runs schema-validated, optionally encrypted HTTP requests
// against the signer backend with bounded retry.
type Executor struct {
	httpClient  *http.Client
	cfg         config.Config
	environment config.Environment
	identity    ClientIdentity
	teeKey      TEEKeyProvider
	appID       string // optional application identifier header value
	log         logger.Logger
}

// NewExecutor constructs an Executor bound to a fixed environment, the
// client's persistent identity key pair, and a TEE key provider.
func NewExecutor(cfg config.Config, environment config.Environment, identity ClientIdentity, teeKey TEEKeyProvider, appID string, log logger.Logger) *Executor {
	if log == nil {
		log = logger.Default()
	}
	return &Executor{
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:         cfg,
		environment: environment,
		identity:    identity,
		teeKey:      teeKey,
		appID:       appID,
		log:         log,
	}
}

// Execute runs spec end to end: input validation, URL/header
// construction, optional HPKE encryption, retrying HTTP delivery, and
// response decryption/decoding/validation.
func (e *Executor) Execute(ctx context.Context, spec Spec) error {
	if !spec.SkipInput {
		if err := schema.ValidateInput(spec.Input); err != nil {
			return err
		}
	}

	baseURL := e.cfg.BaseURLOverride
	if baseURL == "" {
		var err error
		baseURL, err = config.BaseURL(e.environment)
		if err != nil {
			return signererrors.Wrap(signererrors.KindInvalidAPIKey, "unknown environment", err)
		}
	}
	url := baseURL + "/api/v1/signers" + spec.EndpointFn(spec.Input)

	body, err := e.buildBody(spec)
	if err != nil {
		return err
	}

	requestID := uuid.NewString()
	log := e.log.WithFields(logger.String("request_id", requestID), logger.String("url", url))

	respBody, status, retryAfterHeader, err := e.deliverWithRetry(ctx, spec.Method, url, body, spec, requestID)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		var decoded map[string]interface{}
		_ = json.Unmarshal(respBody, &decoded)
		log.Warn("request executor received non-2xx response", logger.Int("status", status))
		return signererrors.New(signererrors.KindHTTPError, fmt.Sprintf("%d %s %s", status, http.StatusText(status), url)).
			WithDetails("status", status).
			WithDetails("url", url).
			WithDetails("body", decoded).
			WithDetails("retry_after", retryAfterHeader)
	}

	if err := e.decodeResponse(respBody, spec); err != nil {
		return err
	}

	if spec.Output != nil {
		if err := schema.ValidateOutput(spec.Output); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) buildBody(spec Spec) ([]byte, error) {
	if spec.Input == nil {
		return nil, nil
	}
	if !spec.Encrypted {
		data, err := json.Marshal(spec.Input)
		if err != nil {
			return nil, fmt.Errorf("apiclient: marshal request body: %w", err)
		}
		return data, nil
	}

	teePub, err := e.teeKey.GetKey()
	if err != nil {
		return nil, err
	}
	sealed, err := hpkechannel.EncryptToTEE(e.identity.PublicKey(), teePub, spec.Input)
	if err != nil {
		return nil, err
	}
	envelope := EncryptedEnvelope{
		Ciphertext:      base64.StdEncoding.EncodeToString(sealed.Ciphertext),
		EncapsulatedKey: base64.StdEncoding.EncodeToString(sealed.EncapsulatedKey),
		PublicKey:       base64.StdEncoding.EncodeToString(sealed.SenderPublicKey),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("apiclient: marshal encrypted envelope: %w", err)
	}
	return data, nil
}

// deliverWithRetry issues the HTTP request, retrying on network errors
// or retry-eligible statuses up to the configured budget. A bounded
// iterative loop keeps stack depth flat and cancellation explicit.
func (e *Executor) deliverWithRetry(ctx context.Context, method, url string, body []byte, spec Spec, requestID string) (respBody []byte, status int, retryAfter string, err error) {
	for retryCount := 0; ; retryCount++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, url, reader)
		if reqErr != nil {
			return nil, 0, "", fmt.Errorf("apiclient: build request: %w", reqErr)
		}
		e.setHeaders(req, spec, requestID)

		resp, doErr := e.httpClient.Do(req)
		if doErr != nil {
			if retryCount < e.cfg.Retry.MaxRetries {
				e.sleepBeforeRetry(ctx, retryCount, nil)
				continue
			}
			return nil, 0, "", signererrors.Wrap(signererrors.KindHTTPError, "transport error contacting signer backend", doErr)
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, 0, "", fmt.Errorf("apiclient: read response body: %w", readErr)
		}

		retryAfterHeader := resp.Header.Get("Retry-After")
		cfgRetry := backoffConfigFrom(e.cfg)
		if backoff.ShouldRetry(resp.StatusCode, retryCount, cfgRetry) {
			var retryAfterSeconds *int
			if v, convErr := strconv.Atoi(retryAfterHeader); convErr == nil {
				retryAfterSeconds = &v
			}
			e.sleepBeforeRetry(ctx, retryCount, retryAfterSeconds)
			continue
		}

		return data, resp.StatusCode, retryAfterHeader, nil
	}
}

func (e *Executor) sleepBeforeRetry(ctx context.Context, retryCount int, retryAfterSeconds *int) {
	delay := backoff.NextDelay(retryCount, backoffConfigFrom(e.cfg), retryAfterSeconds)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

func backoffConfigFrom(cfg config.Config) backoff.Config {
	codes := make(map[int]bool, len(cfg.Retry.RetryStatusCodes))
	for _, code := range cfg.Retry.RetryStatusCodes {
		codes[code] = true
	}
	return backoff.Config{
		MaxRetries:       cfg.Retry.MaxRetries,
		InitialDelay:     cfg.Retry.InitialDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
		BackoffFactor:    cfg.Retry.BackoffFactor,
		RetryStatusCodes: codes,
	}
}

func (e *Executor) setHeaders(req *http.Request, spec Spec, requestID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if e.appID != "" {
		req.Header.Set("X-Application-Id", e.appID)
	}
	if spec.Auth != nil {
		req.Header.Set("Authorization", "Bearer "+spec.Auth.JWT)
		req.Header.Set("x-api-key", spec.Auth.APIKey)
	}
}

func (e *Executor) decodeResponse(respBody []byte, spec Spec) error {
	if spec.Output == nil {
		return nil
	}
	if !spec.Encrypted {
		if err := json.Unmarshal(respBody, spec.Output); err != nil {
			return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "failed to decode response body", err)
		}
		return nil
	}

	var envelope EncryptedEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "failed to decode encrypted envelope", err)
	}
	for _, field := range []string{envelope.Ciphertext, envelope.EncapsulatedKey, envelope.PublicKey} {
		if err := schema.Var(field, "base64"); err != nil {
			return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "encrypted envelope field is not valid base64", err)
		}
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "invalid ciphertext base64", err)
	}
	encapsulatedKey, err := base64.StdEncoding.DecodeString(envelope.EncapsulatedKey)
	if err != nil {
		return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "invalid encapsulated key base64", err)
	}

	teePub, err := e.teeKey.GetKey()
	if err != nil {
		return err
	}
	data, err := hpkechannel.DecryptFromTEE(e.identity.PrivateKey(), teePub, &hpkechannel.Sealed{
		Ciphertext:      ciphertext,
		EncapsulatedKey: encapsulatedKey,
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, spec.Output); err != nil {
		return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "failed to decode decrypted payload", err)
	}
	return nil
}
