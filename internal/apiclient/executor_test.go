package apiclient

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossmint/signer-frames/internal/config"
	"github.com/crossmint/signer-frames/internal/hpkechannel"
	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/signererrors"
)

func discardLogger() logger.Logger { return logger.New(io.Discard, logger.FatalLevel) }

type memIdentity struct {
	priv *ecdh.PrivateKey
}

func newMemIdentity(t *testing.T) *memIdentity {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &memIdentity{priv: priv}
}

func (m *memIdentity) PrivateKey() *ecdh.PrivateKey { return m.priv }
func (m *memIdentity) PublicKey() *ecdh.PublicKey   { return m.priv.PublicKey() }

type fixedTEEKey struct {
	priv *ecdh.PrivateKey
}

func (f *fixedTEEKey) GetKey() (*ecdh.PublicKey, error) { return f.priv.PublicKey(), nil }

func testConfig(serverURL string) config.Config {
	cfg := config.Default()
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	cfg.BaseURLOverride = serverURL
	return cfg
}

type echoPayload struct {
	Value string `json:"value" validate:"required"`
}

func TestExecutePlainGETDecodesAndValidatesOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/signers/attestation", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(AttestationResponse{
			Quote:     "aa",
			PublicKey: base64.StdEncoding.EncodeToString([]byte("pub")),
			EventLog:  "[]",
		})
	}))
	defer server.Close()

	exec := &Executor{httpClient: server.Client(), cfg: testConfig(server.URL), log: discardLogger()}

	var out AttestationResponse
	err := exec.Execute(context.Background(), Spec{
		Method:     "GET",
		EndpointFn: func(interface{}) string { return "/attestation" },
		Output:     &out,
		SkipInput:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "aa", out.Quote)
}

func TestExecuteNonSuccessStatusReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"unknown device"}`))
	}))
	defer server.Close()

	exec := &Executor{httpClient: server.Client(), cfg: testConfig(server.URL), log: discardLogger()}

	err := exec.Execute(context.Background(), Spec{
		Method:     "GET",
		EndpointFn: func(interface{}) string { return "/nope" },
		SkipInput:  true,
	})
	require.Error(t, err)
	assert.True(t, signererrors.Is(err, signererrors.KindHTTPError))
}

func TestExecuteRetriesOnRetryableStatusThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PublicKeyResponse{PublicKey: base64.StdEncoding.EncodeToString([]byte("k"))})
	}))
	defer server.Close()

	exec := &Executor{httpClient: server.Client(), cfg: testConfig(server.URL), log: discardLogger()}

	var out PublicKeyResponse
	err := exec.Execute(context.Background(), Spec{
		Method:     "GET",
		EndpointFn: func(interface{}) string { return "/attestation/public-key" },
		Output:     &out,
		SkipInput:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteEncryptedRoundTripSealsAndOpensWithTEEKey(t *testing.T) {
	identity := newMemIdentity(t)
	teePriv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope EncryptedEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
		require.NoError(t, err)
		encapsulatedKey, err := base64.StdEncoding.DecodeString(envelope.EncapsulatedKey)
		require.NoError(t, err)

		clientPubBytes, err := base64.StdEncoding.DecodeString(envelope.PublicKey)
		require.NoError(t, err)
		clientPub, err := ecdh.P256().NewPublicKey(clientPubBytes)
		require.NoError(t, err)

		// Confirm the envelope's advertised sender key matches the
		// identity under test, then reply with an auth-mode envelope
		// addressed back to it.
		assert.Equal(t, identity.PublicKey().Bytes(), clientPub.Bytes())
		_ = ciphertext
		_ = encapsulatedKey

		data, err := json.Marshal(echoPayload{Value: "pong"})
		require.NoError(t, err)
		sealed, err := hpkechannel.EncryptFromTEEForTest(teePriv, clientPub, data)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(EncryptedEnvelope{
			Ciphertext:      base64.StdEncoding.EncodeToString(sealed.Ciphertext),
			EncapsulatedKey: base64.StdEncoding.EncodeToString(sealed.EncapsulatedKey),
			PublicKey:       base64.StdEncoding.EncodeToString(teePriv.PublicKey().Bytes()),
		})
	}))
	defer server.Close()

	exec := &Executor{
		httpClient: server.Client(),
		cfg:        testConfig(server.URL),
		identity:   identity,
		teeKey:     &fixedTEEKey{priv: teePriv},
		log:        discardLogger(),
	}

	var out echoPayload
	err = exec.Execute(context.Background(), Spec{
		Method:     "POST",
		EndpointFn: func(interface{}) string { return "/complete-onboarding" },
		Input:      &echoPayload{Value: "ping"},
		Output:     &out,
		Encrypted:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", out.Value)
}
