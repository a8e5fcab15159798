package signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossmint/signer-frames/internal/apiclient"
	"github.com/crossmint/signer-frames/internal/config"
)

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{data: make(map[string][]byte)} }

func (m *memStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// newTestSigner wires a Signer against an httptest backend with the
// development attestation bypass enabled, mirroring how a host shell
// would stand up the core against a local signer-backend instance.
func newTestSigner(t *testing.T, handler http.Handler) (*Signer, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	cfg := config.Default()
	cfg.BaseURLOverride = server.URL
	cfg.Attestation.DevBypass = true

	s, err := New(Options{
		Config:  cfg,
		Storage: newMemStorage(),
		ApiKey:  "sk_development_testkey",
		AppID:   "test-app",
	})
	require.NoError(t, err)
	return s, server
}

func TestNewRejectsMalformedAPIKey(t *testing.T) {
	_, err := New(Options{Storage: newMemStorage(), ApiKey: "not-a-valid-key", AppID: "app"})
	assert.Error(t, err)
}

func TestInitWithDevBypassFetchesPublicKey(t *testing.T) {
	s, server := newTestSigner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/signers/attestation/public-key", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(apiclient.PublicKeyResponse{PublicKey: "a2V5LWJ5dGVzLWJ5dGVzLWJ5dGVzLWJ5dGVzIQ=="})
	}))
	defer server.Close()

	err := s.Init(context.Background())
	require.NoError(t, err)

	key, err := s.attestation.GetAttestedPublicKey()
	require.NoError(t, err)
	assert.Equal(t, "a2V5LWJ5dGVzLWJ5dGVzLWJ5dGVzLWJ5dGVzIQ==", key)
}

func TestGetStatusBeforeInitResolvesToNewDevice(t *testing.T) {
	// Before Init, the attestation verifier has no attested key, so the
	// user key manager's attempt to recover a master secret fails; that
	// resolves to "no master secret" rather than an error, so the
	// handler reports a new device instead of failing.
	s, server := newTestSigner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp := s.GetStatus(context.Background(), nil)
	assert.Equal(t, StatusNewDevice, resp.Status)
}

func TestStringIdentifiesEnvironmentAndAppID(t *testing.T) {
	s, server := newTestSigner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	assert.Contains(t, s.String(), "development")
	assert.Contains(t, s.String(), "test-app")
}
