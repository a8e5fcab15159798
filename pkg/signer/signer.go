// Package signer is the public entry point of the signer core: it
// wires the persistent key store, attestation verifier, TEE key
// provider, API façade, user key manager, and onboarding orchestrator
// into the four handlers a host shell drives. Configuration is applied
// once at construction rather than threaded through every call.
package signer

import (
	"context"
	"crypto/ecdh"
	"fmt"

	"github.com/crossmint/signer-frames/internal/apiclient"
	"github.com/crossmint/signer-frames/internal/attestation"
	"github.com/crossmint/signer-frames/internal/codec"
	"github.com/crossmint/signer-frames/internal/config"
	"github.com/crossmint/signer-frames/internal/curvekeys"
	"github.com/crossmint/signer-frames/internal/identity"
	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/onboarding"
	"github.com/crossmint/signer-frames/internal/signererrors"
	"github.com/crossmint/signer-frames/internal/teekey"
	"github.com/crossmint/signer-frames/internal/userkey"
)

// Response re-exports the onboarding handler result shape so callers
// never import internal/onboarding directly.
type Response = onboarding.Response

// Status re-exports the onboarding handler status values.
type Status = onboarding.Status

const (
	StatusNewDevice = onboarding.StatusNewDevice
	StatusReady     = onboarding.StatusReady
	StatusError     = onboarding.StatusError
)

// KeyType re-exports the curve key service's supported signing curves.
type KeyType = curvekeys.KeyType

const (
	Ed25519   = curvekeys.Ed25519
	Secp256k1 = curvekeys.Secp256k1
)

// Encoding re-exports the byte codec's supported message encodings.
type Encoding = codec.Encoding

const (
	Hex    = codec.Hex
	Base58 = codec.Base58
	Base64 = codec.Base64
)

// AuthData is the per-call credential pair a host shell attaches to
// every handler call.
type AuthData = apiclient.AuthData

// NewAuthData validates an API key and bearer JWT's structural shape
// (internal/apiclient.NewAuthData).
func NewAuthData(apiKey, bearerJWT string) (*AuthData, error) {
	return apiclient.NewAuthData(apiKey, bearerJWT)
}

// Storage is the generic key-value adapter a host shell provides for the
// persistent identity key (internal/identity.Storage).
type Storage = identity.Storage

// QuoteVerifier is the external TDX DCAP verification boundary a host
// shell supplies (internal/attestation.QuoteVerifier). Its
// implementation (collateral fetch, quote parsing) lives outside this
// module.
type QuoteVerifier = attestation.QuoteVerifier

// identityAdapter exposes a not-yet-initialized identity.Store as the
// apiclient/userkey ClientIdentity interfaces, which take the key pair
// directly rather than the store that produces it. By the time any
// handler actually drives a request, Init has already populated the
// store, so the lazy lookup here always resolves.
type identityAdapter struct {
	store *identity.Store
}

func (a identityAdapter) PrivateKey() *ecdh.PrivateKey {
	pair, err := a.store.GetKeyPair()
	if err != nil {
		return nil
	}
	return pair.PrivateKey()
}

func (a identityAdapter) PublicKey() *ecdh.PublicKey {
	pair, err := a.store.GetKeyPair()
	if err != nil {
		return nil
	}
	return pair.PublicKey()
}

// Signer is the composition root: it owns the persistent identity, the
// attestation verifier, the TEE key provider, the backend API façade,
// the user key manager, and the onboarding orchestrator, and exposes
// the four host-facing handlers.
type Signer struct {
	cfg config.Config
	log logger.Logger

	identity    *identity.Store
	attestation *attestation.Verifier
	teeKey      *teekey.Provider
	api         *apiclient.API
	users       *userkey.Manager
	orch        *onboarding.Orchestrator
}

// Options configures New. ApiKey determines the target environment;
// AppID is the expected attested application id; QuoteVerifier is the
// injected TDX DCAP boundary.
type Options struct {
	Config        config.Config
	Storage       Storage
	QuoteVerifier QuoteVerifier
	ApiKey        string
	AppID         string
	Logger        logger.Logger
}

// New wires the one-way initialization order that keeps the component
// graph acyclic: persistent key store -> device identity -> attestation
// verifier -> TEE key provider -> API façade -> user key manager ->
// onboarding orchestrator.
//
// The returned Signer is not yet usable: call Init to generate/load the
// identity key and validate an attestation envelope before driving any
// handler.
func New(opts Options) (*Signer, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	cfg := opts.Config
	if cfg.RequestTimeout == 0 {
		cfg = config.Default()
	}

	environment, err := apiclient.ParseEnvironment(opts.ApiKey)
	if err != nil {
		return nil, err
	}
	cfg.Environment = environment
	cfg.Attestation.ExpectedAppID = opts.AppID

	idStore := identity.NewStore(opts.Storage, log)
	idAdapter := identityAdapter{store: idStore}

	verifier := attestation.New(opts.QuoteVerifier, opts.AppID, cfg.Attestation.DevBypass, log)
	teeProvider := teekey.New(verifier)

	api := apiclient.NewAPI(cfg, environment, idAdapter, teeProvider, opts.AppID, log)
	users := userkey.New(api, idAdapter, teeProvider, log)
	orch := onboarding.New(idStore, teeProvider, api, users, cfg.HandlerTimeout, log)

	return &Signer{
		cfg:         cfg,
		log:         log,
		identity:    idStore,
		attestation: verifier,
		teeKey:      teeProvider,
		api:         api,
		users:       users,
		orch:        orch,
	}, nil
}

// Init generates or loads the persistent identity key and fetches and
// validates the current attestation envelope. It must succeed before
// any handler is driven; handlers called beforehand fail with
// NotInitialized.
func (s *Signer) Init(ctx context.Context) error {
	if err := s.identity.Init(ctx); err != nil {
		return err
	}

	if s.cfg.Attestation.DevBypass {
		resp, err := s.api.GetPublicKey(ctx)
		if err != nil {
			return err
		}
		_, err = s.attestation.Verify(ctx, attestation.Envelope{PublicKey: resp.PublicKey})
		return err
	}

	att, err := s.api.GetAttestation(ctx)
	if err != nil {
		return err
	}
	_, err = s.attestation.Verify(ctx, attestation.Envelope{
		Quote:     mustDecodeHexQuote(att.Quote),
		PublicKey: att.PublicKey,
		EventLog:  []byte(att.EventLog),
	})
	if err != nil {
		return signererrors.Wrap(signererrors.KindInvalidTEEStatus, "attestation envelope rejected", err)
	}
	return nil
}

func mustDecodeHexQuote(quoteHex string) []byte {
	b, err := codec.Decode(quoteHex, codec.Hex)
	if err != nil {
		return nil
	}
	return b
}

// StartOnboarding registers this device or reports it ready.
func (s *Signer) StartOnboarding(ctx context.Context, authID string, auth *AuthData) Response {
	return s.orch.StartOnboarding(ctx, authID, auth)
}

// CompleteOnboarding submits the OTP and recovers the master secret.
func (s *Signer) CompleteOnboarding(ctx context.Context, otpCiphertext string, auth *AuthData) Response {
	return s.orch.CompleteOnboarding(ctx, otpCiphertext, auth)
}

// GetStatus reports whether the master secret is recoverable.
func (s *Signer) GetStatus(ctx context.Context, auth *AuthData) Response {
	return s.orch.GetStatus(ctx, auth)
}

// Sign signs a message with a key derived from the master secret.
func (s *Signer) Sign(ctx context.Context, keyType KeyType, message string, messageEncoding Encoding, auth *AuthData) Response {
	return s.orch.Sign(ctx, keyType, message, messageEncoding, auth)
}

// String identifies the configured environment and application for
// diagnostic logging.
func (s *Signer) String() string {
	return fmt.Sprintf("signer(environment=%s, app_id=%s)", s.cfg.Environment, s.cfg.Attestation.ExpectedAppID)
}
