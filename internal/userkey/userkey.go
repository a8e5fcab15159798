// Package userkey recovers the user's master secret: it fetches (or
// serves from cache) the encrypted master-secret record, derives the
// ECDH-based unwrap key, decrypts the secret, and verifies its hash
// before ever returning it.
package userkey

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/crossmint/signer-frames/internal/apiclient"
	"github.com/crossmint/signer-frames/internal/cache"
	"github.com/crossmint/signer-frames/internal/cryptoprim"
	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/signererrors"
)

// SeedSize is the fixed length of the recovered master secret.
const SeedSize = 32

// ClientIdentity is the subset of internal/identity.KeyPair the manager
// needs to derive the unwrap key.
type ClientIdentity interface {
	PrivateKey() *ecdh.PrivateKey
	PublicKey() *ecdh.PublicKey
}

// TEEKeyProvider resolves the attested TEE public key.
type TEEKeyProvider interface {
	GetKey() (*ecdh.PublicKey, error)
}

// Fetcher is the subset of internal/apiclient.API the manager depends
// on, kept as an interface so tests can substitute a stub backend.
type Fetcher interface {
	GetEncryptedMasterSecret(ctx context.Context, deviceID string, auth *apiclient.AuthData) (*apiclient.EncryptedMasterSecretResponse, error)
}

const cacheKeyPrefix = "encrypted-master-secret:"

// Manager recovers and caches master secrets. Its only state is an
// in-memory cache of the most recently fetched encrypted master-secret
// record per device id.
type Manager struct {
	api      Fetcher
	identity ClientIdentity
	teeKey   TEEKeyProvider
	cache    *cache.TTLCache
	log      logger.Logger
}

// New constructs a Manager.
func New(api Fetcher, identity ClientIdentity, teeKey TEEKeyProvider, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{api: api, identity: identity, teeKey: teeKey, cache: cache.New(), log: log}
}

// Ingest caches a record obtained by some other call than
// GetEncryptedMasterSecret; the complete-onboarding handler receives
// the record directly in the backend's response.
func (m *Manager) Ingest(deviceID string, record *apiclient.EncryptedMasterSecretResponse) {
	m.cache.Set(cacheKeyPrefix+deviceID, record, 0)
}

// TryGetMasterSecret recovers the seed: cache -> API, then AES-GCM
// decrypt and SHA-256 hash verification.
//
// ok is false whenever the master secret could not be recovered for a
// reason other than tampering; a 404 from the backend simply means
// this device has not completed onboarding. A HashMismatch is returned
// as an error because it signals corruption or tampering, never
// silently swallowed.
func (m *Manager) TryGetMasterSecret(ctx context.Context, deviceID string, auth *apiclient.AuthData) (seed [SeedSize]byte, ok bool, err error) {
	record, fetchErr := m.getRecord(ctx, deviceID, auth)
	if fetchErr != nil {
		m.log.Warn("encrypted master secret unavailable", logger.String("device_id", deviceID), logger.Error(fetchErr))
		return seed, false, nil
	}

	seed, recoverErr := m.recoverSeed(record)
	if recoverErr != nil {
		if signererrors.Is(recoverErr, signererrors.KindHashMismatch) {
			return [SeedSize]byte{}, false, recoverErr
		}
		m.log.Warn("master secret recovery failed", logger.String("device_id", deviceID), logger.Error(recoverErr))
		return [SeedSize]byte{}, false, nil
	}
	return seed, true, nil
}

func (m *Manager) getRecord(ctx context.Context, deviceID string, auth *apiclient.AuthData) (*apiclient.EncryptedMasterSecretResponse, error) {
	key := cacheKeyPrefix + deviceID
	if v, hit := m.cache.Get(key); hit {
		return v.(*apiclient.EncryptedMasterSecretResponse), nil
	}

	record, err := m.api.GetEncryptedMasterSecret(ctx, deviceID, auth)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key, record, 0)
	return record, nil
}

func (m *Manager) recoverSeed(record *apiclient.EncryptedMasterSecretResponse) ([SeedSize]byte, error) {
	var seed [SeedSize]byte

	blob, err := base64.StdEncoding.DecodeString(record.EncryptedUserKey.Bytes)
	if err != nil {
		return seed, fmt.Errorf("userkey: invalid encryptedUserKey.bytes base64: %w", err)
	}

	if record.Signature != "" {
		if err := verifyLegacySignature(blob, record.SigningPublicKey, record.Signature); err != nil {
			return seed, err
		}
	}

	teePub, err := m.teeKey.GetKey()
	if err != nil {
		return seed, err
	}
	key, err := cryptoprim.DeriveAESKey(m.identity.PrivateKey(), teePub)
	if err != nil {
		return seed, err
	}

	plaintext, err := cryptoprim.AESGCMDecrypt(key, blob, nil)
	if err != nil {
		return seed, fmt.Errorf("userkey: decrypt encrypted master secret: %w", err)
	}
	if len(plaintext) != SeedSize {
		return seed, fmt.Errorf("userkey: decrypted master secret is %d bytes, want %d", len(plaintext), SeedSize)
	}

	wantHash, err := base64.StdEncoding.DecodeString(record.UserKeyHash.Bytes)
	if err != nil {
		return seed, fmt.Errorf("userkey: invalid userKeyHash.bytes base64: %w", err)
	}
	gotHash := sha256.Sum256(plaintext)
	if !bytes.Equal(gotHash[:], wantHash) {
		return seed, signererrors.New(signererrors.KindHashMismatch, "decrypted master secret does not match its declared hash")
	}

	copy(seed[:], plaintext)
	return seed, nil
}

// verifyLegacySignature checks the older signed master-secret variant:
// ciphertext must be signed by signingPublicKeyB64 under ECDSA
// P-256/SHA-256. The current (AES-GCM only) record shape never sets
// this field; when it is set, the signature is verified rather than
// silently ignored.
func verifyLegacySignature(ciphertext []byte, signingPublicKeyB64, signatureB64 string) error {
	pubBytes, err := base64.StdEncoding.DecodeString(signingPublicKeyB64)
	if err != nil {
		return signererrors.Wrap(signererrors.KindHashMismatch, "legacy signingPublicKey is not valid base64", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return signererrors.Wrap(signererrors.KindHashMismatch, "legacy signature is not valid base64", err)
	}

	pubAny, err := x509.ParsePKIXPublicKey(pubBytes)
	if err != nil {
		return signererrors.Wrap(signererrors.KindHashMismatch, "legacy signingPublicKey is not a valid SPKI key", err)
	}
	pub, ok := pubAny.(*ecdsa.PublicKey)
	if !ok {
		return signererrors.New(signererrors.KindHashMismatch, "legacy signingPublicKey is not an ECDSA key")
	}

	digest := sha256.Sum256(ciphertext)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return signererrors.New(signererrors.KindHashMismatch, "legacy master-secret signature does not verify")
	}
	return nil
}
