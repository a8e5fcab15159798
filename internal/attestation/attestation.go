// Package attestation validates a TEE attestation envelope end to end:
// quote status, TD report extraction, RTMR3 replay over the application
// event log, application identity checks, and public-key binding. On
// success it exposes the envelope's public key as trusted.
//
// The Intel TDX quote verification library and its DCAP collateral
// fetch live behind the QuoteVerifier interface; their implementation
// is supplied by the host, not this package.
package attestation

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crossmint/signer-frames/internal/logger"
	"github.com/crossmint/signer-frames/internal/signererrors"
)

// QuoteStatusUpToDate is the only TDX quote verification status the
// verifier accepts.
const QuoteStatusUpToDate = "UpToDate"

// TDReport is the subset of a parsed TD10/TD15 body the verifier needs.
type TDReport struct {
	Kind       string // "TD10" or "TD15"
	ReportData string // 128 hex chars (64 bytes, SHA-512 sized)
	RTMR3      string // 96 hex chars (48 bytes, SHA-384 sized)
}

// ParsedQuote is what the external Quote Verification Library returns
// after validating a quote against fetched DCAP collateral.
type ParsedQuote struct {
	Status   string
	TDReport *TDReport
}

// QuoteVerifier is the external TDX DCAP verification boundary.
type QuoteVerifier interface {
	VerifyQuote(ctx context.Context, quote []byte, now time.Time) (*ParsedQuote, error)
}

// Envelope is the attestation payload presented to the verifier (spec
// §3's TEE Attestation Envelope).
type Envelope struct {
	Quote     []byte
	PublicKey string // base64
	EventLog  []byte // JSON array of EventLogEntry
}

// EventLogEntry is one row of the application event log.
type EventLogEntry struct {
	IMR          int    `json:"imr"`
	EventType    uint32 `json:"event_type"`
	Digest       string `json:"digest"`
	Event        string `json:"event"`
	EventPayload string `json:"event_payload"`
}

// keyProvider is the required shape of the key-provider application event.
type keyProvider struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

const (
	rtmr3           = 3
	rtmr3DigestSize = 48 // SHA-384
)

// Verifier validates attestation envelopes against a fixed expected
// application id and caches the attested public key for the life of
// the process.
type Verifier struct {
	quoteVerifier QuoteVerifier
	expectedAppID string
	devBypass     bool
	log           logger.Logger

	attestedPublicKey string
	initialized       bool
}

// New constructs a Verifier. devBypass must never be true in a
// production build.
func New(quoteVerifier QuoteVerifier, expectedAppID string, devBypass bool, log logger.Logger) *Verifier {
	if log == nil {
		log = logger.Default()
	}
	return &Verifier{
		quoteVerifier: quoteVerifier,
		expectedAppID: expectedAppID,
		devBypass:     devBypass,
		log:           log,
	}
}

// GetAttestedPublicKey returns the base64-encoded public key bound by a
// prior successful Verify call, or NotInitialized if none succeeded yet.
func (v *Verifier) GetAttestedPublicKey() (string, error) {
	if !v.initialized {
		return "", signererrors.New(signererrors.KindNotInitialized, "attestation verifier has not validated an envelope yet")
	}
	return v.attestedPublicKey, nil
}

// Verify runs the full gate chain against env: quote verification, TD
// report checks, RTMR3 replay, application identity, and public-key
// binding. When devBypass is enabled it instead trusts env.PublicKey
// directly without validating the quote, report, or event log.
func (v *Verifier) Verify(ctx context.Context, env Envelope) (string, error) {
	if v.devBypass {
		v.log.Warn("attestation verification bypassed by development switch", logger.String("app_id", v.expectedAppID))
		v.attestedPublicKey = env.PublicKey
		v.initialized = true
		return v.attestedPublicKey, nil
	}

	parsed, err := v.quoteVerifier.VerifyQuote(ctx, env.Quote, time.Now())
	if err != nil {
		return "", signererrors.Wrap(signererrors.KindInvalidTEEStatus, "quote verification failed", err)
	}
	if parsed.Status != QuoteStatusUpToDate {
		return "", signererrors.New(signererrors.KindInvalidTEEStatus, fmt.Sprintf("quote status %q is not %q", parsed.Status, QuoteStatusUpToDate))
	}

	report := parsed.TDReport
	if report == nil || report.ReportData == "" || report.RTMR3 == "" {
		return "", signererrors.New(signererrors.KindMalformedReport, "TD report missing TD10/TD15 body or required fields")
	}

	if err := v.verifyApplicationIntegrity(env.EventLog, report.RTMR3); err != nil {
		return "", err
	}

	if err := v.bindPublicKey(env.PublicKey, report.ReportData); err != nil {
		return "", err
	}

	v.attestedPublicKey = env.PublicKey
	v.initialized = true
	v.log.Info("attestation envelope verified", logger.String("app_id", v.expectedAppID))
	return v.attestedPublicKey, nil
}

func (v *Verifier) verifyApplicationIntegrity(eventLogJSON []byte, reportedRTMR3 string) error {
	var entries []EventLogEntry
	if err := json.Unmarshal(eventLogJSON, &entries); err != nil {
		return signererrors.Wrap(signererrors.KindMalformedEventLog, "failed to parse event log", err)
	}

	var rtmr3Entries []EventLogEntry
	for _, e := range entries {
		if e.IMR != rtmr3 {
			continue
		}
		if err := verifyEntryDigest(e); err != nil {
			return err
		}
		rtmr3Entries = append(rtmr3Entries, e)
	}

	replayed := replayRTMR3(rtmr3Entries)
	if !strings.EqualFold(hex.EncodeToString(replayed[:]), reportedRTMR3) {
		return signererrors.New(signererrors.KindRTMR3Mismatch, fmt.Sprintf("replayed=%s reported=%s", hex.EncodeToString(replayed[:]), reportedRTMR3))
	}

	appInfo, err := extractApplicationInfo(rtmr3Entries)
	if err != nil {
		return err
	}

	if !strings.EqualFold(appInfo.appID, v.expectedAppID) {
		return signererrors.New(signererrors.KindAppIdentityMismatch, fmt.Sprintf("app_id %q does not match expected %q", appInfo.appID, v.expectedAppID))
	}
	return nil
}

// verifyEntryDigest checks SHA-384(LE32(event_type) || ":" ||
// event_name || ":" || payload_bytes) == digest.
func verifyEntryDigest(e EventLogEntry) error {
	payload := decodeEventPayload(e.EventPayload)

	buf := make([]byte, 0, 4+1+len(e.Event)+1+len(payload))
	var typeBytes [4]byte
	binary.LittleEndian.PutUint32(typeBytes[:], e.EventType)
	buf = append(buf, typeBytes[:]...)
	buf = append(buf, ':')
	buf = append(buf, e.Event...)
	buf = append(buf, ':')
	buf = append(buf, payload...)

	sum := sha512.Sum384(buf)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), e.Digest) {
		return signererrors.New(signererrors.KindInvalidEventDigest, e.Event)
	}
	return nil
}

// decodeEventPayload hex-decodes the payload, falling back to its raw
// UTF-8 bytes on hex-decode failure.
func decodeEventPayload(payload string) []byte {
	if decoded, err := hex.DecodeString(payload); err == nil {
		return decoded
	}
	return []byte(payload)
}

// replayRTMR3 folds the RTMR3-filtered entries in event-log order:
// mr = SHA-384(mr || pad48(digest)) starting from 48 zero bytes.
func replayRTMR3(entries []EventLogEntry) [48]byte {
	var mr [48]byte
	for _, e := range entries {
		digest := decodeRTMR3Digest(e.Digest)
		buf := make([]byte, 0, 48+rtmr3DigestSize)
		buf = append(buf, mr[:]...)
		buf = append(buf, digest[:]...)
		mr = sha512.Sum384(buf)
	}
	return mr
}

func decodeRTMR3Digest(hexDigest string) [rtmr3DigestSize]byte {
	var out [rtmr3DigestSize]byte
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return out
	}
	copy(out[rtmr3DigestSize-len(raw):], raw)
	return out
}

type applicationInfo struct {
	appID       string
	composeHash string
	instanceID  string
	keyProvider keyProvider
}

// extractApplicationInfo collects the app-id/compose-hash/instance-id/
// key-provider events, all of which must be present.
func extractApplicationInfo(entries []EventLogEntry) (*applicationInfo, error) {
	payloads := make(map[string]string, 4)
	for _, e := range entries {
		switch e.Event {
		case "app-id", "compose-hash", "instance-id", "key-provider":
			payloads[e.Event] = e.EventPayload
		}
	}

	for _, required := range []string{"app-id", "compose-hash", "instance-id", "key-provider"} {
		if _, ok := payloads[required]; !ok {
			return nil, signererrors.New(signererrors.KindMissingApplicationEvents, required)
		}
	}

	kp, err := parseKeyProvider(payloads["key-provider"])
	if err != nil {
		return nil, err
	}

	return &applicationInfo{
		appID:       payloads["app-id"],
		composeHash: payloads["compose-hash"],
		instanceID:  payloads["instance-id"],
		keyProvider: *kp,
	}, nil
}

// parseKeyProvider hex-decodes then JSON-parses the key-provider
// payload, falling back to parsing the raw string as JSON on
// hex-decode failure.
func parseKeyProvider(payload string) (*keyProvider, error) {
	var jsonBytes []byte
	if decoded, err := hex.DecodeString(payload); err == nil {
		jsonBytes = decoded
	} else {
		jsonBytes = []byte(payload)
	}

	var kp keyProvider
	if err := json.Unmarshal(jsonBytes, &kp); err != nil {
		return nil, signererrors.Wrap(signererrors.KindInvalidKeyProvider, "key-provider payload is not valid JSON", err)
	}
	if kp.Name != "kms" || kp.ID == "" {
		return nil, signererrors.New(signererrors.KindInvalidKeyProvider, fmt.Sprintf("unexpected key provider %+v", kp))
	}
	return &kp, nil
}

// bindPublicKey verifies SHA-512("app-data:" || base64_decode(pub))
// constant-time-equals hex_decode(reportData).
func (v *Verifier) bindPublicKey(publicKeyBase64, reportDataHex string) error {
	pubBytes, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return signererrors.Wrap(signererrors.KindPublicKeyNotAttested, "envelope public key is not valid base64", err)
	}
	reportData, err := hex.DecodeString(reportDataHex)
	if err != nil {
		return signererrors.Wrap(signererrors.KindPublicKeyNotAttested, "report_data is not valid hex", err)
	}

	preimage := append([]byte("app-data:"), pubBytes...)
	h := sha512.Sum512(preimage)

	if len(reportData) != len(h) || subtle.ConstantTimeCompare(h[:], reportData) != 1 {
		return signererrors.New(signererrors.KindPublicKeyNotAttested, "public key is not bound by report_data")
	}
	return nil
}
