package attestation

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossmint/signer-frames/internal/signererrors"
)

type fakeQuoteVerifier struct {
	result *ParsedQuote
	err    error
}

func (f *fakeQuoteVerifier) VerifyQuote(_ context.Context, _ []byte, _ time.Time) (*ParsedQuote, error) {
	return f.result, f.err
}

// digestEntry independently computes the per-entry digest formula,
// used to build valid fixtures without reaching into the verifier's
// own helper.
func digestEntry(eventType uint32, event, payloadHex string) string {
	var typeBytes [4]byte
	binary.LittleEndian.PutUint32(typeBytes[:], eventType)
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		payload = []byte(payloadHex)
	}
	buf := append([]byte{}, typeBytes[:]...)
	buf = append(buf, ':')
	buf = append(buf, event...)
	buf = append(buf, ':')
	buf = append(buf, payload...)
	sum := sha512.Sum384(buf)
	return hex.EncodeToString(sum[:])
}

func buildValidEventLog(t *testing.T, appID string) ([]byte, string) {
	t.Helper()

	appIDPayload := hex.EncodeToString([]byte(appID))
	composeHashPayload := hex.EncodeToString([]byte("deadbeef"))
	instanceIDPayload := hex.EncodeToString([]byte("instance-1"))
	keyProviderJSON, err := json.Marshal(keyProvider{Name: "kms", ID: "kms-1"})
	require.NoError(t, err)
	keyProviderPayload := hex.EncodeToString(keyProviderJSON)

	entries := []EventLogEntry{
		{IMR: 3, EventType: 1, Event: "app-id", EventPayload: appIDPayload},
		{IMR: 3, EventType: 2, Event: "compose-hash", EventPayload: composeHashPayload},
		{IMR: 3, EventType: 3, Event: "instance-id", EventPayload: instanceIDPayload},
		{IMR: 3, EventType: 4, Event: "key-provider", EventPayload: keyProviderPayload},
		{IMR: 0, EventType: 99, Event: "unrelated", EventPayload: "ff"},
	}
	for i := range entries {
		if entries[i].IMR != 3 {
			continue
		}
		entries[i].Digest = digestEntry(entries[i].EventType, entries[i].Event, entries[i].EventPayload)
	}

	var mr [48]byte
	for _, e := range entries {
		if e.IMR != 3 {
			continue
		}
		digest, err := hex.DecodeString(e.Digest)
		require.NoError(t, err)
		buf := append([]byte{}, mr[:]...)
		buf = append(buf, digest...)
		mr = sha512.Sum384(buf)
	}

	data, err := json.Marshal(entries)
	require.NoError(t, err)
	return data, hex.EncodeToString(mr[:])
}

func buildEnvelope(t *testing.T, appID string) (Envelope, string) {
	t.Helper()
	eventLog, rtmr3Hex := buildValidEventLog(t, appID)

	pubKeyBytes := []byte("a-fake-ecdh-public-key-32-bytes!")
	pubKeyB64 := base64.StdEncoding.EncodeToString(pubKeyBytes)

	preimage := append([]byte("app-data:"), pubKeyBytes...)
	reportData := sha512.Sum512(preimage)

	return Envelope{
		Quote:     []byte("fake-quote"),
		PublicKey: pubKeyB64,
		EventLog:  eventLog,
	}, hex.EncodeToString(reportData[:]) + "|" + rtmr3Hex
}

func TestVerifySucceedsEndToEnd(t *testing.T) {
	env, combined := buildEnvelope(t, "app-123")
	reportData, rtmr3 := splitCombined(combined)

	qv := &fakeQuoteVerifier{result: &ParsedQuote{
		Status: QuoteStatusUpToDate,
		TDReport: &TDReport{
			Kind:       "TD10",
			ReportData: reportData,
			RTMR3:      rtmr3,
		},
	}}

	v := New(qv, "app-123", false, nil)
	pub, err := v.Verify(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, env.PublicKey, pub)

	got, err := v.GetAttestedPublicKey()
	require.NoError(t, err)
	assert.Equal(t, env.PublicKey, got)
}

func TestGetAttestedPublicKeyFailsBeforeVerify(t *testing.T) {
	v := New(&fakeQuoteVerifier{}, "app-123", false, nil)
	_, err := v.GetAttestedPublicKey()
	assert.True(t, signererrors.Is(err, signererrors.KindNotInitialized))
}

func TestVerifyFailsOnBadQuoteStatus(t *testing.T) {
	env, combined := buildEnvelope(t, "app-123")
	reportData, rtmr3 := splitCombined(combined)

	qv := &fakeQuoteVerifier{result: &ParsedQuote{
		Status:   "OutOfDate",
		TDReport: &TDReport{ReportData: reportData, RTMR3: rtmr3},
	}}
	v := New(qv, "app-123", false, nil)
	_, err := v.Verify(context.Background(), env)
	assert.True(t, signererrors.Is(err, signererrors.KindInvalidTEEStatus))
}

func TestVerifyFailsOnMissingTDReport(t *testing.T) {
	env, _ := buildEnvelope(t, "app-123")
	qv := &fakeQuoteVerifier{result: &ParsedQuote{Status: QuoteStatusUpToDate}}
	v := New(qv, "app-123", false, nil)
	_, err := v.Verify(context.Background(), env)
	assert.True(t, signererrors.Is(err, signererrors.KindMalformedReport))
}

func TestVerifyFailsOnRTMR3Mismatch(t *testing.T) {
	env, combined := buildEnvelope(t, "app-123")
	reportData, _ := splitCombined(combined)

	qv := &fakeQuoteVerifier{result: &ParsedQuote{
		Status:   QuoteStatusUpToDate,
		TDReport: &TDReport{ReportData: reportData, RTMR3: hex.EncodeToString(make([]byte, 48))},
	}}
	v := New(qv, "app-123", false, nil)
	_, err := v.Verify(context.Background(), env)
	assert.True(t, signererrors.Is(err, signererrors.KindRTMR3Mismatch))
}

func TestVerifyFailsOnAppIdentityMismatch(t *testing.T) {
	env, combined := buildEnvelope(t, "app-123")
	reportData, rtmr3 := splitCombined(combined)

	qv := &fakeQuoteVerifier{result: &ParsedQuote{
		Status:   QuoteStatusUpToDate,
		TDReport: &TDReport{ReportData: reportData, RTMR3: rtmr3},
	}}
	v := New(qv, "some-other-app", false, nil)
	_, err := v.Verify(context.Background(), env)
	assert.True(t, signererrors.Is(err, signererrors.KindAppIdentityMismatch))
}

func TestVerifyFailsOnPublicKeyNotAttested(t *testing.T) {
	env, combined := buildEnvelope(t, "app-123")
	reportData, rtmr3 := splitCombined(combined)
	env.PublicKey = base64.StdEncoding.EncodeToString([]byte("a-different-public-key-32-bytes!"))

	qv := &fakeQuoteVerifier{result: &ParsedQuote{
		Status:   QuoteStatusUpToDate,
		TDReport: &TDReport{ReportData: reportData, RTMR3: rtmr3},
	}}
	v := New(qv, "app-123", false, nil)
	_, err := v.Verify(context.Background(), env)
	assert.True(t, signererrors.Is(err, signererrors.KindPublicKeyNotAttested))
}

func TestVerifyFailsOnMalformedEventLog(t *testing.T) {
	env, combined := buildEnvelope(t, "app-123")
	reportData, rtmr3 := splitCombined(combined)
	env.EventLog = []byte("not json")

	qv := &fakeQuoteVerifier{result: &ParsedQuote{
		Status:   QuoteStatusUpToDate,
		TDReport: &TDReport{ReportData: reportData, RTMR3: rtmr3},
	}}
	v := New(qv, "app-123", false, nil)
	_, err := v.Verify(context.Background(), env)
	assert.True(t, signererrors.Is(err, signererrors.KindMalformedEventLog))
}

func TestVerifyDevBypassSkipsAllValidation(t *testing.T) {
	env := Envelope{PublicKey: "server-supplied-key", Quote: nil, EventLog: nil}
	v := New(&fakeQuoteVerifier{}, "app-123", true, nil)
	pub, err := v.Verify(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "server-supplied-key", pub)
}

// splitCombined pulls apart the "reportData|rtmr3" helper encoding
// buildEnvelope returns to keep test call sites terse.
func splitCombined(combined string) (reportData, rtmr3 string) {
	for i := 0; i < len(combined); i++ {
		if combined[i] == '|' {
			return combined[:i], combined[i+1:]
		}
	}
	return combined, ""
}
