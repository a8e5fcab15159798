package cryptoprim

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGenerateP256(t *testing.T) *ecdh.PrivateKey {
	t.Helper()
	k, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return k
}

func TestDeriveAESKeySymmetricAcrossParties(t *testing.T) {
	client := mustGenerateP256(t)
	tee := mustGenerateP256(t)

	clientKey, err := DeriveAESKey(client, tee.PublicKey())
	require.NoError(t, err)
	teeKey, err := DeriveAESKey(tee, client.PublicKey())
	require.NoError(t, err)

	assert.Equal(t, clientKey, teeKey)
	assert.Len(t, clientKey, 32)
}

func TestDeriveAESKeyAndFF1TweakKeyDiffer(t *testing.T) {
	client := mustGenerateP256(t)
	tee := mustGenerateP256(t)

	aesKey, err := DeriveAESKey(client, tee.PublicKey())
	require.NoError(t, err)
	tweakKey, err := DeriveFF1TweakKey(client, tee.PublicKey())
	require.NoError(t, err)

	assert.NotEqual(t, aesKey, tweakKey)
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 12)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	plaintext := []byte("the quick brown fox")

	blob, err := AESGCMEncrypt(key, iv, plaintext, nil)
	require.NoError(t, err)
	assert.Equal(t, iv, blob[:12])

	decoded, err := AESGCMDecrypt(key, blob, nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func TestAESGCMDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 12)
	blob, err := AESGCMEncrypt(key, iv, []byte("secret"), nil)
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xFF
	_, err = AESGCMDecrypt(key, blob, nil)
	assert.Error(t, err)
}
