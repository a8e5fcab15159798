package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllEncodings(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x00, 0x00, 0x01, 0x02},
		{0xde, 0xad, 0xbe, 0xef},
	}
	for _, enc := range []Encoding{Hex, Base58, Base64} {
		for _, b := range cases {
			s, err := Encode(b, enc)
			require.NoError(t, err)
			back, err := Decode(s, enc)
			require.NoError(t, err)
			assert.Equal(t, b, back, "encoding %s", enc)
		}
	}
}

func TestHexDecodeAcceptsPrefixAndOddLength(t *testing.T) {
	b, err := Decode("0xabc", Hex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0xbc}, b)
}

func TestHexEncodeIsLowercasePadded(t *testing.T) {
	s, err := Encode([]byte{0x0a, 0xbc}, Hex)
	require.NoError(t, err)
	assert.Equal(t, "0abc", s)
}

func TestHexDecodeRejectsNonHex(t *testing.T) {
	_, err := Decode("zz", Hex)
	assert.Error(t, err)
}

func TestBase58RejectsOutOfAlphabet(t *testing.T) {
	_, err := Decode("0OIl", Base58) // these four are excluded from the Bitcoin alphabet
	assert.Error(t, err)
}

func TestBase64FieldValidation(t *testing.T) {
	assert.True(t, IsValidBase64Field("aGVsbG8="))
	assert.True(t, IsValidBase64Field(""))
	assert.False(t, IsValidBase64Field("not base64!!"))
}

func TestBase64DecodeRejectsInvalid(t *testing.T) {
	_, err := Decode("not base64!!", Base64)
	assert.Error(t, err)
}
