package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crossmint/signer-frames/internal/signererrors"
)

type samplePayload struct {
	DeviceID string `validate:"required"`
	Count    int    `validate:"gte=0"`
}

func TestValidateInputAcceptsValidPayload(t *testing.T) {
	err := ValidateInput(&samplePayload{DeviceID: "abc", Count: 1})
	assert.NoError(t, err)
}

func TestValidateInputRejectsMissingField(t *testing.T) {
	err := ValidateInput(&samplePayload{Count: 1})
	assert.True(t, signererrors.Is(err, signererrors.KindInputSchemaViolation))
}

func TestValidateOutputRejectsInvalidField(t *testing.T) {
	err := ValidateOutput(&samplePayload{DeviceID: "abc", Count: -1})
	assert.True(t, signererrors.Is(err, signererrors.KindOutputSchemaViolation))
}

func TestVarValidatesSingleValue(t *testing.T) {
	assert.NoError(t, Var("dGVzdA==", "base64"))
	assert.Error(t, Var("not-base64!!", "base64"))
}
