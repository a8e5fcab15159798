package signererrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindHashMismatch, "user key hash mismatch", cause)
	assert.Contains(t, e.Error(), "HashMismatch")
	assert.Contains(t, e.Error(), "boom")
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestErrorCode(t *testing.T) {
	e := New(KindHashMismatch, "mismatch")
	code, ok := e.Code()
	assert.True(t, ok)
	assert.Equal(t, "invalid-device-share", code)

	e2 := New(KindHTTPError, "bad gateway")
	_, ok = e2.Code()
	assert.False(t, ok)
}

func TestIs(t *testing.T) {
	base := New(KindRTMR3Mismatch, "mismatch")
	wrapped := fmt.Errorf("verify: %w", base)
	assert.True(t, Is(wrapped, KindRTMR3Mismatch))
	assert.False(t, Is(wrapped, KindHashMismatch))
}

func TestWithDetails(t *testing.T) {
	e := New(KindRTMR3Mismatch, "mismatch").WithDetails("replayed", "aa").WithDetails("reported", "bb")
	assert.Equal(t, "aa", e.Details["replayed"])
	assert.Equal(t, "bb", e.Details["reported"])
}
