// Package schema validates every request and response payload the
// request executor moves, using go-playground/validator struct tags as
// the single source of truth for each wire shape.
package schema

import (
	"github.com/go-playground/validator/v10"

	"github.com/crossmint/signer-frames/internal/signererrors"
)

var instance = validator.New(validator.WithRequiredStructEnabled())

// ValidateInput validates v (a struct, typically a pointer to one)
// against its `validate` tags, failing InputSchemaViolation.
func ValidateInput(v interface{}) error {
	if err := instance.Struct(v); err != nil {
		return signererrors.Wrap(signererrors.KindInputSchemaViolation, "request payload failed schema validation", err)
	}
	return nil
}

// ValidateOutput validates v against its `validate` tags, failing
// OutputSchemaViolation.
func ValidateOutput(v interface{}) error {
	if err := instance.Struct(v); err != nil {
		return signererrors.Wrap(signererrors.KindOutputSchemaViolation, "response payload failed schema validation", err)
	}
	return nil
}

// Var validates a single value against a validator tag expression
// (e.g. "required,base64"), used for the request executor's ad hoc
// envelope-field checks.
func Var(value interface{}, tag string) error {
	return instance.Var(value, tag)
}
