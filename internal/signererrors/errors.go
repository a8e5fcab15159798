// Package signererrors defines the closed set of error kinds the core
// can raise. Every kind is distinguishable to callers via errors.As,
// and wraps an optional cause for %w-chaining.
package signererrors

import "fmt"

// Kind identifies one of the error kinds in the error-handling table.
type Kind string

const (
	KindInvalidAPIKey            Kind = "InvalidApiKey"
	KindInputSchemaViolation     Kind = "InputSchemaViolation"
	KindOutputSchemaViolation    Kind = "OutputSchemaViolation"
	KindHTTPError                Kind = "HttpError"
	KindInvalidTEEStatus         Kind = "InvalidTEEStatus"
	KindMalformedReport          Kind = "MalformedReport"
	KindMalformedEventLog        Kind = "MalformedEventLog"
	KindInvalidEventDigest       Kind = "InvalidEventDigest"
	KindRTMR3Mismatch            Kind = "RTMR3Mismatch"
	KindMissingApplicationEvents Kind = "MissingApplicationEvents"
	KindInvalidKeyProvider       Kind = "InvalidKeyProvider"
	KindAppIdentityMismatch      Kind = "AppIdentityMismatch"
	KindPublicKeyNotAttested     Kind = "PublicKeyNotAttested"
	KindNotInitialized           Kind = "NotInitialized"
	KindHashMismatch             Kind = "HashMismatch"
	KindUnsupportedKeyType       Kind = "UnsupportedKeyType"
	KindStorageError             Kind = "StorageError"
	KindTimeout                  Kind = "Timeout"
	KindInvalidSignature         Kind = "InvalidSignature"
)

// codedKinds is the closed set of kinds that are re-exposed to a host
// shell as a machine-readable `code` alongside the handler error
// message. Everything else surfaces only its message.
var codedKinds = map[Kind]string{
	KindHashMismatch: "invalid-device-share",
}

// Error is the core's structured error type: a kind, a human-readable
// message, optional debugging details, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetails attaches a debugging detail and returns the same error.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Code returns the machine-readable code re-exposed to callers for
// this kind, or "" if the kind is not in the closed set.
func (e *Error) Code() (string, bool) {
	code, ok := codedKinds[e.Kind]
	return code, ok
}

// New constructs a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a new Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

// As extracts the *Error from err's wrap chain, if any. Handler
// boundaries use this to decide whether an error carries a machine
// readable code.
func As(err error) (*Error, bool) {
	var e *Error
	ok := asError(err, &e)
	return e, ok
}

// asError is a small errors.As wrapper kept local to avoid importing
// "errors" twice at call sites that already alias it.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
