package efirma

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by the loaders, the validator and the
// container functions. Use errors.Is to classify them.
var (
	// ErrMalformedInput reports bytes that could not be parsed as the
	// expected certificate, key or container structure.
	ErrMalformedInput = errors.New("malformed input")

	// ErrWrongPassphrase reports a well-formed encrypted structure that the
	// supplied passphrase could not open.
	ErrWrongPassphrase = errors.New("wrong passphrase")

	// ErrKeyMismatch reports a private key whose probe signature does not
	// verify against the certificate's public key.
	ErrKeyMismatch = errors.New("private key does not correspond to certificate")

	// ErrNoCertificate reports a container without a certificate bag.
	ErrNoCertificate = errors.New("no certificate in container")

	// ErrMissingField reports a required input that was empty.
	ErrMissingField = errors.New("missing required field")

	// ErrUnsupportedKey reports a decrypted key of a type other than RSA.
	ErrUnsupportedKey = fmt.Errorf("%w: unsupported key type", ErrMalformedInput)

	ErrNotYetValid = errors.New("certificate not yet valid")
	ErrExpired     = errors.New("certificate expired")
)

// Error codes reported by ErrorCode and carried in validation issues.
const (
	CodeMalformedInput  = "MALFORMED_INPUT"
	CodeWrongPassphrase = "WRONG_PASSPHRASE"
	CodeKeyMismatch     = "KEY_MISMATCH"
	CodeNoCertificate   = "NO_CERTIFICATE_IN_CONTAINER"
	CodeMissingField    = "MISSING_FIELD"
	CodeNotYetValid     = "NOT_YET_VALID"
	CodeExpired         = "EXPIRED"
	CodeInternal        = "INTERNAL"
)

// ErrorCode maps an error returned by this package to a stable machine code.
// Errors that do not wrap one of the sentinels map to CodeInternal.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongPassphrase):
		return CodeWrongPassphrase
	case errors.Is(err, ErrKeyMismatch):
		return CodeKeyMismatch
	case errors.Is(err, ErrNoCertificate):
		return CodeNoCertificate
	case errors.Is(err, ErrMissingField):
		return CodeMissingField
	case errors.Is(err, ErrNotYetValid):
		return CodeNotYetValid
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, ErrMalformedInput):
		return CodeMalformedInput
	default:
		return CodeInternal
	}
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}
