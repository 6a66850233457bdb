package crypto

import (
	"errors"
)

var (
	// ErrInvalidToken marks tokens missing the separator or carrying
	// malformed base64 segments.
	ErrInvalidToken = errors.New("invalid ciphertext token")
	// ErrDecryptionFailed marks cipher-level failures: wrong key, bad IV,
	// corrupted ciphertext, or invalid padding after decryption.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrInvalidEncoding marks decrypted bytes that are not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid plaintext encoding")
)

// decryptFailureMessage is the only message DecryptValue failures expose.
// Keeping it identical across failure causes prevents the error text from
// acting as a padding or format oracle.
const decryptFailureMessage = "failed to decrypt; verify the key"

// TokenError is the error type returned by DecryptValue. Its message is
// constant; the classification is reachable through Unwrap and the
// technical cause through Cause.
type TokenError struct {
	kind  error
	cause error
}

// NewTokenError builds a TokenError classified as kind with an internal
// cause. Every cipher-level failure must go through this so the
// user-facing message stays uniform.
func NewTokenError(kind, cause error) *TokenError {
	return &TokenError{kind: kind, cause: cause}
}

func (e *TokenError) Error() string {
	return decryptFailureMessage
}

func (e *TokenError) Unwrap() error {
	return e.kind
}

// Cause returns the underlying technical failure. It is intended for
// operator-side logging only and must not be shown to end users.
func (e *TokenError) Cause() error {
	return e.cause
}
