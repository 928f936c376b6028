package securefile

import (
	"errors"
	"fmt"
)

// Service errors.
var (
	// ErrEncryption matches every *EncryptionError.
	ErrEncryption = errors.New("encryption failed")

	// ErrTokenInvalid is returned for unknown, revoked or foreign download tokens.
	ErrTokenInvalid = errors.New("download token is invalid")

	// ErrTokenExpired is returned for tokens past their expiry. The token is revoked.
	ErrTokenExpired = errors.New("download token has expired")

	// ErrKeyNotFound means the user's key is gone. The file cannot be recovered.
	ErrKeyNotFound = errors.New("encryption key not found")

	// ErrIntegrityViolation means the decrypted content does not match its checksum.
	ErrIntegrityViolation = errors.New("file integrity violation")
)

// EncryptionError describes a failed cryptographic or file step.
type EncryptionError struct {
	Op  string
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrEncryption.Error(), e.Op, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// Is reports ErrEncryption as a match.
func (e *EncryptionError) Is(target error) bool { return target == ErrEncryption }
