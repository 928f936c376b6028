// Package securefile encrypts export files with per-user keys and hands out
// single-use download tokens for them.
package securefile

import "time"

// SecureFileInfo describes an encrypted export file.
type SecureFileInfo struct {
	FileID        string    `json:"fileId"`
	EncryptedPath string    `json:"encryptedPath"`
	Checksum      string    `json:"checksum"` // hex SHA-256 of the plaintext
	DownloadToken string    `json:"downloadToken"`
	ExpiresAt     time.Time `json:"expiresAt"`
	OriginalSize  int64     `json:"originalSize"`
	EncryptedSize int64     `json:"encryptedSize"`
}

// DownloadCredentials is the record stored for an issued download token.
type DownloadCredentials struct {
	Token         string    `json:"token"`
	UserID        string    `json:"userId"`
	FileID        string    `json:"fileId"`
	EncryptedPath string    `json:"encryptedPath"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the credentials are past expiry at now.
func (c *DownloadCredentials) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IntegrityCheck is the result of comparing checksums after decryption.
type IntegrityCheck struct {
	IsValid          bool      `json:"isValid"`
	ExpectedChecksum string    `json:"expectedChecksum"`
	ActualChecksum   string    `json:"actualChecksum"`
	VerifiedAt       time.Time `json:"verifiedAt"`
}

// DownloadedFile is a transient plaintext copy produced for one download.
type DownloadedFile struct {
	Path      string         `json:"path"`
	FileID    string         `json:"fileId"`
	Integrity IntegrityCheck `json:"integrity"`
	DeleteAt  time.Time      `json:"deleteAt"`
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	FilesDeleted  int `json:"filesDeleted"`
	TokensRevoked int `json:"tokensRevoked"`
}
