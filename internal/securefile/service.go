package securefile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/metrics"
	"github.com/fintrack/fintrack/internal/storage"
)

// Storage key prefixes.
const (
	KeyPrefix   = "fintrack_encryption_key_"
	TokenPrefix = "download_token_"
)

// Defaults.
const (
	DefaultTokenTTL    = 24 * time.Hour
	DefaultFileMaxAge  = 24 * time.Hour
	DefaultTempFileTTL = 5 * time.Minute
	redeemLockTTL      = 30 * time.Second
)

// Auditor records secure-file operations.
type Auditor interface {
	LogFileOperation(ctx context.Context, userID string, op audit.FileOperation, fileID string, success bool, errMsg string) audit.Event
}

// ServiceConfig holds configuration for the secure file service.
type ServiceConfig struct {
	// Store holds user keys and download credentials. It should be a sealed store in production.
	Store  storage.Store
	Locker storage.Locker
	Audit  Auditor
	Logger zerolog.Logger

	// SecureDir receives encrypted files. TempDir receives transient plaintext downloads.
	SecureDir string
	TempDir   string

	TokenTTL    time.Duration
	FileMaxAge  time.Duration
	TempFileTTL time.Duration
	Now         func() time.Time
}

// Service owns user encryption keys and download tokens.
type Service struct {
	store       storage.Store
	locker      storage.Locker
	audit       Auditor
	logger      zerolog.Logger
	secureDir   string
	tempDir     string
	tokenTTL    time.Duration
	fileMaxAge  time.Duration
	tempFileTTL time.Duration
	now         func() time.Time

	keyMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

// NewService creates a new secure file service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Locker == nil {
		cfg.Locker = storage.NewInMemoryLocker()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.FileMaxAge <= 0 {
		cfg.FileMaxAge = DefaultFileMaxAge
	}
	if cfg.TempFileTTL <= 0 {
		cfg.TempFileTTL = DefaultTempFileTTL
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "fintrack_downloads")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:       cfg.Store,
		locker:      cfg.Locker,
		audit:       cfg.Audit,
		logger:      cfg.Logger.With().Str("component", "securefile").Logger(),
		secureDir:   cfg.SecureDir,
		tempDir:     cfg.TempDir,
		tokenTTL:    cfg.TokenTTL,
		fileMaxAge:  cfg.FileMaxAge,
		tempFileTTL: cfg.TempFileTTL,
		now:         cfg.Now,
		pending:     make(map[string]*time.Timer),
	}
}

// Initialize creates the secure and temporary directories.
func (s *Service) Initialize(_ context.Context) error {
	if s.store == nil {
		return errors.New("secure file service requires a store")
	}
	if s.secureDir == "" {
		return errors.New("secure file service requires a secure directory")
	}
	for _, dir := range []string{s.secureDir, s.tempDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Shutdown removes every pending transient plaintext file immediately.
func (s *Service) Shutdown(_ context.Context) {
	s.pendingMu.Lock()
	paths := make([]string, 0, len(s.pending))
	for path, timer := range s.pending {
		timer.Stop()
		paths = append(paths, path)
	}
	s.pending = make(map[string]*time.Timer)
	s.pendingMu.Unlock()

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove transient download")
		}
	}
}

// ReleaseDownload removes a transient plaintext download before its
// scheduled deletion. Paths outside the temp directory are ignored.
func (s *Service) ReleaseDownload(path string) {
	rel, err := filepath.Rel(s.tempDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	s.removeTransient(path)
}

// EncryptFile encrypts plaintextPath for userID and issues a download token.
// The plaintext file is removed on every return path.
func (s *Service) EncryptFile(ctx context.Context, plaintextPath, userID, fileID string) (*SecureFileInfo, error) {
	defer func() {
		if err := os.Remove(plaintextPath); err != nil && !os.IsNotExist(err) {
			s.logger.Error().Err(err).Str("file_id", fileID).Msg("failed to remove plaintext export")
		}
	}()

	info, err := s.encrypt(ctx, plaintextPath, userID, fileID)
	if err != nil {
		s.logFile(ctx, userID, audit.FileOpEncrypt, fileID, err)
		return nil, err
	}

	s.logFile(ctx, userID, audit.FileOpEncrypt, fileID, nil)
	s.logFile(ctx, userID, audit.FileOpTokenGenerated, fileID, nil)
	s.logger.Info().
		Str("user_id", userID).
		Str("file_id", fileID).
		Int64("original_size", info.OriginalSize).
		Time("expires_at", info.ExpiresAt).
		Msg("export file encrypted")
	return info, nil
}

func (s *Service) encrypt(ctx context.Context, plaintextPath, userID, fileID string) (*SecureFileInfo, error) {
	key, err := s.userKey(ctx, userID, true)
	if err != nil {
		return nil, &EncryptionError{Op: "load user key", Err: err}
	}

	plain, err := os.ReadFile(plaintextPath)
	if err != nil {
		return nil, &EncryptionError{Op: "read plaintext", Err: err}
	}
	sum := checksum(plain)

	sealed, err := sealFile(key, fileID, plain)
	if err != nil {
		return nil, &EncryptionError{Op: "encrypt", Err: err}
	}

	now := s.now()
	encPath := filepath.Join(s.secureDir, fmt.Sprintf("%s_%d.enc", fileID, now.UnixMilli()))
	if err := os.WriteFile(encPath, sealed, 0o600); err != nil {
		return nil, &EncryptionError{Op: "write encrypted file", Err: err}
	}

	token, err := newToken(userID, fileID, sum, now)
	if err != nil {
		_ = os.Remove(encPath)
		return nil, &EncryptionError{Op: "generate token", Err: err}
	}

	creds := DownloadCredentials{
		Token:         token,
		UserID:        userID,
		FileID:        fileID,
		EncryptedPath: encPath,
		Checksum:      sum,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.tokenTTL),
	}
	if err := s.putCredentials(ctx, &creds); err != nil {
		_ = os.Remove(encPath)
		return nil, &EncryptionError{Op: "store credentials", Err: err}
	}

	return &SecureFileInfo{
		FileID:        fileID,
		EncryptedPath: encPath,
		Checksum:      sum,
		DownloadToken: token,
		ExpiresAt:     creds.ExpiresAt,
		OriginalSize:  int64(len(plain)),
		EncryptedSize: int64(len(sealed)),
	}, nil
}

// DecryptFileForDownload decrypts the file behind token into a transient
// plaintext file that is removed after the temp-file window.
// It does not revoke the token; use Redeem for single-use redemption.
func (s *Service) DecryptFileForDownload(ctx context.Context, token, userID string) (*DownloadedFile, error) {
	creds, err := s.getCredentials(ctx, token)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrTokenInvalid) {
			result = "invalid"
		}
		return nil, s.redeemFailed(ctx, userID, "", result, err)
	}
	if creds.UserID != userID {
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "invalid", ErrTokenInvalid)
	}
	if creds.Expired(s.now()) {
		if err := s.RevokeDownloadToken(ctx, token); err != nil {
			s.logger.Warn().Err(err).Str("file_id", creds.FileID).Msg("failed to revoke expired token")
		}
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "expired", ErrTokenExpired)
	}

	key, err := s.userKey(ctx, userID, false)
	if err != nil {
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "key_missing", err)
	}

	data, err := os.ReadFile(creds.EncryptedPath)
	if err != nil {
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "error", &EncryptionError{Op: "read encrypted file", Err: err})
	}

	plain, err := openFile(key, creds.FileID, data)
	if err != nil {
		if errors.Is(err, ErrIntegrityViolation) {
			return nil, s.redeemFailed(ctx, userID, creds.FileID, "integrity", err)
		}
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "error", &EncryptionError{Op: "decrypt", Err: err})
	}

	actual := checksum(plain)
	check := IntegrityCheck{
		IsValid:          actual == creds.Checksum,
		ExpectedChecksum: creds.Checksum,
		ActualChecksum:   actual,
		VerifiedAt:       s.now(),
	}
	if !check.IsValid {
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "integrity", ErrIntegrityViolation)
	}

	path, err := s.writeTransient(creds.FileID, plain)
	if err != nil {
		return nil, s.redeemFailed(ctx, userID, creds.FileID, "error", &EncryptionError{Op: "write download", Err: err})
	}

	s.logFile(ctx, userID, audit.FileOpDecrypt, creds.FileID, nil)
	return &DownloadedFile{
		Path:      path,
		FileID:    creds.FileID,
		Integrity: check,
		DeleteAt:  s.now().Add(s.tempFileTTL),
	}, nil
}

// Redeem decrypts the file behind token and revokes the token, holding a
// lock on the token so concurrent redemptions succeed at most once.
func (s *Service) Redeem(ctx context.Context, token, userID string) (*DownloadedFile, error) {
	lockToken, err := s.locker.TryLock(ctx, TokenPrefix+token, redeemLockTTL)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			metrics.IncTokenRedemption("invalid")
			return nil, fmt.Errorf("redemption in progress: %w", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("lock download token: %w", err)
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), TokenPrefix+token, lockToken); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release download token lock")
		}
	}()

	file, err := s.DecryptFileForDownload(ctx, token, userID)
	if err != nil {
		return nil, err
	}

	if err := s.RevokeDownloadToken(ctx, token); err != nil {
		s.removeTransient(file.Path)
		return nil, fmt.Errorf("revoke redeemed token: %w", err)
	}

	metrics.IncTokenRedemption("ok")
	return file, nil
}

// VerifyFileIntegrity reports whether token exists, is unexpired and its
// encrypted file is present. It does not decrypt.
func (s *Service) VerifyFileIntegrity(ctx context.Context, token string) bool {
	creds, err := s.getCredentials(ctx, token)
	if err != nil {
		return false
	}
	if creds.Expired(s.now()) {
		return false
	}
	if _, err := os.Stat(creds.EncryptedPath); err != nil {
		return false
	}
	return true
}

// RevokeDownloadToken deletes the credential record for token. Revoking an unknown token is a no-op.
func (s *Service) RevokeDownloadToken(ctx context.Context, token string) error {
	creds, err := s.getCredentials(ctx, token)
	if errors.Is(err, ErrTokenInvalid) {
		return nil
	}

	// Unreadable records are deleted too.
	if err := s.store.Delete(ctx, TokenPrefix+token); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	if creds != nil {
		s.logFile(ctx, creds.UserID, audit.FileOpTokenRevoked, creds.FileID, nil)
	}
	return nil
}

// CleanupExpiredFiles removes encrypted files older than the max age and
// revokes expired credential records.
func (s *Service) CleanupExpiredFiles(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := s.now()

	entries, err := os.ReadDir(s.secureDir)
	if err != nil && !os.IsNotExist(err) {
		return result, fmt.Errorf("read secure dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".enc") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) <= s.fileMaxAge {
			continue
		}
		path := filepath.Join(s.secureDir, entry.Name())
		if err := secureDelete(path, fi.Size()); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to delete expired encrypted file")
			continue
		}
		result.FilesDeleted++
	}

	keys, err := s.store.Keys(ctx, TokenPrefix)
	if err != nil {
		return result, fmt.Errorf("list credentials: %w", err)
	}
	for _, key := range keys {
		token := strings.TrimPrefix(key, TokenPrefix)
		creds, err := s.getCredentials(ctx, token)
		if err != nil {
			if !errors.Is(err, ErrTokenInvalid) {
				s.logger.Warn().Err(err).Msg("unreadable credentials record")
			}
			continue
		}
		if !creds.Expired(now) {
			continue
		}
		if err := s.RevokeDownloadToken(ctx, token); err != nil {
			s.logger.Warn().Err(err).Str("file_id", creds.FileID).Msg("failed to revoke expired token")
			continue
		}
		result.TokensRevoked++
	}

	metrics.AddSecureFilesDeleted(result.FilesDeleted)
	if result.FilesDeleted > 0 || result.TokensRevoked > 0 {
		s.logger.Info().
			Int("files_deleted", result.FilesDeleted).
			Int("tokens_revoked", result.TokensRevoked).
			Msg("secure file cleanup completed")
	}
	return result, nil
}

// userKey returns the user's key, creating it when create is set and none exists.
func (s *Service) userKey(ctx context.Context, userID string, create bool) ([]byte, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	raw, err := s.store.Get(ctx, KeyPrefix+userID)
	if err == nil {
		key, err := hex.DecodeString(string(raw))
		if err != nil || len(key) != keyLength {
			return nil, errors.New("stored key for user is malformed")
		}
		return key, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if !create {
		return nil, ErrKeyNotFound
	}

	key, err := newUserKey()
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, KeyPrefix+userID, []byte(hex.EncodeToString(key))); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Msg("encryption key created")
	return key, nil
}

func (s *Service) getCredentials(ctx context.Context, token string) (*DownloadCredentials, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	raw, err := s.store.Get(ctx, TokenPrefix+token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var creds DownloadCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &creds, nil
}

func (s *Service) putCredentials(ctx context.Context, creds *DownloadCredentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, TokenPrefix+creds.Token, raw)
}

func (s *Service) writeTransient(fileID string, plain []byte) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "download_"+fileID+"_*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(plain); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.pendingMu.Lock()
	s.pending[path] = time.AfterFunc(s.tempFileTTL, func() { s.removeTransient(path) })
	s.pendingMu.Unlock()
	return path, nil
}

func (s *Service) removeTransient(path string) {
	s.pendingMu.Lock()
	if timer, ok := s.pending[path]; ok {
		timer.Stop()
		delete(s.pending, path)
	}
	s.pendingMu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove transient download")
	}
}

func (s *Service) redeemFailed(ctx context.Context, userID, fileID, result string, err error) error {
	metrics.IncTokenRedemption(result)
	s.logFile(ctx, userID, audit.FileOpDecrypt, fileID, err)
	s.logger.Warn().Err(err).Str("user_id", userID).Str("file_id", fileID).Msg("download redemption failed")
	return err
}

func (s *Service) logFile(ctx context.Context, userID string, op audit.FileOperation, fileID string, err error) {
	if s.audit == nil {
		return
	}
	if err != nil {
		s.audit.LogFileOperation(ctx, userID, op, fileID, false, err.Error())
		return
	}
	s.audit.LogFileOperation(ctx, userID, op, fileID, true, "")
}

// newToken hashes userID:fileID:checksum:timestamp together with a random salt.
func newToken(userID, fileID, sum string, at time.Time) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return checksum([]byte(fmt.Sprintf("%s:%s:%s:%d:%x", userID, fileID, sum, at.UnixMilli(), salt))), nil
}

// secureDelete overwrites path with random bytes before removing it,
// falling back to a plain remove when the overwrite fails.
func secureDelete(path string, size int64) error {
	_ = overwrite(path, size)
	return os.Remove(path)
}

func overwrite(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.CopyN(f, rand.Reader, size); err != nil {
		return err
	}
	return f.Sync()
}
