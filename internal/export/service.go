package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintrack/fintrack/internal/assistant"
	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/ledger"
	"github.com/fintrack/fintrack/internal/metrics"
	"github.com/fintrack/fintrack/internal/securefile"
	"github.com/fintrack/fintrack/internal/telemetry"
	"github.com/fintrack/fintrack/internal/user"
)

// Predefined service errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrFormatDisabled  = errors.New("export format is disabled")
	errNoSource        = errors.New("data source not configured")
)

// anonymousUser is the audit subject for unauthenticated requests.
const anonymousUser = "anonymous"

// Files encrypts export payloads and redeems their download tokens.
type Files interface {
	EncryptFile(ctx context.Context, plaintextPath, userID, fileID string) (*securefile.SecureFileInfo, error)
	Redeem(ctx context.Context, token, userID string) (*securefile.DownloadedFile, error)
	ReleaseDownload(path string)
}

// Auditor records export lifecycle events.
type Auditor interface {
	LogEvent(ctx context.Context, userID string, action audit.Action, resource string, metadata map[string]interface{}, success bool, errMsg string) audit.Event
	LogDataExport(ctx context.Context, userID string, action audit.Action, details audit.ExportDetails, success bool, errMsg string) audit.Event
}

// FlagChecker reports whether a feature flag is enabled.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

// ServiceConfig holds configuration for the export service.
type ServiceConfig struct {
	Profiles Profiles
	Ledger   Ledger
	History  History
	Files    Files
	Audit    Auditor
	Flags    FlagChecker
	Logger   zerolog.Logger

	// WorkDir receives plaintext payloads until they are encrypted.
	WorkDir string
	Now     func() time.Time
}

// Service orchestrates data exports.
type Service struct {
	profiles Profiles
	ledger   Ledger
	history  History
	files    Files
	audit    Auditor
	flags    FlagChecker
	logger   zerolog.Logger
	workDir  string
	now      func() time.Time

	idMu       sync.Mutex
	lastMillis int64
}

// NewService creates a new export service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "fintrack_exports")
	}
	var missing unavailable
	if cfg.Profiles == nil {
		cfg.Profiles = missing
	}
	if cfg.Ledger == nil {
		cfg.Ledger = missing
	}
	if cfg.History == nil {
		cfg.History = missing
	}

	return &Service{
		profiles: cfg.Profiles,
		ledger:   cfg.Ledger,
		history:  cfg.History,
		files:    cfg.Files,
		audit:    cfg.Audit,
		flags:    cfg.Flags,
		logger:   cfg.Logger.With().Str("component", "export").Logger(),
		workDir:  cfg.WorkDir,
		now:      cfg.Now,
	}
}

// Initialize creates the work directory.
func (s *Service) Initialize(_ context.Context) error {
	if s.files == nil {
		return errors.New("export service requires a secure file service")
	}
	if err := os.MkdirAll(s.workDir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", s.workDir, err)
	}
	return nil
}

// GetExportPreview estimates the size of an export without reading any data.
func (s *Service) GetExportPreview(opts Options) (Preview, error) {
	return GetExportPreview(opts)
}

// InitiateExport builds, encrypts and tokenizes an export for userID.
// Every call records one EXPORT_REQUEST event followed by exactly one
// EXPORT_GENERATED or EXPORT_FAILED event carrying the export id. A failed
// export returns a Result with Success false together with the error.
func (s *Service) InitiateExport(ctx context.Context, userID string, opts Options) (Result, error) {
	exportID := s.nextExportID(opts.Format)
	subject := userID
	if subject == "" {
		subject = anonymousUser
	}
	details := audit.ExportDetails{
		ExportID: exportID,
		Format:   string(opts.Format),
		Options:  opts.auditMetadata(),
	}

	s.logAudit(ctx, subject, audit.ActionExportRequest, details, nil)

	spanCtx, end := telemetry.StartSpan(ctx, "export.generate",
		attribute.String("export.id", exportID),
		attribute.String("export.format", string(opts.Format)),
	)
	result, err := s.run(spanCtx, exportID, userID, opts)
	end(err)
	if err != nil {
		s.logAudit(ctx, subject, audit.ActionExportFailed, details, err)
		metrics.IncExport(string(opts.Format), false)
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Str("export_id", exportID).
			Msg("export failed")
		return Result{ExportID: exportID, Success: false, Error: err.Error()}, err
	}

	details.FileSize = result.FileSize
	s.logAudit(ctx, subject, audit.ActionExportGenerated, details, nil)
	metrics.IncExport(string(opts.Format), true)
	s.logger.Info().
		Str("user_id", userID).
		Str("export_id", exportID).
		Str("format", string(opts.Format)).
		Str("file_size", result.FileSize).
		Msg("export generated")
	return result, nil
}

func (s *Service) run(ctx context.Context, exportID, userID string, opts Options) (Result, error) {
	if userID == "" {
		return Result{}, ErrUnauthenticated
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if opts.Format == FormatPDF && s.flags != nil && s.flags.IsEnabled(ctx, featureflags.FlagDisablePDFExport) {
		return Result{}, fmt.Errorf("%w: %s", ErrFormatDisabled, opts.Format)
	}

	payload, err := render(opts.Format, s.gather(ctx, exportID, userID, opts))
	if err != nil {
		return Result{}, fmt.Errorf("render %s export: %w", opts.Format, err)
	}

	path := filepath.Join(s.workDir, exportID+"."+opts.Format.Extension())
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("write export payload: %w", err)
	}

	// EncryptFile removes the plaintext on every return path.
	info, err := s.files.EncryptFile(ctx, path, userID, exportID)
	if err != nil {
		return Result{}, err
	}

	expiresAt := info.ExpiresAt
	return Result{
		ExportID:    exportID,
		Success:     true,
		FilePath:    info.EncryptedPath,
		FileSize:    FormatBytes(info.EncryptedSize),
		DownloadURL: info.DownloadToken,
		ExpiresAt:   &expiresAt,
	}, nil
}

// SecureDownload redeems token for the authenticated user in ctx and
// returns the transient plaintext file. The token cannot be used again.
func (s *Service) SecureDownload(ctx context.Context, token string) (*securefile.DownloadedFile, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		s.logRefused(ctx, anonymousUser, ErrUnauthenticated)
		return nil, ErrUnauthenticated
	}

	file, err := s.files.Redeem(ctx, token, userID)
	if err == nil && !file.Integrity.IsValid {
		s.files.ReleaseDownload(file.Path)
		err = securefile.ErrIntegrityViolation
	}
	if err != nil {
		s.logRefused(ctx, userID, err)
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("secure download refused")
		return nil, err
	}

	s.logAudit(ctx, userID, audit.ActionExportDownloaded, audit.ExportDetails{
		ExportID: file.FileID,
		Format:   string(FormatOf(file.FileID)),
	}, nil)
	return file, nil
}

// Release deletes a downloaded plaintext file once it has been delivered.
func (s *Service) Release(file *securefile.DownloadedFile) {
	if file != nil {
		s.files.ReleaseDownload(file.Path)
	}
}

// CleanupOldExports deletes plaintext artifacts left in the work directory
// that are older than maxAgeHours.
func (s *Service) CleanupOldExports(_ context.Context, maxAgeHours int) (int, error) {
	entries, err := os.ReadDir(s.workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read work dir: %w", err)
	}

	cutoff := s.now().Add(-time.Duration(maxAgeHours) * time.Hour)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.workDir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove stale export")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Msg("removed stale export artifacts")
	}
	return deleted, nil
}

func (s *Service) logAudit(ctx context.Context, userID string, action audit.Action, details audit.ExportDetails, err error) {
	if s.audit == nil {
		return
	}
	if err != nil {
		s.audit.LogDataExport(ctx, userID, action, details, false, err.Error())
		return
	}
	s.audit.LogDataExport(ctx, userID, action, details, true, "")
}

func (s *Service) logRefused(ctx context.Context, userID string, err error) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, audit.ActionExportDownloaded, "data_export", nil, false, err.Error())
	}
}

// nextExportID returns <format>_export_<unixms>, strictly increasing per process.
func (s *Service) nextExportID(format Format) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	ms := s.now().UnixMilli()
	if ms <= s.lastMillis {
		ms = s.lastMillis + 1
	}
	s.lastMillis = ms
	return fmt.Sprintf("%s_export_%d", format, ms)
}

// FormatOf returns the format encoded in an export id, or "" when the id is not an export id.
func FormatOf(exportID string) Format {
	format, _, ok := strings.Cut(exportID, "_export_")
	if !ok {
		return ""
	}
	return Format(format)
}

func (o Options) auditMetadata() map[string]interface{} {
	return map[string]interface{}{
		"dateRange":           string(o.DateRange),
		"includePersonalInfo": o.IncludePersonalInfo,
		"includeTransactions": o.IncludeTransactions,
		"includeCategories":   o.IncludeCategories,
		"includeSettings":     o.IncludeSettings,
		"includeQAHistory":    o.IncludeQAHistory,
	}
}

// unavailable stands in for data sources that were not configured.
type unavailable struct{}

func (unavailable) Get(context.Context, string) (*user.User, error) { return nil, errNoSource }

func (unavailable) ListTransactions(context.Context, string, ledger.Range) ([]ledger.Transaction, error) {
	return nil, errNoSource
}

func (unavailable) ListCategories(context.Context, string) ([]ledger.Category, error) {
	return nil, errNoSource
}

func (unavailable) ListHistory(context.Context, string, time.Time) ([]assistant.Exchange, error) {
	return nil, errNoSource
}
