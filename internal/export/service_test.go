package export_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/assistant"
	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/export"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/ledger"
	"github.com/fintrack/fintrack/internal/securefile"
	"github.com/fintrack/fintrack/internal/storage"
	"github.com/fintrack/fintrack/internal/user"
)

const testUser = "usr_export"

type flags map[string]bool

func (f flags) IsEnabled(_ context.Context, key string) bool { return f[key] }

// failingLedger fails transaction lookups and serves categories.
type failingLedger struct {
	*ledger.InMemoryRepository
}

func (failingLedger) ListTransactions(context.Context, string, ledger.Range) ([]ledger.Transaction, error) {
	return nil, errors.New("ledger unavailable")
}

type fixture struct {
	svc     *export.Service
	files   *securefile.Service
	audit   *audit.Service
	ledger  *ledger.InMemoryRepository
	history *assistant.InMemoryRepository
	workDir string
}

type fixtureOptions struct {
	base   *ledger.InMemoryRepository
	ledger export.Ledger
	flags  export.FlagChecker
}

func newFixture(t *testing.T, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	f := &fixture{
		audit:   audit.NewService(audit.ServiceConfig{Logger: zerolog.Nop()}),
		ledger:  ledger.NewInMemoryRepository(),
		history: assistant.NewInMemoryRepository(),
		workDir: filepath.Join(root, "work"),
	}
	fo := fixtureOptions{base: f.ledger, ledger: f.ledger}
	for _, o := range opts {
		o(&fo)
	}

	f.files = securefile.NewService(securefile.ServiceConfig{
		Store:     storage.NewInMemoryStore(),
		Audit:     f.audit,
		Logger:    zerolog.Nop(),
		SecureDir: filepath.Join(root, "secure_exports"),
		TempDir:   filepath.Join(root, "downloads"),
	})
	require.NoError(t, f.files.Initialize(ctx))
	t.Cleanup(func() { f.files.Shutdown(ctx) })

	users := user.NewInMemoryRepository()
	profile := user.DefaultUser(testUser)
	profile.Name = "Jane Doe"
	profile.Email = "jane@example.ca"
	require.NoError(t, users.Create(ctx, profile))

	f.svc = export.NewService(export.ServiceConfig{
		Profiles: users,
		Ledger:   fo.ledger,
		History:  f.history,
		Files:    f.files,
		Audit:    f.audit,
		Flags:    fo.flags,
		Logger:   zerolog.Nop(),
		WorkDir:  f.workDir,
	})
	require.NoError(t, f.svc.Initialize(ctx))

	require.NoError(t, f.ledger.AddCategory(ctx, &ledger.Category{ID: "cat_food", UserID: testUser, Name: "Groceries", MonthlyBudgetCents: 40000}))
	return f
}

func (f *fixture) addTransactions(t *testing.T, n int, age time.Duration) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, f.ledger.AddTransaction(context.Background(), &ledger.Transaction{
			ID:          fmt.Sprintf("tx_%d_%d", age/time.Hour, i),
			UserID:      testUser,
			Date:        now.Add(-age - time.Duration(i)*time.Hour),
			Description: fmt.Sprintf("Purchase %d", i),
			AmountCents: -1250,
			Currency:    "CAD",
			Type:        ledger.TransactionDebit,
			CategoryID:  "cat_food",
		}))
	}
}

func (f *fixture) download(t *testing.T, token string) string {
	t.Helper()
	ctx := auth.WithUserID(context.Background(), testUser)
	file, err := f.svc.SecureDownload(ctx, token)
	require.NoError(t, err)
	raw, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	f.svc.Release(file)
	return string(raw)
}

func (f *fixture) eventsFor(exportID string) []audit.Event {
	var out []audit.Event
	for _, e := range f.audit.Events(context.Background(), testUser) {
		if e.Metadata["exportId"] == exportID {
			out = append(out, e)
		}
	}
	return out
}

// sectionRows returns the data rows below the column header of a CSV section.
func sectionRows(payload, section string) []string {
	lines := strings.Split(payload, "\n")
	for i, line := range lines {
		if line != section {
			continue
		}
		var rows []string
		for _, row := range lines[i+2:] {
			if row == "" {
				break
			}
			rows = append(rows, row)
		}
		return rows
	}
	return nil
}

func TestInitiateExport_CSVLastMonth(t *testing.T) {
	f := newFixture(t)
	f.addTransactions(t, 12, 2*time.Hour)
	f.addTransactions(t, 3, 40*24*time.Hour)

	result, err := f.svc.InitiateExport(context.Background(), testUser, export.Options{
		Format:              export.FormatCSV,
		DateRange:           export.RangeLastMonth,
		IncludeTransactions: true,
		IncludeCategories:   false,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.ExportID, "csv_export_"))
	assert.True(t, strings.HasSuffix(result.FilePath, ".enc"))
	assert.FileExists(t, result.FilePath)
	assert.NotEmpty(t, result.DownloadURL)
	assert.NotEmpty(t, result.FileSize)
	require.NotNil(t, result.ExpiresAt)

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no plaintext left in the work dir")

	payload := f.download(t, result.DownloadURL)
	assert.Len(t, sectionRows(payload, "TRANSACTIONS"), 12)
	assert.NotContains(t, payload, "CATEGORIES")
}

func TestInitiateExport_CSVQuoting(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.AddTransaction(context.Background(), &ledger.Transaction{
		ID: "tx_quote", UserID: testUser, Date: time.Now().Add(-time.Hour),
		Description: `Coffee, "large"`, AmountCents: -475, Currency: "CAD",
	}))
	require.NoError(t, f.ledger.AddTransaction(context.Background(), &ledger.Transaction{
		ID: "tx_space", UserID: testUser, Date: time.Now().Add(-2 * time.Hour),
		Description: " tip", AmountCents: -100, Currency: "CAD",
	}))

	result, err := f.svc.InitiateExport(context.Background(), testUser, export.Options{
		Format: export.FormatCSV, DateRange: export.RangeAll, IncludeTransactions: true,
	})
	require.NoError(t, err)

	payload := f.download(t, result.DownloadURL)
	assert.Contains(t, payload, `"Coffee, ""large"""`)
	assert.Contains(t, payload, "-4.75")
	// Leading whitespace is quoted as well.
	assert.Contains(t, payload, `," tip",`)
}

func TestInitiateExport_TransactionsFailureIsInline(t *testing.T) {
	f := newFixture(t, func(o *fixtureOptions) {
		o.ledger = failingLedger{o.base}
	})
	ctx := context.Background()
	opts := export.Options{
		DateRange:           export.RangeAll,
		IncludePersonalInfo: true,
		IncludeTransactions: true,
		IncludeCategories:   true,
		IncludeSettings:     true,
	}

	t.Run("csv", func(t *testing.T) {
		opts := opts
		opts.Format = export.FormatCSV
		result, err := f.svc.InitiateExport(ctx, testUser, opts)
		require.NoError(t, err)
		assert.True(t, result.Success)

		payload := f.download(t, result.DownloadURL)
		assert.Contains(t, payload, "TRANSACTIONS\nError,ledger unavailable\n")
		assert.Contains(t, payload, "Name,Jane Doe")
		assert.Contains(t, payload, "CATEGORIES\nName,Color,Monthly Budget\nGroceries,,400.00\n")
		assert.Contains(t, payload, "Currency,CAD")
	})

	t.Run("json", func(t *testing.T) {
		opts := opts
		opts.Format = export.FormatJSON
		result, err := f.svc.InitiateExport(ctx, testUser, opts)
		require.NoError(t, err)
		assert.True(t, result.Success)

		var doc struct {
			Metadata map[string]interface{}     `json:"metadata"`
			Data     map[string]json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(f.download(t, result.DownloadURL)), &doc))

		assert.Equal(t, result.ExportID, doc.Metadata["exportId"])
		assert.JSONEq(t, `{"error":"ledger unavailable"}`, string(doc.Data["transactions"]))
		assert.Contains(t, string(doc.Data["personalInfo"]), "jane@example.ca")
		assert.Contains(t, string(doc.Data["settings"]), `"currency": "CAD"`)
		assert.Contains(t, string(doc.Data["categories"]), "Groceries")
		assert.NotContains(t, doc.Data, "qaHistory")
	})
}

func TestInitiateExport_PDFRendersEscapedHTML(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.history.Append(context.Background(), &assistant.Exchange{
		ID: "qa1", UserID: testUser, AskedAt: time.Now().Add(-time.Hour),
		Question: "<script>alert(1)</script>", Answer: "Budget first.",
	}))

	result, err := f.svc.InitiateExport(context.Background(), testUser, export.Options{
		Format: export.FormatPDF, DateRange: export.RangeLastYear, IncludeQAHistory: true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.ExportID, "pdf_export_"))

	payload := f.download(t, result.DownloadURL)
	assert.True(t, strings.HasPrefix(payload, "<!DOCTYPE html>"))
	assert.Contains(t, payload, "<style>")
	assert.Contains(t, payload, "&lt;script&gt;")
	assert.NotContains(t, payload, "<script>")
	assert.Contains(t, payload, "Budget first.")
}

func TestInitiateExport_PDFDisabledByFlag(t *testing.T) {
	f := newFixture(t, func(o *fixtureOptions) {
		o.flags = flags{featureflags.FlagDisablePDFExport: true}
	})

	result, err := f.svc.InitiateExport(context.Background(), testUser, export.Options{
		Format: export.FormatPDF, DateRange: export.RangeAll, IncludeSettings: true,
	})
	require.ErrorIs(t, err, export.ErrFormatDisabled)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.DownloadURL)
}

func TestInitiateExport_AuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.InitiateExport(ctx, testUser, export.Options{
		Format: export.FormatJSON, DateRange: export.RangeAll, IncludeCategories: true,
	})
	require.NoError(t, err)

	failed, err := f.svc.InitiateExport(ctx, testUser, export.Options{
		Format: export.FormatCSV, DateRange: "last-decade", IncludeCategories: true,
	})
	require.ErrorIs(t, err, export.ErrInvalidOptions)
	assert.NotEqual(t, ok.ExportID, failed.ExportID)

	tests := []struct {
		exportID string
		terminal audit.Action
	}{
		{ok.ExportID, audit.ActionExportGenerated},
		{failed.ExportID, audit.ActionExportFailed},
	}
	for _, tt := range tests {
		events := f.eventsFor(tt.exportID)
		require.Len(t, events, 2, tt.exportID)
		assert.Equal(t, audit.ActionExportRequest, events[0].Action)
		assert.Equal(t, tt.terminal, events[1].Action)
	}

	generated := f.eventsFor(ok.ExportID)[1]
	assert.Equal(t, ok.FileSize, generated.Metadata["fileSize"])
	assert.False(t, f.eventsFor(failed.ExportID)[1].Success)
}

func TestInitiateExport_RequiresUser(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.InitiateExport(context.Background(), "", export.Options{
		Format: export.FormatCSV, DateRange: export.RangeAll, IncludeSettings: true,
	})
	require.ErrorIs(t, err, export.ErrUnauthenticated)
	assert.False(t, result.Success)
}

func TestSecureDownload(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.InitiateExport(context.Background(), testUser, export.Options{
		Format: export.FormatCSV, DateRange: export.RangeAll, IncludePersonalInfo: true,
	})
	require.NoError(t, err)

	t.Run("anonymous caller is refused", func(t *testing.T) {
		_, err := f.svc.SecureDownload(context.Background(), result.DownloadURL)
		assert.ErrorIs(t, err, export.ErrUnauthenticated)

		anon := f.audit.Events(context.Background(), "anonymous")
		require.NotEmpty(t, anon)
		assert.Equal(t, audit.ActionExportDownloaded, anon[len(anon)-1].Action)
		assert.False(t, anon[len(anon)-1].Success)
	})

	t.Run("redeems once", func(t *testing.T) {
		ctx := auth.WithUserID(context.Background(), testUser)
		file, err := f.svc.SecureDownload(ctx, result.DownloadURL)
		require.NoError(t, err)
		assert.True(t, file.Integrity.IsValid)
		assert.FileExists(t, file.Path)

		f.svc.Release(file)
		assert.NoFileExists(t, file.Path)

		_, err = f.svc.SecureDownload(ctx, result.DownloadURL)
		assert.ErrorIs(t, err, securefile.ErrTokenInvalid)
	})

	t.Run("other user is refused", func(t *testing.T) {
		again, err := f.svc.InitiateExport(context.Background(), testUser, export.Options{
			Format: export.FormatCSV, DateRange: export.RangeAll, IncludePersonalInfo: true,
		})
		require.NoError(t, err)

		_, err = f.svc.SecureDownload(auth.WithUserID(context.Background(), "usr_other"), again.DownloadURL)
		assert.ErrorIs(t, err, securefile.ErrTokenInvalid)
	})

	downloads := 0
	for _, e := range f.eventsFor(result.ExportID) {
		if e.Action == audit.ActionExportDownloaded && e.Success {
			downloads++
		}
	}
	assert.Equal(t, 1, downloads)
}

func TestCleanupOldExports(t *testing.T) {
	f := newFixture(t)

	stale := filepath.Join(f.workDir, "csv_export_1.csv")
	fresh := filepath.Join(f.workDir, "csv_export_2.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o600))
	old := time.Now().Add(-30 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	deleted, err := f.svc.CleanupOldExports(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
