package export

import (
	"context"
	"time"

	"github.com/fintrack/fintrack/internal/assistant"
	"github.com/fintrack/fintrack/internal/ledger"
	"github.com/fintrack/fintrack/internal/user"
)

// Profiles provides personal info, settings and consents.
type Profiles interface {
	Get(ctx context.Context, userID string) (*user.User, error)
}

// Ledger provides transactions and spending categories.
type Ledger interface {
	ListTransactions(ctx context.Context, userID string, r ledger.Range) ([]ledger.Transaction, error)
	ListCategories(ctx context.Context, userID string) ([]ledger.Category, error)
}

// History provides assistant Q&A history.
type History interface {
	ListHistory(ctx context.Context, userID string, since time.Time) ([]assistant.Exchange, error)
}

// part is one category of a dataset. A non-nil Err replaces the data with
// an inline error marker when rendered.
type part[T any] struct {
	Data T
	Err  error
}

// dataset is everything selected for one export. Nil parts were not selected.
type dataset struct {
	ExportID    string
	UserID      string
	GeneratedAt time.Time
	Options     Options

	PersonalInfo *part[*user.User]
	Transactions *part[[]ledger.Transaction]
	Categories   *part[[]ledger.Category]
	Settings     *part[*user.User]
	QAHistory    *part[[]assistant.Exchange]
}

// categoryNames maps category ids to display names for transaction rows.
func (d *dataset) categoryNames() map[string]string {
	names := make(map[string]string)
	if d.Categories == nil || d.Categories.Err != nil {
		return names
	}
	for _, c := range d.Categories.Data {
		names[c.ID] = c.Name
	}
	return names
}

// gather fetches every selected category. A failing source only fails
// its own parts.
func (s *Service) gather(ctx context.Context, exportID, userID string, opts Options) *dataset {
	now := s.now()
	d := &dataset{
		ExportID:    exportID,
		UserID:      userID,
		GeneratedAt: now,
		Options:     opts,
	}
	since := opts.DateRange.Since(now)

	if opts.IncludePersonalInfo || opts.IncludeSettings {
		u, err := s.profiles.Get(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile unavailable for export")
		}
		if opts.IncludePersonalInfo {
			d.PersonalInfo = &part[*user.User]{Data: u, Err: err}
		}
		if opts.IncludeSettings {
			d.Settings = &part[*user.User]{Data: u, Err: err}
		}
	}

	if opts.IncludeTransactions {
		txs, err := s.ledger.ListTransactions(ctx, userID, ledger.Range{From: since, To: now})
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("transactions unavailable for export")
		}
		d.Transactions = &part[[]ledger.Transaction]{Data: txs, Err: err}
	}

	if opts.IncludeCategories {
		cats, err := s.ledger.ListCategories(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("categories unavailable for export")
		}
		d.Categories = &part[[]ledger.Category]{Data: cats, Err: err}
	}

	if opts.IncludeQAHistory {
		history, err := s.history.ListHistory(ctx, userID, since)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("qa history unavailable for export")
		}
		d.QAHistory = &part[[]assistant.Exchange]{Data: history, Err: err}
	}

	return d
}
