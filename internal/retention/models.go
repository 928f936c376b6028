// Package retention enforces how long locally stored data is kept and runs
// purge passes over the purge-eligible categories.
//
// Financial records, transaction history and tax related data are held for
// the legal minimum of seven years. No setting or purge path shortens them.
package retention

import (
	"fmt"
	"time"
)

// Category is a class of locally stored data.
type Category string

// Protected categories.
const (
	CategoryFinancialRecords   Category = "Financial Records"
	CategoryTransactionHistory Category = "Transaction History"
	CategoryTaxRelatedData     Category = "Tax Related Data"
)

// Purge-eligible categories.
const (
	CategoryUserAnalytics     Category = "User Analytics"
	CategoryCommunicationLogs Category = "Communication Logs"
	CategoryUsageData         Category = "Usage Data"
	CategorySessionData       Category = "Session Data"
	CategoryTempFiles         Category = "Temporary Files"
	CategoryCacheData         Category = "Cache Data"
)

// LegalMinimumDays is the retention floor for financial data (7×365).
const LegalMinimumDays = 2555

// ProtectedCategories are never purged.
var ProtectedCategories = []Category{
	CategoryFinancialRecords,
	CategoryTransactionHistory,
	CategoryTaxRelatedData,
}

// EligibleCategories are purged in this order.
var EligibleCategories = []Category{
	CategoryUserAnalytics,
	CategoryCommunicationLogs,
	CategoryUsageData,
	CategorySessionData,
	CategoryTempFiles,
	CategoryCacheData,
}

// categoryCaps bound the user's choice per eligible category, in days.
var categoryCaps = map[Category]int{
	CategoryUserAnalytics:     730,
	CategoryCommunicationLogs: 365,
	CategoryUsageData:         365,
	CategorySessionData:       90,
	CategoryTempFiles:         30,
	CategoryCacheData:         30,
}

// Protected reports whether c holds legally retained financial data.
func (c Category) Protected() bool {
	for _, p := range ProtectedCategories {
		if c == p {
			return true
		}
	}
	return false
}

// Eligible reports whether c may be purged.
func (c Category) Eligible() bool {
	_, ok := categoryCaps[c]
	return ok
}

// Period is the user's coarse retention choice.
type Period string

// Retention periods.
const (
	Period1Year  Period = "1-year"
	Period2Years Period = "2-years"
	Period3Years Period = "3-years"
	Period5Years Period = "5-years"
	Period7Years Period = "7-years"
)

// DefaultPeriod applies until the user picks one.
const DefaultPeriod = Period2Years

// Days returns the period in days, or 0 for an unknown period.
func (p Period) Days() int {
	switch p {
	case Period1Year:
		return 365
	case Period2Years:
		return 730
	case Period3Years:
		return 1095
	case Period5Years:
		return 1825
	case Period7Years:
		return 2555
	}
	return 0
}

// Settings are the user-facing retention choices and schedule.
type Settings struct {
	AutoDeleteOldData  bool       `json:"autoDeleteOldData"`
	RetentionPeriod    Period     `json:"retentionPeriod"`
	LastPurgeDate      *time.Time `json:"lastPurgeDate,omitempty"`
	NextScheduledPurge *time.Time `json:"nextScheduledPurge,omitempty"`
}

// DefaultSettings returns auto-delete off with the default period.
func DefaultSettings() Settings {
	return Settings{RetentionPeriod: DefaultPeriod}
}

// SettingsUpdate is a partial settings update. Nil fields are left unchanged.
type SettingsUpdate struct {
	AutoDeleteOldData *bool   `json:"autoDeleteOldData,omitempty"`
	RetentionPeriod   *Period `json:"retentionPeriod,omitempty"`
}

// Policy is the retention window per category, in days.
type Policy struct {
	FinancialRecords   int `json:"financialRecords"`
	TransactionHistory int `json:"transactionHistory"`
	TaxRelatedData     int `json:"taxRelatedData"`
	UserAnalytics      int `json:"userAnalytics"`
	CommunicationLogs  int `json:"communicationLogs"`
	UsageData          int `json:"usageData"`
	SessionData        int `json:"sessionData"`
	TempFiles          int `json:"tempFiles"`
	CacheData          int `json:"cacheData"`
}

// PolicyFor computes the policy for a retention period. Financial windows
// ignore the period.
func PolicyFor(period Period) Policy {
	days := period.Days()
	if days == 0 {
		days = DefaultPeriod.Days()
	}
	window := func(c Category) int { return min(days, categoryCaps[c]) }

	return Policy{
		FinancialRecords:   LegalMinimumDays,
		TransactionHistory: LegalMinimumDays,
		TaxRelatedData:     LegalMinimumDays,
		UserAnalytics:      window(CategoryUserAnalytics),
		CommunicationLogs:  window(CategoryCommunicationLogs),
		UsageData:          window(CategoryUsageData),
		SessionData:        window(CategorySessionData),
		TempFiles:          window(CategoryTempFiles),
		CacheData:          window(CategoryCacheData),
	}
}

// Window returns the retention window for c in days.
func (p Policy) Window(c Category) int {
	switch c {
	case CategoryFinancialRecords:
		return p.FinancialRecords
	case CategoryTransactionHistory:
		return p.TransactionHistory
	case CategoryTaxRelatedData:
		return p.TaxRelatedData
	case CategoryUserAnalytics:
		return p.UserAnalytics
	case CategoryCommunicationLogs:
		return p.CommunicationLogs
	case CategoryUsageData:
		return p.UsageData
	case CategorySessionData:
		return p.SessionData
	case CategoryTempFiles:
		return p.TempFiles
	case CategoryCacheData:
		return p.CacheData
	}
	return LegalMinimumDays
}

// PurgeReport records one purge pass. CategoriesProcessed lists the
// categories that purged cleanly and CategoriesFailed those that returned an
// error; together they are every category the pass attempted.
type PurgeReport struct {
	PurgeDate           time.Time `json:"purgeDate"`
	ItemsDeleted        int       `json:"itemsDeleted"`
	CategoriesProcessed []string  `json:"categoriesProcessed"`
	CategoriesFailed    []string  `json:"categoriesFailed"`
	SpaceFreed          int64     `json:"spaceFreed"`
	SpaceFreedHuman     string    `json:"spaceFreedHuman"`
	Errors              []string  `json:"errors"`
	NextScheduledPurge  time.Time `json:"nextScheduledPurge"`
	Manual              bool      `json:"manual"`
}

// formatBytes renders a byte count for humans, e.g. "1.2 KB".
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
