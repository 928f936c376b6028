// Package export builds data-subject exports of a user's FinTrack data and
// hands them to the secure file service for encryption and tokenized download.
package export

import (
	"errors"
	"fmt"
	"time"
)

// Format is the serialization of an export.
type Format string

// Supported formats. PDF exports are rendered as print-ready HTML.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatCSV, FormatJSON, FormatPDF:
		return true
	}
	return false
}

// Extension returns the file extension of the plaintext payload.
func (f Format) Extension() string {
	if f == FormatPDF {
		return "html"
	}
	return string(f)
}

// ContentType returns the media type of the plaintext payload.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "text/html; charset=utf-8"
	}
	return "application/octet-stream"
}

// DateRange selects how far back transactions and Q&A history reach.
type DateRange string

// Date range selectors.
const (
	RangeAll         DateRange = "all"
	RangeLastMonth   DateRange = "last-month"
	RangeLast3Months DateRange = "last-3-months"
	RangeLast6Months DateRange = "last-6-months"
	RangeLastYear    DateRange = "last-year"
)

// allRangeMonths is the width assumed for RangeAll when estimating.
const allRangeMonths = 24

// Months returns the width of the range in months.
func (r DateRange) Months() int {
	switch r {
	case RangeLastMonth:
		return 1
	case RangeLast3Months:
		return 3
	case RangeLast6Months:
		return 6
	case RangeLastYear:
		return 12
	case RangeAll:
		return allRangeMonths
	}
	return 0
}

// Since returns the start of the range relative to now. RangeAll has no start.
func (r DateRange) Since(now time.Time) time.Time {
	if r == RangeAll {
		return time.Time{}
	}
	return now.AddDate(0, -r.Months(), 0)
}

// ErrInvalidOptions is returned for export options that cannot be run.
var ErrInvalidOptions = errors.New("invalid export options")

// Options selects what an export contains. It is not modified by the export run.
type Options struct {
	Format              Format    `json:"format"`
	DateRange           DateRange `json:"dateRange"`
	IncludePersonalInfo bool      `json:"includePersonalInfo"`
	IncludeTransactions bool      `json:"includeTransactions"`
	IncludeCategories   bool      `json:"includeCategories"`
	IncludeSettings     bool      `json:"includeSettings"`
	IncludeQAHistory    bool      `json:"includeQAHistory"`
}

// Validate checks the format, the date range and that at least one category is selected.
func (o Options) Validate() error {
	if !o.Format.Valid() {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidOptions, o.Format)
	}
	if o.DateRange.Months() == 0 {
		return fmt.Errorf("%w: unsupported date range %q", ErrInvalidOptions, o.DateRange)
	}
	if len(o.Categories()) == 0 {
		return fmt.Errorf("%w: no data category selected", ErrInvalidOptions)
	}
	return nil
}

// Category names as they appear in previews and audit metadata.
const (
	CategoryPersonalInfo = "personalInfo"
	CategoryTransactions = "transactions"
	CategoryCategories   = "categories"
	CategorySettings     = "settings"
	CategoryQAHistory    = "qaHistory"
)

// Categories lists the selected data categories in export order.
func (o Options) Categories() []string {
	var out []string
	if o.IncludePersonalInfo {
		out = append(out, CategoryPersonalInfo)
	}
	if o.IncludeTransactions {
		out = append(out, CategoryTransactions)
	}
	if o.IncludeCategories {
		out = append(out, CategoryCategories)
	}
	if o.IncludeSettings {
		out = append(out, CategorySettings)
	}
	if o.IncludeQAHistory {
		out = append(out, CategoryQAHistory)
	}
	return out
}

// Result is the outcome of one export attempt. A retry produces a new Result.
type Result struct {
	ExportID    string     `json:"exportId"`
	Success     bool       `json:"success"`
	FilePath    string     `json:"filePath,omitempty"`
	FileSize    string     `json:"fileSize,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Preview is an estimate of an export's size.
type Preview struct {
	EstimatedRecords int       `json:"estimatedRecords"`
	EstimatedSize    string    `json:"estimatedSize"`
	Categories       []string  `json:"categories"`
	DateRange        DateRange `json:"dateRange"`
}
