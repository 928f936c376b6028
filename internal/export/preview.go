package export

import "fmt"

// Estimation heuristics.
const (
	transactionsPerMonth = 50
	categoryRecords      = 15
	qaRecordsPerMonth    = 4
)

var bytesPerRecord = map[Format]int{
	FormatCSV:  100,
	FormatJSON: 200,
	FormatPDF:  300,
}

// GetExportPreview estimates the size of an export without reading any data.
func GetExportPreview(opts Options) (Preview, error) {
	if err := opts.Validate(); err != nil {
		return Preview{}, err
	}

	months := opts.DateRange.Months()
	records := 0
	if opts.IncludePersonalInfo {
		records++
	}
	if opts.IncludeTransactions {
		records += transactionsPerMonth * months
	}
	if opts.IncludeCategories {
		records += categoryRecords
	}
	if opts.IncludeSettings {
		records++
	}
	if opts.IncludeQAHistory {
		records += qaRecordsPerMonth * months
	}

	return Preview{
		EstimatedRecords: records,
		EstimatedSize:    FormatBytes(int64(records * bytesPerRecord[opts.Format])),
		Categories:       opts.Categories(),
		DateRange:        opts.DateRange,
	}, nil
}

// FormatBytes renders a byte count for humans, e.g. "1.2 KB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	units := []string{"KB", "MB", "GB", "TB"}
	i := -1
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}
