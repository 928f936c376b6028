package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// CSV section headers.
const (
	csvTitle               = "FINTRACK DATA EXPORT"
	csvSectionPersonalInfo = "PERSONAL INFORMATION"
	csvSectionTransactions = "TRANSACTIONS"
	csvSectionCategories   = "CATEGORIES"
	csvSectionSettings     = "SETTINGS"
	csvSectionQAHistory    = "QA HISTORY"
)

// writeCSV renders d as newline-separated CSV sections, each starting with
// a header line. A failed category is written as an "Error,<msg>" row.
func writeCSV(out io.Writer, d *dataset) error {
	w := csv.NewWriter(out)

	rows := [][]string{
		{csvTitle},
		{"Export ID", d.ExportID},
		{"Generated", d.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Date Range", string(d.Options.DateRange)},
	}

	if p := d.PersonalInfo; p != nil {
		rows = append(rows, []string{}, []string{csvSectionPersonalInfo})
		if err := partError(p.Err, p.Data == nil); err != "" {
			rows = append(rows, []string{"Error", err})
		} else {
			u := p.Data
			rows = append(rows,
				[]string{"Field", "Value"},
				[]string{"User ID", u.ID},
				[]string{"Name", u.Name},
				[]string{"Email", u.Email},
				[]string{"Phone", u.Phone},
				[]string{"Locale", u.Locale},
				[]string{"Member Since", u.CreatedAt.UTC().Format(time.RFC3339)},
			)
		}
	}

	if p := d.Transactions; p != nil {
		rows = append(rows, []string{}, []string{csvSectionTransactions})
		if err := partError(p.Err, false); err != "" {
			rows = append(rows, []string{"Error", err})
		} else {
			names := d.categoryNames()
			rows = append(rows, []string{"Date", "Description", "Merchant", "Category", "Type", "Amount", "Currency"})
			for _, tx := range p.Data {
				category := names[tx.CategoryID]
				if category == "" {
					category = tx.CategoryID
				}
				rows = append(rows, []string{
					tx.Date.UTC().Format("2006-01-02"),
					tx.Description,
					tx.Merchant,
					category,
					string(tx.Type),
					tx.Amount(),
					tx.Currency,
				})
			}
		}
	}

	if p := d.Categories; p != nil {
		rows = append(rows, []string{}, []string{csvSectionCategories})
		if err := partError(p.Err, false); err != "" {
			rows = append(rows, []string{"Error", err})
		} else {
			rows = append(rows, []string{"Name", "Color", "Monthly Budget"})
			for _, c := range p.Data {
				rows = append(rows, []string{c.Name, c.Color, formatCents(c.MonthlyBudgetCents)})
			}
		}
	}

	if p := d.Settings; p != nil {
		rows = append(rows, []string{}, []string{csvSectionSettings})
		if err := partError(p.Err, p.Data == nil); err != "" {
			rows = append(rows, []string{"Error", err})
		} else {
			st, cs := settingsOf(p.Data)
			rows = append(rows,
				[]string{"Field", "Value"},
				[]string{"Currency", st.Currency},
				[]string{"Notifications Enabled", strconv.FormatBool(st.NotificationsEnabled)},
				[]string{"Budget Alerts", strconv.FormatBool(st.BudgetAlerts)},
				[]string{"Biometric Lock", strconv.FormatBool(st.BiometricLock)},
				[]string{"Dark Mode", strconv.FormatBool(st.DarkMode)},
				[]string{"Analytics Consent", strconv.FormatBool(cs.Analytics)},
				[]string{"Marketing Consent", strconv.FormatBool(cs.Marketing)},
				[]string{"Data Sharing Consent", strconv.FormatBool(cs.DataSharing)},
			)
		}
	}

	if p := d.QAHistory; p != nil {
		rows = append(rows, []string{}, []string{csvSectionQAHistory})
		if err := partError(p.Err, false); err != "" {
			rows = append(rows, []string{"Error", err})
		} else {
			rows = append(rows, []string{"Asked At", "Topic", "Question", "Answer"})
			for _, e := range p.Data {
				rows = append(rows, []string{e.AskedAt.UTC().Format(time.RFC3339), e.Topic, e.Question, e.Answer})
			}
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}
