package export

import (
	"html/template"
	"io"
	"strconv"
	"time"
)

type htmlSection struct {
	Title   string
	Error   string
	Headers []string
	Rows    [][]string
}

type htmlView struct {
	ExportID    string
	GeneratedAt string
	DateRange   DateRange
	Sections    []htmlSection
}

var htmlTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>FinTrack Data Export</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1f2933; margin: 32px; }
h1 { font-size: 22px; margin-bottom: 4px; }
h2 { font-size: 16px; border-bottom: 2px solid #0b6e4f; padding-bottom: 4px; margin-top: 28px; }
.meta { color: #616e7c; font-size: 12px; }
table { border-collapse: collapse; width: 100%; font-size: 12px; }
th, td { border: 1px solid #d9e2ec; padding: 4px 6px; text-align: left; vertical-align: top; }
th { background: #f0f4f8; }
.error { color: #b42318; font-weight: bold; }
@media print { body { margin: 12mm; } h2 { page-break-after: avoid; } }
</style>
</head>
<body>
<h1>FinTrack Data Export</h1>
<p class="meta">Export {{.ExportID}} &middot; generated {{.GeneratedAt}} &middot; range {{.DateRange}}</p>
{{range .Sections}}
<h2>{{.Title}}</h2>
{{if .Error}}<p class="error">Error: {{.Error}}</p>{{else}}
<table>
<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>{{end}}
{{end}}
</body>
</html>
`))

// writeHTML renders d as a self-contained, print-ready HTML document.
func writeHTML(out io.Writer, d *dataset) error {
	view := htmlView{
		ExportID:    d.ExportID,
		GeneratedAt: d.GeneratedAt.UTC().Format(time.RFC1123),
		DateRange:   d.Options.DateRange,
	}

	if p := d.PersonalInfo; p != nil {
		s := htmlSection{Title: "Personal Information", Headers: []string{"Field", "Value"}}
		if s.Error = partError(p.Err, p.Data == nil); s.Error == "" {
			u := p.Data
			s.Rows = [][]string{
				{"Name", u.Name},
				{"Email", u.Email},
				{"Phone", u.Phone},
				{"Locale", u.Locale},
				{"Member Since", u.CreatedAt.UTC().Format("2006-01-02")},
			}
		}
		view.Sections = append(view.Sections, s)
	}

	if p := d.Transactions; p != nil {
		s := htmlSection{Title: "Transactions", Headers: []string{"Date", "Description", "Category", "Amount", "Currency"}}
		if s.Error = partError(p.Err, false); s.Error == "" {
			names := d.categoryNames()
			for _, tx := range p.Data {
				s.Rows = append(s.Rows, []string{
					tx.Date.UTC().Format("2006-01-02"),
					tx.Description,
					names[tx.CategoryID],
					tx.Amount(),
					tx.Currency,
				})
			}
		}
		view.Sections = append(view.Sections, s)
	}

	if p := d.Categories; p != nil {
		s := htmlSection{Title: "Categories", Headers: []string{"Name", "Monthly Budget"}}
		if s.Error = partError(p.Err, false); s.Error == "" {
			for _, c := range p.Data {
				s.Rows = append(s.Rows, []string{c.Name, formatCents(c.MonthlyBudgetCents)})
			}
		}
		view.Sections = append(view.Sections, s)
	}

	if p := d.Settings; p != nil {
		s := htmlSection{Title: "Settings", Headers: []string{"Field", "Value"}}
		if s.Error = partError(p.Err, p.Data == nil); s.Error == "" {
			st, cs := settingsOf(p.Data)
			s.Rows = [][]string{
				{"Currency", st.Currency},
				{"Notifications Enabled", strconv.FormatBool(st.NotificationsEnabled)},
				{"Budget Alerts", strconv.FormatBool(st.BudgetAlerts)},
				{"Analytics Consent", strconv.FormatBool(cs.Analytics)},
				{"Marketing Consent", strconv.FormatBool(cs.Marketing)},
				{"Data Sharing Consent", strconv.FormatBool(cs.DataSharing)},
			}
		}
		view.Sections = append(view.Sections, s)
	}

	if p := d.QAHistory; p != nil {
		s := htmlSection{Title: "Q&A History", Headers: []string{"Asked At", "Question", "Answer"}}
		if s.Error = partError(p.Err, false); s.Error == "" {
			for _, e := range p.Data {
				s.Rows = append(s.Rows, []string{e.AskedAt.UTC().Format("2006-01-02 15:04"), e.Question, e.Answer})
			}
		}
		view.Sections = append(view.Sections, s)
	}

	return htmlTemplate.Execute(out, view)
}
