package export

import (
	"encoding/json"
	"io"
	"time"
)

type jsonMetadata struct {
	ExportID   string    `json:"exportId"`
	UserID     string    `json:"userId"`
	ExportDate time.Time `json:"exportDate"`
	Format     Format    `json:"format"`
	DateRange  DateRange `json:"dateRange"`
	Categories []string  `json:"categories"`
	Version    string    `json:"version"`
}

type jsonDocument struct {
	Metadata jsonMetadata           `json:"metadata"`
	Data     map[string]interface{} `json:"data"`
}

type jsonError struct {
	Error string `json:"error"`
}

type jsonPersonalInfo struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Locale      string    `json:"locale"`
	MemberSince time.Time `json:"memberSince"`
}

type jsonTransaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Merchant    string    `json:"merchant,omitempty"`
	Category    string    `json:"category,omitempty"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
}

type jsonCategory struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Color         string `json:"color,omitempty"`
	MonthlyBudget string `json:"monthlyBudget"`
}

type jsonSettings struct {
	Currency             string `json:"currency"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	BudgetAlerts         bool   `json:"budgetAlerts"`
	BiometricLock        bool   `json:"biometricLock"`
	DarkMode             bool   `json:"darkMode"`
	Consents             struct {
		Analytics   bool `json:"analytics"`
		Marketing   bool `json:"marketing"`
		DataSharing bool `json:"dataSharing"`
	} `json:"consents"`
}

type jsonExchange struct {
	AskedAt  time.Time `json:"askedAt"`
	Topic    string    `json:"topic,omitempty"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
}

// jsonFormatVersion is bumped when the document layout changes.
const jsonFormatVersion = "1.0"

// writeJSON renders d as {metadata, data}. A failed category is written as {"error": msg}.
func writeJSON(out io.Writer, d *dataset) error {
	doc := jsonDocument{
		Metadata: jsonMetadata{
			ExportID:   d.ExportID,
			UserID:     d.UserID,
			ExportDate: d.GeneratedAt.UTC(),
			Format:     d.Options.Format,
			DateRange:  d.Options.DateRange,
			Categories: d.Options.Categories(),
			Version:    jsonFormatVersion,
		},
		Data: make(map[string]interface{}),
	}

	if p := d.PersonalInfo; p != nil {
		if msg := partError(p.Err, p.Data == nil); msg != "" {
			doc.Data[CategoryPersonalInfo] = jsonError{Error: msg}
		} else {
			doc.Data[CategoryPersonalInfo] = jsonPersonalInfo{
				UserID:      p.Data.ID,
				Name:        p.Data.Name,
				Email:       p.Data.Email,
				Phone:       p.Data.Phone,
				Locale:      p.Data.Locale,
				MemberSince: p.Data.CreatedAt.UTC(),
			}
		}
	}

	if p := d.Transactions; p != nil {
		if msg := partError(p.Err, false); msg != "" {
			doc.Data[CategoryTransactions] = jsonError{Error: msg}
		} else {
			names := d.categoryNames()
			txs := make([]jsonTransaction, 0, len(p.Data))
			for _, tx := range p.Data {
				category := names[tx.CategoryID]
				if category == "" {
					category = tx.CategoryID
				}
				txs = append(txs, jsonTransaction{
					ID:          tx.ID,
					Date:        tx.Date.UTC(),
					Description: tx.Description,
					Merchant:    tx.Merchant,
					Category:    category,
					Type:        string(tx.Type),
					Amount:      tx.Amount(),
					Currency:    tx.Currency,
				})
			}
			doc.Data[CategoryTransactions] = txs
		}
	}

	if p := d.Categories; p != nil {
		if msg := partError(p.Err, false); msg != "" {
			doc.Data[CategoryCategories] = jsonError{Error: msg}
		} else {
			cats := make([]jsonCategory, 0, len(p.Data))
			for _, c := range p.Data {
				cats = append(cats, jsonCategory{
					ID:            c.ID,
					Name:          c.Name,
					Color:         c.Color,
					MonthlyBudget: formatCents(c.MonthlyBudgetCents),
				})
			}
			doc.Data[CategoryCategories] = cats
		}
	}

	if p := d.Settings; p != nil {
		if msg := partError(p.Err, p.Data == nil); msg != "" {
			doc.Data[CategorySettings] = jsonError{Error: msg}
		} else {
			st, cs := settingsOf(p.Data)
			var out jsonSettings
			out.Currency = st.Currency
			out.NotificationsEnabled = st.NotificationsEnabled
			out.BudgetAlerts = st.BudgetAlerts
			out.BiometricLock = st.BiometricLock
			out.DarkMode = st.DarkMode
			out.Consents.Analytics = cs.Analytics
			out.Consents.Marketing = cs.Marketing
			out.Consents.DataSharing = cs.DataSharing
			doc.Data[CategorySettings] = out
		}
	}

	if p := d.QAHistory; p != nil {
		if msg := partError(p.Err, false); msg != "" {
			doc.Data[CategoryQAHistory] = jsonError{Error: msg}
		} else {
			history := make([]jsonExchange, 0, len(p.Data))
			for _, e := range p.Data {
				history = append(history, jsonExchange{
					AskedAt:  e.AskedAt.UTC(),
					Topic:    e.Topic,
					Question: e.Question,
					Answer:   e.Answer,
				})
			}
			doc.Data[CategoryQAHistory] = history
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
