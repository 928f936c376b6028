package export

import (
	"bytes"
	"fmt"

	"github.com/fintrack/fintrack/internal/ledger"
	"github.com/fintrack/fintrack/internal/user"
)

// errMissingProfile is reported for a profile lookup that returned nothing.
const errMissingProfile = "profile not found"

// render serializes d in the requested format.
func render(format Format, d *dataset) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(&buf, d)
	case FormatJSON:
		err = writeJSON(&buf, d)
	case FormatPDF:
		err = writeHTML(&buf, d)
	default:
		err = fmt.Errorf("%w: unsupported format %q", ErrInvalidOptions, format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// partError returns the inline marker text for a failed part, or "".
func partError(err error, missing bool) string {
	if err != nil {
		return err.Error()
	}
	if missing {
		return errMissingProfile
	}
	return ""
}

func settingsOf(u *user.User) (*user.Settings, *user.Consents) {
	st, cs := u.Settings, u.Consents
	if st == nil {
		st = user.DefaultSettings()
	}
	if cs == nil {
		cs = user.DefaultConsents()
	}
	return st, cs
}

func formatCents(cents int64) string {
	return ledger.Transaction{AmountCents: cents}.Amount()
}
