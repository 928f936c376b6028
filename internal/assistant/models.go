// Package assistant keeps the history of questions users asked the in-app
// finance assistant.
package assistant

import "time"

// Exchange is one question and the answer given to it.
type Exchange struct {
	ID       string
	UserID   string
	Question string
	Answer   string
	Topic    string
	AskedAt  time.Time
}
