package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/fintrack/fintrack/internal/api/models"
)

// Limit is a fixed request budget per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Budgets for the privacy surface. Exports read every data source and
// encrypt a file, purges delete data, so both get far less than reads.
var (
	ExportLimit   = Limit{Requests: 5, Window: time.Minute}
	DownloadLimit = Limit{Requests: 10, Window: time.Minute}
	PurgeLimit    = Limit{Requests: 3, Window: time.Minute}
	StandardLimit = Limit{Requests: 100, Window: time.Minute}
)

// PerIP limits by client address as resolved by chi's RealIP.
func (l Limit) PerIP() func(http.Handler) http.Handler {
	return l.middleware(httprate.KeyByRealIP)
}

// PerUser limits by authenticated user, falling back to the client
// address for anonymous requests.
func (l Limit) PerUser() func(http.Handler) http.Handler {
	return l.middleware(func(r *http.Request) (string, error) {
		if userID := GetUserID(r.Context()); userID != "" {
			return "user:" + userID, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func (l Limit) middleware(key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int((l.Window + time.Second - 1) / time.Second))
	return httprate.Limit(
		l.Requests,
		l.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.KindTooManyRequests.New(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = MaskPath(r.URL.Path)
			// httprate does not expose the reset time; the window is an upper bound.
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
