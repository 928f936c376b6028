package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/auth"
)

// TokenValidator resolves a bearer token to the user it was issued to.
type TokenValidator interface {
	ValidateUser(token string) (string, error)
}

var (
	errMissingHeader = errors.New("missing authorization header")
	errNotBearer     = errors.New("invalid authorization header format")
	errEmptyToken    = errors.New("missing bearer token")
)

// Auth rejects requests without a valid bearer token and stores the
// authenticated user with auth.WithUserID.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w, r, err.Error())
				return
			}

			userID, err := validator.ValidateUser(token)
			switch {
			case errors.Is(err, auth.ErrAccessTokenExpired):
				unauthorized(w, r, "access token has expired")
				return
			case errors.Is(err, auth.ErrInvalidAccessToken):
				unauthorized(w, r, "invalid access token")
				return
			case err != nil:
				unauthorized(w, r, "authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// unauthorized lives here rather than in response, which imports this package.
func unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.KindUnauthorized.New(GetRequestID(r.Context()), detail)
	problem.Instance = MaskPath(r.URL.Path)
	w.Header().Set("WWW-Authenticate", `Bearer realm="fintrack"`)
	problem.Write(w)
}

// GetUserID returns the authenticated user ID, or "" for anonymous requests.
func GetUserID(ctx context.Context) string {
	return auth.UserIDFromContext(ctx)
}
