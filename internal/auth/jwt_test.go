package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/auth"
)

const (
	testKey      = "test-secret-key-for-testing-only"
	testIssuer   = "https://accounts.fintrack.ca"
	testAudience = "fintrack-privacy"
)

func newJWT(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
		ClockSkew:  30 * time.Second,
	})
}

// signRaw signs claims directly, bypassing the service's defaults.
func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "usr_test123",
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newJWT(testKey, testIssuer, testAudience)

	token, expiresAt, err := svc.GenerateAccessToken("usr_test123")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.AccessTokenExpiry), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", claims.UserID())
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Len(t, claims.ID, 26)

	userID, err := svc.ValidateUser(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", userID)
}

func TestJWTService_TokenIDsAreUnique(t *testing.T) {
	svc := newJWT(testKey, testIssuer, testAudience)
	a, _, err := svc.GenerateAccessToken("usr_test123")
	require.NoError(t, err)
	b, _, err := svc.GenerateAccessToken("usr_test123")
	require.NoError(t, err)

	ca, err := svc.ValidateAccessToken(a)
	require.NoError(t, err)
	cb, err := svc.ValidateAccessToken(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestJWTService_Rejects(t *testing.T) {
	verifier := newJWT(testKey, testIssuer, testAudience)
	mint := func(key, issuer, audience string) string {
		token, _, err := newJWT(key, issuer, audience).GenerateAccessToken("usr_test123")
		require.NoError(t, err)
		return token
	}
	now := time.Now()
	noSubject := validClaims(now)
	noSubject.Subject = ""
	noExpiry := validClaims(now)
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"garbage":        "not-a-jwt",
		"wrong key":      mint("key-two", testIssuer, testAudience),
		"wrong issuer":   mint(testKey, "https://evil.example.com", testAudience),
		"wrong audience": mint(testKey, testIssuer, "other-api"),
		"no subject":     signRaw(t, jwt.SigningMethodHS256, []byte(testKey), noSubject),
		"no expiry":      signRaw(t, jwt.SigningMethodHS256, []byte(testKey), noExpiry),
		"hs512":          signRaw(t, jwt.SigningMethodHS512, []byte(testKey), validClaims(now)),
		"alg none":       signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims(now)),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.ValidateAccessToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_Expiry(t *testing.T) {
	svc := newJWT(testKey, testIssuer, testAudience)
	now := time.Now()

	expired := validClaims(now.Add(-2 * time.Hour))
	_, err := svc.ValidateAccessToken(signRaw(t, jwt.SigningMethodHS256, []byte(testKey), expired))
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)

	// Ten seconds past expiry is inside the configured skew.
	withinSkew := validClaims(now.Add(-time.Hour - 10*time.Second))
	_, err = svc.ValidateAccessToken(signRaw(t, jwt.SigningMethodHS256, []byte(testKey), withinSkew))
	assert.NoError(t, err)
}

func TestUserIDContext(t *testing.T) {
	assert.Empty(t, auth.UserIDFromContext(context.Background()))

	ctx := auth.WithUserID(context.Background(), "usr_ctx")
	assert.Equal(t, "usr_ctx", auth.UserIDFromContext(ctx))
}
