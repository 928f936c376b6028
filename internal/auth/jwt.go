// Package auth validates the access tokens issued by the FinTrack account
// backend and carries the authenticated user through request contexts.
//
// Tokens are HS256 JWTs signed with a key shared with the account backend.
// The subject claim is the user ID. Minting is kept for development
// tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// AccessTokenExpiry is the lifetime of tokens minted by GenerateAccessToken.
const AccessTokenExpiry = time.Hour

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
)

// JWTClaims are the claims carried by an access token.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// UserID returns the user the token was issued to.
func (c *JWTClaims) UserID() string {
	return c.Subject
}

type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string

	// ClockSkew is the leeway applied to exp, nbf and iat.
	ClockSkew time.Duration
}

// JWTService signs and verifies access tokens for one issuer and audience.
type JWTService struct {
	key    []byte
	parser *jwt.Parser
	cfg    JWTConfig
	now    func() time.Time
}

func NewJWTService(cfg JWTConfig) *JWTService {
	s := &JWTService{key: []byte(cfg.SigningKey), cfg: cfg, now: time.Now}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// GenerateAccessToken mints a token for userID and returns it with its expiry.
func (s *JWTService) GenerateAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(AccessTokenExpiry)

	claims := JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        ulid.Make().String(),
		Issuer:    s.cfg.Issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// ValidateAccessToken verifies signature, issuer, audience and lifetime.
func (s *JWTService) ValidateAccessToken(raw string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	case !token.Valid || claims.Subject == "":
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// ValidateUser verifies raw and returns the user it was issued to.
func (s *JWTService) ValidateUser(raw string) (string, error) {
	claims, err := s.ValidateAccessToken(raw)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}
