package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token failure classes. All of them mean "unauthorized" at the boundary;
// the guard middleware maps them to distinct client-facing messages.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenInvalid   = errors.New("invalid token")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type Claims struct {
	TokenType string   `json:"token_type"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return uint(id), nil
}

// TokenCodec signs and verifies the two token classes with independent
// secrets, so an access token can never be replayed as a refresh token or
// vice versa. The codec is stateless; revocation lives in the session store.
type TokenCodec struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenCodec(issuer, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		issuer:        issuer,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) IssueAccessToken(userID uint, email string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenTypeAccess,
		Email:     email,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
}

func (c *TokenCodec) IssueRefreshToken(userID uint) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
}

func (c *TokenCodec) VerifyAccessToken(raw string) (*Claims, error) {
	return c.verify(raw, c.accessSecret, tokenTypeAccess)
}

func (c *TokenCodec) VerifyRefreshToken(raw string) (*Claims, error) {
	return c.verify(raw, c.refreshSecret, tokenTypeRefresh)
}

func (c *TokenCodec) verify(raw string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenSignature
		}
		return secret, nil
	}, jwt.WithIssuer(c.issuer))
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenType {
		return nil, ErrTokenSignature
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenInvalid
	}
}

// DecodeToken decodes the payload without checking the signature. Output is
// unauthenticated and must never be used for trust decisions.
func (c *TokenCodec) DecodeToken(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ExtractBearerToken returns the token from an Authorization header value.
// The scheme must be exactly "Bearer" (case-sensitive) followed by one or
// more spaces and a non-empty token; anything else yields "".
func ExtractBearerToken(header string) string {
	const scheme = "Bearer"
	if !strings.HasPrefix(header, scheme) {
		return ""
	}
	rest := header[len(scheme):]
	trimmed := strings.TrimLeft(rest, " ")
	if trimmed == rest || trimmed == "" {
		return ""
	}
	return trimmed
}
