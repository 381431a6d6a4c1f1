package utils // package utils holds credential and token primitives

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/admin-auth/internal/clock"
)

// ErrInvalidToken is the only error Decode returns. Callers never learn why
// a token was rejected.
var ErrInvalidToken = errors.New("invalid token")

// refreshTokenBytes is the entropy of an opaque refresh token (384 bits).
const refreshTokenBytes = 48

// AccessClaims is the payload of an access token. Downstream authorization
// reads roles and permissions from here without touching the database.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string { return c.Subject }

// HasRole reports whether role is among the token's roles.
func (c *AccessClaims) HasRole(role string) bool { return slices.Contains(c.Roles, role) }

// HasPermission reports whether perm is among the token's permissions.
func (c *AccessClaims) HasPermission(perm string) bool {
	return slices.Contains(c.Permissions, perm)
}

// TokenIssuer signs and verifies HS256 access tokens. The key is fixed at
// construction and the issuer is safe for concurrent use.
type TokenIssuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    clock.Clock
	parser   *jwt.Parser
}

// NewTokenIssuer builds an issuer. An empty issuer or audience disables the
// corresponding check.
func NewTokenIssuer(secret, issuer, audience string, ttl time.Duration, clk clock.Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("signing key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("access token lifetime must be positive")
	}
	if clk == nil {
		clk = clock.System{}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(clk.Now),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &TokenIssuer{
		key:      []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		clock:    clk,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// TTL is the access token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// IssueAccessToken signs a token for the given identity and claim set and
// returns it with its expiry.
func (i *TokenIssuer) IssueAccessToken(userID, email string, roles, permissions []string) (string, time.Time, error) {
	now := i.clock.Now()
	exp := jwt.NewNumericDate(now.Add(i.ttl))

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
		Email:       email,
		Roles:       nonNil(roles),
		Permissions: nonNil(permissions),
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, exp.Time.UTC(), nil
}

// Decode verifies signature, expiry and, when configured, issuer and
// audience. Every failure collapses into ErrInvalidToken.
func (i *TokenIssuer) Decode(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate reports whether token would decode.
func (i *TokenIssuer) Validate(token string) bool {
	_, err := i.Decode(token)
	return err == nil
}

// IssueRefreshToken returns an opaque hex string from crypto/rand. It is not
// a JWT and has no relation to any access token.
func IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashRefreshToken returns the SHA-256 hex digest stored in place of the raw
// refresh token.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
