// Package auth validates the bearer tokens of the ledger API.
// Users are managed elsewhere; a token only says who the caller is, which
// organization it acts for and what it may do there.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "stockledger/internal/core/context"
)

// Permissions understood by the API.
const (
	PermissionLedgerRead   = "ledger:read"
	PermissionLedgerWrite  = "ledger:write"
	PermissionJournalRead  = "journal:read"
	PermissionJournalWrite = "journal:write"
	PermissionStockRead    = "stock:read"
	PermissionStockWrite   = "stock:write"
)

var (
	errNoUser         = errors.New("token has no user")
	errNoOrganization = errors.New("token has no organization")
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "stockledger",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims is the token payload. The organization claim scopes every ledger
// read and write made with the token.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string   `json:"org"`
	Permissions    []string `json:"perms,omitempty"`
	IsAdmin        bool     `json:"adm,omitempty"`
}

// JWTService signs and validates HS256 tokens.
type JWTService struct {
	config JWTConfig
	key    []byte
	parser *jwt.Parser
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{
		config: config,
		key:    []byte(config.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(config.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// GenerateAccessToken signs a token for user. Tokens are normally minted by
// the identity provider; this is used by tooling and tests.
func (s *JWTService) GenerateAccessToken(user appctx.UserContext) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OrganizationID: user.OrganizationID,
		Permissions:    user.Permissions,
		IsAdmin:        user.IsAdmin,
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies the signature and claims of a token and returns
// the caller it identifies.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	var claims Claims
	if _, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	switch {
	case claims.Subject == "":
		return nil, errNoUser
	case claims.OrganizationID == "":
		return nil, errNoOrganization
	}

	return &appctx.UserContext{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Permissions:    claims.Permissions,
		IsAdmin:        claims.IsAdmin,
	}, nil
}
