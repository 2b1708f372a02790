// Package auth issues and verifies the HS256 bearer tokens callers present.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const clockSkew = 30 * time.Second

var (
	ErrNoSecret    = errors.New("auth: jwt secret is not configured")
	ErrUnknownRole = errors.New("auth: unknown role")
)

// Identity is who a token speaks for.
type Identity struct {
	UserID  uuid.UUID
	Role    enums.Role
	TokenID string
}

// Claims is the decoded token body.
type Claims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Role: c.Role, TokenID: c.ID}
}

// Issue signs a token for id that expires ttl after now. Production tokens
// come from the identity service; tooling and tests mint their own here.
func Issue(cfg config.JWTConfig, now time.Time, ttl time.Duration, id Identity) (string, error) {
	if cfg.Secret == "" {
		return "", ErrNoSecret
	}
	if cfg.Issuer == "" || ttl <= 0 {
		return "", fmt.Errorf("auth: issuer and a positive ttl are required")
	}
	if !id.Role.IsValid() {
		return "", fmt.Errorf("%w %q", ErrUnknownRole, id.Role)
	}
	if strings.TrimSpace(id.TokenID) == "" {
		id.TokenID = uuid.NewString()
	}

	body := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   id.UserID.String(),
			ID:        id.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry, then the role.
func Verify(cfg config.JWTConfig, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	claims := new(Claims)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}

// BearerToken pulls the token out of an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
