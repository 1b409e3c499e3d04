package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medrex/rxledger/pkg/types"
)

// TokenValidator verifies bearer tokens and resolves the caller identity
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenValidator creates a new token validator. Empty issuer or
// audience disables that check.
func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Claims are the JWT claims accepted by the gateway. The subject is the
// ledger identity.
type Claims struct {
	jwt.RegisteredClaims
}

// ValidateJWT validates a token and returns the identity it asserts
func (tv *TokenValidator) ValidateJWT(tokenString string) (types.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}
	if tv.audience != "" {
		opts = append(opts, jwt.WithAudience(tv.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tv.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return types.Identity(subject), nil
}

// GenerateToken signs a token asserting identity, valid for ttl
func (tv *TokenValidator) GenerateToken(identity types.Identity, ttl time.Duration) (string, error) {
	if strings.TrimSpace(string(identity)) == "" {
		return "", fmt.Errorf("identity is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("invalid token ttl: %s", ttl)
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			Issuer:    tv.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if tv.audience != "" {
		claims.Audience = jwt.ClaimStrings{tv.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tv.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
