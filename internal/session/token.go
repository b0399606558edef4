// Package session issues and validates the session tokens that stand in for a
// connected wallet. A token binds a caller address to the network it connected on.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "whitelist/pkg/domain"
	dErrors "whitelist/pkg/domain-errors"
)

// Claims represents the JWT claims of a session token.
type Claims struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
	jwt.RegisteredClaims
}

// TokenService handles session token creation and validation.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewTokenService builds a TokenService signing with HS256.
func NewTokenService(signingKey, issuer, audience string) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// Issue signs a session token for address on chainID.
func (s *TokenService) Issue(address id.Identity, chainID int64, expiresIn time.Duration) (string, error) {
	if address.IsNil() {
		return "", dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: address.String(),
		ChainID: chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session token")
	}
	return signed, nil
}

// Validate parses and verifies a session token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Address == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no address")
	}
	return claims, nil
}
