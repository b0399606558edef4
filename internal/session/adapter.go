package session

import (
	authmw "whitelist/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims narrows token claims to what the HTTP boundary needs.
func ToMiddlewareClaims(claims *Claims) *authmw.SessionClaims {
	return &authmw.SessionClaims{
		Address: claims.Address,
		ChainID: claims.ChainID,
		JTI:     claims.ID,
	}
}

// ValidatorAdapter exposes a TokenService as an authmw.SessionValidator.
type ValidatorAdapter struct {
	service *TokenService
}

func NewValidatorAdapter(service *TokenService) *ValidatorAdapter {
	return &ValidatorAdapter{service: service}
}

func (a *ValidatorAdapter) ValidateToken(tokenString string) (*authmw.SessionClaims, error) {
	claims, err := a.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
