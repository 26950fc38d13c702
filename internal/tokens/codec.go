package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers signature, structure, signing method, expiry
	// and type-discriminator failures. Callers never see partial claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEncoding is a programmer error: claims are malformed at mint time.
	ErrEncoding = errors.New("cannot encode token claims")
)

// Codec signs and verifies the access/refresh claim sets with HS256.
// It knows nothing about sessions or storage.
type Codec struct {
	Secret []byte
	Issuer string
}

func (c *Codec) EncodeAccess(sub string, refID uint, iat, exp time.Time) (string, error) {
	if sub == "" || refID == 0 || iat.IsZero() || exp.IsZero() {
		return "", fmt.Errorf("%w: access claims incomplete", ErrEncoding)
	}

	claims := AccessClaims{
		TokenType: TypeAccess,
		RefID:     refID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    c.Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return signed, nil
}

func (c *Codec) EncodeRefresh(sub string, iat, exp time.Time) (string, error) {
	if sub == "" || iat.IsZero() || exp.IsZero() {
		return "", fmt.Errorf("%w: refresh claims incomplete", ErrEncoding)
	}

	claims := RefreshClaims{
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    c.Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return signed, nil
}

func (c *Codec) DecodeAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.decode(raw, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return &claims, nil
}

func (c *Codec) DecodeRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.decode(raw, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}
	return &claims, nil
}

func (c *Codec) decode(raw string, claims jwt.Claims) error {
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return c.Secret, nil
	})
	if err != nil || !tkn.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
