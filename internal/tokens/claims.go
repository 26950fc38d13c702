package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// AccessClaims chains a short-lived access token to its refresh record
// through RefID. Validating the token always re-checks that record.
type AccessClaims struct {
	TokenType string `json:"type"`
	RefID     uint   `json:"ref_id,omitempty"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}
