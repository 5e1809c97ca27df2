package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Role must be present on access tokens: every session operation is
// authorized against the lesson record using the caller's identity, and the
// display name/email ride along because the call transport and the payment
// checkout need them without a directory lookup.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	TokenType   TokenType `json:"token_type"`
}
