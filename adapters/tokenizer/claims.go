package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the wallet the session belongs to
type SessionClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet,omitempty"`
}
