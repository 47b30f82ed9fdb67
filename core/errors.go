package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidChallenge = errors.New("invalid challenge")

	// ErrMalformedMessage is returned when a challenge message does not match either wire format
	ErrMalformedMessage = errors.New("malformed challenge message")
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrAddressMismatch  = errors.New("address mismatch")
	ErrDomainMismatch   = errors.New("domain mismatch")

	// Reasons surfaced to clients by the auth middleware
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidFormat  = errors.New("invalid format")
	ErrWalletMismatch = errors.New("wallet address changed")
)
