package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time

// MessageFormat names the serialization a wallet signed
type MessageFormat string

const (
	MessageFormatText MessageFormat = "text"
	MessageFormatJSON MessageFormat = "json"
)

// Challenge represents the statement a wallet signs to prove key ownership
type Challenge struct {
	Domain    string    // Origin the sign-in is for
	Address   string    // Base58 Ed25519 public key of the wallet
	Statement string    // Purpose line shown to the user
	Nonce     string    // Random base58 nonce
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge stops being accepted
}

// CheckLive reports whether the challenge is still within its validity window.
// Both the token validator and the signature verifier go through here.
func (c *Challenge) CheckLive(now time.Time) error {
	if c.ExpiresAt.IsZero() {
		return fmt.Errorf("missing expiration time: %w", ErrInvalidChallenge)
	}
	if !now.Before(c.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// ChallengeMessage is the signed form of a Challenge.
// It is either a TextChallenge or a StructuredChallenge.
type ChallengeMessage interface {
	// Format returns the wire format of the message
	Format() MessageFormat

	// Payload returns the exact bytes the wallet was asked to sign
	Payload() ([]byte, error)

	isChallengeMessage()
}

// TextChallenge is the canonical five-line human readable message
type TextChallenge struct {
	Text string
}

func (TextChallenge) Format() MessageFormat { return MessageFormatText }

func (m TextChallenge) Payload() ([]byte, error) {
	return []byte(m.Text), nil
}

func (TextChallenge) isChallengeMessage() {}

// StructuredChallenge is the legacy key/value form of a challenge
type StructuredChallenge struct {
	Raw json.RawMessage
}

func (StructuredChallenge) Format() MessageFormat { return MessageFormatJSON }

// Payload returns the compact JSON encoding of the object, keeping the client's key order
func (m StructuredChallenge) Payload() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, m.Raw); err != nil {
		return nil, fmt.Errorf("failed to compact structured message: %w", err)
	}
	return buf.Bytes(), nil
}

func (StructuredChallenge) isChallengeMessage() {}

// AuthDecision is the per-request outcome consumed by downstream handlers
type AuthDecision struct {
	Authenticated bool       `json:"isAuthenticated"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	Source        AuthSource `json:"source,omitempty"`
}

// AuthSource records which credential produced a decision
type AuthSource string

const (
	AuthSourceSession AuthSource = "session"
	AuthSourceWallet  AuthSource = "wallet"
)

// Session holds the framework session fields the auth core reads and writes
type Session struct {
	ID            string    // Unique session identifier
	WalletAddress string    // Wallet the session was established for, may be empty
	IssuedAt      time.Time // When the session was created
	ExpiresAt     time.Time // When the session expires
}
