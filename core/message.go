package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

const (
	// TimestampLayout is the second-precision UTC layout used in challenge text
	TimestampLayout = "2006-01-02T15:04:05"

	// DefaultChallengeExpiry is the issuer's validity window for interactive sign-in
	DefaultChallengeExpiry = 7 * 24 * time.Hour

	nonceEntropyBytes = 32
	nonceLength       = 8
	minNonceLength    = 6
)

// Line labels of the human readable challenge, in order
const (
	labelDomain  = "Sign in to "
	labelWallet  = "Wallet: "
	labelNonce   = "Nonce: "
	labelIssued  = "Issued: "
	labelExpires = "Expires: "
)

var textLabels = [...]string{labelDomain, labelWallet, labelNonce, labelIssued, labelExpires}

// structuredRequired lists the keys a structured challenge must carry
var structuredRequired = [...]string{"address", "statement", "nonce", "issuedAt", "expirationTime"}

// BuildChallenge creates a fresh challenge for address, valid for ttl from issuedAt
func BuildChallenge(domain, address string, issuedAt time.Time, ttl time.Duration) (*Challenge, error) {
	if _, err := DecodePublicKey(address); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("challenge ttl must be positive: %w", ErrInvalidChallenge)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	issuedAt = issuedAt.UTC().Truncate(time.Second)
	return &Challenge{
		Domain:    domain,
		Address:   address,
		Statement: labelDomain + domain,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}, nil
}

// GenerateNonce returns an 8 character base58 nonce drawn from 32 random bytes
func GenerateNonce() (string, error) {
	b := make([]byte, nonceEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	encoded := base58.Encode(b)
	if len(encoded) > nonceLength {
		encoded = encoded[:nonceLength]
	}
	return encoded, nil
}

// Text renders the canonical five-line message a wallet signs
func (c *Challenge) Text() string {
	return strings.Join([]string{
		labelDomain + c.Domain,
		labelWallet + c.Address,
		labelNonce + c.Nonce,
		labelIssued + FormatTimestamp(c.IssuedAt),
		labelExpires + FormatTimestamp(c.ExpiresAt),
	}, "\n")
}

// structuredFields fixes the key order of the structured encoding
type structuredFields struct {
	Domain         string `json:"domain,omitempty"`
	Address        string `json:"address"`
	Statement      string `json:"statement"`
	Nonce          string `json:"nonce"`
	IssuedAt       string `json:"issuedAt"`
	ExpirationTime string `json:"expirationTime"`
}

// Structured renders the legacy key/value form of the challenge
func (c *Challenge) Structured() (StructuredChallenge, error) {
	raw, err := json.Marshal(structuredFields{
		Domain:         c.Domain,
		Address:        c.Address,
		Statement:      c.Statement,
		Nonce:          c.Nonce,
		IssuedAt:       FormatTimestamp(c.IssuedAt),
		ExpirationTime: FormatTimestamp(c.ExpiresAt),
	})
	if err != nil {
		return StructuredChallenge{}, fmt.Errorf("failed to encode challenge: %w", err)
	}
	return StructuredChallenge{Raw: raw}, nil
}

// ParseHumanReadable parses the five-line text form.
// Any structural mismatch yields ErrMalformedMessage.
func ParseHumanReadable(text string) (*Challenge, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < len(textLabels) {
		return nil, fmt.Errorf("expected %d lines, got %d: %w", len(textLabels), len(lines), ErrMalformedMessage)
	}

	var values [len(textLabels)]string
	for i, label := range textLabels {
		line := strings.TrimRight(lines[i], "\r")
		if !strings.HasPrefix(line, label) {
			return nil, fmt.Errorf("line %d does not start with %q: %w", i+1, label, ErrMalformedMessage)
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, label))
		if value == "" {
			return nil, fmt.Errorf("line %d is empty: %w", i+1, ErrMalformedMessage)
		}
		values[i] = value
	}

	if len(values[2]) < minNonceLength {
		return nil, fmt.Errorf("nonce too short: %w", ErrMalformedMessage)
	}

	issuedAt, err := ParseTimestamp(values[3])
	if err != nil {
		return nil, fmt.Errorf("issued: %w", err)
	}
	expiresAt, err := ParseTimestamp(values[4])
	if err != nil {
		return nil, fmt.Errorf("expires: %w", err)
	}

	return &Challenge{
		Domain:    values[0],
		Address:   values[1],
		Statement: labelDomain + values[0],
		Nonce:     values[2],
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseStructured parses the legacy key/value form
func ParseStructured(raw json.RawMessage) (*Challenge, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("not a json object: %w", ErrMalformedMessage)
	}

	for _, key := range structuredRequired {
		v, ok := fields[key]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("missing %q: %w", key, ErrMalformedMessage)
		}
	}

	address, ok := jsonString(fields["address"])
	if !ok || address == "" {
		return nil, fmt.Errorf("address must be a string: %w", ErrMalformedMessage)
	}

	expiresAt, err := jsonTimestamp(fields["expirationTime"])
	if err != nil {
		return nil, fmt.Errorf("expirationTime: %w", err)
	}

	c := &Challenge{Address: address, ExpiresAt: expiresAt}
	c.Domain, _ = jsonString(fields["domain"])
	c.Statement, _ = jsonString(fields["statement"])
	c.Nonce, _ = jsonString(fields["nonce"])
	if issuedAt, err := jsonTimestamp(fields["issuedAt"]); err == nil {
		c.IssuedAt = issuedAt
	}

	return c, nil
}

// ParseMessage recovers the challenge fields from either variant
func ParseMessage(msg ChallengeMessage) (*Challenge, error) {
	switch m := msg.(type) {
	case TextChallenge:
		return ParseHumanReadable(m.Text)
	case StructuredChallenge:
		return ParseStructured(m.Raw)
	default:
		return nil, ErrMalformedMessage
	}
}

// ExtractAddress returns the wallet address a message claims, without verifying anything
func ExtractAddress(msg ChallengeMessage) (string, bool) {
	switch m := msg.(type) {
	case TextChallenge:
		c, err := ParseHumanReadable(m.Text)
		if err != nil {
			return "", false
		}
		return c.Address, true
	case StructuredChallenge:
		var fields struct {
			Address json.RawMessage `json:"address"`
		}
		if err := json.Unmarshal(m.Raw, &fields); err != nil {
			return "", false
		}
		address, ok := jsonString(fields.Address)
		if !ok || address == "" {
			return "", false
		}
		return address, true
	default:
		return "", false
	}
}

// DecodePublicKey decodes a base58 wallet address into an Ed25519 public key
func DecodePublicKey(address string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("base58 decode failed: %w", ErrInvalidAddress)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d: %w", ed25519.PublicKeySize, len(decoded), ErrInvalidAddress)
	}
	return ed25519.PublicKey(decoded), nil
}

// FormatTimestamp renders t in UTC at second precision without a zone suffix
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts the challenge layout and the ISO-8601 variants wallets emit.
// Timestamps without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q: %w", s, ErrMalformedMessage)
}

func jsonString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// jsonTimestamp accepts a timestamp string or a number of epoch milliseconds
func jsonTimestamp(raw json.RawMessage) (time.Time, error) {
	if s, ok := jsonString(raw); ok {
		return ParseTimestamp(s)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp: %w", ErrMalformedMessage)
}
