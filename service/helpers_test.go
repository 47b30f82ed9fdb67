package service_test

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

const testDomain = "example.com"

var issuedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func clockAt(t time.Time) core.Clock {
	return func() time.Time { return t }
}

type testWallet struct {
	priv    ed25519.PrivateKey
	address string
}

func newWallet(t *testing.T, seed byte) testWallet {
	t.Helper()
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(s)
	return testWallet{
		priv:    priv,
		address: base58.Encode(priv.Public().(ed25519.PublicKey)),
	}
}

func (w testWallet) challenge(t *testing.T) *core.Challenge {
	t.Helper()
	c, err := core.BuildChallenge(testDomain, w.address, issuedAt, core.DefaultChallengeExpiry)
	require.NoError(t, err)
	return c
}

// signSHA256 signs the SHA-256 digest of payload
func (w testWallet) signSHA256(payload []byte) []byte {
	digest := sha256.Sum256(payload)
	return ed25519.Sign(w.priv, digest[:])
}

func (w testWallet) signRaw(payload []byte) []byte {
	return ed25519.Sign(w.priv, payload)
}

func encodeToken(t *testing.T, msg core.ChallengeMessage, signature string) string {
	t.Helper()
	raw, err := (&core.BearerToken{Message: msg, Signature: signature}).Encode()
	require.NoError(t, err)
	return raw
}

// signedToken returns a genuine text token for w, signed over the SHA-256 digest
func (w testWallet) signedToken(t *testing.T) string {
	t.Helper()
	msg := core.TextChallenge{Text: w.challenge(t).Text()}
	sig := w.signSHA256([]byte(msg.Text))
	return encodeToken(t, msg, base64.StdEncoding.EncodeToString(sig))
}

// forgedToken names w but carries a signature by someone else
func (w testWallet) forgedToken(t *testing.T, signer testWallet) string {
	t.Helper()
	msg := core.TextChallenge{Text: w.challenge(t).Text()}
	sig := signer.signSHA256([]byte(msg.Text))
	return encodeToken(t, msg, base64.StdEncoding.EncodeToString(sig))
}

type walletChangedCall struct {
	sessionAddress string
	tokenAddress   string
	sessionID      string
}

type mockPublisher struct {
	mu            sync.Mutex
	logouts       []string
	walletChanges []walletChangedCall
	err           error
}

func (m *mockPublisher) PublishLogout(_ context.Context, _ string, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts = append(m.logouts, sessionID)
	return m.err
}

func (m *mockPublisher) PublishWalletChanged(_ context.Context, sessionAddress, tokenAddress, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walletChanges = append(m.walletChanges, walletChangedCall{sessionAddress, tokenAddress, sessionID})
	return m.err
}
