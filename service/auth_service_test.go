package service_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/chainsona/cpop-sub000/adapters/cache"
	"github.com/chainsona/cpop-sub000/adapters/store"
	"github.com/chainsona/cpop-sub000/adapters/tokenizer"
	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authFixture struct {
	service   *service.AuthService
	publisher *mockPublisher
}

func newAuthFixture(t *testing.T, now time.Time) *authFixture {
	t.Helper()
	clock := clockAt(now)
	logger := zap.NewNop()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	revoked := store.NewMemoryStore(clock)
	publisher := &mockPublisher{}
	reconciler := service.NewReconciler(
		service.NewTokenValidator(cache.NewMemoryCache(time.Minute, 0, clock, logger), clock, logger),
		service.NewSignatureVerifier(service.VerifierConfig{}, clock, logger),
		revoked, publisher, clock, logger,
	)

	return &authFixture{
		service: service.NewAuthService(service.AuthConfig{
			Domain:     testDomain,
			SessionTTL: 24 * time.Hour,
		}, tokenizer.NewJWTTokenizer(key, clock), revoked, publisher, reconciler, clock, logger),
		publisher: publisher,
	}
}

func TestCreateChallenge(t *testing.T) {
	f := newAuthFixture(t, issuedAt)
	w := newWallet(t, 50)

	c, err := f.service.CreateChallenge(w.address)
	require.NoError(t, err)
	assert.Equal(t, testDomain, c.Domain)
	assert.Equal(t, w.address, c.Address)
	assert.Equal(t, issuedAt, c.IssuedAt)
	assert.Equal(t, issuedAt.Add(core.DefaultChallengeExpiry), c.ExpiresAt)

	_, err = f.service.CreateChallenge("nope")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}

func TestSignInAndLoadSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 51)

	token, session, err := f.service.SignIn(ctx, w.signedToken(t))
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, w.address, session.WalletAddress)

	loaded, err := f.service.LoadSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, w.address, loaded.WalletAddress)

	decision, err := f.service.Authorize(ctx, token, "")
	require.NoError(t, err)
	assert.Equal(t, core.AuthSourceSession, decision.Source)
	assert.Equal(t, w.address, decision.WalletAddress)
}

func TestSignInRejectsForgedToken(t *testing.T) {
	f := newAuthFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 52)
	other := newWallet(t, 53)

	_, _, err := f.service.SignIn(context.Background(), w.forgedToken(t, other))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 54)

	token, session, err := f.service.SignIn(ctx, w.signedToken(t))
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, token))
	assert.Equal(t, []string{session.ID}, f.publisher.logouts)

	_, err = f.service.LoadSession(ctx, token)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// A revoked session is ignored and the request has no other credential
	_, err = f.service.Authorize(ctx, token, "")
	assert.ErrorIs(t, err, core.ErrMissingToken)
}

func TestLogoutRejectsGarbage(t *testing.T) {
	f := newAuthFixture(t, issuedAt)
	assert.ErrorIs(t, f.service.Logout(context.Background(), "not-a-jwt"), core.ErrInvalidToken)
}

func TestAuthorizeWalletSwitchKillsSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, issuedAt.Add(time.Hour))
	first := newWallet(t, 55)
	second := newWallet(t, 56)

	sessionToken, _, err := f.service.SignIn(ctx, first.signedToken(t))
	require.NoError(t, err)

	_, err = f.service.Authorize(ctx, sessionToken, second.signedToken(t))
	assert.ErrorIs(t, err, core.ErrWalletMismatch)

	_, err = f.service.LoadSession(ctx, sessionToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// With the session gone the new wallet authenticates on its own token
	decision, err := f.service.Authorize(ctx, sessionToken, second.signedToken(t))
	require.NoError(t, err)
	assert.Equal(t, second.address, decision.WalletAddress)
	assert.Equal(t, core.AuthSourceWallet, decision.Source)
}
