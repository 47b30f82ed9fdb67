package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chainsona/cpop-sub000/adapters/cache"
	"github.com/chainsona/cpop-sub000/adapters/store"
	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/ports"
	"github.com/chainsona/cpop-sub000/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reconcilerFixture struct {
	reconciler *service.Reconciler
	store      ports.Store
	publisher  *mockPublisher
	now        time.Time
}

func newReconcilerFixture(t *testing.T, now time.Time) *reconcilerFixture {
	t.Helper()
	clock := clockAt(now)
	logger := zap.NewNop()

	verdicts := cache.NewMemoryCache(time.Minute, 0, clock, logger)
	validator := service.NewTokenValidator(verdicts, clock, logger)
	verifier := service.NewSignatureVerifier(service.VerifierConfig{}, clock, logger)
	revoked := store.NewMemoryStore(clock)
	publisher := &mockPublisher{}

	return &reconcilerFixture{
		reconciler: service.NewReconciler(validator, verifier, revoked, publisher, clock, logger),
		store:      revoked,
		publisher:  publisher,
		now:        now,
	}
}

func (f *reconcilerFixture) session(address string) *core.Session {
	return &core.Session{
		ID:            "session-1",
		WalletAddress: address,
		IssuedAt:      f.now,
		ExpiresAt:     f.now.Add(24 * time.Hour),
	}
}

func TestReconcileNoSessionNoToken(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))

	decision, err := f.reconciler.Reconcile(context.Background(), nil, "")
	assert.ErrorIs(t, err, core.ErrMissingToken)
	assert.Nil(t, decision)
}

func TestReconcileNoSessionValidToken(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 30)

	decision, err := f.reconciler.Reconcile(context.Background(), nil, w.signedToken(t))
	require.NoError(t, err)
	assert.True(t, decision.Authenticated)
	assert.Equal(t, w.address, decision.WalletAddress)
	assert.Equal(t, core.AuthSourceWallet, decision.Source)
}

func TestReconcileNoSessionRejections(t *testing.T) {
	w := newWallet(t, 31)
	other := newWallet(t, 32)

	t.Run("expired", func(t *testing.T) {
		f := newReconcilerFixture(t, issuedAt.Add(core.DefaultChallengeExpiry+time.Minute))
		_, err := f.reconciler.Reconcile(context.Background(), nil, w.signedToken(t))
		assert.ErrorIs(t, err, core.ErrInvalidFormat)
	})

	t.Run("malformed", func(t *testing.T) {
		f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
		_, err := f.reconciler.Reconcile(context.Background(), nil, "this-is-not-a-wallet-token")
		assert.ErrorIs(t, err, core.ErrInvalidFormat)
	})

	t.Run("short", func(t *testing.T) {
		f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
		_, err := f.reconciler.Reconcile(context.Background(), nil, "abc")
		assert.ErrorIs(t, err, core.ErrInvalidFormat)
	})

	t.Run("forged", func(t *testing.T) {
		f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
		_, err := f.reconciler.Reconcile(context.Background(), nil, w.forgedToken(t, other))
		assert.ErrorIs(t, err, core.ErrInvalidSignature)
	})
}

func TestReconcileSessionWithoutToken(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 33)

	decision, err := f.reconciler.Reconcile(context.Background(), f.session(w.address), "")
	require.NoError(t, err)
	assert.True(t, decision.Authenticated)
	assert.Equal(t, w.address, decision.WalletAddress)
	assert.Equal(t, core.AuthSourceSession, decision.Source)
}

func TestReconcileSessionWithMatchingToken(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 34)
	other := newWallet(t, 35)

	// The signature is never checked on the session path
	decision, err := f.reconciler.Reconcile(context.Background(), f.session(w.address), w.forgedToken(t, other))
	require.NoError(t, err)
	assert.Equal(t, w.address, decision.WalletAddress)
	assert.Equal(t, core.AuthSourceSession, decision.Source)
	assert.Empty(t, f.publisher.walletChanges)
}

func TestReconcileSessionWithUndecodableToken(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 36)

	decision, err := f.reconciler.Reconcile(context.Background(), f.session(w.address), "garbage-token-value")
	require.NoError(t, err)
	assert.Equal(t, w.address, decision.WalletAddress)
}

func TestReconcileSessionWithConflictingToken(t *testing.T) {
	sessionWallet := newWallet(t, 37)
	tokenWallet := newWallet(t, 38)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"genuine token", tokenWallet.signedToken},
		{"forged token", func(t *testing.T) string { return tokenWallet.forgedToken(t, sessionWallet) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
			session := f.session(sessionWallet.address)

			decision, err := f.reconciler.Reconcile(ctx, session, tt.token(t))
			assert.ErrorIs(t, err, core.ErrWalletMismatch)
			assert.Nil(t, decision)

			revoked, err := f.store.IsTokenInvalidated(ctx, session.ID)
			require.NoError(t, err)
			assert.True(t, revoked)

			require.Len(t, f.publisher.walletChanges, 1)
			assert.Equal(t, walletChangedCall{sessionWallet.address, tokenWallet.address, session.ID}, f.publisher.walletChanges[0])
		})
	}
}

func TestReconcileConflictSurvivesPublisherFailure(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
	f.publisher.err = errors.New("broker down")
	sessionWallet := newWallet(t, 39)
	tokenWallet := newWallet(t, 40)

	_, err := f.reconciler.Reconcile(context.Background(), f.session(sessionWallet.address), tokenWallet.signedToken(t))
	assert.ErrorIs(t, err, core.ErrWalletMismatch)
}

func TestReconcileSessionWithoutWalletNeverConflicts(t *testing.T) {
	f := newReconcilerFixture(t, issuedAt.Add(time.Hour))
	w := newWallet(t, 41)

	decision, err := f.reconciler.Reconcile(context.Background(), f.session(""), w.signedToken(t))
	require.NoError(t, err)
	assert.Equal(t, core.AuthSourceSession, decision.Source)
	assert.Empty(t, decision.WalletAddress)
}
