package service

import (
	"context"
	"errors"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/ports"
	"go.uber.org/zap"
)

// revokeFallbackTTL is used when a conflicting session carries no usable expiry
const revokeFallbackTTL = time.Hour

// Reconciler decides, for one request, which wallet identity is authentic.
// A framework session and a wallet bearer token may both be present; they
// must never resolve to two different wallets.
type Reconciler struct {
	validator *TokenValidator
	verifier  *SignatureVerifier
	store     ports.Store
	eventPub  ports.EventPublisher
	now       core.Clock
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler. store and eventPub may be nil.
func NewReconciler(
	validator *TokenValidator,
	verifier *SignatureVerifier,
	store ports.Store,
	eventPub ports.EventPublisher,
	now core.Clock,
	logger *zap.Logger,
) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		validator: validator,
		verifier:  verifier,
		store:     store,
		eventPub:  eventPub,
		now:       now,
		logger:    logger,
	}
}

// Reconcile combines an optional framework session with an optional raw
// wallet token. Errors are one of core.ErrMissingToken, core.ErrInvalidFormat,
// core.ErrInvalidSignature or core.ErrWalletMismatch.
func (r *Reconciler) Reconcile(ctx context.Context, session *core.Session, rawToken string) (*core.AuthDecision, error) {
	if session != nil {
		return r.reconcileSession(ctx, session, rawToken)
	}
	return r.AuthenticateToken(ctx, rawToken)
}

func (r *Reconciler) reconcileSession(ctx context.Context, session *core.Session, rawToken string) (*core.AuthDecision, error) {
	decision := &core.AuthDecision{
		Authenticated: true,
		WalletAddress: session.WalletAddress,
		Source:        core.AuthSourceSession,
	}

	if rawToken == "" || session.WalletAddress == "" {
		return decision, nil
	}

	// Cheap read of the claimed address; the signature does not matter here
	tokenAddress, ok := r.claimedAddress(rawToken)
	if !ok || tokenAddress == session.WalletAddress {
		return decision, nil
	}

	r.logger.Warn("wallet token conflicts with session, invalidating session",
		zap.String("session_id", session.ID),
		zap.String("session_address_prefix", addressPrefix(session.WalletAddress)),
		zap.String("token_address_prefix", addressPrefix(tokenAddress)),
	)
	r.invalidateSession(ctx, session, tokenAddress)

	return nil, core.ErrWalletMismatch
}

// AuthenticateToken authenticates a request that has no framework session
func (r *Reconciler) AuthenticateToken(ctx context.Context, rawToken string) (*core.AuthDecision, error) {
	if rawToken == "" {
		r.logger.Debug("rejecting request", zap.String("reason", core.ErrMissingToken.Error()))
		return nil, core.ErrMissingToken
	}

	if !r.validator.IsStructurallyValid(ctx, rawToken) {
		r.logger.Info("rejecting wallet token", zap.String("reason", core.ErrInvalidFormat.Error()))
		return nil, core.ErrInvalidFormat
	}

	token, err := core.DecodeBearerToken(rawToken)
	if err != nil {
		r.logger.Info("rejecting wallet token", zap.String("reason", core.ErrInvalidFormat.Error()), zap.Error(err))
		return nil, core.ErrInvalidFormat
	}

	address, ok := core.ExtractAddress(token.Message)
	if !ok {
		r.logger.Info("rejecting wallet token", zap.String("reason", "no address in message"))
		return nil, core.ErrInvalidFormat
	}

	if err := r.verifier.Verify(token.Message, token.Signature, address); err != nil {
		reason := core.ErrInvalidSignature
		if errors.Is(err, core.ErrTokenExpired) || errors.Is(err, core.ErrMalformedMessage) {
			reason = core.ErrInvalidFormat
		}
		r.logger.Info("rejecting wallet token",
			zap.String("reason", reason.Error()),
			zap.String("address_prefix", addressPrefix(address)),
			zap.Int("signature_len", len(token.Signature)),
			zap.Error(err),
		)
		return nil, reason
	}

	return &core.AuthDecision{
		Authenticated: true,
		WalletAddress: address,
		Source:        core.AuthSourceWallet,
	}, nil
}

func (r *Reconciler) claimedAddress(rawToken string) (string, bool) {
	token, err := core.DecodeBearerToken(rawToken)
	if err != nil {
		return "", false
	}
	return core.ExtractAddress(token.Message)
}

// invalidateSession revokes the session and announces the wallet switch.
// Failures are logged; the request is rejected either way.
func (r *Reconciler) invalidateSession(ctx context.Context, session *core.Session, tokenAddress string) {
	if r.store != nil && session.ID != "" {
		ttl := session.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			ttl = revokeFallbackTTL
		}
		if err := r.store.InvalidateToken(ctx, session.ID, ttl); err != nil {
			r.logger.Error("failed to revoke conflicting session",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}

	if r.eventPub != nil {
		if err := r.eventPub.PublishWalletChanged(ctx, session.WalletAddress, tokenAddress, session.ID); err != nil {
			r.logger.Warn("failed to publish wallet changed event",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}
}
