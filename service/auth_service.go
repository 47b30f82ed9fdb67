package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthConfig holds the lifetimes and domain used by the auth service
type AuthConfig struct {
	Domain       string
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer  ports.Tokenizer
	store      ports.Store
	eventPub   ports.EventPublisher
	reconciler *Reconciler
	logger     *zap.Logger
	now        core.Clock

	domain       string
	challengeTTL time.Duration
	sessionTTL   time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	config AuthConfig,
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	reconciler *Reconciler,
	now core.Clock,
	logger *zap.Logger,
) *AuthService {
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = core.DefaultChallengeExpiry
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		tokenizer:    tokenizer,
		store:        store,
		eventPub:     eventPub,
		reconciler:   reconciler,
		logger:       logger,
		now:          now,
		domain:       config.Domain,
		challengeTTL: config.ChallengeTTL,
		sessionTTL:   config.SessionTTL,
	}
}

// SessionTTL returns the lifetime of sessions issued by SignIn
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// CreateChallenge generates a new challenge for the wallet to sign
func (s *AuthService) CreateChallenge(address string) (*core.Challenge, error) {
	challenge, err := core.BuildChallenge(s.domain, address, s.now(), s.challengeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	return challenge, nil
}

// SignIn verifies a wallet bearer token and opens a framework session for it
func (s *AuthService) SignIn(ctx context.Context, rawToken string) (string, *core.Session, error) {
	decision, err := s.reconciler.Reconcile(ctx, nil, rawToken)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		WalletAddress: decision.WalletAddress,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session token: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("address_prefix", addressPrefix(session.WalletAddress)),
	)
	return token, session, nil
}

// LoadSession parses a session token and rejects revoked sessions
func (s *AuthService) LoadSession(ctx context.Context, sessionToken string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(sessionToken)
	if err != nil {
		return nil, err
	}

	if !s.now().Before(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session revocation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	return session, nil
}

// Authorize resolves the identity of a request from its optional session
// token and optional wallet bearer token. An unusable session token is
// treated as absent.
func (s *AuthService) Authorize(ctx context.Context, sessionToken, rawToken string) (*core.AuthDecision, error) {
	var session *core.Session
	if sessionToken != "" {
		loaded, err := s.LoadSession(ctx, sessionToken)
		switch {
		case err == nil:
			session = loaded
		case errors.Is(err, core.ErrTokenExpired), errors.Is(err, core.ErrTokenInvalidated), errors.Is(err, core.ErrInvalidToken):
			s.logger.Debug("ignoring unusable session", zap.Error(err))
		default:
			return nil, err
		}
	}

	return s.reconciler.Reconcile(ctx, session, rawToken)
}

// Logout revokes a session and notifies other instances
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	session, err := s.tokenizer.TokenToSession(sessionToken)
	if err != nil {
		return fmt.Errorf("invalid session token: %w", err)
	}

	// Expired sessions are still revoked so a skewed clock cannot revive them
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Hour
	}

	if err := s.store.InvalidateToken(ctx, session.ID, ttl); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, session.WalletAddress, session.ID); err != nil {
			s.logger.Warn("failed to publish logout event",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("session revoked", zap.String("session_id", session.ID))
	return nil
}
