package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/ports"
	"go.uber.org/zap"
)

// MinTokenLength is the shortest raw token worth decoding
const MinTokenLength = 10

// TokenValidator screens bearer tokens for shape and freshness before any
// signature work, memoizing verdicts by raw token text.
type TokenValidator struct {
	cache  ports.VerdictCache
	now    core.Clock
	logger *zap.Logger
}

// NewTokenValidator creates a new validator. cache may be nil.
func NewTokenValidator(cache ports.VerdictCache, now core.Clock, logger *zap.Logger) *TokenValidator {
	if now == nil {
		now = time.Now
	}
	return &TokenValidator{
		cache:  cache,
		now:    now,
		logger: logger,
	}
}

// IsStructurallyValid reports whether raw is a well-formed, unexpired bearer token
func (v *TokenValidator) IsStructurallyValid(ctx context.Context, raw string) bool {
	if v.cache != nil {
		valid, found, err := v.cache.Get(ctx, raw)
		if err != nil {
			v.logger.Warn("verdict cache lookup failed", zap.Error(err))
		} else if found {
			return valid
		}
	}

	if len(raw) < MinTokenLength {
		return false
	}

	err := v.Check(raw)
	valid := err == nil
	if !valid {
		v.logger.Debug("token failed structural validation", zap.Error(err))
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, raw, valid); err != nil {
			v.logger.Warn("verdict cache store failed", zap.Error(err))
		}
	}

	return valid
}

// Check runs the uncached screening and returns the first problem found
func (v *TokenValidator) Check(raw string) error {
	if len(raw) < MinTokenLength {
		return fmt.Errorf("token shorter than %d characters: %w", MinTokenLength, core.ErrInvalidToken)
	}

	token, err := core.DecodeBearerToken(raw)
	if err != nil {
		return err
	}

	challenge, err := core.ParseMessage(token.Message)
	if err != nil {
		return err
	}

	return challenge.CheckLive(v.now())
}
