package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// SessionCookie carries the framework session token
	SessionCookie = "cpop_session"

	// WalletTokenCookie carries the wallet bearer token for clients that cannot set headers
	WalletTokenCookie = "solana_auth_token"

	// WalletChangedCookie tells the client its session was dropped after a wallet switch
	WalletChangedCookie = "wallet_address_changed"

	// AuthScheme is the Authorization header scheme for wallet bearer tokens
	AuthScheme = "Solana"

	// DecisionKey is the gin context key holding the *core.AuthDecision
	DecisionKey = "authDecision"

	// WalletAddressKey is the gin context key holding the authenticated wallet address
	WalletAddressKey = "walletAddress"

	walletChangedMaxAge = 600
)

var errInvalidAuthentication = errors.New("invalid authentication")

// CookieConfig controls the attributes of cookies the auth layer writes
type CookieConfig struct {
	Secure bool
	Domain string
}

type decisionCtxKey struct{}

// WithDecision returns a copy of ctx carrying decision
func WithDecision(ctx context.Context, decision *core.AuthDecision) context.Context {
	return context.WithValue(ctx, decisionCtxKey{}, decision)
}

// DecisionFromContext returns the auth decision attached by AuthMiddleware
func DecisionFromContext(ctx context.Context) (*core.AuthDecision, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(*core.AuthDecision)
	return decision, ok && decision != nil
}

// AuthMiddleware creates middleware that resolves the wallet identity of a request
func AuthMiddleware(authService *service.AuthService, cookies CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := authorize(c, authService, logger)
		if err != nil {
			if errors.Is(err, core.ErrWalletMismatch) {
				clearAuthCookies(c, cookies)
				c.SetCookie(WalletChangedCookie, "true", walletChangedMaxAge, "/", cookies.Domain, cookies.Secure, false)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason(err)})
			return
		}

		c.Set(DecisionKey, decision)
		c.Set(WalletAddressKey, decision.WalletAddress)
		c.Request = c.Request.WithContext(WithDecision(c.Request.Context(), decision))

		c.Next()
	}
}

// authorize runs the auth decision with its own recover so that panics in
// downstream handlers are left to the router's recovery middleware.
func authorize(c *gin.Context, authService *service.AuthService, logger *zap.Logger) (decision *core.AuthDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("auth middleware panicked",
				zap.String("request_id", GetRequestID(c)),
				zap.Any("panic", r),
			)
			decision, err = nil, errInvalidAuthentication
		}
	}()

	decision, err = authService.Authorize(c.Request.Context(), cookieValue(c.Request, SessionCookie), ExtractWalletToken(c.Request))
	if err != nil {
		logger.Info("request rejected",
			zap.String("request_id", GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.String("reason", reason(err)),
		)
	}
	return decision, err
}

// ExtractWalletToken returns the wallet bearer token of r. The Authorization
// header wins over the cookie.
func ExtractWalletToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, AuthScheme) {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return cookieValue(r, WalletTokenCookie)
}

// cookieValue reads a cookie verbatim; gin's Cookie unescapes '+' in base64 values
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func clearAuthCookies(c *gin.Context, cookies CookieConfig) {
	c.SetCookie(WalletTokenCookie, "", -1, "/", cookies.Domain, cookies.Secure, false)
	c.SetCookie(SessionCookie, "", -1, "/", cookies.Domain, cookies.Secure, true)
}

// reason maps an auth error to the message returned to the client
func reason(err error) string {
	switch {
	case errors.Is(err, core.ErrMissingToken):
		return core.ErrMissingToken.Error()
	case errors.Is(err, core.ErrInvalidFormat):
		return core.ErrInvalidFormat.Error()
	case errors.Is(err, core.ErrInvalidSignature):
		return core.ErrInvalidSignature.Error()
	case errors.Is(err, core.ErrWalletMismatch):
		return core.ErrWalletMismatch.Error()
	default:
		return errInvalidAuthentication.Error()
	}
}
