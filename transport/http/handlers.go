package http

import (
	"errors"
	"net/http"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cookies     CookieConfig
	logger      *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cookies CookieConfig, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// ChallengeResponse is the challenge a wallet is asked to sign
type ChallengeResponse struct {
	Message        string `json:"message"`
	Domain         string `json:"domain"`
	Address        string `json:"address"`
	Nonce          string `json:"nonce"`
	IssuedAt       string `json:"issuedAt"`
	ExpirationTime string `json:"expirationTime"`
}

// SessionResponse describes a newly issued framework session
type SessionResponse struct {
	SessionID     string `json:"sessionId"`
	WalletAddress string `json:"walletAddress"`
	ExpiresAt     string `json:"expiresAt"`
}

// Challenge handles the challenge request
func (h *AuthHandlers) Challenge(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	challenge, err := h.authService.CreateChallenge(address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		h.logger.Error("failed to create challenge", zap.String("request_id", GetRequestID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, ChallengeResponse{
		Message:        challenge.Text(),
		Domain:         challenge.Domain,
		Address:        challenge.Address,
		Nonce:          challenge.Nonce,
		IssuedAt:       core.FormatTimestamp(challenge.IssuedAt),
		ExpirationTime: core.FormatTimestamp(challenge.ExpiresAt),
	})
}

// SignIn exchanges a wallet bearer token for a framework session cookie
func (h *AuthHandlers) SignIn(c *gin.Context) {
	rawToken := ExtractWalletToken(c.Request)
	if rawToken == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			rawToken = req.Token
		}
	}

	token, session, err := h.authService.SignIn(c.Request.Context(), rawToken)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrMissingToken), errors.Is(err, core.ErrInvalidFormat), errors.Is(err, core.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to sign in", zap.String("request_id", GetRequestID(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		}
		return
	}

	maxAge := int(h.authService.SessionTTL().Seconds())
	c.SetCookie(SessionCookie, token, maxAge, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.JSON(http.StatusOK, SessionResponse{
		SessionID:     session.ID,
		WalletAddress: session.WalletAddress,
		ExpiresAt:     core.FormatTimestamp(session.ExpiresAt),
	})
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	sessionToken := cookieValue(c.Request, SessionCookie)
	if sessionToken == "" {
		clearAuthCookies(c, h.cookies)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), sessionToken); err != nil {
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			// An expired session is as good as logged out
		case errors.Is(err, core.ErrInvalidToken):
			clearAuthCookies(c, h.cookies)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session token"})
			return
		default:
			h.logger.Error("failed to logout", zap.String("request_id", GetRequestID(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
			return
		}
	}

	clearAuthCookies(c, h.cookies)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the auth decision attached by the auth middleware
func (h *AuthHandlers) Me(c *gin.Context) {
	decision, ok := DecisionFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, decision)
}
