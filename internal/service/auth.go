package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// AuthService gates the management API behind TOTP. A valid one-time code is
// exchanged for a bearer token; tokens live in memory and expire, so a
// restart logs everyone out.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string
	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewAuthService(logger *zap.Logger, totpSecret string, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		logger:     logger,
		totpSecret: totpSecret,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]time.Time),
	}
}

// Enabled reports whether a TOTP secret is configured. Without one the API
// runs open, which is the expected mode behind a private network.
func (a *AuthService) Enabled() bool {
	return a.totpSecret != ""
}

// GenerateSecret creates a fresh TOTP secret and its otpauth enrollment URL
// for the operator to store in an authenticator app.
func (a *AuthService) GenerateSecret(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "WeChat Article Console",
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Login validates a one-time code and mints a session token.
func (a *AuthService) Login(code string) (string, error) {
	if !totp.Validate(code, a.totpSecret) {
		a.logger.Warn("TOTP validation failed")
		return "", &ValidationError{Field: "code", Reason: "invalid one-time code"}
	}

	token := uuid.New().String()
	a.mu.Lock()
	a.sessions[token] = time.Now().Add(a.sessionTTL)
	a.mu.Unlock()

	a.logger.Info("Session created")
	return token, nil
}

func (a *AuthService) validSession(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry, ok := a.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// Middleware rejects API requests without a live session. Login itself and
// the health probe stay open.
func (a *AuthService) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if path == "/health" || strings.HasPrefix(path, "/api/v1/auth/") || strings.HasPrefix(path, "/static/") {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !a.validSession(token) {
			c.JSON(401, gin.H{"status": "error", "message": "authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
