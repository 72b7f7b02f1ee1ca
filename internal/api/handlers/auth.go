package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/minecraft-server-manager/internal/auth"
)

const (
	accessTokenCookieName  = "msm_access"
	refreshTokenCookieName = "msm_refresh"
)

func isSecureRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	proto := c.GetHeader("X-Forwarded-Proto")
	return strings.EqualFold(proto, "https")
}

func setAuthCookies(c *gin.Context, jwtManager *auth.JWTManager, tokens *auth.TokenPair) {
	secure := isSecureRequest(c)
	accessMaxAge := int(time.Until(jwtManager.GetAccessTokenExpiry()).Seconds())
	if accessMaxAge < 0 {
		accessMaxAge = 0
	}
	refreshMaxAge := int(time.Until(jwtManager.GetRefreshTokenExpiry()).Seconds())
	if refreshMaxAge < 0 {
		refreshMaxAge = 0
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookieName, tokens.AccessToken, accessMaxAge, "/api/v1", "", secure, true)
	c.SetCookie(refreshTokenCookieName, tokens.RefreshToken, refreshMaxAge, "/api/v1", "", secure, true)
}

func clearAuthCookies(c *gin.Context) {
	secure := isSecureRequest(c)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookieName, "", -1, "/api/v1", "", secure, true)
	c.SetCookie(refreshTokenCookieName, "", -1, "/api/v1", "", secure, true)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	db         *sql.DB
	jwtManager *auth.JWTManager
	bcryptCost int
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *sql.DB, jwtManager *auth.JWTManager, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		db:         db,
		jwtManager: jwtManager,
		bcryptCost: bcryptCost,
	}
}

// SetupStatus reports whether the system requires initial setup
func (h *AuthHandler) SetupStatus(c *gin.Context) {
	needsSetup, err := h.needsSetup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requires_setup": needsSetup})
}

// SetupInitialAdmin creates the first user when no users exist
func (h *AuthHandler) SetupInitialAdmin(c *gin.Context) {
	needsSetup, err := h.needsSetup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !needsSetup {
		c.JSON(http.StatusConflict, gin.H{"error": "Setup already completed"})
		return
	}

	var req struct {
		Username string `json:"username" binding:"required,min=3,max=50"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	result, err := h.db.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		req.Username, hash,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}

	userID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user ID"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Admin user created",
		"user": gin.H{
			"id":       userID,
			"username": req.Username,
		},
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var (
		userID       int64
		passwordHash string
		isActive     bool
	)
	err := h.db.QueryRow(
		"SELECT id, password_hash, is_active FROM users WHERE username = ?",
		req.Username,
	).Scan(&userID, &passwordHash, &isActive)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !isActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	if err := auth.VerifyPassword(req.Password, passwordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokens, tokenHash, err := h.jwtManager.GenerateTokenPair(userID, req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	expiresAt := h.jwtManager.GetRefreshTokenExpiry()
	if _, err := h.db.Exec(
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)",
		userID, tokenHash, expiresAt,
	); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store refresh token"})
		return
	}

	setAuthCookies(c, h.jwtManager, tokens)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"user": gin.H{
			"id":       userID,
			"username": req.Username,
		},
	})
}

// RefreshToken handles token refresh with rotation
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		if cookieToken, cookieErr := c.Cookie(refreshTokenCookieName); cookieErr == nil {
			req.RefreshToken = cookieToken
		}
	}
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tokenHash := h.jwtManager.HashRefreshToken(req.RefreshToken)

	var (
		userID    int64
		username  string
		expiresAt time.Time
		revoked   bool
	)
	err := h.db.QueryRow(`
		SELECT u.id, u.username, rt.expires_at, rt.revoked
		FROM refresh_tokens rt
		INNER JOIN users u ON rt.user_id = u.id
		WHERE rt.token_hash = ?
	`, tokenHash).Scan(&userID, &username, &expiresAt, &revoked)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if revoked {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
		return
	}
	if time.Now().After(expiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
		return
	}

	// Revoke old refresh token (rotation)
	if _, err := h.db.Exec("UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?", tokenHash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke old token"})
		return
	}

	tokens, newTokenHash, err := h.jwtManager.GenerateTokenPair(userID, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	newExpiresAt := h.jwtManager.GetRefreshTokenExpiry()
	if _, err := h.db.Exec(
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)",
		userID, newTokenHash, newExpiresAt,
	); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store refresh token"})
		return
	}

	setAuthCookies(c, h.jwtManager, tokens)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

// Logout handles user logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		if cookieToken, cookieErr := c.Cookie(refreshTokenCookieName); cookieErr == nil {
			req.RefreshToken = cookieToken
		}
	}

	if req.RefreshToken != "" {
		tokenHash := h.jwtManager.HashRefreshToken(req.RefreshToken)
		_, _ = h.db.Exec("UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?", tokenHash)
	}

	clearAuthCookies(c)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// GetCurrentUser returns the current authenticated user
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var (
		username string
		isActive bool
	)
	err := h.db.QueryRow("SELECT username, is_active FROM users WHERE id = ?", userID).Scan(&username, &isActive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        userID,
		"username":  username,
		"is_active": isActive,
	})
}

func (h *AuthHandler) needsSetup() (bool, error) {
	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
