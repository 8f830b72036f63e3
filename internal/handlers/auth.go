package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/auth"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/security"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
)

// Register creates a native email+password account
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.RegisterNativeUser(req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			util.RespondConflict(c, "email")
		case errors.Is(err, auth.ErrUsernameExists):
			util.RespondConflict(c, "username")
		default:
			logger.Log.Error("Registration failed", zap.Error(err))
			util.RespondInternalError(c, "Failed to create account")
		}
		return
	}

	h.sendVerificationEmail(&resp.User)

	c.JSON(http.StatusCreated, resp)
}

// Login authenticates a native account
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.LoginNativeUser(req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserNotFound) {
			h.recordSecurityEvent(c, models.SecurityLoginFailed, nil, "warning",
				models.JSONMap{"email": req.Email})
			util.RespondUnauthorized(c, "Invalid email or password")
			return
		}
		logger.Log.Error("Login failed", zap.Error(err))
		util.RespondInternalError(c, "Login failed")
		return
	}

	h.recordSecurityEvent(c, models.SecurityLoginSuccess, &resp.User.ID, "info", nil)

	c.JSON(http.StatusOK, resp)
}

// GoogleLogin redirects to Google's consent screen
// GET /api/v1/auth/google
func (h *Handlers) GoogleLogin(c *gin.Context) {
	if !h.auth.GoogleEnabled() {
		util.RespondNotFound(c, "google login")
		return
	}
	state := c.Query("state")
	c.Redirect(http.StatusTemporaryRedirect, h.auth.GetGoogleOAuthURL(state))
}

// GoogleCallback exchanges the OAuth code for a session token
// GET /api/v1/auth/google/callback
func (h *Handlers) GoogleCallback(c *gin.Context) {
	if !h.auth.GoogleEnabled() {
		util.RespondNotFound(c, "google login")
		return
	}
	code := c.Query("code")
	if code == "" {
		util.RespondBadRequest(c, "missing authorization code")
		return
	}

	resp, err := h.auth.HandleGoogleCallback(c.Request.Context(), code)
	if err != nil {
		logger.Log.Warn("Google OAuth callback failed", zap.Error(err))
		util.RespondUnauthorized(c, "Google authentication failed")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user
// GET /api/v1/auth/me
func (h *Handlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// RequestPasswordReset issues a reset token and emails it.
// Always answers 200 so the endpoint cannot be used to probe for accounts.
// POST /api/v1/auth/reset-password
func (h *Handlers) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	reset, err := h.auth.RequestPasswordReset(req.Email)
	if err != nil {
		logger.Log.Error("Password reset request failed", zap.Error(err))
	}
	if reset != nil && h.email != nil {
		go func(email, token string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.email.SendPasswordResetEmail(ctx, email, token); err != nil {
				logger.Log.Error("Password reset email failed", zap.Error(err))
			}
		}(req.Email, reset.Token)
	}

	c.JSON(http.StatusOK, gin.H{"message": "If that email exists, a reset link is on its way"})
}

// ConfirmPasswordReset sets a new password from a reset token
// POST /api/v1/auth/reset-password/confirm
func (h *Handlers) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.ResetPassword(req.Token, req.Password); err != nil {
		util.RespondBadRequest(c, "Invalid or expired reset token")
		return
	}

	h.recordSecurityEvent(c, models.SecurityPasswordReset, nil, "info", nil)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// VerifyEmail confirms an email verification token
// POST /api/v1/auth/verify-email
func (h *Handlers) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.VerifyEmail(req.Token); err != nil {
		util.RespondBadRequest(c, "Invalid or expired verification token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
}

// ResendVerification issues a fresh verification email
// POST /api/v1/auth/verify-email/resend
func (h *Handlers) ResendVerification(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if user.EmailVerified {
		c.JSON(http.StatusOK, gin.H{"message": "Email already verified"})
		return
	}

	h.sendVerificationEmail(user)
	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

// EnrollTOTP starts TOTP enrollment for an admin
// POST /api/v1/auth/totp/enroll
func (h *Handlers) EnrollTOTP(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	setup, err := h.auth.EnrollTOTP(user)
	if err != nil {
		if errors.Is(err, auth.ErrTOTPAlreadyEnabled) {
			util.RespondConflict(c, "totp")
			return
		}
		logger.Log.Error("TOTP enrollment failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to start TOTP enrollment")
		return
	}

	c.JSON(http.StatusOK, setup)
}

// ConfirmTOTP enables TOTP after the first valid code
// POST /api/v1/auth/totp/confirm
func (h *Handlers) ConfirmTOTP(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.ConfirmTOTP(user, req.Code); err != nil {
		util.RespondBadRequest(c, "Invalid verification code")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "TOTP enabled"})
}

// VerifyTOTP mints a TOTP-verified token for admin step-up
// POST /api/v1/auth/totp/verify
func (h *Handlers) VerifyTOTP(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.VerifyTOTP(user, req.Code)
	if err != nil {
		h.recordSecurityEvent(c, models.SecuritySuspiciousRequest, &user.ID, "warning",
			models.JSONMap{"reason": "totp_failed"})
		util.RespondUnauthorized(c, "Invalid verification code")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DisableTOTP turns TOTP off after a final valid code
// POST /api/v1/auth/totp/disable
func (h *Handlers) DisableTOTP(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.DisableTOTP(user, req.Code); err != nil {
		util.RespondBadRequest(c, "Invalid verification code")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "TOTP disabled"})
}

// sendVerificationEmail issues a verification token and emails it without
// blocking the request
func (h *Handlers) sendVerificationEmail(user *models.User) {
	verification, err := h.auth.RequestEmailVerification(user)
	if err != nil {
		logger.Log.Error("Email verification request failed",
			zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if h.email == nil {
		return
	}

	go func(email, token string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.email.SendVerificationEmail(ctx, email, token); err != nil {
			logger.Log.Error("Verification email failed", zap.Error(err))
		}
	}(user.Email, verification.Token)
}

// recordSecurityEvent logs an event with the request's network context
func (h *Handlers) recordSecurityEvent(c *gin.Context, eventType models.SecurityEventType, userID *string, severity string, metadata models.JSONMap) {
	if h.security == nil {
		return
	}
	if _, err := h.security.RecordEvent(security.Event{
		Type:      eventType,
		UserID:    userID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Severity:  severity,
		Metadata:  metadata,
	}); err != nil {
		logger.Log.Warn("Security event record failed", zap.Error(err))
	}
}
