package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GoogleUserInfo represents Google OAuth user response
type GoogleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// HandleGoogleCallback processes Google OAuth callback
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (*AuthResponse, error) {
	userInfo, err := s.getGoogleUserInfo(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google user info: %w", err)
	}

	return s.findOrCreateGoogleUser(userInfo)
}

// findOrCreateGoogleUser implements email-based account unification
func (s *Service) findOrCreateGoogleUser(userInfo *GoogleUserInfo) (*AuthResponse, error) {
	// Account already linked to this Google ID
	var existing models.User
	err := database.DB.Where("google_id = ?", userInfo.Sub).First(&existing).Error
	if err == nil {
		now := time.Now()
		existing.LastActiveAt = &now
		database.DB.Save(&existing)
		return s.generateAuthResponse(&existing, false)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error checking google id: %w", err)
	}

	// Existing account with the same email - link it
	user, err := s.FindUserByEmail(userInfo.Email)
	if err == nil {
		user.GoogleID = &userInfo.Sub
		user.EmailVerified = true
		if user.AvatarURL == "" && userInfo.Picture != "" {
			user.AvatarURL = userInfo.Picture
		}
		if err := database.DB.Save(user).Error; err != nil {
			return nil, fmt.Errorf("failed to link google account: %w", err)
		}
		logger.Log.Info("Linked Google account to existing user",
			zap.String("user_id", user.ID),
		)
		return s.generateAuthResponse(user, false)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("database error finding user: %w", err)
	}

	// New account
	username, err := s.ensureUniqueUsername(generateUsernameFromName(userInfo.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to generate unique username: %w", err)
	}

	user = &models.User{
		ID:              uuid.New().String(),
		Email:           userInfo.Email,
		Username:        username,
		DisplayName:     userInfo.Name,
		AvatarURL:       userInfo.Picture,
		EmailVerified:   true, // OAuth emails are pre-verified
		GoogleID:        &userInfo.Sub,
		ReputationScore: models.DefaultReputation,
	}

	if err := database.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user with OAuth: %w", err)
	}

	return s.generateAuthResponse(user, false)
}

// getGoogleUserInfo fetches user info from Google OAuth
func (s *Service) getGoogleUserInfo(ctx context.Context, code string) (*GoogleUserInfo, error) {
	token, err := s.googleConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	client := s.googleConfig.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v3/userinfo")
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var googleUser GoogleUserInfo
	if err := json.Unmarshal(body, &googleUser); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}

	return &googleUser, nil
}

// ensureUniqueUsername generates a unique username
func (s *Service) ensureUniqueUsername(baseUsername string) (string, error) {
	username := baseUsername
	counter := 1

	for {
		var existingUser models.User
		err := database.DB.Where("LOWER(username) = LOWER(?)", username).First(&existingUser).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return username, nil
		} else if err != nil {
			return "", fmt.Errorf("database error: %w", err)
		}

		// Username taken, try with counter
		username = fmt.Sprintf("%s%d", baseUsername, counter)
		counter++

		if counter > 999 {
			return "", errors.New("unable to generate unique username")
		}
	}
}

// generateUsernameFromName creates a username from display name
func generateUsernameFromName(name string) string {
	username := strings.ToLower(strings.ReplaceAll(name, " ", ""))

	cleaned := ""
	for _, char := range username {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') {
			cleaned += string(char)
		}
	}

	if cleaned == "" {
		cleaned = "citizen"
	}

	if len(cleaned) > 20 {
		cleaned = cleaned[:20]
	}

	return cleaned
}
