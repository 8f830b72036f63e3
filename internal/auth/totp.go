package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/models"
)

// OTP issuer name shown in authenticator apps
const otpIssuer = "UnitedWeRise"

var (
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrTOTPNotEnrolled    = errors.New("totp setup not initiated")
	ErrTOTPInvalidCode    = errors.New("invalid verification code")
)

// TOTPSetup contains the secret and provisioning URL for enrollment
type TOTPSetup struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qr_code_url"`
}

// EnrollTOTP generates a TOTP secret for a user. The secret is stored
// immediately but TOTP stays disabled until the first code is verified.
func (s *Service) EnrollTOTP(user *models.User) (*TOTPSetup, error) {
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: user.Email,
		SecretSize:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	secret := key.Secret()
	if err := database.DB.Model(user).Update("totp_secret", secret).Error; err != nil {
		return nil, fmt.Errorf("failed to save totp secret: %w", err)
	}
	user.TOTPSecret = &secret

	return &TOTPSetup{
		Secret:    secret,
		QRCodeURL: key.URL(),
	}, nil
}

// ConfirmTOTP completes enrollment by verifying the first code
func (s *Service) ConfirmTOTP(user *models.User, code string) error {
	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return ErrTOTPInvalidCode
	}

	if err := database.DB.Model(user).Update("totp_enabled", true).Error; err != nil {
		return fmt.Errorf("failed to enable totp: %w", err)
	}
	user.TOTPEnabled = true
	return nil
}

// VerifyTOTP checks a code against the user's enrolled secret.
// Used for the admin step-up: a passing code mints a totp_verified token.
func (s *Service) VerifyTOTP(user *models.User, code string) (*AuthResponse, error) {
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return nil, ErrTOTPNotEnrolled
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return nil, ErrTOTPInvalidCode
	}
	return s.generateAuthResponse(user, true)
}

// DisableTOTP clears the enrollment after a valid current code
func (s *Service) DisableTOTP(user *models.User, code string) error {
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return ErrTOTPNotEnrolled
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return ErrTOTPInvalidCode
	}

	err := database.DB.Model(user).Updates(map[string]interface{}{
		"totp_enabled": false,
		"totp_secret":  nil,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to disable totp: %w", err)
	}
	user.TOTPEnabled = false
	user.TOTPSecret = nil
	return nil
}

// GenerateTOTPCode generates a current TOTP code for a secret (for testing)
func GenerateTOTPCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}
