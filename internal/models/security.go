package models

import (
	"time"

	"gorm.io/gorm"
)

// SecurityEventType identifies a logged security event
type SecurityEventType string

const (
	SecurityLoginFailed       SecurityEventType = "login_failed"
	SecurityLoginSuccess      SecurityEventType = "login_success"
	SecurityPasswordReset     SecurityEventType = "password_reset"
	SecurityRateLimited       SecurityEventType = "rate_limited"
	SecurityContentBlocked    SecurityEventType = "content_blocked"
	SecuritySuspiciousRequest SecurityEventType = "suspicious_request"
	SecurityAdminAction       SecurityEventType = "admin_action"
	SecurityIPBlocked         SecurityEventType = "ip_blocked"
)

// RiskWeights maps event types to their contribution to the 24h risk score
var RiskWeights = map[SecurityEventType]int{
	SecurityLoginFailed:       5,
	SecurityRateLimited:       10,
	SecurityContentBlocked:    15,
	SecuritySuspiciousRequest: 20,
	SecurityIPBlocked:         40,
}

// JSONMap stores arbitrary event metadata as jsonb
type JSONMap map[string]interface{}

// SecurityEvent is one row in the append-only security event log
type SecurityEvent struct {
	ID string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`

	EventType SecurityEventType `gorm:"not null;index" json:"event_type"`

	// Actor - nullable, events can be anonymous (failed logins, blocked IPs)
	UserID *string `gorm:"index" json:"user_id,omitempty"`
	User   *User   `gorm:"foreignKey:UserID" json:"-"`

	IPAddress string `gorm:"not null;index" json:"ip_address"`
	UserAgent string `gorm:"type:text" json:"user_agent"`

	// "info", "warning", "critical"
	Severity string `gorm:"default:info" json:"severity"`

	Metadata JSONMap `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// IPBlock blocks an address from the API until it expires. A nil ExpiresAt
// blocks permanently.
type IPBlock struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	IPAddress string `gorm:"not null;uniqueIndex" json:"ip_address"`
	Reason    string `gorm:"type:text" json:"reason"`

	// Admin who created the block; empty for automatic blocks
	CreatedBy string `json:"created_by,omitempty"`

	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	IsActive  bool       `gorm:"default:true" json:"is_active"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Expired reports whether the block is past its expiry
func (b *IPBlock) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

func (e *SecurityEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateUUID()
	}
	return nil
}

func (b *IPBlock) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = generateUUID()
	}
	return nil
}
