package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	_ = logger.Initialize("error", "")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	// Create tables manually with SQLite-compatible syntax
	// (GORM AutoMigrate tries to use PostgreSQL-specific features like gen_random_uuid)
	err = db.Exec(`
		CREATE TABLE security_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			user_id TEXT,
			ip_address TEXT NOT NULL,
			user_agent TEXT,
			severity TEXT DEFAULT 'info',
			metadata TEXT,
			created_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE ip_blocks (
			id TEXT PRIMARY KEY,
			ip_address TEXT NOT NULL,
			reason TEXT,
			created_by TEXT,
			expires_at DATETIME,
			is_active INTEGER DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	return db
}

func TestRecordEventAccumulatesRisk(t *testing.T) {
	svc := NewService(setupTestDB(t))

	risk, err := svc.RecordEvent(Event{
		Type:      models.SecurityLoginFailed,
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8.0",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, risk)

	risk, err = svc.RecordEvent(Event{
		Type:      models.SecurityRateLimited,
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Equal(t, 15, risk)

	// A different IP starts from zero
	risk, err = svc.RecordEvent(Event{
		Type:      models.SecurityLoginFailed,
		IPAddress: "10.0.0.2",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, risk)
}

func TestUnweightedEventsCarryNoRisk(t *testing.T) {
	svc := NewService(setupTestDB(t))

	risk, err := svc.RecordEvent(Event{
		Type:      models.SecurityLoginSuccess,
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, risk)

	blocked, err := svc.IsIPBlocked("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestReviewThresholdDoesNotBlock(t *testing.T) {
	svc := NewService(setupTestDB(t))

	// 3x suspicious_request (20) + rate_limited (10) = 70: review, no block
	for i := 0; i < 3; i++ {
		_, err := svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, IPAddress: "10.0.0.3"})
		require.NoError(t, err)
	}
	risk, err := svc.RecordEvent(Event{Type: models.SecurityRateLimited, IPAddress: "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, 70, risk)

	blocked, err := svc.IsIPBlocked("10.0.0.3")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestAutoBlockAtThreshold(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	var risk int
	var err error
	for i := 0; i < 5; i++ {
		risk, err = svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, IPAddress: "10.0.0.4"})
		require.NoError(t, err)
	}
	assert.Equal(t, 100, risk)

	blocked, err := svc.IsIPBlocked("10.0.0.4")
	require.NoError(t, err)
	assert.True(t, blocked)

	// The automatic block is itself logged
	var count int64
	db.Model(&models.SecurityEvent{}).
		Where("event_type = ? AND ip_address = ?", models.SecurityIPBlocked, "10.0.0.4").
		Count(&count)
	assert.Equal(t, int64(1), count)

	// Only one block row even after more events
	_, err = svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, IPAddress: "10.0.0.4"})
	require.NoError(t, err)
	var blockCount int64
	db.Model(&models.IPBlock{}).Where("ip_address = ?", "10.0.0.4").Count(&blockCount)
	assert.Equal(t, int64(1), blockCount)
}

func TestRiskScoreClampedAt100(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	for i := 0; i < 10; i++ {
		_, err := svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, IPAddress: "10.0.0.5"})
		require.NoError(t, err)
	}

	risk, err := svc.RiskScore("10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 100, risk)
}

func TestRiskScoreIgnoresOldEvents(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	old := &models.SecurityEvent{
		EventType: models.SecuritySuspiciousRequest,
		IPAddress: "10.0.0.6",
		Severity:  "warning",
	}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Model(old).Update("created_at", time.Now().Add(-25*time.Hour)).Error)

	risk, err := svc.RiskScore("10.0.0.6")
	require.NoError(t, err)
	assert.Equal(t, 0, risk)
}

func TestManualBlockLifecycle(t *testing.T) {
	svc := NewService(setupTestDB(t))

	block, err := svc.BlockIP("192.168.1.50", "abuse report", "admin-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", block.CreatedBy)
	require.NotNil(t, block.ExpiresAt)

	blocked, err := svc.IsIPBlocked("192.168.1.50")
	require.NoError(t, err)
	assert.True(t, blocked)

	_, err = svc.BlockIP("192.168.1.50", "again", "admin-1", time.Hour)
	assert.ErrorIs(t, err, ErrBlockExists)

	blocks, err := svc.ListBlocks(10, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	require.NoError(t, svc.UnblockIP(block.ID))
	blocked, err = svc.IsIPBlocked("192.168.1.50")
	require.NoError(t, err)
	assert.False(t, blocked)

	assert.ErrorIs(t, svc.UnblockIP(block.ID), ErrBlockNotFound)
}

func TestCIDRBlockCoversRange(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.BlockIP("203.0.113.0/24", "botnet range", "admin-1", 0)
	require.NoError(t, err)

	blocked, err := svc.IsIPBlocked("203.0.113.77")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Addresses outside the range stay reachable
	blocked, err = svc.IsIPBlocked("203.0.114.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRiskScoreForUser(t *testing.T) {
	svc := NewService(setupTestDB(t))

	actor := "user-1"
	_, err := svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, UserID: &actor, IPAddress: "10.9.0.1"})
	require.NoError(t, err)
	_, err = svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, UserID: &actor, IPAddress: "10.9.0.2"})
	require.NoError(t, err)

	// The user's score spans IPs; the per-IP score does not
	risk, err := svc.RiskScoreForUser(actor)
	require.NoError(t, err)
	assert.Equal(t, 40, risk)

	ipRisk, err := svc.RiskScore("10.9.0.1")
	require.NoError(t, err)
	assert.Equal(t, 20, ipRisk)

	// Other actors' events do not bleed in
	other := "user-2"
	_, err = svc.RecordEvent(Event{Type: models.SecuritySuspiciousRequest, UserID: &other, IPAddress: "10.9.1.1"})
	require.NoError(t, err)
	risk, err = svc.RiskScoreForUser(actor)
	require.NoError(t, err)
	assert.Equal(t, 40, risk)
}

func TestPermanentBlock(t *testing.T) {
	svc := NewService(setupTestDB(t))

	block, err := svc.BlockIP("192.168.1.60", "known bad actor", "admin-1", 0)
	require.NoError(t, err)
	assert.Nil(t, block.ExpiresAt)

	blocked, err := svc.IsIPBlocked("192.168.1.60")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestExpiredBlockIgnoredAndDeactivated(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	past := time.Now().Add(-time.Hour)
	block := &models.IPBlock{IPAddress: "192.168.1.70", Reason: "old", ExpiresAt: &past, IsActive: true}
	require.NoError(t, db.Create(block).Error)

	blocked, err := svc.IsIPBlocked("192.168.1.70")
	require.NoError(t, err)
	assert.False(t, blocked)

	var refreshed models.IPBlock
	require.NoError(t, db.First(&refreshed, "id = ?", block.ID).Error)
	assert.False(t, refreshed.IsActive)

	// An expired block can be replaced by a new one
	fresh, err := svc.BlockIP("192.168.1.70", "back again", "admin-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)
}

func TestListEventsFiltered(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.RecordEvent(Event{Type: models.SecurityLoginFailed, IPAddress: "10.1.0.1"})
	require.NoError(t, err)
	_, err = svc.RecordEvent(Event{Type: models.SecurityLoginFailed, IPAddress: "10.1.0.2"})
	require.NoError(t, err)
	_, err = svc.RecordEvent(Event{Type: models.SecurityAdminAction, IPAddress: "10.1.0.3", Severity: "warning"})
	require.NoError(t, err)

	all, err := svc.ListEvents("", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	failed, err := svc.ListEvents(string(models.SecurityLoginFailed), 10, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}
