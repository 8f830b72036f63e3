package security

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"github.com/unitedwerise/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// ReviewThreshold flags an IP for admin review
	ReviewThreshold = 70

	// AutoBlockThreshold creates an automatic 24h IP block
	AutoBlockThreshold = 90

	// AutoBlockDuration is how long automatic blocks last
	AutoBlockDuration = 24 * time.Hour

	// riskWindow is how far back risk scoring looks
	riskWindow = 24 * time.Hour
)

var (
	ErrBlockNotFound = errors.New("ip block not found")
	ErrBlockExists   = errors.New("ip already blocked")
)

// Service maintains the security event log, per-IP risk scores, and the
// IP block list
type Service struct {
	db *gorm.DB
}

// NewService creates a security service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Event captures the request context for one security event
type Event struct {
	Type      models.SecurityEventType
	UserID    *string
	IPAddress string
	UserAgent string
	Severity  string
	Metadata  models.JSONMap
}

// RecordEvent appends an event to the log, recomputes the source IP's risk
// score, and auto-blocks the IP when the score crosses the block threshold.
// Returns the risk score after the event.
func (s *Service) RecordEvent(event Event) (int, error) {
	if event.Severity == "" {
		event.Severity = "info"
	}

	row := &models.SecurityEvent{
		EventType: event.Type,
		UserID:    event.UserID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Severity:  event.Severity,
		Metadata:  event.Metadata,
	}
	if err := s.db.Create(row).Error; err != nil {
		return 0, fmt.Errorf("failed to record security event: %w", err)
	}

	metrics.Get().SecurityEventsTotal.WithLabelValues(string(event.Type), event.Severity).Inc()

	risk, err := s.RiskScore(event.IPAddress)
	if err != nil {
		return 0, err
	}

	switch {
	case risk >= AutoBlockThreshold:
		if err := s.autoBlock(event.IPAddress, risk); err != nil {
			logger.Log.Error("Automatic IP block failed",
				zap.String("ip", event.IPAddress),
				zap.Error(err),
			)
		}
	case risk >= ReviewThreshold:
		logger.Log.Warn("IP flagged for review",
			zap.String("ip", event.IPAddress),
			zap.Int("risk_score", risk),
			zap.String("event_type", string(event.Type)),
		)
	}

	// Actors are flagged the same way; user risk never auto-blocks since
	// the block list is IP-based
	if event.UserID != nil {
		if userRisk, err := s.RiskScoreForUser(*event.UserID); err == nil && userRisk >= ReviewThreshold {
			logger.Log.Warn("User flagged for review",
				zap.String("user_id", *event.UserID),
				zap.Int("risk_score", userRisk),
				zap.String("event_type", string(event.Type)),
			)
		}
	}

	return risk, nil
}

// RiskScore sums the risk weights of an IP's events in the last 24 hours,
// clamped to [0,100]. Unweighted event types contribute nothing.
func (s *Service) RiskScore(ipAddress string) (int, error) {
	var events []models.SecurityEvent
	err := s.db.
		Where("ip_address = ?", ipAddress).
		Where("created_at > ?", time.Now().Add(-riskWindow)).
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load security events: %w", err)
	}
	return sumRisk(events), nil
}

// RiskScoreForUser is the actor-side counterpart of RiskScore: the same
// weighted sum over the user's events in the last 24 hours
func (s *Service) RiskScoreForUser(userID string) (int, error) {
	var events []models.SecurityEvent
	err := s.db.
		Where("user_id = ?", userID).
		Where("created_at > ?", time.Now().Add(-riskWindow)).
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load security events: %w", err)
	}
	return sumRisk(events), nil
}

func sumRisk(events []models.SecurityEvent) int {
	score := 0
	for _, e := range events {
		score += models.RiskWeights[e.EventType]
	}
	if score > 100 {
		score = 100
	}
	return score
}

// autoBlock creates a temporary block for a high-risk IP. Re-blocking an
// already blocked IP just extends the expiry.
func (s *Service) autoBlock(ipAddress string, risk int) error {
	expiresAt := time.Now().Add(AutoBlockDuration)

	var existing models.IPBlock
	err := s.db.Where("ip_address = ?", ipAddress).First(&existing).Error
	if err == nil {
		return s.db.Model(&existing).Updates(map[string]interface{}{
			"expires_at": expiresAt,
			"is_active":  true,
		}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	block := &models.IPBlock{
		IPAddress: ipAddress,
		Reason:    fmt.Sprintf("automatic block, risk score %d", risk),
		ExpiresAt: &expiresAt,
		IsActive:  true,
	}
	if err := s.db.Create(block).Error; err != nil {
		return err
	}

	metrics.Get().IPBlocksActive.WithLabelValues("automatic").Inc()
	logger.Log.Warn("IP blocked automatically",
		zap.String("ip", ipAddress),
		zap.Int("risk_score", risk),
		zap.Time("expires_at", expiresAt),
	)

	// The block itself is logged as an event. Inserted directly so risk
	// scoring does not re-enter autoBlock.
	event := &models.SecurityEvent{
		EventType: models.SecurityIPBlocked,
		IPAddress: ipAddress,
		Severity:  "critical",
		Metadata:  models.JSONMap{"risk_score": risk, "automatic": true},
	}
	if err := s.db.Create(event).Error; err != nil {
		return err
	}
	metrics.Get().SecurityEventsTotal.WithLabelValues(string(models.SecurityIPBlocked), "critical").Inc()
	return nil
}

// IsIPBlocked reports whether an IP has an active, unexpired block.
// Blocks are stored as single addresses or CIDR ranges; a range blocks
// every address it contains.
func (s *Service) IsIPBlocked(ipAddress string) (bool, error) {
	var blocks []models.IPBlock
	if err := s.db.Where("is_active = ?", true).Find(&blocks).Error; err != nil {
		return false, fmt.Errorf("failed to check ip block: %w", err)
	}

	addr, addrErr := netip.ParseAddr(ipAddress)
	now := time.Now()

	for i := range blocks {
		block := &blocks[i]
		if block.Expired(now) {
			// Lazily deactivate so the table stays queryable
			if err := s.db.Model(block).Update("is_active", false).Error; err != nil {
				logger.Log.Warn("Failed to deactivate expired block", zap.Error(err))
			}
			continue
		}
		if block.IPAddress == ipAddress {
			return true, nil
		}
		if addrErr != nil {
			continue
		}
		if prefix, err := netip.ParsePrefix(block.IPAddress); err == nil && prefix.Contains(addr) {
			return true, nil
		}
	}
	return false, nil
}

// BlockIP creates a manual block. duration <= 0 blocks permanently.
// ip_address carries a unique index, so re-blocking reuses the old row.
func (s *Service) BlockIP(ipAddress, reason, adminID string, duration time.Duration) (*models.IPBlock, error) {
	var expiresAt *time.Time
	if duration > 0 {
		t := time.Now().Add(duration)
		expiresAt = &t
	}

	var existing models.IPBlock
	err := s.db.Where("ip_address = ?", ipAddress).First(&existing).Error
	if err == nil {
		if existing.IsActive && !existing.Expired(time.Now()) {
			return nil, ErrBlockExists
		}
		existing.Reason = reason
		existing.CreatedBy = adminID
		existing.ExpiresAt = expiresAt
		existing.IsActive = true
		if err := s.db.Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update ip block: %w", err)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	block := &models.IPBlock{
		IPAddress: ipAddress,
		Reason:    reason,
		CreatedBy: adminID,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := s.db.Create(block).Error; err != nil {
		return nil, fmt.Errorf("failed to create ip block: %w", err)
	}
	metrics.Get().IPBlocksActive.WithLabelValues("manual").Inc()
	return block, nil
}

// UnblockIP deactivates a block by id
func (s *Service) UnblockIP(blockID string) error {
	result := s.db.Model(&models.IPBlock{}).
		Where("id = ? AND is_active = ?", blockID, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to unblock ip: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBlockNotFound
	}
	return nil
}

// ListBlocks returns active blocks, newest first
func (s *Service) ListBlocks(limit, offset int) ([]models.IPBlock, error) {
	var blocks []models.IPBlock
	err := s.db.Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ip blocks: %w", err)
	}
	return blocks, nil
}

// ListEvents returns recent security events, optionally filtered by type
func (s *Service) ListEvents(eventType string, limit, offset int) ([]models.SecurityEvent, error) {
	query := s.db.Order("created_at DESC").Limit(limit).Offset(offset)
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	var events []models.SecurityEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return events, nil
}
