package reputation

import (
	"errors"
	"fmt"
	"time"

	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"github.com/unitedwerise/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DailyGainCap is the maximum total reputation a user can gain per UTC day.
// Penalties are never capped.
const DailyGainCap = 5

var (
	ErrUnknownEventType = errors.New("unknown reputation event type")
	ErrDuplicatePenalty = errors.New("penalty already applied for this post")
	ErrDailyCapReached  = errors.New("daily reputation gain cap reached")
	ErrEventNotFound    = errors.New("reputation event not found")
	ErrNotPenalty       = errors.New("event is not a penalty")
)

// Service applies reputation events and keeps users.reputation_score in sync
type Service struct {
	db *gorm.DB
}

// NewService creates a reputation service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ApplyEvent applies a fixed-magnitude reputation event to a user.
// The score stays within [0,100]. Rewards are limited by the daily gain cap,
// partially when headroom remains, rejected entirely when it is exhausted.
// A penalty of the same type for the same post is applied at most once.
func (s *Service) ApplyEvent(userID string, postID *string, eventType models.ReputationEventType, reason string, issuedBy *string) (*models.ReputationEvent, error) {
	delta, ok := models.ReputationDeltas[eventType]
	if !ok {
		return nil, ErrUnknownEventType
	}

	var event *models.ReputationEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			return fmt.Errorf("user not found: %w", err)
		}

		if eventType.IsPenalty() && postID != nil {
			var count int64
			if err := tx.Model(&models.ReputationEvent{}).
				Where("user_id = ? AND post_id = ? AND event_type = ?", userID, *postID, eventType).
				Count(&count).Error; err != nil {
				return fmt.Errorf("duplicate check failed: %w", err)
			}
			if count > 0 {
				return ErrDuplicatePenalty
			}
		}

		applied := delta
		if delta > 0 {
			headroom, err := s.gainHeadroom(tx, userID)
			if err != nil {
				return err
			}
			if headroom <= 0 {
				return ErrDailyCapReached
			}
			if applied > headroom {
				applied = headroom
			}
		}

		before := user.ReputationScore
		after := clampScore(before + applied)

		e := models.ReputationEvent{
			UserID:      userID,
			PostID:      postID,
			EventType:   eventType,
			Delta:       after - before,
			Reason:      reason,
			ScoreBefore: before,
			ScoreAfter:  after,
			IssuedBy:    issuedBy,
		}
		if err := tx.Create(&e).Error; err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"reputation_score":      after,
			"reputation_updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update score: %w", err)
		}

		event = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().ReputationEventsTotal.WithLabelValues(string(eventType)).Inc()
	logger.Log.Info("Reputation event applied",
		logger.WithUserID(userID),
		zap.String("event_type", string(eventType)),
		zap.Int("delta", event.Delta),
		zap.Int("score_after", event.ScoreAfter),
	)

	return event, nil
}

// AdminAdjust applies a manual adjustment with an arbitrary delta.
// Bypasses the daily gain cap but still clamps to [0,100].
func (s *Service) AdminAdjust(userID string, delta int, reason, adminID string) (*models.ReputationEvent, error) {
	var event *models.ReputationEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			return fmt.Errorf("user not found: %w", err)
		}

		before := user.ReputationScore
		after := clampScore(before + delta)

		e := models.ReputationEvent{
			UserID:      userID,
			EventType:   models.ReputationAdminAdjustment,
			Delta:       after - before,
			Reason:      reason,
			ScoreBefore: before,
			ScoreAfter:  after,
			IssuedBy:    &adminID,
		}
		if err := tx.Create(&e).Error; err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"reputation_score":      after,
			"reputation_updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update score: %w", err)
		}

		event = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().ReputationEventsTotal.WithLabelValues(string(models.ReputationAdminAdjustment)).Inc()
	return event, nil
}

// RestoreAppeal reverses a penalty after a successful appeal.
// The restoring delta is the inverse of what the penalty actually applied,
// clamped so the score stays within bounds.
func (s *Service) RestoreAppeal(eventID, adminID, reason string) (*models.ReputationEvent, error) {
	var event *models.ReputationEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var penalty models.ReputationEvent
		if err := tx.Where("id = ?", eventID).First(&penalty).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}
		if penalty.Delta >= 0 {
			return ErrNotPenalty
		}

		var user models.User
		if err := tx.Where("id = ?", penalty.UserID).First(&user).Error; err != nil {
			return fmt.Errorf("user not found: %w", err)
		}

		before := user.ReputationScore
		after := clampScore(before - penalty.Delta)

		e := models.ReputationEvent{
			UserID:      penalty.UserID,
			PostID:      penalty.PostID,
			EventType:   models.ReputationAppealRestored,
			Delta:       after - before,
			Reason:      reason,
			ScoreBefore: before,
			ScoreAfter:  after,
			IssuedBy:    &adminID,
		}
		if err := tx.Create(&e).Error; err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"reputation_score":      after,
			"reputation_updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update score: %w", err)
		}

		event = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().ReputationEventsTotal.WithLabelValues(string(models.ReputationAppealRestored)).Inc()
	return event, nil
}

// Score returns a user's current reputation score
func (s *Service) Score(userID string) (int, error) {
	var user models.User
	if err := s.db.Select("reputation_score").Where("id = ?", userID).First(&user).Error; err != nil {
		return 0, fmt.Errorf("user not found: %w", err)
	}
	return user.ReputationScore, nil
}

// History returns a user's reputation events, newest first
func (s *Service) History(userID string, limit, offset int) ([]models.ReputationEvent, error) {
	var events []models.ReputationEvent
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return events, nil
}

// gainHeadroom returns how much positive delta remains under today's cap
func (s *Service) gainHeadroom(tx *gorm.DB, userID string) (int, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	var gained int64
	err := tx.Model(&models.ReputationEvent{}).
		Where("user_id = ? AND delta > 0 AND event_type NOT IN ? AND created_at >= ?",
			userID, []models.ReputationEventType{models.ReputationAdminAdjustment, models.ReputationAppealRestored}, dayStart).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&gained).Error
	if err != nil {
		return 0, fmt.Errorf("daily cap check failed: %w", err)
	}

	return DailyGainCap - int(gained), nil
}

func clampScore(score int) int {
	if score < models.MinReputation {
		return models.MinReputation
	}
	if score > models.MaxReputation {
		return models.MaxReputation
	}
	return score
}
