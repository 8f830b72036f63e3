package quests

import (
	"errors"
	"fmt"
	"time"

	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/reputation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoQuestForAction = errors.New("no active quest for this action")

// questTemplate defines one recurring daily quest
type questTemplate struct {
	Type             models.QuestType
	Title            string
	Description      string
	RequirementCount int
	RewardDelta      int
}

var dailyTemplates = []questTemplate{
	{models.QuestReadNews, "Stay informed", "Read 3 news articles", 3, 1},
	{models.QuestCreatePost, "Speak up", "Share a post with your community", 1, 1},
	{models.QuestCreateComment, "Join the conversation", "Comment on 2 posts", 2, 1},
	{models.QuestCompleteProfile, "Put down roots", "Complete your profile and district", 1, 2},
}

// QuestStatus pairs a quest with the user's progress on it
type QuestStatus struct {
	Quest     models.Quest `json:"quest"`
	Progress  int          `json:"progress"`
	Completed bool         `json:"completed"`
}

// Service tracks daily quest progress and streaks, awarding reputation on
// completion
type Service struct {
	db         *gorm.DB
	reputation *reputation.Service
}

// NewService creates a quests service
func NewService(db *gorm.DB, reputationService *reputation.Service) *Service {
	return &Service{db: db, reputation: reputationService}
}

// EnsureDailyQuests creates today's quest rows if they do not exist yet.
// Safe to call on every request.
func (s *Service) EnsureDailyQuests(day time.Time) error {
	date := utcDate(day)

	for _, tpl := range dailyTemplates {
		var count int64
		err := s.db.Model(&models.Quest{}).
			Where("type = ? AND active_date = ?", tpl.Type, date).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check daily quest: %w", err)
		}
		if count > 0 {
			continue
		}

		quest := &models.Quest{
			Type:             tpl.Type,
			Title:            tpl.Title,
			Description:      tpl.Description,
			RequirementCount: tpl.RequirementCount,
			RewardDelta:      tpl.RewardDelta,
			ActiveDate:       date,
		}
		if err := s.db.Create(quest).Error; err != nil {
			return fmt.Errorf("failed to create daily quest: %w", err)
		}
	}
	return nil
}

// TodayQuests returns today's quests with the user's progress
func (s *Service) TodayQuests(userID string) ([]QuestStatus, error) {
	if err := s.EnsureDailyQuests(time.Now()); err != nil {
		return nil, err
	}

	var quests []models.Quest
	err := s.db.Where("active_date = ?", utcDate(time.Now())).
		Order("type").Find(&quests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load quests: %w", err)
	}

	statuses := make([]QuestStatus, 0, len(quests))
	for _, quest := range quests {
		status := QuestStatus{Quest: quest}

		var uq models.UserQuest
		err := s.db.Where("user_id = ? AND quest_id = ?", userID, quest.ID).First(&uq).Error
		if err == nil {
			status.Progress = uq.Progress
			status.Completed = uq.Completed
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load quest progress: %w", err)
		}

		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RecordAction advances the user's progress on today's quest of the given
// type. Completing a quest awards reputation (subject to the daily gain
// cap) and advances the streak. Actions past completion are no-ops.
func (s *Service) RecordAction(userID string, questType models.QuestType) (*models.UserQuest, error) {
	if err := s.EnsureDailyQuests(time.Now()); err != nil {
		return nil, err
	}

	var quest models.Quest
	err := s.db.Where("type = ? AND active_date = ?", questType, utcDate(time.Now())).
		First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoQuestForAction
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quest: %w", err)
	}

	var uq models.UserQuest
	err = s.db.Where("user_id = ? AND quest_id = ?", userID, quest.ID).First(&uq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		uq = models.UserQuest{UserID: userID, QuestID: quest.ID}
		if err := s.db.Create(&uq).Error; err != nil {
			return nil, fmt.Errorf("failed to create quest progress: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load quest progress: %w", err)
	}

	if uq.Completed {
		return &uq, nil
	}

	uq.Progress++
	if uq.Progress >= quest.RequirementCount {
		now := time.Now()
		uq.Progress = quest.RequirementCount
		uq.Completed = true
		uq.CompletedAt = &now
	}
	if err := s.db.Save(&uq).Error; err != nil {
		return nil, fmt.Errorf("failed to save quest progress: %w", err)
	}

	if uq.Completed {
		s.awardCompletion(userID, &quest)
		if err := s.advanceStreak(userID, utcDate(time.Now())); err != nil {
			logger.Log.Warn("Streak update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return &uq, nil
}

// awardCompletion grants the quest's reputation reward. Hitting the daily
// gain cap is expected and not an error.
func (s *Service) awardCompletion(userID string, quest *models.Quest) {
	eventType := models.ReputationPositiveFeedback
	if quest.RewardDelta >= 2 {
		eventType = models.ReputationCommunityContribution
	}

	_, err := s.reputation.ApplyEvent(userID, nil, eventType,
		fmt.Sprintf("completed quest: %s", quest.Title), nil)
	if err != nil && !errors.Is(err, reputation.ErrDailyCapReached) {
		logger.Log.Warn("Quest reward failed",
			zap.String("user_id", userID),
			zap.String("quest", quest.Title),
			zap.Error(err),
		)
	}
}

// advanceStreak bumps the consecutive-day counter. Multiple completions on
// the same day count once.
func (s *Service) advanceStreak(userID string, today time.Time) error {
	var streak models.UserStreak
	err := s.db.Where("user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		streak = models.UserStreak{
			UserID:          userID,
			CurrentStreak:   1,
			LongestStreak:   1,
			LastCompletedAt: &today,
		}
		return s.db.Create(&streak).Error
	}
	if err != nil {
		return err
	}

	if streak.LastCompletedAt != nil {
		last := utcDate(*streak.LastCompletedAt)
		switch {
		case last.Equal(today):
			return nil
		case last.Equal(today.AddDate(0, 0, -1)):
			streak.CurrentStreak++
		default:
			streak.CurrentStreak = 1
		}
	} else {
		streak.CurrentStreak = 1
	}

	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}
	streak.LastCompletedAt = &today
	return s.db.Save(&streak).Error
}

// Streak returns the user's streak, zeroed if they have none yet
func (s *Service) Streak(userID string) (*models.UserStreak, error) {
	var streak models.UserStreak
	err := s.db.Where("user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserStreak{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}
	return &streak, nil
}

// utcDate truncates a time to its UTC date
func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
