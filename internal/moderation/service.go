package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/reputation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Confidence thresholds for turning a classification into a decision.
// Below blockThreshold the content is only flagged for human review.
const (
	blockThreshold  = 0.85
	reviewThreshold = 0.6
)

// Category is a violation class returned by the classifier
type Category string

const (
	CategoryNone               Category = "none"
	CategoryHateSpeech         Category = "hate_speech"
	CategoryHarassment         Category = "harassment"
	CategorySpam               Category = "spam"
	CategoryExcessiveProfanity Category = "excessive_profanity"
)

// reputationEventFor maps violation categories to reputation penalties
var reputationEventFor = map[Category]models.ReputationEventType{
	CategoryHateSpeech:         models.ReputationHateSpeech,
	CategoryHarassment:         models.ReputationHarassment,
	CategorySpam:               models.ReputationSpam,
	CategoryExcessiveProfanity: models.ReputationExcessiveProfanity,
}

// Decision is the outcome of analyzing one piece of content
type Decision struct {
	Status     models.ModerationStatus `json:"status"`
	Category   Category                `json:"category"`
	Reason     string                  `json:"reason"`
	Confidence float64                 `json:"confidence"`
}

// Service runs AI content analysis and applies the resulting
// moderation status and reputation penalties
type Service struct {
	db         *gorm.DB
	aiClient   *ai.Client
	reputation *reputation.Service
}

// NewService creates a moderation service. aiClient may be nil, in which
// case all content passes with a review flag on nothing.
func NewService(db *gorm.DB, aiClient *ai.Client, reputationService *reputation.Service) *Service {
	return &Service{
		db:         db,
		aiClient:   aiClient,
		reputation: reputationService,
	}
}

const analysisSystemPrompt = `You are a content moderator for a civic discussion platform.
Classify the user's post into exactly one category:
- "none": acceptable civic discourse, including strong political disagreement
- "hate_speech": attacks on protected groups
- "harassment": targeted abuse of an individual
- "spam": commercial solicitation, scams, or repetitive junk
- "excessive_profanity": gratuitous obscenity beyond emphatic speech
Political opinions, criticism of officials, and heated but civil argument are all "none".
Respond with JSON: {"category": "...", "confidence": 0.0-1.0, "reason": "one sentence"}`

type analysisReply struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Analyze classifies a piece of content without touching the database
func (s *Service) Analyze(ctx context.Context, content string) (*Decision, error) {
	if s.aiClient == nil || strings.TrimSpace(content) == "" {
		return &Decision{Status: models.ModerationAllowed, Category: CategoryNone}, nil
	}

	var reply analysisReply
	err := s.aiClient.ChatCompletionJSON(ctx, analysisSystemPrompt, content, 200, &reply)
	if err != nil {
		// Fail open: content stays visible but is queued for human review
		logger.Log.Warn("Content analysis failed, flagging for review", zap.Error(err))
		return &Decision{
			Status: models.ModerationReview,
			Reason: "automatic analysis unavailable",
		}, nil
	}

	category := Category(reply.Category)
	if _, known := reputationEventFor[category]; !known {
		category = CategoryNone
	}

	decision := &Decision{
		Category:   category,
		Reason:     reply.Reason,
		Confidence: reply.Confidence,
	}

	switch {
	case category == CategoryNone:
		decision.Status = models.ModerationAllowed
	case reply.Confidence >= blockThreshold:
		decision.Status = models.ModerationBlocked
	case reply.Confidence >= reviewThreshold:
		decision.Status = models.ModerationReview
	default:
		decision.Status = models.ModerationAllowed
	}

	return decision, nil
}

// ModeratePost analyzes a post, persists the moderation outcome, and applies
// the reputation penalty for blocked content
func (s *Service) ModeratePost(ctx context.Context, post *models.Post) (*Decision, error) {
	decision, err := s.Analyze(ctx, post.Content)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"moderation_status": decision.Status,
		"moderation_reason": decision.Reason,
	}
	if decision.Status == models.ModerationReview {
		updates["flagged_for_review"] = true
	}

	if err := s.db.Model(post).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to persist moderation status: %w", err)
	}
	post.ModerationStatus = decision.Status
	post.ModerationReason = decision.Reason

	metrics.Get().ModerationDecisionsTotal.WithLabelValues(string(decision.Status), "post").Inc()

	if decision.Status == models.ModerationBlocked {
		eventType := reputationEventFor[decision.Category]
		_, repErr := s.reputation.ApplyEvent(post.UserID, &post.ID, eventType, decision.Reason, nil)
		if repErr != nil && repErr != reputation.ErrDuplicatePenalty {
			logger.Log.Error("Failed to apply moderation penalty",
				logger.WithPostID(post.ID),
				zap.Error(repErr),
			)
		}
	}

	return decision, nil
}

// ModerateComment analyzes a comment and marks it deleted when blocked.
// Comment penalties reuse the parent post ID for duplicate suppression.
func (s *Service) ModerateComment(ctx context.Context, comment *models.Comment) (*Decision, error) {
	decision, err := s.Analyze(ctx, comment.Content)
	if err != nil {
		return nil, err
	}

	metrics.Get().ModerationDecisionsTotal.WithLabelValues(string(decision.Status), "comment").Inc()

	if decision.Status == models.ModerationBlocked {
		if err := s.db.Model(comment).Update("is_deleted", true).Error; err != nil {
			return nil, fmt.Errorf("failed to remove blocked comment: %w", err)
		}
		comment.IsDeleted = true

		eventType := reputationEventFor[decision.Category]
		_, repErr := s.reputation.ApplyEvent(comment.UserID, &comment.ID, eventType, decision.Reason, nil)
		if repErr != nil && repErr != reputation.ErrDuplicatePenalty {
			logger.Log.Error("Failed to apply moderation penalty",
				zap.String("comment_id", comment.ID),
				zap.Error(repErr),
			)
		}
	}

	return decision, nil
}

// ResolveReview finalizes a human review of flagged content. approved content
// becomes allowed; rejected content is blocked and penalized.
func (s *Service) ResolveReview(post *models.Post, approved bool, category Category, adminID string) error {
	status := models.ModerationAllowed
	if !approved {
		status = models.ModerationBlocked
	}

	err := s.db.Model(post).Updates(map[string]interface{}{
		"moderation_status":  status,
		"flagged_for_review": false,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to resolve review: %w", err)
	}
	post.ModerationStatus = status
	post.FlaggedForReview = false

	metrics.Get().ModerationDecisionsTotal.WithLabelValues(string(status), "post_review").Inc()

	if !approved {
		eventType, ok := reputationEventFor[category]
		if !ok {
			eventType = models.ReputationSpam
		}
		_, repErr := s.reputation.ApplyEvent(post.UserID, &post.ID, eventType, "rejected in review", &adminID)
		if repErr != nil && repErr != reputation.ErrDuplicatePenalty {
			return repErr
		}
	}

	return nil
}
