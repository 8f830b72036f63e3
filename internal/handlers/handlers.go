package handlers

import (
	"context"
	"errors"

	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/auth"
	"github.com/unitedwerise/backend/internal/civic"
	"github.com/unitedwerise/backend/internal/email"
	"github.com/unitedwerise/backend/internal/feed"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/moderation"
	"github.com/unitedwerise/backend/internal/news"
	"github.com/unitedwerise/backend/internal/quests"
	"github.com/unitedwerise/backend/internal/reputation"
	"github.com/unitedwerise/backend/internal/security"
	"github.com/unitedwerise/backend/internal/storage"
	"github.com/unitedwerise/backend/internal/topics"
	"github.com/unitedwerise/backend/internal/vector"
	"go.uber.org/zap"
)

// Handlers holds the services the HTTP layer dispatches into. Optional
// integrations (email, storage, vectors) may be nil; handlers degrade
// rather than fail when they are.
type Handlers struct {
	auth       *auth.Service
	reputation *reputation.Service
	moderation *moderation.Service
	topics     *topics.Service
	feed       *feed.Service
	security   *security.Service
	news       *news.Service
	civic      *civic.Service
	quests     *quests.Service

	aiClient *ai.Client
	vectors  *vector.Index
	uploader *storage.S3Uploader
	email    *email.EmailService
}

// Config wires services into the handler set
type Config struct {
	Auth       *auth.Service
	Reputation *reputation.Service
	Moderation *moderation.Service
	Topics     *topics.Service
	Feed       *feed.Service
	Security   *security.Service
	News       *news.Service
	Civic      *civic.Service
	Quests     *quests.Service

	AIClient *ai.Client
	Vectors  *vector.Index
	Uploader *storage.S3Uploader
	Email    *email.EmailService
}

// New creates the handler set
func New(cfg Config) *Handlers {
	return &Handlers{
		auth:       cfg.Auth,
		reputation: cfg.Reputation,
		moderation: cfg.Moderation,
		topics:     cfg.Topics,
		feed:       cfg.Feed,
		security:   cfg.Security,
		news:       cfg.News,
		civic:      cfg.Civic,
		quests:     cfg.Quests,
		aiClient:   cfg.AIClient,
		vectors:    cfg.Vectors,
		uploader:   cfg.Uploader,
		email:      cfg.Email,
	}
}

// recordQuestAction advances quest progress without letting quest errors
// surface into the request that triggered them
func (h *Handlers) recordQuestAction(userID string, questType models.QuestType) {
	if h.quests == nil {
		return
	}
	if _, err := h.quests.RecordAction(userID, questType); err != nil &&
		!errors.Is(err, quests.ErrNoQuestForAction) {
		logger.Log.Warn("Quest progress update failed",
			zap.String("user_id", userID),
			zap.String("quest_type", string(questType)),
			zap.Error(err),
		)
	}
}

// newDetachedContext is for background work that outlives the request
func newDetachedContext() context.Context {
	return context.Background()
}
