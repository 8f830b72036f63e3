package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
)

// TodayQuests returns the caller's daily quests with progress
// GET /api/v1/quests/today
func (h *Handlers) TodayQuests(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	statuses, err := h.quests.TodayQuests(userID)
	if err != nil {
		logger.Log.Error("Quest lookup failed", zap.String("user_id", userID), zap.Error(err))
		util.RespondInternalError(c, "Failed to load quests")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quests": statuses})
}

// GetStreak returns the caller's quest completion streak
// GET /api/v1/quests/streak
func (h *Handlers) GetStreak(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	streak, err := h.quests.Streak(userID)
	if err != nil {
		logger.Log.Error("Streak lookup failed", zap.String("user_id", userID), zap.Error(err))
		util.RespondInternalError(c, "Failed to load streak")
		return
	}

	c.JSON(http.StatusOK, streak)
}
