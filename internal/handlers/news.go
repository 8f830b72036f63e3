package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
)

// ListNews returns aggregated news articles, newest first
// GET /api/v1/news
func (h *Handlers) ListNews(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	articles, err := h.news.List(c.Query("source"), c.Query("topic"), limit, offset)
	if err != nil {
		logger.Log.Error("News list failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to list news")
		return
	}

	// Reading the news counts toward the daily quest for signed-in users
	if userID := util.OptionalUserID(c); userID != "" {
		h.recordQuestAction(userID, models.QuestReadNews)
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"count":    len(articles),
	})
}
