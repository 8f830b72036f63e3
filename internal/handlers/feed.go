package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/feed"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
)

// GetFeed returns a personalized, probability-sampled feed
// GET /api/v1/feed
func (h *Handlers) GetFeed(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	limit := feed.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > feed.MaxLimit {
		limit = feed.MaxLimit
	}

	posts, err := h.feed.GenerateFeed(c.Request.Context(), user, limit)
	if err != nil {
		logger.Log.Error("Feed generation failed", zap.String("user_id", user.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to generate feed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"count": len(posts),
	})
}
