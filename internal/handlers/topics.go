package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
)

// TrendingTopics returns aggregated discussion topics, optionally scoped
// to a congressional district
// GET /api/v1/topics/trending
func (h *Handlers) TrendingTopics(c *gin.Context) {
	// The route is public; fall back to the caller's district only when
	// a token was presented.
	districtID := c.Query("district")
	if districtID == "" {
		if v, exists := c.Get("user"); exists {
			if user, ok := v.(*models.User); ok {
				districtID = user.DistrictID
			}
		}
	}

	result, err := h.topics.TrendingTopics(c.Request.Context(), districtID)
	if err != nil {
		logger.Log.Error("Trending topics failed", zap.String("district_id", districtID), zap.Error(err))
		util.RespondInternalError(c, "Failed to compute trending topics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topics":   result,
		"district": districtID,
		"count":    len(result),
	})
}
