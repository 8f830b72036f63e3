package handlers

import (
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/moderation"
	"github.com/unitedwerise/backend/internal/reputation"
	"github.com/unitedwerise/backend/internal/security"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminDashboard returns platform-level counts for the admin console
// GET /api/v1/admin/dashboard
func (h *Handlers) AdminDashboard(c *gin.Context) {
	var stats struct {
		Users          int64 `json:"users"`
		Posts          int64 `json:"posts"`
		PendingReports int64 `json:"pending_reports"`
		FlaggedPosts   int64 `json:"flagged_posts"`
		ActiveIPBlocks int64 `json:"active_ip_blocks"`
	}

	database.DB.Model(&models.User{}).Count(&stats.Users)
	database.DB.Model(&models.Post{}).Count(&stats.Posts)
	database.DB.Model(&models.Report{}).
		Where("status = ?", models.ReportStatusPending).Count(&stats.PendingReports)
	database.DB.Model(&models.Post{}).
		Where("flagged_for_review = ? OR moderation_status = ?", true, models.ModerationReview).
		Count(&stats.FlaggedPosts)
	database.DB.Model(&models.IPBlock{}).
		Where("is_active = ?", true).Count(&stats.ActiveIPBlocks)

	c.JSON(http.StatusOK, stats)
}

// ModerationQueue returns posts awaiting human review plus open reports
// GET /api/v1/admin/moderation/queue
func (h *Handlers) ModerationQueue(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	var posts []models.Post
	err := database.DB.Preload("User").
		Where("flagged_for_review = ? OR moderation_status = ?", true, models.ModerationReview).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	if err != nil {
		logger.Log.Error("Moderation queue query failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to load moderation queue")
		return
	}

	var reports []models.Report
	err = database.DB.Preload("Reporter").
		Where("status IN ?", []models.ReportStatus{models.ReportStatusPending, models.ReportStatusReviewing}).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&reports).Error
	if err != nil {
		logger.Log.Error("Report queue query failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to load reports")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":   posts,
		"reports": reports,
	})
}

// ResolveReview approves or blocks a post that moderation flagged
// POST /api/v1/admin/moderation/posts/:id/resolve
func (h *Handlers) ResolveReview(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Approved bool   `json:"approved"`
		Category string `json:"category,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}

	category := moderation.Category(req.Category)
	if category == "" {
		category = moderation.CategoryNone
	}

	if err := h.moderation.ResolveReview(&post, req.Approved, category, admin.ID); err != nil {
		logger.Log.Error("Review resolution failed", zap.String("post_id", post.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to resolve review")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action":   "resolve_review",
		"post_id":  post.ID,
		"approved": req.Approved,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Review resolved", "post": post})
}

// ResolveReport closes a user report, optionally acting on the content
// POST /api/v1/admin/reports/:id/resolve
func (h *Handlers) ResolveReport(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Dismiss     bool   `json:"dismiss"`
		ActionTaken string `json:"action_taken,omitempty"`
		Category    string `json:"category,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var report models.Report
	if err := database.DB.First(&report, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "report")
		return
	}
	if report.Status == models.ReportStatusResolved || report.Status == models.ReportStatusDismissed {
		util.RespondConflict(c, "report")
		return
	}

	status := models.ReportStatusResolved
	if req.Dismiss {
		status = models.ReportStatusDismissed
	}

	// Upholding a post report runs the same resolution path moderation
	// review uses, so reputation penalties stay consistent.
	if !req.Dismiss && report.TargetType == models.ReportTargetPost {
		var post models.Post
		if err := database.DB.First(&post, "id = ?", report.TargetID).Error; err == nil {
			category := moderation.Category(req.Category)
			if category == "" {
				category = moderation.CategoryNone
			}
			if err := h.moderation.ResolveReview(&post, false, category, admin.ID); err != nil {
				logger.Log.Error("Report enforcement failed", zap.String("report_id", report.ID), zap.Error(err))
				util.RespondInternalError(c, "Failed to act on reported post")
				return
			}
		}
	}

	updates := map[string]interface{}{
		"status":       status,
		"moderator_id": admin.ID,
		"action_taken": req.ActionTaken,
	}
	if err := database.DB.Model(&report).Updates(updates).Error; err != nil {
		logger.Log.Error("Report update failed", zap.String("report_id", report.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to resolve report")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action":    "resolve_report",
		"report_id": report.ID,
		"status":    string(status),
	})

	c.JSON(http.StatusOK, report)
}

// AdjustReputation applies a manual reputation change
// POST /api/v1/admin/users/:id/reputation
func (h *Handlers) AdjustReputation(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Delta  int    `json:"delta" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	event, err := h.reputation.AdminAdjust(c.Param("id"), req.Delta, req.Reason, admin.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "user")
			return
		}
		logger.Log.Error("Reputation adjustment failed", zap.String("user_id", c.Param("id")), zap.Error(err))
		util.RespondInternalError(c, "Failed to adjust reputation")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action":  "reputation_adjust",
		"user_id": c.Param("id"),
		"delta":   req.Delta,
	})

	c.JSON(http.StatusOK, event)
}

// RestoreReputationAppeal reverses a reputation penalty after a successful appeal
// POST /api/v1/admin/reputation/events/:id/restore
func (h *Handlers) RestoreReputationAppeal(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	event, err := h.reputation.RestoreAppeal(c.Param("id"), admin.ID, req.Reason)
	if err != nil {
		if errors.Is(err, reputation.ErrEventNotFound) {
			util.RespondNotFound(c, "reputation event")
			return
		}
		logger.Log.Error("Appeal restoration failed", zap.String("event_id", c.Param("id")), zap.Error(err))
		util.RespondInternalError(c, "Failed to restore appeal")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action":   "appeal_restore",
		"event_id": c.Param("id"),
	})

	c.JSON(http.StatusOK, event)
}

// ReputationHistory lists a user's reputation events for admin review
// GET /api/v1/admin/users/:id/reputation
func (h *Handlers) ReputationHistory(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	events, err := h.reputation.History(c.Param("id"), limit, offset)
	if err != nil {
		logger.Log.Error("Reputation history failed", zap.String("user_id", c.Param("id")), zap.Error(err))
		util.RespondInternalError(c, "Failed to load reputation history")
		return
	}

	score, err := h.reputation.Score(c.Param("id"))
	if err != nil {
		logger.Log.Error("Reputation score lookup failed", zap.String("user_id", c.Param("id")), zap.Error(err))
		util.RespondInternalError(c, "Failed to load reputation score")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"score":  score,
		"events": events,
	})
}

// SecurityEvents lists recorded security events
// GET /api/v1/admin/security/events
func (h *Handlers) SecurityEvents(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 200)

	events, err := h.security.ListEvents(c.Query("type"), limit, offset)
	if err != nil {
		logger.Log.Error("Security event list failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to list security events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// ListIPBlocks lists IP blocks, newest first
// GET /api/v1/admin/security/blocks
func (h *Handlers) ListIPBlocks(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 200)

	blocks, err := h.security.ListBlocks(limit, offset)
	if err != nil {
		logger.Log.Error("IP block list failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to list IP blocks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// CreateIPBlock blocks an IP address manually
// POST /api/v1/admin/security/blocks
func (h *Handlers) CreateIPBlock(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		IPAddress     string `json:"ip_address" binding:"required"`
		Reason        string `json:"reason" binding:"required"`
		DurationHours int    `json:"duration_hours,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if !validBlockTarget(req.IPAddress) {
		util.RespondBadRequest(c, "ip_address must be an IP address or CIDR range")
		return
	}

	block, err := h.security.BlockIP(req.IPAddress, req.Reason, admin.ID,
		time.Duration(req.DurationHours)*time.Hour)
	if err != nil {
		if errors.Is(err, security.ErrBlockExists) {
			util.RespondConflict(c, "IP block")
			return
		}
		logger.Log.Error("IP block failed", zap.String("ip", req.IPAddress), zap.Error(err))
		util.RespondInternalError(c, "Failed to block IP")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "warning", models.JSONMap{
		"action": "ip_block",
		"ip":     req.IPAddress,
	})

	c.JSON(http.StatusCreated, block)
}

// validBlockTarget accepts a single address or a CIDR range
func validBlockTarget(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}

// UserRiskScore reports a user's current security risk score
// GET /api/v1/admin/users/:id/risk
func (h *Handlers) UserRiskScore(c *gin.Context) {
	userID := c.Param("id")

	risk, err := h.security.RiskScoreForUser(userID)
	if err != nil {
		logger.Log.Error("User risk score failed", zap.String("user_id", userID), zap.Error(err))
		util.RespondInternalError(c, "Failed to compute risk score")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"risk_score": risk,
	})
}

// DeleteIPBlock lifts an IP block
// DELETE /api/v1/admin/security/blocks/:id
func (h *Handlers) DeleteIPBlock(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	if err := h.security.UnblockIP(c.Param("id")); err != nil {
		if errors.Is(err, security.ErrBlockNotFound) {
			util.RespondNotFound(c, "IP block")
			return
		}
		logger.Log.Error("IP unblock failed", zap.String("block_id", c.Param("id")), zap.Error(err))
		util.RespondInternalError(c, "Failed to unblock IP")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action":   "ip_unblock",
		"block_id": c.Param("id"),
	})

	c.JSON(http.StatusOK, gin.H{"message": "IP block removed"})
}

// RefreshTopics drops the trending topic cache so the next request recomputes
// POST /api/v1/admin/topics/refresh
func (h *Handlers) RefreshTopics(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	districtID := c.Query("district")
	h.topics.InvalidateCache(c.Request.Context(), districtID)

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action":   "topics_refresh",
		"district": districtID,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Topic cache invalidated"})
}

// RefreshNews triggers a news fetch outside the background schedule
// POST /api/v1/admin/news/refresh
func (h *Handlers) RefreshNews(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	stored, err := h.news.Refresh(c.Request.Context(), nil)
	if err != nil {
		logger.Log.Error("News refresh failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to refresh news")
		return
	}

	h.recordSecurityEvent(c, models.SecurityAdminAction, &admin.ID, "info", models.JSONMap{
		"action": "news_refresh",
		"stored": stored,
	})

	c.JSON(http.StatusOK, gin.H{"stored": stored})
}
