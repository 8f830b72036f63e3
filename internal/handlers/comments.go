package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/database"
	apierrors "github.com/unitedwerise/backend/internal/errors"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateComment adds a comment to a post
// POST /api/v1/posts/:id/comments
func (h *Handlers) CreateComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Content  string  `json:"content" binding:"required,min=1,max=1000"`
		ParentID *string `json:"parent_id,omitempty"`
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
	if post.ModerationStatus == models.ModerationBlocked {
		util.RespondNotFound(c, "post")
		return
	}

	// Threading is one level deep. A reply to a reply attaches to the
	// top-level comment instead of nesting further.
	parentID := req.ParentID
	if parentID != nil {
		var parent models.Comment
		err := database.DB.First(&parent, "id = ? AND post_id = ?", *parentID, post.ID).Error
		if err != nil {
			util.RespondNotFound(c, "parent comment")
			return
		}
		if parent.ParentID != nil {
			parentID = parent.ParentID
		}
	}

	comment := models.Comment{
		PostID:   post.ID,
		UserID:   user.ID,
		Content:  req.Content,
		ParentID: parentID,
	}
	if err := database.DB.Create(&comment).Error; err != nil {
		logger.Log.Error("Comment create failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to create comment")
		return
	}

	decision, err := h.moderation.ModerateComment(c.Request.Context(), &comment)
	if err != nil {
		logger.Log.Error("Comment moderation failed", zap.String("comment_id", comment.ID), zap.Error(err))
	}
	if decision != nil && decision.Status == models.ModerationBlocked {
		util.RespondWithAPIError(c, apierrors.ContentBlocked(decision.Reason))
		return
	}

	if err := database.DB.Model(&post).
		UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error; err != nil {
		logger.Log.Warn("Comment count update failed", zap.Error(err))
	}

	h.recordQuestAction(user.ID, models.QuestCreateComment)

	comment.User = *user
	c.JSON(http.StatusCreated, comment)
}

// ListComments returns a post's top-level comments with their replies
// GET /api/v1/posts/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	postID := c.Param("id")
	limit, offset := util.ParsePagination(c, 100)

	var comments []models.Comment
	err := database.DB.
		Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_deleted = ?", false).Order("created_at ASC").Preload("User")
		}).
		Where("post_id = ? AND parent_id IS NULL AND is_deleted = ?", postID, false).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&comments).Error
	if err != nil {
		logger.Log.Error("Comment list failed", zap.String("post_id", postID), zap.Error(err))
		util.RespondInternalError(c, "Failed to list comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"count":    len(comments),
	})
}

// UpdateComment edits a comment's content
// PUT /api/v1/comments/:id
func (h *Handlers) UpdateComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required,min=1,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var comment models.Comment
	if err := database.DB.First(&comment, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "comment")
		return
	}
	if comment.UserID != user.ID {
		util.RespondForbidden(c, "You can only edit your own comments")
		return
	}

	decision, err := h.moderation.Analyze(c.Request.Context(), req.Content)
	if err != nil {
		logger.Log.Error("Comment edit moderation failed", zap.String("comment_id", comment.ID), zap.Error(err))
	}
	if decision != nil && decision.Status == models.ModerationBlocked {
		util.RespondWithAPIError(c, apierrors.ContentBlocked(decision.Reason))
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"content":   req.Content,
		"is_edited": true,
		"edited_at": now,
	}
	if err := database.DB.Model(&comment).Updates(updates).Error; err != nil {
		logger.Log.Error("Comment update failed", zap.String("comment_id", comment.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to update comment")
		return
	}

	c.JSON(http.StatusOK, comment)
}

// DeleteComment removes a comment. The row survives as a tombstone so
// replies keep their anchor.
// DELETE /api/v1/comments/:id
func (h *Handlers) DeleteComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	if err := database.DB.First(&comment, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "comment")
		return
	}
	if comment.UserID != user.ID && !user.IsAdmin {
		util.RespondForbidden(c, "You can only delete your own comments")
		return
	}

	if err := database.DB.Model(&comment).Update("is_deleted", true).Error; err != nil {
		logger.Log.Error("Comment delete failed", zap.String("comment_id", comment.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to delete comment")
		return
	}

	if err := database.DB.Model(&models.Post{}).Where("id = ? AND comment_count > 0", comment.PostID).
		UpdateColumn("comment_count", gorm.Expr("comment_count - 1")).Error; err != nil {
		logger.Log.Warn("Comment count update failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}
