package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/database"
	apierrors "github.com/unitedwerise/backend/internal/errors"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/storage"
	"github.com/unitedwerise/backend/internal/util"
	"github.com/unitedwerise/backend/internal/vector"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreatePost creates a post, runs moderation, and schedules embedding
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Content  string `json:"content" binding:"required,min=1,max=2000"`
		PhotoURL string `json:"photo_url,omitempty"`
		IsPublic *bool  `json:"is_public,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	post := models.Post{
		UserID:   user.ID,
		Content:  req.Content,
		PhotoURL: req.PhotoURL,
		IsPublic: req.IsPublic == nil || *req.IsPublic,
	}
	if err := database.DB.Create(&post).Error; err != nil {
		logger.Log.Error("Post create failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to create post")
		return
	}

	decision, err := h.moderation.ModeratePost(c.Request.Context(), &post)
	if err != nil {
		logger.Log.Error("Post moderation failed", zap.String("post_id", post.ID), zap.Error(err))
	}
	if decision != nil && decision.Status == models.ModerationBlocked {
		util.RespondWithAPIError(c, apierrors.ContentBlocked(decision.Reason))
		return
	}

	// The counter only moves once moderation lets the post stand
	if err := database.DB.Model(user).
		UpdateColumn("post_count", gorm.Expr("post_count + 1")).Error; err != nil {
		logger.Log.Warn("Post count update failed", zap.Error(err))
	}

	// Embedding happens off the request path; the post stands even if it fails
	go h.embedPost(post.ID, post.UserID, user.DistrictID, post.Content, post.CreatedAt)

	h.recordQuestAction(user.ID, models.QuestCreatePost)

	c.JSON(http.StatusCreated, post)
}

// embedPost generates the post's embedding and upserts it into the vector
// index, tracking the lifecycle on the post row
func (h *Handlers) embedPost(postID, authorID, districtID, content string, createdAt time.Time) {
	if h.aiClient == nil || h.vectors == nil {
		return
	}

	ctx, cancel := context.WithTimeout(newDetachedContext(), 60*time.Second)
	defer cancel()

	markFailed := func(err error) {
		logger.Log.Warn("Post embedding failed", zap.String("post_id", postID), zap.Error(err))
		database.DB.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("embedding_status", models.EmbeddingFailed)
	}

	embedding, err := h.aiClient.Embed(ctx, content)
	if err != nil {
		markFailed(err)
		return
	}

	err = h.vectors.Upsert(ctx, []vector.Point{{
		PostID:     postID,
		AuthorID:   authorID,
		DistrictID: districtID,
		CreatedAt:  createdAt,
		Embedding:  embedding,
	}})
	if err != nil {
		markFailed(err)
		return
	}

	database.DB.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("embedding_status", models.EmbeddingReady)
}

// GetPost returns one post
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	var post models.Post
	err := database.DB.Preload("User").First(&post, "id = ?", c.Param("id")).Error
	if err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.ModerationStatus == models.ModerationBlocked {
		util.RespondNotFound(c, "post")
		return
	}

	c.JSON(http.StatusOK, post)
}

// ListPosts returns recent public posts
// GET /api/v1/posts
func (h *Handlers) ListPosts(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	var posts []models.Post
	err := database.DB.Preload("User").
		Where("is_public = ?", true).
		Where("moderation_status <> ?", models.ModerationBlocked).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to list posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts, "limit": limit, "offset": offset})
}

// DeletePost soft-deletes the caller's own post
// DELETE /api/v1/posts/:id
func (h *Handlers) DeletePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.UserID != userID {
		util.RespondForbidden(c, "You can only delete your own posts")
		return
	}

	if err := database.DB.Delete(&post).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete post")
		return
	}

	if err := database.DB.Model(&models.User{}).
		Where("id = ? AND post_count > 0", userID).
		UpdateColumn("post_count", gorm.Expr("post_count - 1")).Error; err != nil {
		logger.Log.Warn("Post count update failed", zap.Error(err))
	}

	if h.vectors != nil {
		go func(postID string) {
			ctx, cancel := context.WithTimeout(newDetachedContext(), 15*time.Second)
			defer cancel()
			if err := h.vectors.Delete(ctx, []string{postID}); err != nil {
				logger.Log.Warn("Vector delete failed", zap.String("post_id", postID), zap.Error(err))
			}
		}(post.ID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

// LikePost likes a post, once per user
// POST /api/v1/posts/:id/like
func (h *Handlers) LikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	var post models.Post
	if err := database.DB.First(&post, "id = ?", postID).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}

	var existing models.PostLike
	err := database.DB.Where("post_id = ? AND user_id = ?", postID, userID).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Already liked"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondInternalError(c, "Failed to like post")
		return
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.PostLike{PostID: postID, UserID: userID}).Error; err != nil {
			return err
		}
		return tx.Model(&post).UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to like post")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Liked"})
}

// UnlikePost removes a like
// DELETE /api/v1/posts/:id/like
func (h *Handlers) UnlikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Post{}).
			Where("id = ? AND like_count > 0", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondNotFound(c, "like")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "Failed to unlike post")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unliked"})
}

// ReportPost files a moderation report against a post
// POST /api/v1/posts/:id/report
func (h *Handlers) ReportPost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	var req struct {
		Reason      models.ReportReason `json:"reason" binding:"required"`
		Description string              `json:"description,omitempty" binding:"omitempty,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", postID).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}

	report := models.Report{
		ReporterID:   userID,
		TargetType:   models.ReportTargetPost,
		TargetID:     postID,
		TargetUserID: &post.UserID,
		Reason:       req.Reason,
		Description:  req.Description,
	}
	if err := database.DB.Create(&report).Error; err != nil {
		util.RespondInternalError(c, "Failed to file report")
		return
	}

	// Reported posts get flagged so the admin queue picks them up
	if err := database.DB.Model(&post).UpdateColumn("flagged_for_review", true).Error; err != nil {
		logger.Log.Warn("Report flag failed", zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Report filed", "report_id": report.ID})
}

// UploadPhoto stores an image in S3 behind the moderation gate
// POST /api/v1/photos
func (h *Handlers) UploadPhoto(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if h.uploader == nil {
		util.RespondInternalError(c, "Photo uploads are not configured")
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		util.RespondBadRequest(c, "missing photo file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, storage.MaxPhotoSize+1))
	if err != nil {
		util.RespondBadRequest(c, "failed to read photo")
		return
	}

	result, err := h.uploader.UploadPhoto(c.Request.Context(), data, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrPhotoTooLarge):
			util.RespondBadRequest(c, "photo exceeds the 10MB limit")
		case errors.Is(err, storage.ErrUnsupportedType):
			util.RespondBadRequest(c, "unsupported image type")
		default:
			logger.Log.Error("Photo upload failed", zap.Error(err))
			util.RespondInternalError(c, "Failed to upload photo")
		}
		return
	}

	photo := models.Photo{
		UserID:      user.ID,
		URL:         result.URL,
		StorageKey:  result.Key,
		ContentType: result.ContentType,
		FileSize:    result.Size,
	}
	if err := database.DB.Create(&photo).Error; err != nil {
		util.RespondInternalError(c, "Failed to save photo")
		return
	}

	// Vision moderation runs in the background; the photo stays in review
	// until it passes
	go h.moderatePhoto(photo.ID, photo.URL)

	c.JSON(http.StatusCreated, photo)
}

// moderatePhoto asks the vision model about an uploaded image and publishes
// or blocks it
func (h *Handlers) moderatePhoto(photoID, photoURL string) {
	if h.aiClient == nil {
		// Without a moderator, photos pass
		database.DB.Model(&models.Photo{}).Where("id = ?", photoID).
			UpdateColumn("moderation_status", models.ModerationAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(newDetachedContext(), 60*time.Second)
	defer cancel()

	decision, err := h.aiClient.ModerateImage(ctx, photoURL)
	if err != nil {
		logger.Log.Warn("Image moderation failed", zap.String("photo_id", photoID), zap.Error(err))
		return
	}

	status := models.ModerationAllowed
	if !decision.Safe {
		status = models.ModerationBlocked
	}
	database.DB.Model(&models.Photo{}).Where("id = ?", photoID).Updates(map[string]interface{}{
		"moderation_status": status,
		"moderation_reason": decision.Reason,
	})
}
