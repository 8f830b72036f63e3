package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/civic"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetProfile returns a user's public profile
// GET /api/v1/users/:id
func (h *Handlers) GetProfile(c *gin.Context) {
	var user models.User
	if err := database.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's profile fields
// PATCH /api/v1/users/me
func (h *Handlers) UpdateProfile(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		DisplayName   *string `json:"display_name,omitempty" binding:"omitempty,min=1,max=50"`
		Bio           *string `json:"bio,omitempty" binding:"omitempty,max=500"`
		AvatarURL     *string `json:"avatar_url,omitempty"`
		StreetAddress *string `json:"street_address,omitempty"`
		City          *string `json:"city,omitempty"`
		State         *string `json:"state,omitempty"`
		ZipCode       *string `json:"zip_code,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	addressChanged := false
	if req.StreetAddress != nil {
		updates["street_address"] = *req.StreetAddress
		addressChanged = true
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.State != nil {
		updates["state"] = *req.State
	}
	if req.ZipCode != nil {
		updates["zip_code"] = *req.ZipCode
	}
	if len(updates) == 0 {
		util.RespondBadRequest(c, "no fields to update")
		return
	}

	if err := database.DB.Model(user).Updates(updates).Error; err != nil {
		logger.Log.Error("Profile update failed", zap.String("user_id", user.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to update profile")
		return
	}

	// A fresh address re-resolves the district in the background
	if addressChanged && h.civic != nil {
		go func(userID string) {
			if _, err := h.civic.RefreshUserDistrict(newDetachedContext(), userID); err != nil &&
				!errors.Is(err, civic.ErrNoAddress) {
				logger.Log.Warn("District refresh failed", zap.String("user_id", userID), zap.Error(err))
			}
		}(user.ID)
	}

	if h.profileComplete(user, updates) {
		h.recordQuestAction(user.ID, models.QuestCompleteProfile)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated"})
}

// GetDistrict returns the user's district and elected officials
// GET /api/v1/users/me/district
func (h *Handlers) GetDistrict(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if h.civic == nil {
		util.RespondInternalError(c, "District lookup is not configured")
		return
	}

	info, err := h.civic.RefreshUserDistrict(c.Request.Context(), user.ID)
	if err != nil {
		if errors.Is(err, civic.ErrNoAddress) {
			util.RespondBadRequest(c, "Add a street address to your profile first")
			return
		}
		if errors.Is(err, civic.ErrAddressNotFound) {
			util.RespondBadRequest(c, "Your address could not be located")
			return
		}
		logger.Log.Error("District lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		util.RespondInternalError(c, "District lookup failed")
		return
	}

	c.JSON(http.StatusOK, info)
}

// FollowUser makes the authenticated user follow :id
// POST /api/v1/users/:id/follow
func (h *Handlers) FollowUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")
	if targetID == userID {
		util.RespondBadRequest(c, "cannot follow yourself")
		return
	}

	var target models.User
	if err := database.DB.First(&target, "id = ?", targetID).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}

	var existing models.Follow
	err := database.DB.Where("follower_id = ? AND following_id = ?", userID, targetID).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Already following"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondInternalError(c, "Failed to follow user")
		return
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Follow{FollowerID: userID, FollowingID: targetID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", targetID).
			UpdateColumn("follower_count", gorm.Expr("follower_count + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("following_count", gorm.Expr("following_count + 1")).Error
	})
	if err != nil {
		logger.Log.Error("Follow failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to follow user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Following"})
}

// UnfollowUser removes a follow edge
// DELETE /api/v1/users/:id/follow
func (h *Handlers) UnfollowUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("follower_id = ? AND following_id = ?", userID, targetID).
			Delete(&models.Follow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&models.User{}).Where("id = ? AND follower_count > 0", targetID).
			UpdateColumn("follower_count", gorm.Expr("follower_count - 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ? AND following_count > 0", userID).
			UpdateColumn("following_count", gorm.Expr("following_count - 1")).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondNotFound(c, "follow")
		return
	}
	if err != nil {
		logger.Log.Error("Unfollow failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to unfollow user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed"})
}

// ListFollowers returns users following :id
// GET /api/v1/users/:id/followers
func (h *Handlers) ListFollowers(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	var users []models.User
	err := database.DB.
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.following_id = ? AND follows.deleted_at IS NULL", c.Param("id")).
		Order("follows.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to list followers")
		return
	}

	c.JSON(http.StatusOK, gin.H{"followers": users, "limit": limit, "offset": offset})
}

// ListFollowing returns users :id follows
// GET /api/v1/users/:id/following
func (h *Handlers) ListFollowing(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	var users []models.User
	err := database.DB.
		Joins("JOIN follows ON follows.following_id = users.id").
		Where("follows.follower_id = ? AND follows.deleted_at IS NULL", c.Param("id")).
		Order("follows.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to list following")
		return
	}

	c.JSON(http.StatusOK, gin.H{"following": users, "limit": limit, "offset": offset})
}

// BlockUser blocks another user
// POST /api/v1/users/:id/block
func (h *Handlers) BlockUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")
	if targetID == userID {
		util.RespondBadRequest(c, "cannot block yourself")
		return
	}

	var existing models.UserBlock
	err := database.DB.Where("blocker_id = ? AND blocked_id = ?", userID, targetID).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Already blocked"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondInternalError(c, "Failed to block user")
		return
	}

	if err := database.DB.Create(&models.UserBlock{BlockerID: userID, BlockedID: targetID}).Error; err != nil {
		util.RespondInternalError(c, "Failed to block user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Blocked"})
}

// UnblockUser removes a block
// DELETE /api/v1/users/:id/block
func (h *Handlers) UnblockUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	result := database.DB.Where("blocker_id = ? AND blocked_id = ?", userID, c.Param("id")).
		Delete(&models.UserBlock{})
	if result.Error != nil {
		util.RespondInternalError(c, "Failed to unblock user")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "block")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unblocked"})
}

// ListUserPosts returns a user's public posts
// GET /api/v1/users/:id/posts
func (h *Handlers) ListUserPosts(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 100)

	var posts []models.Post
	err := database.DB.Preload("User").
		Where("user_id = ?", c.Param("id")).
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

// GetReputation returns a user's score and visibility tier
// GET /api/v1/users/:id/reputation
func (h *Handlers) GetReputation(c *gin.Context) {
	var user models.User
	if err := database.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reputation_score":      user.ReputationScore,
		"visibility_multiplier": user.VisibilityMultiplier(),
	})
}

// profileComplete reports whether this update leaves the profile fully
// filled in, which is what the complete_profile quest asks for
func (h *Handlers) profileComplete(user *models.User, updates map[string]interface{}) bool {
	get := func(key, current string) string {
		if v, ok := updates[key].(string); ok {
			return v
		}
		return current
	}
	return get("display_name", user.DisplayName) != "" &&
		get("bio", user.Bio) != "" &&
		get("street_address", user.StreetAddress) != "" &&
		get("zip_code", user.ZipCode) != ""
}
