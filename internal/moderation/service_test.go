package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/reputation"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	_ = logger.Initialize("error", "")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			username TEXT NOT NULL,
			display_name TEXT NOT NULL,
			bio TEXT,
			password_hash TEXT,
			email_verified INTEGER DEFAULT 0,
			google_id TEXT,
			is_admin INTEGER DEFAULT 0,
			totp_secret TEXT,
			totp_enabled INTEGER DEFAULT 0,
			avatar_url TEXT,
			street_address TEXT,
			city TEXT,
			state TEXT,
			zip_code TEXT,
			district_id TEXT,
			reputation_score INTEGER DEFAULT 70,
			reputation_updated_at DATETIME,
			follower_count INTEGER DEFAULT 0,
			following_count INTEGER DEFAULT 0,
			post_count INTEGER DEFAULT 0,
			last_active_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE posts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			photo_url TEXT,
			embedding_status TEXT DEFAULT 'pending',
			moderation_status TEXT DEFAULT 'allowed',
			moderation_reason TEXT,
			flagged_for_review INTEGER DEFAULT 0,
			like_count INTEGER DEFAULT 0,
			comment_count INTEGER DEFAULT 0,
			is_public INTEGER DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE comments (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			parent_id TEXT,
			like_count INTEGER DEFAULT 0,
			is_edited INTEGER DEFAULT 0,
			edited_at DATETIME,
			is_deleted INTEGER DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE reputation_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			post_id TEXT,
			event_type TEXT NOT NULL,
			delta INTEGER NOT NULL,
			reason TEXT,
			score_before INTEGER NOT NULL,
			score_after INTEGER NOT NULL,
			issued_by TEXT,
			created_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	return db
}

// classifierStub returns a fixed classification from a fake Azure OpenAI endpoint
func classifierStub(t *testing.T, category string, confidence float64) *ai.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := fmt.Sprintf(`{"category":%q,"confidence":%g,"reason":"test classification"}`, category, confidence)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return ai.NewClient(server.URL, "test-key", "chat", "embed")
}

func createUserAndPost(t *testing.T, db *gorm.DB, content string) (*models.User, *models.Post) {
	user := &models.User{
		ID:              uuid.New().String(),
		Email:           uuid.New().String() + "@test.com",
		Username:        "u_" + uuid.New().String()[:8],
		DisplayName:     "Test",
		ReputationScore: 70,
	}
	require.NoError(t, db.Create(user).Error)

	post := &models.Post{
		ID:      uuid.New().String(),
		UserID:  user.ID,
		Content: content,
	}
	require.NoError(t, db.Create(post).Error)
	return user, post
}

func TestModeratePostAllowed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, classifierStub(t, "none", 0.99), reputation.NewService(db))
	user, post := createUserAndPost(t, db, "We should fund more road repairs.")

	decision, err := svc.ModeratePost(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, models.ModerationAllowed, decision.Status)
	assert.Equal(t, CategoryNone, decision.Category)

	var stored models.Post
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, models.ModerationAllowed, stored.ModerationStatus)

	// No penalty applied
	var count int64
	db.Model(&models.ReputationEvent{}).Where("user_id = ?", user.ID).Count(&count)
	assert.Zero(t, count)
}

func TestModeratePostBlockedAppliesPenalty(t *testing.T) {
	db := setupTestDB(t)
	repSvc := reputation.NewService(db)
	svc := NewService(db, classifierStub(t, "hate_speech", 0.95), repSvc)
	user, post := createUserAndPost(t, db, "some hateful content")

	decision, err := svc.ModeratePost(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, models.ModerationBlocked, decision.Status)
	assert.Equal(t, CategoryHateSpeech, decision.Category)

	score, err := repSvc.Score(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, score)

	// Re-moderating is idempotent on reputation
	_, err = svc.ModeratePost(context.Background(), post)
	require.NoError(t, err)
	score, _ = repSvc.Score(user.ID)
	assert.Equal(t, 60, score)
}

func TestModeratePostLowConfidenceGoesToReview(t *testing.T) {
	db := setupTestDB(t)
	repSvc := reputation.NewService(db)
	svc := NewService(db, classifierStub(t, "spam", 0.7), repSvc)
	user, post := createUserAndPost(t, db, "check out my mixtape")

	decision, err := svc.ModeratePost(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, models.ModerationReview, decision.Status)

	var stored models.Post
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.True(t, stored.FlaggedForReview)

	// Review content carries no penalty until a human confirms
	score, _ := repSvc.Score(user.ID)
	assert.Equal(t, 70, score)
}

func TestModeratePostVeryLowConfidenceAllowed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, classifierStub(t, "harassment", 0.3), reputation.NewService(db))
	_, post := createUserAndPost(t, db, "borderline but probably fine")

	decision, err := svc.ModeratePost(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationAllowed, decision.Status)
}

func TestAnalyzeFailsOpen(t *testing.T) {
	db := setupTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream down"))
	}))
	t.Cleanup(server.Close)

	svc := NewService(db, ai.NewClient(server.URL, "k", "chat", "embed"), reputation.NewService(db))

	decision, err := svc.Analyze(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationReview, decision.Status)
}

func TestAnalyzeWithoutClassifier(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, reputation.NewService(db))

	decision, err := svc.Analyze(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationAllowed, decision.Status)
}

func TestModerateCommentBlocked(t *testing.T) {
	db := setupTestDB(t)
	repSvc := reputation.NewService(db)
	svc := NewService(db, classifierStub(t, "harassment", 0.9), repSvc)
	user, post := createUserAndPost(t, db, "parent post")

	comment := &models.Comment{
		ID:      uuid.New().String(),
		PostID:  post.ID,
		UserID:  user.ID,
		Content: "targeted abuse",
	}
	require.NoError(t, db.Create(comment).Error)

	decision, err := svc.ModerateComment(context.Background(), comment)
	require.NoError(t, err)

	assert.Equal(t, models.ModerationBlocked, decision.Status)
	assert.True(t, comment.IsDeleted)

	score, _ := repSvc.Score(user.ID)
	assert.Equal(t, 62, score)
}

func TestResolveReview(t *testing.T) {
	db := setupTestDB(t)
	repSvc := reputation.NewService(db)
	svc := NewService(db, nil, repSvc)
	user, post := createUserAndPost(t, db, "flagged content")
	admin, _ := createUserAndPost(t, db, "unused")

	require.NoError(t, db.Model(post).Updates(map[string]interface{}{
		"moderation_status":  models.ModerationReview,
		"flagged_for_review": true,
	}).Error)

	// Approval clears the flag without a penalty
	require.NoError(t, svc.ResolveReview(post, true, CategoryNone, admin.ID))
	assert.Equal(t, models.ModerationAllowed, post.ModerationStatus)
	assert.False(t, post.FlaggedForReview)
	score, _ := repSvc.Score(user.ID)
	assert.Equal(t, 70, score)

	// Rejection blocks and penalizes
	require.NoError(t, svc.ResolveReview(post, false, CategorySpam, admin.ID))
	assert.Equal(t, models.ModerationBlocked, post.ModerationStatus)
	score, _ = repSvc.Score(user.ID)
	assert.Equal(t, 68, score)
}
