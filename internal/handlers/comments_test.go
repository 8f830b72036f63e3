package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/moderation"
	"github.com/unitedwerise/backend/internal/reputation"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupHandlerDB creates an in-memory SQLite database and points the
// package-global connection at it
func setupHandlerDB(t *testing.T) *gorm.DB {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE users (
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
		)`,
		`CREATE TABLE posts (
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
		)`,
		`CREATE TABLE comments (
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
		)`,
		`CREATE TABLE reputation_events (
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
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}

	database.DB = db
	t.Cleanup(func() { database.DB = nil })
	return db
}

// cleanClassifier answers every moderation call with "no violation"
func cleanClassifier(t *testing.T) *ai.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"category":"none","confidence":0.99,"reason":"clean"}`}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return ai.NewClient(server.URL, "test-key", "chat", "embed")
}

func newCommentRouter(t *testing.T, db *gorm.DB, user *models.User) *gin.Engine {
	t.Helper()
	h := New(Config{
		Moderation: moderation.NewService(db, cleanClassifier(t), reputation.NewService(db)),
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user", user)
		c.Set("user_id", user.ID)
	})
	r.POST("/posts/:id/comments", h.CreateComment)
	r.GET("/posts/:id/comments", h.ListComments)
	r.PUT("/comments/:id", h.UpdateComment)
	r.DELETE("/comments/:id", h.DeleteComment)
	return r
}

func createHandlerUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		ID:              uuid.New().String(),
		Email:           uuid.New().String() + "@test.com",
		Username:        "u_" + uuid.New().String()[:8],
		DisplayName:     "Test",
		ReputationScore: 70,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createHandlerPost(t *testing.T, db *gorm.DB, userID string) *models.Post {
	t.Helper()
	post := &models.Post{
		ID:      uuid.New().String(),
		UserID:  userID,
		Content: "City council votes on the transit plan tomorrow.",
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func postJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCommentIncrementsCount(t *testing.T) {
	db := setupHandlerDB(t)
	user := createHandlerUser(t, db)
	post := createHandlerPost(t, db, user.ID)
	r := newCommentRouter(t, db, user)

	w := postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "The express line would cut my commute in half."})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, post.ID, created.PostID)
	assert.Nil(t, created.ParentID)

	var stored models.Post
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, 1, stored.CommentCount)
}

func TestCreateCommentFlattensDeepReplies(t *testing.T) {
	db := setupHandlerDB(t)
	user := createHandlerUser(t, db)
	post := createHandlerPost(t, db, user.ID)
	r := newCommentRouter(t, db, user)

	w := postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "Top-level comment."})
	require.Equal(t, http.StatusCreated, w.Code)
	var top models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))

	w = postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "A reply.", "parent_id": top.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var reply models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, top.ID, *reply.ParentID)

	// A reply to a reply lands under the top-level comment
	w = postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "Reply to the reply.", "parent_id": reply.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var deep models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deep))
	require.NotNil(t, deep.ParentID)
	assert.Equal(t, top.ID, *deep.ParentID)
}

func TestCreateCommentParentFromOtherPostRejected(t *testing.T) {
	db := setupHandlerDB(t)
	user := createHandlerUser(t, db)
	post := createHandlerPost(t, db, user.ID)
	other := createHandlerPost(t, db, user.ID)
	r := newCommentRouter(t, db, user)

	w := postJSON(r, http.MethodPost, "/posts/"+other.ID+"/comments",
		gin.H{"content": "Anchor comment."})
	require.Equal(t, http.StatusCreated, w.Code)
	var anchor models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &anchor))

	w = postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "Cross-post reply.", "parent_id": anchor.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCommentsExcludesDeleted(t *testing.T) {
	db := setupHandlerDB(t)
	user := createHandlerUser(t, db)
	post := createHandlerPost(t, db, user.ID)
	r := newCommentRouter(t, db, user)

	for i := 0; i < 3; i++ {
		w := postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
			gin.H{"content": fmt.Sprintf("Comment number %d.", i)})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	var victim models.Comment
	require.NoError(t, db.First(&victim).Error)
	w := postJSON(r, http.MethodDelete, "/comments/"+victim.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, http.MethodGet, "/posts/"+post.ID+"/comments", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Comments []models.Comment `json:"comments"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	for _, comment := range resp.Comments {
		assert.NotEqual(t, victim.ID, comment.ID)
	}

	var stored models.Post
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, 2, stored.CommentCount)
}

func TestUpdateCommentMarksEdited(t *testing.T) {
	db := setupHandlerDB(t)
	user := createHandlerUser(t, db)
	post := createHandlerPost(t, db, user.ID)
	r := newCommentRouter(t, db, user)

	w := postJSON(r, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "Orignal text with a typo."})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))

	w = postJSON(r, http.MethodPut, "/comments/"+comment.ID,
		gin.H{"content": "Original text, fixed."})
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Comment
	require.NoError(t, db.First(&stored, "id = ?", comment.ID).Error)
	assert.Equal(t, "Original text, fixed.", stored.Content)
	assert.True(t, stored.IsEdited)
	assert.NotNil(t, stored.EditedAt)
}

func TestUpdateCommentOwnershipEnforced(t *testing.T) {
	db := setupHandlerDB(t)
	author := createHandlerUser(t, db)
	post := createHandlerPost(t, db, author.ID)

	authorRouter := newCommentRouter(t, db, author)
	w := postJSON(authorRouter, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "My comment."})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))

	stranger := createHandlerUser(t, db)
	strangerRouter := newCommentRouter(t, db, stranger)

	w = postJSON(strangerRouter, http.MethodPut, "/comments/"+comment.ID,
		gin.H{"content": "Hijacked."})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(strangerRouter, http.MethodDelete, "/comments/"+comment.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminCanDeleteAnyComment(t *testing.T) {
	db := setupHandlerDB(t)
	author := createHandlerUser(t, db)
	post := createHandlerPost(t, db, author.ID)

	authorRouter := newCommentRouter(t, db, author)
	w := postJSON(authorRouter, http.MethodPost, "/posts/"+post.ID+"/comments",
		gin.H{"content": "Soon to be removed."})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))

	admin := createHandlerUser(t, db)
	admin.IsAdmin = true
	require.NoError(t, db.Model(admin).Update("is_admin", true).Error)
	adminRouter := newCommentRouter(t, db, admin)

	w = postJSON(adminRouter, http.MethodDelete, "/comments/"+comment.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Comment
	require.NoError(t, db.First(&stored, "id = ?", comment.ID).Error)
	assert.True(t, stored.IsDeleted)
}
