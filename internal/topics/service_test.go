package topics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stanceStub fakes Azure OpenAI: chat returns a fixed summary with opposing
// framings, embeddings map the support statement to (1,0) and the oppose
// statement to (0,1)
func stanceStub(t *testing.T) *ai.Client {
	t.Helper()
	server := httptest.NewServer(stanceHandler(t))
	t.Cleanup(server.Close)
	return ai.NewClient(server.URL, "test-key", "chat", "embed")
}

func stanceHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "chat/completions") {
			content := `{"title":"School Funding","summary":"Residents debate the school bond measure.",` +
				`"support_statement":"The district should pass the school bond.",` +
				`"oppose_statement":"The district should reject the school bond."}`
			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"content": content}},
				},
			})
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, len(req.Input))
		for i, text := range req.Input {
			vec := []float32{1, 0}
			if strings.Contains(text, "reject") {
				vec = []float32{0, 1}
			}
			data[i] = map[string]interface{}{"embedding": vec, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}
}

func TestAnalyzeClusterStanceSplit(t *testing.T) {
	svc := NewService(nil, stanceStub(t))

	// Three posts lean support, two lean oppose, one sits between the framings
	cluster := Cluster{
		Items: []Item{
			{PostID: "s1", Embedding: []float32{0.9, 0.1}},
			{PostID: "s2", Embedding: []float32{0.8, 0.2}},
			{PostID: "s3", Embedding: []float32{0.95, 0.05}},
			{PostID: "o1", Embedding: []float32{0.1, 0.9}},
			{PostID: "o2", Embedding: []float32{0.2, 0.8}},
			{PostID: "n1", Embedding: []float32{0.7, 0.7}},
		},
	}

	topic, err := svc.analyzeCluster(context.Background(), cluster)
	require.NoError(t, err)

	assert.Equal(t, "School Funding", topic.Title)
	assert.Equal(t, 6, topic.PostCount)
	assert.Equal(t, 3, topic.SupportCount)
	assert.Equal(t, 2, topic.OpposeCount)
	assert.Equal(t, 1, topic.NeutralCount)

	// Stance counts always sum to the cluster total
	assert.Equal(t, topic.PostCount, topic.SupportCount+topic.OpposeCount+topic.NeutralCount)
	assert.Len(t, topic.Stances, topic.PostCount)
	assert.Len(t, topic.PostIDs, topic.PostCount)

	assert.Equal(t, StanceSupport, topic.Stances["s1"])
	assert.Equal(t, StanceOppose, topic.Stances["o1"])
	assert.Equal(t, StanceNeutral, topic.Stances["n1"])

	// Percentages cover the whole cluster
	assert.InDelta(t, 100.0, topic.SupportPercent+topic.OpposePercent+topic.NeutralPercent, 0.2)
	assert.InDelta(t, 50.0, topic.SupportPercent, 0.01)
	assert.InDelta(t, 33.3, topic.OpposePercent, 0.01)
	assert.InDelta(t, 16.7, topic.NeutralPercent, 0.01)

	// Stance vectors are the mean embedding of each side
	require.Len(t, topic.SupportVector, 2)
	assert.InDelta(t, (0.9+0.8+0.95)/3, topic.SupportVector[0], 1e-4)
	assert.InDelta(t, (0.1+0.2+0.05)/3, topic.SupportVector[1], 1e-4)
	require.Len(t, topic.OpposeVector, 2)
	assert.InDelta(t, 0.15, topic.OpposeVector[0], 1e-4)
	assert.InDelta(t, 0.85, topic.OpposeVector[1], 1e-4)
}

func TestAnalyzeClusterOneSidedHasNoOpposeVector(t *testing.T) {
	svc := NewService(nil, stanceStub(t))

	topic, err := svc.analyzeCluster(context.Background(), Cluster{
		Items: []Item{
			{PostID: "s1", Embedding: []float32{1, 0}},
			{PostID: "s2", Embedding: []float32{0.9, 0.1}},
			{PostID: "s3", Embedding: []float32{0.95, 0.05}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, topic.SupportCount)
	assert.Zero(t, topic.OpposeCount)
	assert.NotEmpty(t, topic.SupportVector)
	assert.Empty(t, topic.OpposeVector)
}

func TestAnalyzeClusterStancePropertyAcrossSizes(t *testing.T) {
	svc := NewService(nil, stanceStub(t))

	for _, size := range []int{3, 7, 13, 31} {
		items := make([]Item, size)
		for i := range items {
			if i%3 == 0 {
				items[i] = Item{PostID: itemID("o", i), Embedding: []float32{0, 1}}
			} else {
				items[i] = Item{PostID: itemID("s", i), Embedding: []float32{1, 0}}
			}
		}

		topic, err := svc.analyzeCluster(context.Background(), Cluster{Items: items})
		require.NoError(t, err)

		assert.Equal(t, size, topic.PostCount)
		assert.Equal(t, size, topic.SupportCount+topic.OpposeCount+topic.NeutralCount)
		assert.InDelta(t, 100.0, topic.SupportPercent+topic.OpposePercent+topic.NeutralPercent, 0.2)
	}
}

func TestAnalyzeClusterMissingStatements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"title":"t","summary":"s"}`}},
			},
		})
	}))
	t.Cleanup(server.Close)

	svc := NewService(nil, ai.NewClient(server.URL, "k", "chat", "embed"))
	_, err := svc.analyzeCluster(context.Background(), Cluster{
		Items: []Item{{PostID: "a", Embedding: []float32{1}}},
	})
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(1, 0))
	assert.Equal(t, 50.0, percent(1, 2))
	assert.Equal(t, 33.3, percent(1, 3))
	assert.Equal(t, 66.7, percent(2, 3))
	assert.Equal(t, 100.0, percent(5, 5))
}

func itemID(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	_ = logger.Initialize("error", "")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	// Create tables manually with SQLite-compatible syntax
	// (GORM AutoMigrate tries to use PostgreSQL-specific features like gen_random_uuid)
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
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}

	return db
}

func TestTrendingTopicsWithoutAIClient(t *testing.T) {
	_ = logger.Initialize("error", "")

	svc := NewService(nil, nil)
	topics, err := svc.TrendingTopics(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestTrendingTopicsLocalCache(t *testing.T) {
	db := setupTestDB(t)

	user := &models.User{
		ID:          uuid.New().String(),
		Email:       "topical@example.com",
		Username:    "topical",
		DisplayName: "Topical",
	}
	require.NoError(t, db.Create(user).Error)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Post{
			ID:       uuid.New().String(),
			UserID:   user.ID,
			Content:  "The school bond deserves support.",
			IsPublic: true,
		}).Error)
	}

	var calls int32
	handler := stanceHandler(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	svc := NewService(db, ai.NewClient(server.URL, "test-key", "chat", "embed"))

	first, err := svc.TrendingTopics(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	afterFirst := atomic.LoadInt32(&calls)
	require.Greater(t, afterFirst, int32(0))

	// The second request is served from the in-process copy without
	// touching the upstream again
	second, err := svc.TrendingTopics(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, afterFirst, atomic.LoadInt32(&calls))

	// Invalidation forces a recompute
	svc.InvalidateCache(context.Background(), "")
	_, err = svc.TrendingTopics(context.Background(), "")
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(&calls), afterFirst)
}
