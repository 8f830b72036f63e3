package reputation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
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

	// Create tables manually with SQLite-compatible syntax
	// (GORM AutoMigrate tries to use PostgreSQL-specific features like gen_random_uuid)
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

func createTestUser(t *testing.T, db *gorm.DB, score int) *models.User {
	user := &models.User{
		ID:              uuid.New().String(),
		Email:           uuid.New().String() + "@test.com",
		Username:        "user_" + uuid.New().String()[:8],
		DisplayName:     "Test User",
		ReputationScore: score,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestApplyPenalty(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 70)
	postID := uuid.New().String()

	event, err := svc.ApplyEvent(user.ID, &postID, models.ReputationHateSpeech, "flagged by moderation", nil)
	require.NoError(t, err)

	assert.Equal(t, -10, event.Delta)
	assert.Equal(t, 70, event.ScoreBefore)
	assert.Equal(t, 60, event.ScoreAfter)

	score, err := svc.Score(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, score)
}

func TestScoreClampedAtFloor(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 4)
	postID := uuid.New().String()

	event, err := svc.ApplyEvent(user.ID, &postID, models.ReputationHateSpeech, "", nil)
	require.NoError(t, err)

	// Raw delta is -10 but the score cannot drop below 0
	assert.Equal(t, 0, event.ScoreAfter)
	assert.Equal(t, -4, event.Delta)

	score, _ := svc.Score(user.ID)
	assert.Equal(t, 0, score)
	assert.GreaterOrEqual(t, score, models.MinReputation)
}

func TestScoreClampedAtCeiling(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 99)

	event, err := svc.ApplyEvent(user.ID, nil, models.ReputationCommunityContribution, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 100, event.ScoreAfter)
	assert.Equal(t, 1, event.Delta)
	assert.LessOrEqual(t, event.ScoreAfter, models.MaxReputation)
}

func TestDuplicatePenaltyRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 70)
	postID := uuid.New().String()

	_, err := svc.ApplyEvent(user.ID, &postID, models.ReputationSpam, "", nil)
	require.NoError(t, err)

	// Same penalty type on the same post applies at most once
	_, err = svc.ApplyEvent(user.ID, &postID, models.ReputationSpam, "", nil)
	assert.ErrorIs(t, err, ErrDuplicatePenalty)

	score, _ := svc.Score(user.ID)
	assert.Equal(t, 68, score)

	// A different penalty type on the same post still applies
	_, err = svc.ApplyEvent(user.ID, &postID, models.ReputationHarassment, "", nil)
	assert.NoError(t, err)

	// The same penalty type on a different post still applies
	otherPost := uuid.New().String()
	_, err = svc.ApplyEvent(user.ID, &otherPost, models.ReputationSpam, "", nil)
	assert.NoError(t, err)
}

func TestDailyGainCap(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 50)

	// 2 + 2 = 4 gained, still under the cap
	_, err := svc.ApplyEvent(user.ID, nil, models.ReputationCommunityContribution, "", nil)
	require.NoError(t, err)
	_, err = svc.ApplyEvent(user.ID, nil, models.ReputationCommunityContribution, "", nil)
	require.NoError(t, err)

	// Only 1 of 2 fits under the cap
	event, err := svc.ApplyEvent(user.ID, nil, models.ReputationCommunityContribution, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, event.Delta)

	// Cap exhausted
	_, err = svc.ApplyEvent(user.ID, nil, models.ReputationQualityPost, "", nil)
	assert.ErrorIs(t, err, ErrDailyCapReached)

	score, _ := svc.Score(user.ID)
	assert.Equal(t, 55, score)

	// Penalties are never capped
	postID := uuid.New().String()
	_, err = svc.ApplyEvent(user.ID, &postID, models.ReputationSpam, "", nil)
	assert.NoError(t, err)

	score, _ = svc.Score(user.ID)
	assert.Equal(t, 53, score)
}

func TestAdminAdjustBypassesCap(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 50)
	admin := createTestUser(t, db, 90)

	event, err := svc.AdminAdjust(user.ID, 20, "manual correction", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, event.Delta)
	assert.Equal(t, 70, event.ScoreAfter)
	require.NotNil(t, event.IssuedBy)
	assert.Equal(t, admin.ID, *event.IssuedBy)

	// Still clamped at the ceiling
	event, err = svc.AdminAdjust(user.ID, 50, "too generous", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, event.ScoreAfter)

	// Reward at the ceiling records a zero-delta event
	reward, err := svc.ApplyEvent(user.ID, nil, models.ReputationQualityPost, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reward.Delta)
	assert.Equal(t, 100, reward.ScoreAfter)
}

func TestAdminAdjustHeadroomUntouched(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 50)
	admin := createTestUser(t, db, 90)

	_, err := svc.AdminAdjust(user.ID, 10, "correction", admin.ID)
	require.NoError(t, err)

	// Full daily headroom remains after an admin gain
	event, err := svc.ApplyEvent(user.ID, nil, models.ReputationCommunityContribution, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, event.Delta)
}

func TestRestoreAppeal(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 70)
	admin := createTestUser(t, db, 90)
	postID := uuid.New().String()

	penalty, err := svc.ApplyEvent(user.ID, &postID, models.ReputationHarassment, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 62, penalty.ScoreAfter)

	restored, err := svc.RestoreAppeal(penalty.ID, admin.ID, "appeal upheld")
	require.NoError(t, err)
	assert.Equal(t, 8, restored.Delta)
	assert.Equal(t, 70, restored.ScoreAfter)
	assert.Equal(t, models.ReputationAppealRestored, restored.EventType)

	// Reversing a reward is not a thing
	reward, err := svc.ApplyEvent(user.ID, nil, models.ReputationQualityPost, "", nil)
	require.NoError(t, err)
	_, err = svc.RestoreAppeal(reward.ID, admin.ID, "")
	assert.ErrorIs(t, err, ErrNotPenalty)

	_, err = svc.RestoreAppeal(uuid.New().String(), admin.ID, "")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestHistory(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 70)

	p1 := uuid.New().String()
	p2 := uuid.New().String()
	_, err := svc.ApplyEvent(user.ID, &p1, models.ReputationSpam, "", nil)
	require.NoError(t, err)
	_, err = svc.ApplyEvent(user.ID, &p2, models.ReputationSpam, "", nil)
	require.NoError(t, err)

	events, err := svc.History(user.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = svc.History(user.ID, 1, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestUnknownEventType(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, 70)

	_, err := svc.ApplyEvent(user.ID, nil, models.ReputationEventType("bogus"), "", nil)
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestVisibilityMultiplierTiers(t *testing.T) {
	cases := []struct {
		score    int
		expected float64
	}{
		{100, 1.1},
		{95, 1.1},
		{94, 1.0},
		{50, 1.0},
		{49, 0.9},
		{30, 0.9},
		{29, 0.5},
		{0, 0.5},
	}

	for _, tc := range cases {
		u := models.User{ReputationScore: tc.score}
		assert.Equal(t, tc.expected, u.VisibilityMultiplier(), "score %d", tc.score)
	}
}
