package quests

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
		`CREATE TABLE quests (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			requirement_count INTEGER DEFAULT 1,
			reward_delta INTEGER DEFAULT 1,
			active_date DATETIME NOT NULL,
			created_at DATETIME
		)`,
		`CREATE TABLE user_quests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			quest_id TEXT NOT NULL,
			progress INTEGER DEFAULT 0,
			completed INTEGER DEFAULT 0,
			completed_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE user_streaks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			current_streak INTEGER DEFAULT 0,
			longest_streak INTEGER DEFAULT 0,
			last_completed_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}

	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *models.User) {
	db := setupTestDB(t)
	user := &models.User{
		ID:              uuid.New().String(),
		Email:           "quester@example.com",
		Username:        "quester",
		DisplayName:     "Quester",
		ReputationScore: 70,
	}
	require.NoError(t, db.Create(user).Error)

	return NewService(db, reputation.NewService(db)), db, user
}

func TestEnsureDailyQuestsIdempotent(t *testing.T) {
	svc, db, _ := newTestService(t)

	require.NoError(t, svc.EnsureDailyQuests(time.Now()))
	require.NoError(t, svc.EnsureDailyQuests(time.Now()))

	var count int64
	db.Model(&models.Quest{}).Count(&count)
	assert.Equal(t, int64(len(dailyTemplates)), count)
}

func TestTodayQuestsStartAtZero(t *testing.T) {
	svc, _, user := newTestService(t)

	statuses, err := svc.TodayQuests(user.ID)
	require.NoError(t, err)
	require.Len(t, statuses, len(dailyTemplates))

	for _, status := range statuses {
		assert.Equal(t, 0, status.Progress)
		assert.False(t, status.Completed)
	}
}

func TestRecordActionProgressAndCompletion(t *testing.T) {
	svc, db, user := newTestService(t)

	// read_news requires 3 actions
	uq, err := svc.RecordAction(user.ID, models.QuestReadNews)
	require.NoError(t, err)
	assert.Equal(t, 1, uq.Progress)
	assert.False(t, uq.Completed)

	uq, err = svc.RecordAction(user.ID, models.QuestReadNews)
	require.NoError(t, err)
	assert.Equal(t, 2, uq.Progress)

	uq, err = svc.RecordAction(user.ID, models.QuestReadNews)
	require.NoError(t, err)
	assert.Equal(t, 3, uq.Progress)
	assert.True(t, uq.Completed)
	require.NotNil(t, uq.CompletedAt)

	// Completion pays out reputation
	var saved models.User
	require.NoError(t, db.First(&saved, "id = ?", user.ID).Error)
	assert.Equal(t, 71, saved.ReputationScore)
}

func TestRecordActionPastCompletionIsNoOp(t *testing.T) {
	svc, db, user := newTestService(t)

	var uq *models.UserQuest
	var err error
	for i := 0; i < 5; i++ {
		uq, err = svc.RecordAction(user.ID, models.QuestCreatePost)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, uq.Progress)
	assert.True(t, uq.Completed)

	// Only one reward event despite the extra actions
	var events int64
	db.Model(&models.ReputationEvent{}).Where("user_id = ?", user.ID).Count(&events)
	assert.Equal(t, int64(1), events)
}

func TestCompletionAdvancesStreak(t *testing.T) {
	svc, db, user := newTestService(t)

	_, err := svc.RecordAction(user.ID, models.QuestCreatePost)
	require.NoError(t, err)

	streak, err := svc.Streak(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, streak.LongestStreak)

	// Second completion the same day does not double-count
	_, err = svc.RecordAction(user.ID, models.QuestCompleteProfile)
	require.NoError(t, err)
	streak, err = svc.Streak(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)

	// Simulate yesterday's completion, then complete again today
	yesterday := utcDate(time.Now().AddDate(0, 0, -1))
	require.NoError(t, db.Model(&models.UserStreak{}).
		Where("user_id = ?", user.ID).
		Update("last_completed_at", yesterday).Error)

	require.NoError(t, svc.advanceStreak(user.ID, utcDate(time.Now())))
	streak, err = svc.Streak(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 2, streak.LongestStreak)
}

func TestStreakResetsAfterGap(t *testing.T) {
	svc, db, user := newTestService(t)

	_, err := svc.RecordAction(user.ID, models.QuestCreatePost)
	require.NoError(t, err)

	// Last completion three days ago, longest streak 5
	threeDaysAgo := utcDate(time.Now().AddDate(0, 0, -3))
	require.NoError(t, db.Model(&models.UserStreak{}).
		Where("user_id = ?", user.ID).
		Updates(map[string]interface{}{
			"last_completed_at": threeDaysAgo,
			"current_streak":    5,
			"longest_streak":    5,
		}).Error)

	require.NoError(t, svc.advanceStreak(user.ID, utcDate(time.Now())))
	streak, err := svc.Streak(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 5, streak.LongestStreak)
}

func TestStreakForUserWithoutHistory(t *testing.T) {
	svc, _, user := newTestService(t)

	streak, err := svc.Streak(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, streak.CurrentStreak)
	assert.Nil(t, streak.LastCompletedAt)
}

func TestRewardRespectsDailyGainCap(t *testing.T) {
	svc, db, user := newTestService(t)

	// Exhaust the daily gain cap before completing a quest
	repSvc := reputation.NewService(db)
	for i := 0; i < 3; i++ {
		_, err := repSvc.ApplyEvent(user.ID, nil, models.ReputationCommunityContribution, "drained", nil)
		if err != nil {
			break
		}
	}

	uq, err := svc.RecordAction(user.ID, models.QuestCreatePost)
	require.NoError(t, err)
	assert.True(t, uq.Completed)

	// Score gained at most the cap in total
	var saved models.User
	require.NoError(t, db.First(&saved, "id = ?", user.ID).Error)
	assert.LessOrEqual(t, saved.ReputationScore, 70+reputation.DailyGainCap)
}
