package models

import (
	"time"

	"gorm.io/gorm"
)

// QuestType identifies the action a daily quest asks for
type QuestType string

const (
	QuestReadNews        QuestType = "read_news"
	QuestCreatePost      QuestType = "create_post"
	QuestCreateComment   QuestType = "create_comment"
	QuestCompleteProfile QuestType = "complete_profile"
)

// Quest is a daily civic engagement task. One row per (type, active_date).
type Quest struct {
	ID string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`

	Type        QuestType `gorm:"not null;index" json:"type"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`

	// How many actions complete the quest
	RequirementCount int `gorm:"default:1" json:"requirement_count"`

	// Reputation reward on completion (subject to the daily gain cap)
	RewardDelta int `gorm:"default:1" json:"reward_delta"`

	// Day the quest is active, truncated to UTC date
	ActiveDate time.Time `gorm:"not null;index" json:"active_date"`

	CreatedAt time.Time `json:"created_at"`
}

// UserQuest tracks a user's progress on a quest. Unique per (user, quest).
type UserQuest struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID  string `gorm:"not null;index" json:"user_id"`
	User    User   `gorm:"foreignKey:UserID" json:"-"`
	QuestID string `gorm:"not null;index" json:"quest_id"`
	Quest   Quest  `gorm:"foreignKey:QuestID" json:"quest,omitempty"`

	Progress    int        `gorm:"default:0" json:"progress"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserStreak tracks consecutive days with at least one completed quest
type UserStreak struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"not null;uniqueIndex" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	CurrentStreak int `gorm:"default:0" json:"current_streak"`
	LongestStreak int `gorm:"default:0" json:"longest_streak"`

	// UTC date of the most recent completion
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *Quest) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = generateUUID()
	}
	return nil
}

func (uq *UserQuest) BeforeCreate(tx *gorm.DB) error {
	if uq.ID == "" {
		uq.ID = generateUUID()
	}
	return nil
}

func (s *UserStreak) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	return nil
}
