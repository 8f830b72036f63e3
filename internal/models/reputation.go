package models

import (
	"time"

	"gorm.io/gorm"
)

// ReputationEventType identifies a fixed-magnitude reputation adjustment
type ReputationEventType string

const (
	// Penalties (negative, uncapped)
	ReputationHateSpeech         ReputationEventType = "hate_speech"
	ReputationHarassment         ReputationEventType = "harassment"
	ReputationSpam               ReputationEventType = "spam"
	ReputationExcessiveProfanity ReputationEventType = "excessive_profanity"

	// Rewards (positive, subject to the daily gain cap)
	ReputationQualityPost           ReputationEventType = "quality_post"
	ReputationPositiveFeedback      ReputationEventType = "positive_feedback"
	ReputationCommunityContribution ReputationEventType = "community_contribution"

	// Restorative / administrative
	ReputationAppealRestored  ReputationEventType = "appeal_restored"
	ReputationAdminAdjustment ReputationEventType = "admin_adjustment"
)

// ReputationDeltas maps each event type to its fixed score delta.
// Admin adjustments carry their delta on the event row instead.
var ReputationDeltas = map[ReputationEventType]int{
	ReputationHateSpeech:            -10,
	ReputationHarassment:            -8,
	ReputationSpam:                  -2,
	ReputationExcessiveProfanity:    -3,
	ReputationQualityPost:           1,
	ReputationPositiveFeedback:      1,
	ReputationCommunityContribution: 2,
}

// IsPenalty reports whether the event type lowers the score
func (t ReputationEventType) IsPenalty() bool {
	return ReputationDeltas[t] < 0
}

// ReputationEvent is one applied adjustment to a user's reputation score.
// Duplicate penalties on the same (user, post, event_type) are rejected via
// a partial unique index created in database.Migrate.
type ReputationEvent struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	// The post that triggered the event, when there is one
	PostID *string `gorm:"type:uuid;index" json:"post_id,omitempty"`

	EventType ReputationEventType `gorm:"not null" json:"event_type"`
	Delta     int                 `gorm:"not null" json:"delta"` // applied delta after clamping
	Reason    string              `gorm:"type:text" json:"reason"`

	// Scores around the event, for the audit trail
	ScoreBefore int `gorm:"not null" json:"score_before"`
	ScoreAfter  int `gorm:"not null" json:"score_after"`

	// Admin who issued a manual adjustment, if any
	IssuedBy *string `gorm:"index" json:"issued_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (e *ReputationEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateUUID()
	}
	return nil
}
