package models

import (
	"time"

	"gorm.io/gorm"
)

// NewsArticle is a headline aggregated from an external news API.
// URLHash deduplicates across providers that return the same story.
type NewsArticle struct {
	ID string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`

	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	URL         string `gorm:"type:text;not null" json:"url"`
	URLHash     string `gorm:"uniqueIndex;not null" json:"-"` // sha256 of normalized URL
	ImageURL    string `json:"image_url,omitempty"`

	Source    string `gorm:"index" json:"source"`     // publisher, e.g. "Reuters"
	SourceAPI string `gorm:"index" json:"source_api"` // "newsapi" or "thenewsapi"
	Author    string `json:"author,omitempty"`

	Topics StringArray `gorm:"type:text[]" json:"topics"` // keywords the article matched

	PublishedAt time.Time `gorm:"index" json:"published_at"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *NewsArticle) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = generateUUID()
	}
	return nil
}
