package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// perKeywordLimit caps how many articles each provider returns per keyword
	perKeywordLimit = 20

	// retention is how long stored articles are kept before pruning
	retention = 7 * 24 * time.Hour
)

// DefaultKeywords are the civic topics the aggregator tracks
var DefaultKeywords = []string{
	"local government", "city council", "school board",
	"election", "ballot measure", "public transit",
}

// Service aggregates headlines from the configured providers into the
// news_articles table
type Service struct {
	db        *gorm.DB
	providers []Provider
}

// NewService creates a news service over the given providers
func NewService(db *gorm.DB, providers ...Provider) *Service {
	return &Service{db: db, providers: providers}
}

// Refresh pulls headlines for every keyword from every provider and stores
// the new ones. Stories already seen (same normalized URL) are skipped.
// Provider failures are logged and skipped so one flaky API does not sink
// the whole refresh. Returns how many new articles were stored.
func (s *Service) Refresh(ctx context.Context, keywords []string) (int, error) {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}

	stored := 0
	for _, provider := range s.providers {
		for _, keyword := range keywords {
			articles, err := provider.Headlines(ctx, keyword, perKeywordLimit)
			if err != nil {
				logger.Log.Warn("News provider fetch failed",
					zap.String("provider", provider.Name()),
					zap.String("keyword", keyword),
					zap.Error(err),
				)
				continue
			}

			n, err := s.storeArticles(provider.Name(), keyword, articles)
			if err != nil {
				return stored, err
			}
			stored += n
		}
	}

	logger.Log.Info("News refresh complete",
		zap.Int("keywords", len(keywords)),
		zap.Int("providers", len(s.providers)),
		zap.Int("new_articles", stored),
	)
	return stored, nil
}

// storeArticles inserts articles, relying on the url_hash unique index for
// cross-provider dedupe. An article seen again under a new keyword gets the
// keyword appended to its topics.
func (s *Service) storeArticles(sourceAPI, keyword string, articles []Article) (int, error) {
	stored := 0
	for _, a := range articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		hash := URLHash(a.URL)

		row := &models.NewsArticle{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			URLHash:     hash,
			ImageURL:    a.ImageURL,
			Source:      a.Source,
			SourceAPI:   sourceAPI,
			Author:      a.Author,
			Topics:      models.StringArray{keyword},
			PublishedAt: a.PublishedAt,
		}

		result := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url_hash"}},
			DoNothing: true,
		}).Create(row)
		if result.Error != nil {
			return stored, fmt.Errorf("failed to store article: %w", result.Error)
		}

		if result.RowsAffected > 0 {
			stored++
			continue
		}

		// Duplicate story: merge the keyword into the existing row's topics
		var existing models.NewsArticle
		if err := s.db.Where("url_hash = ?", hash).First(&existing).Error; err != nil {
			continue
		}
		if !contains(existing.Topics, keyword) {
			existing.Topics = append(existing.Topics, keyword)
			if err := s.db.Model(&existing).Update("topics", existing.Topics).Error; err != nil {
				logger.Log.Warn("Failed to merge article topics", zap.Error(err))
			}
		}
	}
	return stored, nil
}

// List returns stored articles newest first, optionally filtered by
// provider (source_api) or topic keyword
func (s *Service) List(sourceAPI, topic string, limit, offset int) ([]models.NewsArticle, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.Order("published_at DESC").Limit(limit).Offset(offset)
	if sourceAPI != "" {
		query = query.Where("source_api = ?", sourceAPI)
	}
	if topic != "" {
		query = query.Where("topics LIKE ?", "%"+topic+"%")
	}

	var articles []models.NewsArticle
	if err := query.Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// Prune removes articles older than the retention window
func (s *Service) Prune() (int64, error) {
	result := s.db.Unscoped().
		Where("published_at < ?", time.Now().Add(-retention)).
		Delete(&models.NewsArticle{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// NormalizeURL strips the parts of a URL that vary without changing the
// story: scheme case, host case, fragments, tracking params, trailing slash
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	params := u.Query()
	for key := range params {
		if strings.HasPrefix(key, "utm_") || key == "fbclid" || key == "gclid" {
			params.Del(key)
		}
	}
	u.RawQuery = params.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// URLHash is the sha256 hex digest of the normalized URL
func URLHash(raw string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(raw)))
	return hex.EncodeToString(sum[:])
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
