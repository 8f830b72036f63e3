package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubProvider serves canned articles without a network
type stubProvider struct {
	name     string
	articles map[string][]Article
	err      error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Headlines(_ context.Context, keyword string, _ int) ([]Article, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.articles[keyword], nil
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
	err = db.Exec(`
		CREATE TABLE news_articles (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			url TEXT NOT NULL,
			url_hash TEXT NOT NULL UNIQUE,
			image_url TEXT,
			source TEXT,
			source_api TEXT,
			author TEXT,
			topics TEXT,
			published_at DATETIME,
			created_at DATETIME,
			deleted_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	return db
}

func article(title, url string) Article {
	return Article{Title: title, URL: url, Source: "Test Wire", PublishedAt: time.Now()}
}

func TestRefreshStoresAndDedupes(t *testing.T) {
	db := setupTestDB(t)

	// Both providers carry the same transit story under different URLs that
	// normalize identically
	providerA := &stubProvider{name: "newsapi", articles: map[string][]Article{
		"transit": {
			article("Transit line opens", "https://Example.com/transit?utm_source=feed"),
			article("Budget passes", "https://example.com/budget"),
		},
	}}
	providerB := &stubProvider{name: "thenewsapi", articles: map[string][]Article{
		"transit": {
			article("Transit line opens", "https://example.com/transit"),
		},
	}}

	svc := NewService(db, providerA, providerB)
	stored, err := svc.Refresh(context.Background(), []string{"transit"})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	var count int64
	db.Model(&models.NewsArticle{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestRefreshMergesTopicsOnDuplicate(t *testing.T) {
	db := setupTestDB(t)

	story := article("Ballot measure qualifies", "https://example.com/measure")
	provider := &stubProvider{name: "newsapi", articles: map[string][]Article{
		"election":       {story},
		"ballot measure": {story},
	}}

	svc := NewService(db, provider)
	stored, err := svc.Refresh(context.Background(), []string{"election", "ballot measure"})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	var saved models.NewsArticle
	require.NoError(t, db.First(&saved).Error)
	assert.ElementsMatch(t, []string{"election", "ballot measure"}, []string(saved.Topics))
}

func TestRefreshSurvivesProviderFailure(t *testing.T) {
	db := setupTestDB(t)

	broken := &stubProvider{name: "newsapi", err: errors.New("rate limited")}
	working := &stubProvider{name: "thenewsapi", articles: map[string][]Article{
		"election": {article("Registration deadline nears", "https://example.com/register")},
	}}

	svc := NewService(db, broken, working)
	stored, err := svc.Refresh(context.Background(), []string{"election"})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestRefreshSkipsBlankArticles(t *testing.T) {
	db := setupTestDB(t)

	provider := &stubProvider{name: "newsapi", articles: map[string][]Article{
		"election": {
			{Title: "", URL: "https://example.com/no-title"},
			{Title: "No URL"},
			article("Valid", "https://example.com/valid"),
		},
	}}

	svc := NewService(db, provider)
	stored, err := svc.Refresh(context.Background(), []string{"election"})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestListFilters(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	rows := []models.NewsArticle{
		{Title: "A", URL: "https://a.test/1", URLHash: URLHash("https://a.test/1"), SourceAPI: "newsapi", Topics: models.StringArray{"election"}, PublishedAt: time.Now().Add(-1 * time.Hour)},
		{Title: "B", URL: "https://a.test/2", URLHash: URLHash("https://a.test/2"), SourceAPI: "thenewsapi", Topics: models.StringArray{"transit"}, PublishedAt: time.Now().Add(-2 * time.Hour)},
		{Title: "C", URL: "https://a.test/3", URLHash: URLHash("https://a.test/3"), SourceAPI: "newsapi", Topics: models.StringArray{"transit"}, PublishedAt: time.Now()},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	all, err := svc.List("", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first
	assert.Equal(t, "C", all[0].Title)

	newsapiOnly, err := svc.List("newsapi", "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, newsapiOnly, 2)

	transitOnly, err := svc.List("", "transit", 10, 0)
	require.NoError(t, err)
	assert.Len(t, transitOnly, 2)
}

func TestPruneRemovesOldArticles(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	old := models.NewsArticle{Title: "Old", URL: "https://a.test/old", URLHash: URLHash("https://a.test/old"), PublishedAt: time.Now().Add(-8 * 24 * time.Hour)}
	fresh := models.NewsArticle{Title: "Fresh", URL: "https://a.test/fresh", URLHash: URLHash("https://a.test/fresh"), PublishedAt: time.Now()}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&fresh).Error)

	pruned, err := svc.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	var count int64
	db.Model(&models.NewsArticle{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://Example.COM/Story/":                          "https://example.com/Story",
		"https://example.com/story?utm_source=x&utm_medium=y": "https://example.com/story",
		"https://example.com/story?id=5&utm_source=x":         "https://example.com/story?id=5",
		"https://example.com/story#comments":                  "https://example.com/story",
		"https://example.com/story?fbclid=abc":                "https://example.com/story",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeURL(input), "input: %s", input)
	}
}

func TestURLHashStable(t *testing.T) {
	a := URLHash("https://Example.com/story?utm_source=feed")
	b := URLHash("https://example.com/story")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, URLHash("https://example.com/other"))
}
