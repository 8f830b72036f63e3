package feed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/cache"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/vector"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// RecencyHalfLife is how fast the recency dimension decays
	RecencyHalfLife = 6 * time.Hour

	// ScoreFloor keeps every candidate reachable by the sampler
	ScoreFloor = 0.01

	// candidateWindow bounds how far back the candidate pool reaches
	candidateWindow = 48 * time.Hour

	// candidateLimit caps the candidate pool per feed request
	candidateLimit = 200

	// DefaultLimit and MaxLimit bound the feed page size
	DefaultLimit = 20
	MaxLimit     = 50

	// interestTTL caches a user's interest embedding between requests
	interestTTL = time.Hour

	// interestSourceLimit caps how many recent posts feed the interest vector
	interestSourceLimit = 20
)

// Weights are the relative importance of each scoring dimension
type Weights struct {
	Recency    float64 `json:"recency"`
	Social     float64 `json:"social"`
	Trending   float64 `json:"trending"`
	Similarity float64 `json:"similarity"`
	Reputation float64 `json:"reputation"`
}

// DefaultWeights is the production scoring mix
var DefaultWeights = Weights{
	Recency:    0.35,
	Social:     0.25,
	Trending:   0.15,
	Similarity: 0.15,
	Reputation: 0.10,
}

// Candidate is a scored post awaiting sampling
type Candidate struct {
	Post  models.Post
	Score float64
}

// signals carries per-request scoring inputs shared across candidates
type signals struct {
	now        time.Time
	followed   map[string]bool
	similarity map[string]float64
}

// Service generates personalized feeds by scoring a candidate pool and
// sampling from it with probability proportional to score
type Service struct {
	db       *gorm.DB
	aiClient *ai.Client
	vectors  *vector.Index
	weights  Weights
}

// NewService creates a feed service. aiClient and vectors may be nil, in
// which case the similarity dimension scores zero for every candidate.
func NewService(db *gorm.DB, aiClient *ai.Client, vectors *vector.Index) *Service {
	return &Service{db: db, aiClient: aiClient, vectors: vectors, weights: DefaultWeights}
}

// SetWeights overrides the scoring mix
func (s *Service) SetWeights(w Weights) {
	s.weights = w
}

// GenerateFeed returns up to limit posts for the user, sampled from the
// scored candidate pool
func (s *Service) GenerateFeed(ctx context.Context, user *models.User, limit int) ([]models.Post, error) {
	start := time.Now()
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	candidates, err := s.candidatePool(user.ID)
	if err != nil {
		return nil, err
	}
	metrics.Get().FeedCandidatesTotal.WithLabelValues("main").Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return []models.Post{}, nil
	}

	sig := signals{
		now:        time.Now(),
		followed:   map[string]bool{},
		similarity: s.similarityScores(ctx, user),
	}

	var followedIDs []string
	if err := s.db.Model(&models.Follow{}).
		Where("follower_id = ?", user.ID).
		Pluck("following_id", &followedIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load follows: %w", err)
	}
	for _, id := range followedIDs {
		sig.followed[id] = true
	}

	scored := make([]Candidate, len(candidates))
	for i, post := range candidates {
		scored[i] = Candidate{Post: post, Score: s.scorePost(&post, sig)}
	}

	sampled := SampleWithoutReplacement(scored, limit)

	posts := make([]models.Post, len(sampled))
	for i, c := range sampled {
		posts[i] = c.Post
	}

	metrics.Get().FeedGenerationTime.WithLabelValues("main").Observe(time.Since(start).Seconds())
	logger.Log.Debug("Feed generated",
		zap.String("user_id", user.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(posts)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return posts, nil
}

// candidatePool loads recent public posts, excluding the user's own posts
// and posts from authors either side has blocked
func (s *Service) candidatePool(userID string) ([]models.Post, error) {
	blocked := s.db.Model(&models.UserBlock{}).
		Select("blocked_id").Where("blocker_id = ?", userID)
	blockedBy := s.db.Model(&models.UserBlock{}).
		Select("blocker_id").Where("blocked_id = ?", userID)

	var posts []models.Post
	err := s.db.Preload("User").
		Where("created_at > ?", time.Now().Add(-candidateWindow)).
		Where("is_public = ?", true).
		Where("moderation_status = ?", models.ModerationAllowed).
		Where("user_id <> ?", userID).
		Where("user_id NOT IN (?)", blocked).
		Where("user_id NOT IN (?)", blockedBy).
		Order("created_at DESC").
		Limit(candidateLimit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load feed candidates: %w", err)
	}
	return posts, nil
}

// scorePost computes the weighted multi-dimension score for one candidate.
// The author's visibility multiplier scales the final score, and every
// score is floored so the sampler never starves a candidate.
func (s *Service) scorePost(post *models.Post, sig signals) float64 {
	age := sig.now.Sub(post.CreatedAt)
	recency := math.Exp(-math.Ln2 * age.Hours() / RecencyHalfLife.Hours())

	social := 0.0
	if sig.followed[post.UserID] {
		social = 1.0
	}

	trending := engagementVelocity(post, sig.now)
	similarity := sig.similarity[post.ID]

	multiplier := post.User.VisibilityMultiplier()
	// Normalize the multiplier's 0.5..1.1 range onto 0..1 for the dimension
	reputation := (multiplier - 0.5) / 0.6

	score := s.weights.Recency*recency +
		s.weights.Social*social +
		s.weights.Trending*trending +
		s.weights.Similarity*similarity +
		s.weights.Reputation*reputation

	score *= multiplier

	if score < ScoreFloor {
		score = ScoreFloor
	}
	return score
}

// engagementVelocity maps likes+comments per hour onto [0,1)
func engagementVelocity(post *models.Post, now time.Time) float64 {
	hours := now.Sub(post.CreatedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	v := float64(post.LikeCount+post.CommentCount) / hours
	return v / (v + 1)
}

// similarityScores returns cosine similarity per candidate post against the
// user's interest embedding. Missing infrastructure degrades to no scores.
func (s *Service) similarityScores(ctx context.Context, user *models.User) map[string]float64 {
	if s.aiClient == nil || s.vectors == nil {
		return map[string]float64{}
	}

	interest, err := s.interestEmbedding(ctx, user)
	if err != nil || len(interest) == 0 {
		if err != nil {
			logger.Log.Warn("Interest embedding unavailable", zap.String("user_id", user.ID), zap.Error(err))
		}
		return map[string]float64{}
	}

	results, err := s.vectors.SearchSimilar(ctx, interest, "", time.Now().Add(-candidateWindow), candidateLimit)
	if err != nil {
		logger.Log.Warn("Similarity search failed", zap.String("user_id", user.ID), zap.Error(err))
		return map[string]float64{}
	}

	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.PostID] = float64(r.Score)
	}
	return scores
}

// interestEmbedding embeds the user's recent authored content as a proxy for
// their interests, cached in Redis between feed requests
func (s *Service) interestEmbedding(ctx context.Context, user *models.User) ([]float32, error) {
	cacheKey := fmt.Sprintf("feed:interest:%s", user.ID)
	if redisClient := cache.GetRedisClient(); redisClient != nil {
		var cached []float32
		if err := redisClient.GetJSON(ctx, cacheKey, &cached); err == nil {
			metrics.Get().CacheHitsTotal.WithLabelValues("feed_interest").Inc()
			return cached, nil
		}
		metrics.Get().CacheMissesTotal.WithLabelValues("feed_interest").Inc()
	}

	var contents []string
	if err := s.db.Model(&models.Post{}).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(interestSourceLimit).
		Pluck("content", &contents).Error; err != nil {
		return nil, fmt.Errorf("failed to load interest sources: %w", err)
	}
	if len(contents) == 0 {
		return nil, nil
	}

	embedding, err := s.aiClient.Embed(ctx, strings.Join(contents, "\n"))
	if err != nil {
		return nil, err
	}

	if redisClient := cache.GetRedisClient(); redisClient != nil {
		if err := redisClient.SetJSON(ctx, cacheKey, embedding, interestTTL); err != nil {
			logger.Log.Warn("Interest cache write failed", zap.Error(err))
		}
	}
	return embedding, nil
}
