package topics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/cache"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"github.com/unitedwerise/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// SimilarityThreshold is the minimum cosine similarity for a post to
	// join an existing topic cluster
	SimilarityThreshold = 0.82

	// MinClusterSize drops clusters too small to call a topic
	MinClusterSize = 3

	// MaxTopics caps how many clusters get the full LLM treatment
	MaxTopics = 10

	// MaxPostsPerPrompt caps how many posts feed one summary prompt
	MaxPostsPerPrompt = 30

	// cacheTTL keeps aggregated topics warm between recomputes
	cacheTTL = 15 * time.Minute

	// lookback is the window of posts considered for trending topics
	lookback = 24 * time.Hour

	// stanceMargin is the minimum similarity gap between the two framings
	// before a post is called for one side rather than neutral
	stanceMargin = 0.02
)

// Stance labels one post's position relative to a topic's framing
type Stance string

const (
	StanceSupport Stance = "support"
	StanceOppose  Stance = "oppose"
	StanceNeutral Stance = "neutral"
)

// Topic is one aggregated discussion cluster with its stance breakdown
type Topic struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`

	// The two framings posts are measured against
	SupportStatement string `json:"support_statement"`
	OpposeStatement  string `json:"oppose_statement"`

	PostCount      int      `json:"post_count"`
	SupportCount   int      `json:"support_count"`
	OpposeCount    int      `json:"oppose_count"`
	NeutralCount   int      `json:"neutral_count"`
	SupportPercent float64  `json:"support_percent"`
	OpposePercent  float64  `json:"oppose_percent"`
	NeutralPercent float64  `json:"neutral_percent"`
	PostIDs        []string `json:"post_ids"`

	// Stances maps post ID to its detected stance
	Stances map[string]Stance `json:"stances"`

	// Mean embedding of each side's posts, the aggregate position of
	// that side in the debate. Empty when the side has no posts.
	SupportVector []float32 `json:"support_vector,omitempty"`
	OpposeVector  []float32 `json:"oppose_vector,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// Service aggregates recent posts into trending topics with stance analysis
type Service struct {
	db       *gorm.DB
	aiClient *ai.Client

	// In-process copy of the last aggregation per scope so a Redis
	// outage does not re-run the pipeline on every request
	mu     sync.Mutex
	memory map[string]memoryEntry
}

type memoryEntry struct {
	topics     []Topic
	computedAt time.Time
}

// NewService creates a topics service
func NewService(db *gorm.DB, aiClient *ai.Client) *Service {
	return &Service{db: db, aiClient: aiClient, memory: make(map[string]memoryEntry)}
}

// TrendingTopics returns the current topic aggregation for a district
// (empty districtID means platform-wide). Results are cached in Redis;
// a cold cache triggers a full recompute.
func (s *Service) TrendingTopics(ctx context.Context, districtID string) ([]Topic, error) {
	scope := districtID
	if scope == "" {
		scope = "all"
	}
	cacheKey := fmt.Sprintf("topics:%s", scope)

	if redisClient := cache.GetRedisClient(); redisClient != nil {
		var cached []Topic
		err := redisClient.GetJSON(ctx, cacheKey, &cached)
		if err == nil {
			metrics.Get().CacheHitsTotal.WithLabelValues("topics").Inc()
			return cached, nil
		}
		if !cache.IsNil(err) {
			logger.Log.Warn("Topic cache read failed", zap.Error(err))
		}
		metrics.Get().CacheMissesTotal.WithLabelValues("topics").Inc()
	}

	if topics, ok := s.memoryCached(cacheKey); ok {
		return topics, nil
	}

	topics, err := s.computeTopics(ctx, districtID)
	if err != nil {
		return nil, err
	}

	s.memoryStore(cacheKey, topics)
	if redisClient := cache.GetRedisClient(); redisClient != nil {
		if err := redisClient.SetJSON(ctx, cacheKey, topics, cacheTTL); err != nil {
			logger.Log.Warn("Topic cache write failed", zap.Error(err))
		}
	}

	return topics, nil
}

// InvalidateCache drops the cached aggregation for a scope
func (s *Service) InvalidateCache(ctx context.Context, districtID string) {
	scope := districtID
	if scope == "" {
		scope = "all"
	}
	key := fmt.Sprintf("topics:%s", scope)

	s.mu.Lock()
	delete(s.memory, key)
	s.mu.Unlock()

	if redisClient := cache.GetRedisClient(); redisClient != nil {
		_ = redisClient.Del(ctx, key)
	}
}

// memoryCached returns the in-process copy for a scope if it is still
// within the TTL
func (s *Service) memoryCached(key string) ([]Topic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memory[key]
	if !ok || time.Since(entry.computedAt) > cacheTTL {
		return nil, false
	}
	return entry.topics, true
}

func (s *Service) memoryStore(key string, topics []Topic) {
	s.mu.Lock()
	s.memory[key] = memoryEntry{topics: topics, computedAt: time.Now()}
	s.mu.Unlock()
}

// computeTopics runs the full pipeline: fetch, embed, cluster, summarize, stance
func (s *Service) computeTopics(ctx context.Context, districtID string) ([]Topic, error) {
	// Without an AI client there is nothing to embed or summarize; serve
	// empty rather than failing the endpoint
	if s.aiClient == nil {
		return []Topic{}, nil
	}

	start := time.Now()
	scope := districtID
	if scope == "" {
		scope = "all"
	}

	posts, err := s.recentPosts(districtID)
	if err != nil {
		return nil, err
	}
	if len(posts) < MinClusterSize {
		return []Topic{}, nil
	}

	items, err := s.embedPosts(ctx, posts)
	if err != nil {
		return nil, err
	}

	clusters := ClusterItems(items, SimilarityThreshold, MinClusterSize)
	if len(clusters) > MaxTopics {
		clusters = clusters[:MaxTopics]
	}

	topics := make([]Topic, 0, len(clusters))
	for _, cluster := range clusters {
		topic, err := s.analyzeCluster(ctx, cluster)
		if err != nil {
			logger.Log.Warn("Topic analysis failed, skipping cluster",
				zap.Int("cluster_size", len(cluster.Items)),
				zap.Error(err),
			)
			continue
		}
		topics = append(topics, *topic)
	}

	m := metrics.Get()
	m.TopicClusteringTime.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	m.TopicClustersFound.WithLabelValues(scope).Set(float64(len(topics)))

	logger.Log.Info("Topic aggregation complete",
		zap.String("scope", scope),
		zap.Int("posts", len(posts)),
		zap.Int("topics", len(topics)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return topics, nil
}

// recentPosts loads clusterable posts from the lookback window
func (s *Service) recentPosts(districtID string) ([]models.Post, error) {
	query := s.db.
		Joins("JOIN users ON users.id = posts.user_id").
		Where("posts.created_at > ?", time.Now().Add(-lookback)).
		Where("posts.is_public = ?", true).
		Where("posts.moderation_status = ?", models.ModerationAllowed)

	if districtID != "" {
		query = query.Where("users.district_id = ?", districtID)
	}

	var posts []models.Post
	if err := query.Order("posts.created_at DESC").Limit(500).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent posts: %w", err)
	}
	return posts, nil
}

// embedPosts generates embeddings for posts in batches
func (s *Service) embedPosts(ctx context.Context, posts []models.Post) ([]Item, error) {
	const batchSize = 100

	items := make([]Item, 0, len(posts))
	for start := 0; start < len(posts); start += batchSize {
		end := start + batchSize
		if end > len(posts) {
			end = len(posts)
		}
		batch := posts[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Content
		}

		vecs, err := s.aiClient.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed posts: %w", err)
		}

		for i, p := range batch {
			items = append(items, Item{PostID: p.ID, Content: p.Content, Embedding: vecs[i]})
		}
	}

	return items, nil
}

const summarySystemPrompt = `You summarize clusters of civic posts into a neutral topic.
Given several posts about the same issue, respond with JSON:
{"title": "short neutral topic title",
 "summary": "two neutral sentences describing the debate",
 "support_statement": "one sentence stating the position FOR the issue",
 "oppose_statement": "one sentence stating the position AGAINST the issue"}
The two statements must be opposing framings of the same question.`

type summaryReply struct {
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	SupportStatement string `json:"support_statement"`
	OpposeStatement  string `json:"oppose_statement"`
}

// analyzeCluster summarizes a cluster and splits its posts by stance.
// Stance detection embeds the two opposing framings and assigns each post
// to whichever framing its embedding sits closer to; posts that sit within
// stanceMargin of both framings count as neutral.
func (s *Service) analyzeCluster(ctx context.Context, cluster Cluster) (*Topic, error) {
	samples := cluster.Items
	if len(samples) > MaxPostsPerPrompt {
		samples = samples[:MaxPostsPerPrompt]
	}

	var b strings.Builder
	for i, item := range samples {
		fmt.Fprintf(&b, "Post %d: %s\n", i+1, item.Content)
	}

	var reply summaryReply
	if err := s.aiClient.ChatCompletionJSON(ctx, summarySystemPrompt, b.String(), 400, &reply); err != nil {
		return nil, err
	}
	if reply.SupportStatement == "" || reply.OpposeStatement == "" {
		return nil, fmt.Errorf("summary reply missing stance statements")
	}

	stanceVecs, err := s.aiClient.EmbedBatch(ctx, []string{reply.SupportStatement, reply.OpposeStatement})
	if err != nil {
		return nil, fmt.Errorf("failed to embed stance statements: %w", err)
	}
	supportVec, opposeVec := stanceVecs[0], stanceVecs[1]

	topic := &Topic{
		ID:               uuid.New().String(),
		Title:            reply.Title,
		Summary:          reply.Summary,
		SupportStatement: reply.SupportStatement,
		OpposeStatement:  reply.OpposeStatement,
		PostCount:        len(cluster.Items),
		PostIDs:          make([]string, 0, len(cluster.Items)),
		Stances:          make(map[string]Stance, len(cluster.Items)),
		ComputedAt:       time.Now(),
	}

	var supportSum, opposeSum []float32
	for _, item := range cluster.Items {
		topic.PostIDs = append(topic.PostIDs, item.PostID)

		supportSim := ai.CosineSimilarity(item.Embedding, supportVec)
		opposeSim := ai.CosineSimilarity(item.Embedding, opposeVec)

		stance := StanceNeutral
		switch {
		case supportSim-opposeSim > stanceMargin:
			stance = StanceSupport
		case opposeSim-supportSim > stanceMargin:
			stance = StanceOppose
		}

		topic.Stances[item.PostID] = stance
		switch stance {
		case StanceSupport:
			topic.SupportCount++
			supportSum = accumulate(supportSum, item.Embedding)
		case StanceOppose:
			topic.OpposeCount++
			opposeSum = accumulate(opposeSum, item.Embedding)
		default:
			topic.NeutralCount++
		}
	}

	topic.SupportVector = meanVector(supportSum, topic.SupportCount)
	topic.OpposeVector = meanVector(opposeSum, topic.OpposeCount)

	topic.SupportPercent = percent(topic.SupportCount, topic.PostCount)
	topic.OpposePercent = percent(topic.OpposeCount, topic.PostCount)
	topic.NeutralPercent = percent(topic.NeutralCount, topic.PostCount)

	return topic, nil
}

// accumulate adds vec into sum element-wise, allocating on first use
func accumulate(sum, vec []float32) []float32 {
	if sum == nil {
		sum = make([]float32, len(vec))
	}
	for i := range vec {
		if i < len(sum) {
			sum[i] += vec[i]
		}
	}
	return sum
}

// meanVector divides an accumulated sum by the number of contributors
func meanVector(sum []float32, n int) []float32 {
	if n == 0 || len(sum) == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = v / float32(n)
	}
	return out
}

// percent returns count/total as a percentage rounded to one decimal
func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}
