package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

var seedDistricts = []string{
	"CA-12", "CA-34", "NY-14", "NY-10", "TX-07", "TX-35",
	"IL-13", "GA-05", "WA-07", "CO-02", "AZ-09", "MI-12",
}

var postTopics = []string{
	"The city council meeting on %s zoning ran past midnight again.",
	"Our school board just approved the new %s budget. Thoughts?",
	"Volunteers needed for the %s cleanup this Saturday.",
	"The %s bill in the state legislature deserves more attention.",
	"Town hall on %s funding is next Tuesday at the library.",
	"Has anyone read the full text of the %s proposal?",
	"Early voting for the %s election starts Monday.",
	"The county's %s report came out today and the numbers are rough.",
}

var topicSubjects = []string{
	"housing", "transit", "education", "infrastructure", "public safety",
	"parks", "water", "climate", "healthcare", "broadband",
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev() error {
	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(50)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	logger.Log.Info("Creating follow graph...")
	if err := s.seedFollows(users); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}

	logger.Log.Info("Creating posts...")
	posts, err := s.seedPosts(users, 300)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	logger.Log.Info("Creating comments...")
	if err := s.seedComments(users, posts, 600); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	logger.Log.Info("Creating likes...")
	if err := s.seedLikes(users, posts); err != nil {
		return fmt.Errorf("failed to seed likes: %w", err)
	}

	logger.Log.Info("Creating reputation history...")
	if err := s.seedReputationEvents(users); err != nil {
		return fmt.Errorf("failed to seed reputation events: %w", err)
	}

	return nil
}

// SeedTest seeds the test database with a small fixed cast
func (s *Seeder) SeedTest() error {
	testSpecs := []struct {
		email       string
		username    string
		displayName string
		isAdmin     bool
	}{
		{"admin@example.com", "admin", "Admin User", true},
		{"alice@example.com", "alice_civic", "Alice Rivera", false},
		{"bob@example.com", "bob_votes", "Bob Chen", false},
	}

	var users []models.User
	for _, spec := range testSpecs {
		var user models.User
		err := s.db.Where("email = ?", spec.email).First(&user).Error
		if err == nil {
			users = append(users, user)
			continue
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		hashedStr := string(hashed)

		user = models.User{
			Email:         spec.email,
			Username:      spec.username,
			DisplayName:   spec.displayName,
			PasswordHash:  &hashedStr,
			EmailVerified: true,
			IsAdmin:       spec.isAdmin,
			AvatarURL:     fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", spec.username),
			DistrictID:    "IL-13",
			City:          "Springfield",
			State:         "IL",
		}
		if err := s.db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", spec.username, err)
		}
		users = append(users, user)
	}

	if _, err := s.seedPosts(users, 10); err != nil {
		return fmt.Errorf("failed to seed test posts: %w", err)
	}

	return nil
}

// Clean removes all seed data (use with caution!)
func (s *Seeder) Clean() error {
	tables := []string{
		"reports",
		"post_likes",
		"comments",
		"photos",
		"posts",
		"reputation_events",
		"user_quests",
		"user_streaks",
		"follows",
		"user_blocks",
		"users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	var users []models.User

	// Re-running the seeder should not double the dataset
	var seedUserCount int64
	s.db.Model(&models.User{}).Where("email LIKE '%@example.com'").Count(&seedUserCount)
	if seedUserCount >= int64(count) {
		if err := s.db.Find(&users).Error; err != nil {
			return nil, err
		}
		logger.Log.Info("Found existing seed users, skipping creation")
		return users, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashedStr := string(hashed)

	for i := 0; i < count; i++ {
		username := gofakeit.Username()
		email := fmt.Sprintf("%s@example.com", username)

		var existing models.User
		for {
			if err := s.db.Where("username = ? OR email = ?", username, email).First(&existing).Error; err == gorm.ErrRecordNotFound {
				break
			}
			username = gofakeit.Username()
			email = fmt.Sprintf("%s@example.com", username)
		}

		user := models.User{
			Email:         email,
			Username:      username,
			DisplayName:   gofakeit.Name(),
			Bio:           gofakeit.Sentence(10),
			PasswordHash:  &hashedStr,
			EmailVerified: true,
			AvatarURL:     fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username),
			City:          gofakeit.City(),
			State:         gofakeit.StateAbr(),
			ZipCode:       gofakeit.Zip(),
			DistrictID:    seedDistricts[rand.Intn(len(seedDistricts))],
			// Spread reputation so the feed's visibility tiers all show up
			ReputationScore: 40 + rand.Intn(60),
		}

		lastActive := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now())
		user.LastActiveAt = &lastActive

		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}

	return users, nil
}

func (s *Seeder) seedFollows(users []models.User) error {
	for i := range users {
		followCount := rand.Intn(8) + 2
		seen := map[string]bool{users[i].ID: true}
		for j := 0; j < followCount; j++ {
			target := users[rand.Intn(len(users))]
			if seen[target.ID] {
				continue
			}
			seen[target.ID] = true

			follow := models.Follow{
				FollowerID:  users[i].ID,
				FollowingID: target.ID,
			}
			if err := s.db.Create(&follow).Error; err != nil {
				return err
			}

			s.db.Model(&users[i]).UpdateColumn("following_count", gorm.Expr("following_count + 1"))
			s.db.Model(&target).UpdateColumn("follower_count", gorm.Expr("follower_count + 1"))
		}
	}
	return nil
}

func (s *Seeder) seedPosts(users []models.User, count int) ([]models.Post, error) {
	var posts []models.Post

	for i := 0; i < count; i++ {
		author := users[rand.Intn(len(users))]
		template := postTopics[rand.Intn(len(postTopics))]
		subject := topicSubjects[rand.Intn(len(topicSubjects))]

		post := models.Post{
			UserID:           author.ID,
			Content:          fmt.Sprintf(template, subject),
			IsPublic:         true,
			ModerationStatus: models.ModerationAllowed,
			EmbeddingStatus:  models.EmbeddingPending,
		}
		post.CreatedAt = gofakeit.DateRange(time.Now().AddDate(0, 0, -14), time.Now())

		if err := s.db.Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}

		s.db.Model(&models.User{}).Where("id = ?", author.ID).
			UpdateColumn("post_count", gorm.Expr("post_count + 1"))
		posts = append(posts, post)
	}

	return posts, nil
}

func (s *Seeder) seedComments(users []models.User, posts []models.Post, count int) error {
	if len(posts) == 0 {
		return nil
	}

	var topLevel []models.Comment
	for i := 0; i < count; i++ {
		post := posts[rand.Intn(len(posts))]
		author := users[rand.Intn(len(users))]

		comment := models.Comment{
			PostID:  post.ID,
			UserID:  author.ID,
			Content: gofakeit.Sentence(12),
		}

		// Roughly a quarter of comments are replies
		if len(topLevel) > 0 && rand.Float32() < 0.25 {
			parent := topLevel[rand.Intn(len(topLevel))]
			if parent.PostID == post.ID {
				comment.ParentID = &parent.ID
			}
		}

		comment.CreatedAt = gofakeit.DateRange(post.CreatedAt, time.Now())

		if err := s.db.Create(&comment).Error; err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		if comment.ParentID == nil {
			topLevel = append(topLevel, comment)
		}

		s.db.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1"))
	}

	return nil
}

func (s *Seeder) seedLikes(users []models.User, posts []models.Post) error {
	for i := range posts {
		likerCount := rand.Intn(len(users) / 3)
		seen := map[string]bool{}
		for j := 0; j < likerCount; j++ {
			liker := users[rand.Intn(len(users))]
			if seen[liker.ID] || liker.ID == posts[i].UserID {
				continue
			}
			seen[liker.ID] = true

			like := models.PostLike{
				PostID: posts[i].ID,
				UserID: liker.ID,
			}
			if err := s.db.Create(&like).Error; err != nil {
				return err
			}
			s.db.Model(&posts[i]).UpdateColumn("like_count", gorm.Expr("like_count + 1"))
		}
	}
	return nil
}

// seedReputationEvents writes history rows consistent with each user's
// seeded score so the admin console has something to show
func (s *Seeder) seedReputationEvents(users []models.User) error {
	for i := range users {
		delta := users[i].ReputationScore - models.DefaultReputation
		if delta == 0 {
			continue
		}

		eventType := models.ReputationAdminAdjustment
		reason := "seed adjustment"
		event := models.ReputationEvent{
			UserID:      users[i].ID,
			EventType:   eventType,
			Delta:       delta,
			Reason:      reason,
			ScoreBefore: models.DefaultReputation,
			ScoreAfter:  users[i].ReputationScore,
		}
		if err := s.db.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to create reputation event: %w", err)
		}

		now := time.Now()
		s.db.Model(&users[i]).Update("reputation_updated_at", now)
	}
	return nil
}
