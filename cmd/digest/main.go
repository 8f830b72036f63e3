package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/email"
	"github.com/unitedwerise/backend/internal/models"
)

// Weekly digest mailer. Run from cron; picks the most liked posts of the
// past week and mails them to verified users.
func main() {
	godotenv.Load()

	dryRun := flag.Bool("dry-run", false, "Print recipients and items without sending")
	topN := flag.Int("top", 5, "Number of posts to include")
	flag.Parse()

	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer database.Close()

	since := time.Now().AddDate(0, 0, -7)

	var posts []models.Post
	err := database.DB.Preload("User").
		Where("created_at > ? AND flagged_for_review = ?", since, false).
		Order("like_count DESC").
		Limit(*topN).
		Find(&posts).Error
	if err != nil {
		log.Fatalf("❌ Failed to load posts: %v", err)
	}
	if len(posts) == 0 {
		fmt.Println("⚠️  No posts in the last week, nothing to send")
		return
	}

	items := make([]email.DigestItem, 0, len(posts))
	for _, post := range posts {
		items = append(items, email.DigestItem{
			Author:    post.User.Username,
			Content:   truncate(post.Content, 200),
			LikeCount: post.LikeCount,
		})
	}

	var recipients []string
	err = database.DB.Model(&models.User{}).
		Where("email_verified = ?", true).
		Pluck("email", &recipients).Error
	if err != nil {
		log.Fatalf("❌ Failed to load recipients: %v", err)
	}

	fmt.Printf("🔄 Digest: %d posts, %d recipients\n", len(items), len(recipients))

	if *dryRun {
		for _, item := range items {
			fmt.Printf("  @%s (%d likes): %s\n", item.Author, item.LikeCount, item.Content)
		}
		for _, to := range recipients {
			fmt.Printf("  would send to %s\n", to)
		}
		fmt.Println("✓ Dry run complete")
		return
	}

	fromEmail := os.Getenv("SES_FROM_EMAIL")
	if fromEmail == "" {
		log.Fatal("❌ SES_FROM_EMAIL not set")
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	emailService, err := email.NewEmailService(region, fromEmail, "UnitedWeRise", os.Getenv("FRONTEND_BASE_URL"))
	if err != nil {
		log.Fatalf("❌ Failed to initialize email service: %v", err)
	}

	ctx := context.Background()
	sent := 0
	for _, to := range recipients {
		if err := emailService.SendWeeklyDigest(ctx, to, items); err != nil {
			fmt.Printf("⚠️  Failed to send to %s: %v\n", to, err)
			continue
		}
		sent++
	}

	fmt.Printf("✅ Digest sent to %d/%d recipients\n", sent, len(recipients))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
