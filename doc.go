// Package backend provides the UnitedWeRise API server.

// This package contains the module root. The actual API surface is
// organized into subpackages:

// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Authentication (native, Google OAuth, TOTP)
// - internal/moderation: AI content moderation and human review
// - internal/topics: Trending topic aggregation with stance analysis
// - internal/feed: Probability-sampled personalized feed
// - internal/reputation: Bounded community reputation scoring
// - internal/security: Security event logging and IP risk scoring
// - internal/news: External news aggregation and deduplication
// - internal/civic: Address-to-district geocoding
// - internal/quests: Daily civic quests and streaks
// - internal/vector: Qdrant embedding index for semantic search
// - internal/storage: Photo storage (S3) operations
// - internal/email: Transactional email via SES
// - internal/database: Database connection and migrations
// - internal/middleware: HTTP middleware (auth, rate limiting, IP blocks)

// See the individual package documentation for detailed API reference.
package backend
