package civic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unitedwerise/backend/internal/cache"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"github.com/unitedwerise/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cacheTTL keeps geocoded districts warm; addresses rarely change districts
const cacheTTL = 24 * time.Hour

var (
	ErrAddressNotFound = errors.New("address could not be geocoded")
	ErrNoAddress       = errors.New("user has no street address on file")
	ErrNotConfigured   = errors.New("geocoder not configured")
)

// Geocoder resolves a street address to its district
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*DistrictInfo, error)
}

// Service resolves users' districts through the geocoder, with a Redis
// cache in front
type Service struct {
	db       *gorm.DB
	geocoder Geocoder
}

// NewService creates a civic service
func NewService(db *gorm.DB, geocoder Geocoder) *Service {
	return &Service{db: db, geocoder: geocoder}
}

// LookupDistrict resolves an address, consulting the cache first
func (s *Service) LookupDistrict(ctx context.Context, address string) (*DistrictInfo, error) {
	if s.geocoder == nil {
		return nil, ErrNotConfigured
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressNotFound
	}

	cacheKey := "civic:district:" + addressKey(address)
	if redisClient := cache.GetRedisClient(); redisClient != nil {
		var cached DistrictInfo
		if err := redisClient.GetJSON(ctx, cacheKey, &cached); err == nil {
			metrics.Get().CacheHitsTotal.WithLabelValues("civic").Inc()
			return &cached, nil
		}
		metrics.Get().CacheMissesTotal.WithLabelValues("civic").Inc()
	}

	info, err := s.geocoder.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}

	if redisClient := cache.GetRedisClient(); redisClient != nil {
		if err := redisClient.SetJSON(ctx, cacheKey, info, cacheTTL); err != nil {
			logger.Log.Warn("District cache write failed", zap.Error(err))
		}
	}

	return info, nil
}

// RefreshUserDistrict geocodes the user's stored address and caches the
// district id on their row for feed and topic scoping
func (s *Service) RefreshUserDistrict(ctx context.Context, userID string) (*DistrictInfo, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if strings.TrimSpace(user.StreetAddress) == "" {
		return nil, ErrNoAddress
	}

	address := user.StreetAddress
	if user.City != "" {
		address = fmt.Sprintf("%s, %s, %s %s", user.StreetAddress, user.City, user.State, user.ZipCode)
	}

	info, err := s.LookupDistrict(ctx, address)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"district_id": info.DistrictID}
	if user.City == "" && info.City != "" {
		updates["city"] = info.City
		updates["state"] = info.State
	}
	if err := s.db.Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update user district: %w", err)
	}

	logger.Log.Info("User district refreshed",
		zap.String("user_id", userID),
		zap.String("district_id", info.DistrictID),
	)
	return info, nil
}

// addressKey hashes the normalized address so street addresses never appear
// in Redis keys
func addressKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
