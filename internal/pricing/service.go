package pricing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/fares"
	"github.com/richxcame/ride-dispatch/pkg/logger"
)

const (
	snapshotCacheKey = "pricing:snapshot"
	snapshotCacheTTL = time.Minute
)

// Service provides pricing snapshots and promo resolution. Snapshots are
// cached briefly in Redis; the cache is a read-through convenience, never a
// source of truth.
type Service struct {
	store Store
	cache Cache
}

// NewService creates a new pricing service. cache may be nil in tests.
func NewService(store Store, cache Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Snapshot returns the current pricing configuration.
func (s *Service) Snapshot(ctx context.Context) (fares.PricingSnapshot, error) {
	if s.cache != nil {
		if raw, err := s.cache.GetString(ctx, snapshotCacheKey); err == nil && raw != "" {
			var snap fares.PricingSnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				return snap, nil
			}
		}
	}

	snap, err := s.store.GetSnapshot(ctx)
	if err != nil {
		return fares.PricingSnapshot{}, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := s.cache.SetWithExpiration(ctx, snapshotCacheKey, string(data), snapshotCacheTTL); err != nil {
				logger.Get().Warn("cache pricing snapshot", zap.Error(err))
			}
		}
	}
	return snap, nil
}

// ResolvePromo loads the promo for code together with the usage context
// needed to judge its eligibility for userID.
func (s *Service) ResolvePromo(ctx context.Context, code string, userID uuid.UUID, bookingType fares.BookingType) (fares.Promo, fares.PromoContext, error) {
	promo, err := s.store.GetPromoByCode(ctx, code)
	if err != nil {
		return fares.Promo{}, fares.PromoContext{}, err
	}

	userCount, totalCount, err := s.store.GetPromoUsage(ctx, code, userID)
	if err != nil {
		return fares.Promo{}, fares.PromoContext{}, err
	}

	pctx := fares.PromoContext{
		Now:             time.Now(),
		BookingType:     bookingType,
		UserUsageCount:  userCount,
		TotalUsageCount: totalCount,
	}
	return promo, pctx, nil
}

// CommitPromo records a redemption once the ride using it is created.
func (s *Service) CommitPromo(ctx context.Context, code string, userID, rideID uuid.UUID) error {
	return s.store.RecordPromoUsage(ctx, code, userID, rideID)
}
