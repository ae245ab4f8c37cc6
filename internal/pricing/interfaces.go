package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-dispatch/internal/fares"
)

// Store is the persistence surface the pricing service depends on.
type Store interface {
	GetSnapshot(ctx context.Context) (fares.PricingSnapshot, error)
	GetPromoByCode(ctx context.Context, code string) (fares.Promo, error)
	GetPromoUsage(ctx context.Context, code string, userID uuid.UUID) (userCount, totalCount int, err error)
	RecordPromoUsage(ctx context.Context, code string, userID, rideID uuid.UUID) error
}

// Cache is the snapshot cache surface, satisfied by the shared Redis client.
type Cache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}
