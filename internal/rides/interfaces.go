package rides

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-dispatch/internal/fares"
	"github.com/richxcame/ride-dispatch/internal/locks"
)

// Store is the persistence surface the ride service depends on.
type Store interface {
	Create(ctx context.Context, ride *Ride) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ride, error)
	GetActiveByRider(ctx context.Context, riderID uuid.UUID) (*Ride, error)
	MarkArrived(ctx context.Context, rideID, driverID uuid.UUID) (*Ride, error)
	Start(ctx context.Context, rideID uuid.UUID, startedAt time.Time) (*Ride, error)
	PersistTripTimes(ctx context.Context, rideID uuid.UUID, endedAt time.Time, durationMin float64) error
	Complete(ctx context.Context, rideID uuid.UUID, breakdown fares.Breakdown) (*Ride, error)
	Cancel(ctx context.Context, rideID uuid.UUID, cancelledBy, reason string, fee float64) (*Ride, error)
	UpdateDetails(ctx context.Context, ride *Ride) error
	SetShareToken(ctx context.Context, rideID uuid.UUID, token string, expiresAt time.Time) error
	ClearShareToken(ctx context.Context, rideID uuid.UUID) error
	GetByShareToken(ctx context.Context, token string) (*Ride, error)
	ListByRider(ctx context.Context, riderID uuid.UUID, limit, offset int) ([]*Ride, error)
}

// Locker guards ride creation against duplicate submissions across instances.
type Locker interface {
	AcquireCreate(ctx context.Context, riderID uuid.UUID) (locks.Release, error)
	CleanupStale(ctx context.Context, riderID uuid.UUID) error
}

// PricingProvider supplies pricing snapshots and promo resolution.
type PricingProvider interface {
	Snapshot(ctx context.Context) (fares.PricingSnapshot, error)
	ResolvePromo(ctx context.Context, code string, userID uuid.UUID, bookingType fares.BookingType) (fares.Promo, fares.PromoContext, error)
	CommitPromo(ctx context.Context, code string, userID, rideID uuid.UUID) error
}

// Queue enqueues driver-discovery jobs for newly created rides.
type Queue interface {
	Enqueue(ctx context.Context, rideID uuid.UUID) error
}

// Publisher emits domain events for notification fan-out and earnings
// reconciliation.
type Publisher interface {
	Publish(ctx context.Context, subject, eventType string, payload any) error
}

// DriverState flips driver availability around assignment and completion.
type DriverState interface {
	SetBusy(ctx context.Context, id uuid.UUID, busy bool) error
}

// Refunder computes cancellation fees and orchestrates refunds.
type Refunder interface {
	ComputeCancellationFee(originalStatus Status, cancelledBy, reason string) float64
	Refund(ctx context.Context, ride *Ride, fee float64) error
}
