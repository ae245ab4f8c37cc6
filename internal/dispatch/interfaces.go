package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-dispatch/internal/drivers"
	"github.com/richxcame/ride-dispatch/internal/geo"
	"github.com/richxcame/ride-dispatch/internal/locks"
	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/pkg/websocket"
)

// RideStore is the ride persistence surface the coordinator depends on.
type RideStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*rides.Ride, error)
	AssignDriver(ctx context.Context, rideID, driverID uuid.UUID) (*rides.Ride, error)
}

// DriverStore reads driver records and flips their availability flags.
type DriverStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*drivers.Driver, error)
	SetBusy(ctx context.Context, id uuid.UUID, busy bool) error
	SetBusyUntil(ctx context.Context, id uuid.UUID, until time.Time) error
}

// GeoIndex searches driver positions by radius.
type GeoIndex interface {
	Nearby(ctx context.Context, origin geo.Point, radiusKm float64, limit int) ([]geo.Candidate, error)
	Remove(ctx context.Context, driverID string) error
}

// Sessions reports live transport-session reachability and pushes messages.
type Sessions interface {
	IsConnected(userID uuid.UUID) bool
	SendToUser(userID uuid.UUID, msg websocket.Message) bool
}

// Locker serialises matching rounds and acceptance attempts per ride.
type Locker interface {
	AcquireMatch(ctx context.Context, rideID uuid.UUID) (locks.Release, error)
	AcquireAccept(ctx context.Context, rideID uuid.UUID) (locks.Release, error)
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, subject, eventType string, payload any) error
}
