package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/richxcame/ride-dispatch/internal/rides"
)

// Database defines the database operations required by the scheduler worker.
// This interface wraps the pgxpool.Pool methods used by the worker,
// allowing for easier testing through mock implementations.
type Database interface {
	// Query executes a query that returns rows, typically a SELECT.
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)

	// Exec executes a query that doesn't return rows, typically INSERT, UPDATE, DELETE.
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}

// Publisher emits the lifecycle and reminder events produced by the worker.
type Publisher interface {
	Publish(ctx context.Context, subject, eventType string, payload any) error
}

// Canceller runs a cancellation through the full ride cancellation path,
// so expiry gets the same refund and event handling as any other cancel.
type Canceller interface {
	CancelRide(ctx context.Context, rideID uuid.UUID, cancelledBy, reason string) (*rides.Ride, error)
}
