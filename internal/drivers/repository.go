package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDriverNotFound is returned when no driver exists for an id.
var ErrDriverNotFound = errors.New("driver not found")

// Repository handles database operations for driver availability state.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new driver repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a driver.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Driver, error) {
	query := `
		SELECT id, is_active, is_online, is_busy, busy_until, vehicle_type,
		       location_lat, location_lng, updated_at
		FROM drivers
		WHERE id = $1
	`

	var d Driver
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.IsActive, &d.IsOnline, &d.IsBusy, &d.BusyUntil, &d.VehicleType,
		&d.Location.Lat, &d.Location.Lng, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver %s: %w", id, err)
	}
	return &d, nil
}

// GetByIDs retrieves several drivers in one round trip, in no particular order.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, is_active, is_online, is_busy, busy_until, vehicle_type,
		       location_lat, location_lng, updated_at
		FROM drivers
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get drivers: %w", err)
	}
	defer rows.Close()

	var result []*Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.IsActive, &d.IsOnline, &d.IsBusy, &d.BusyUntil, &d.VehicleType,
			&d.Location.Lat, &d.Location.Lng, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}

// SetBusy flips the busy flag, used by instant assignment and completion.
func (r *Repository) SetBusy(ctx context.Context, id uuid.UUID, busy bool) error {
	query := `UPDATE drivers SET is_busy = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, busy)
	if err != nil {
		return fmt.Errorf("failed to set busy for driver %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// SetBusyUntil records a scheduled booking window end without flipping the
// busy flag; the scheduler flips it when the window opens.
func (r *Repository) SetBusyUntil(ctx context.Context, id uuid.UUID, until time.Time) error {
	query := `UPDATE drivers SET busy_until = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, until)
	if err != nil {
		return fmt.Errorf("failed to set busy window for driver %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// SetOnline flips the online flag on heartbeat or disconnect.
func (r *Repository) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	query := `UPDATE drivers SET is_online = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, online)
	if err != nil {
		return fmt.Errorf("failed to set online for driver %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// UpdateLocation persists the latest heartbeat position.
func (r *Repository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	query := `UPDATE drivers SET location_lat = $2, location_lng = $3, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, lat, lng)
	if err != nil {
		return fmt.Errorf("failed to update location for driver %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// ReconcileBusy recomputes is_busy for one driver strictly from that driver's
// active rides and corrects drift. The two normal write sites (assignment and
// completion) cannot alone guarantee consistency across crashes.
func (r *Repository) ReconcileBusy(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE drivers SET is_busy = EXISTS (
			SELECT 1 FROM rides
			WHERE driver_id = $1
			  AND status IN ('accepted', 'arrived', 'in_progress')
			  AND booking_type = 'INSTANT'
		), updated_at = NOW()
		WHERE id = $1
		RETURNING is_busy
	`

	var busy bool
	err := r.db.QueryRow(ctx, query, id).Scan(&busy)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrDriverNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to reconcile busy for driver %s: %w", id, err)
	}
	return busy, nil
}
