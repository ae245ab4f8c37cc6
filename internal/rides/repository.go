package rides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/ride-dispatch/internal/fares"
)

var (
	// ErrRideNotFound is returned when no ride exists for an id.
	ErrRideNotFound = errors.New("ride not found")
	// ErrAlreadyAssigned is returned when the assignment race was lost to
	// another driver.
	ErrAlreadyAssigned = errors.New("ride already has a driver")
	// ErrNotAssignable is returned when the ride left the requested state
	// before assignment, e.g. it was cancelled.
	ErrNotAssignable = errors.New("ride is no longer open for assignment")
)

const rideColumns = `
	id, rider_id, driver_id,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, distance_km, vehicle_tier,
	fare, fare_breakdown, promo_code, discount, payment_method, payment_status,
	paid_amount, wallet_paid, gateway_payment_id,
	cancellation_fee, refund_amount, cancelled_by, cancellation_reason,
	status, booking_type, booking_meta,
	start_otp, stop_otp,
	estimated_duration_min, actual_start_time, actual_end_time, actual_duration_min,
	ride_for, passenger,
	share_token, share_token_expires_at, is_shared,
	created_at, updated_at`

// Repository handles database operations for rides.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new ride repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var breakdown, bookingMeta, passenger []byte
	err := row.Scan(
		&r.ID, &r.RiderID, &r.DriverID,
		&r.PickupLocation.Lat, &r.PickupLocation.Lng,
		&r.DropoffLocation.Lat, &r.DropoffLocation.Lng,
		&r.DistanceKm, &r.VehicleTier,
		&r.Fare, &breakdown, &r.PromoCode, &r.Discount, &r.PaymentMethod, &r.PaymentStatus,
		&r.PaidAmount, &r.WalletPaid, &r.GatewayPaymentID,
		&r.CancellationFee, &r.RefundAmount, &r.CancelledBy, &r.CancellationReason,
		&r.Status, &r.BookingType, &bookingMeta,
		&r.StartOTP, &r.StopOTP,
		&r.EstimatedDurationMin, &r.ActualStartTime, &r.ActualEndTime, &r.ActualDurationMin,
		&r.RideFor, &passenger,
		&r.ShareToken, &r.ShareTokenExpiresAt, &r.IsShared,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &r.FareBreakdown); err != nil {
			return nil, fmt.Errorf("failed to decode fare breakdown: %w", err)
		}
	}
	if len(bookingMeta) > 0 {
		if err := json.Unmarshal(bookingMeta, &r.BookingMeta); err != nil {
			return nil, fmt.Errorf("failed to decode booking meta: %w", err)
		}
	}
	if len(passenger) > 0 {
		if err := json.Unmarshal(passenger, &r.Passenger); err != nil {
			return nil, fmt.Errorf("failed to decode passenger: %w", err)
		}
	}
	return &r, nil
}

// Create persists a new ride in requested state.
func (r *Repository) Create(ctx context.Context, ride *Ride) error {
	breakdown, err := json.Marshal(ride.FareBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode fare breakdown: %w", err)
	}
	var bookingMeta, passenger []byte
	if ride.BookingMeta != nil {
		if bookingMeta, err = json.Marshal(ride.BookingMeta); err != nil {
			return fmt.Errorf("failed to encode booking meta: %w", err)
		}
	}
	if ride.Passenger != nil {
		if passenger, err = json.Marshal(ride.Passenger); err != nil {
			return fmt.Errorf("failed to encode passenger: %w", err)
		}
	}

	query := `
		INSERT INTO rides (
			id, rider_id,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, distance_km, vehicle_tier,
			fare, fare_breakdown, promo_code, discount, payment_method, payment_status,
			paid_amount, wallet_paid,
			status, booking_type, booking_meta,
			start_otp, stop_otp,
			estimated_duration_min, ride_for, passenger,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, NOW(), NOW()
		)
	`

	_, err = r.db.Exec(ctx, query,
		ride.ID, ride.RiderID,
		ride.PickupLocation.Lat, ride.PickupLocation.Lng,
		ride.DropoffLocation.Lat, ride.DropoffLocation.Lng,
		ride.DistanceKm, ride.VehicleTier,
		ride.Fare, breakdown, ride.PromoCode, ride.Discount, ride.PaymentMethod, ride.PaymentStatus,
		ride.PaidAmount, ride.WalletPaid,
		ride.Status, ride.BookingType, bookingMeta,
		ride.StartOTP, ride.StopOTP,
		ride.EstimatedDurationMin, ride.RideFor, passenger,
	)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ride %s: %w", id, err)
	}
	return ride, nil
}

// GetActiveByRider returns the rider's ride in an active status, if any.
func (r *Repository) GetActiveByRider(ctx context.Context, riderID uuid.UUID) (*Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE rider_id = $1 AND status IN ('requested', 'accepted', 'arrived', 'in_progress')
		ORDER BY created_at DESC
		LIMIT 1`

	ride, err := scanRide(r.db.QueryRow(ctx, query, riderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active ride for rider %s: %w", riderID, err)
	}
	return ride, nil
}

// AssignDriver performs the race-free assignment: one conditional update that
// checks status and driver in the same statement. The compare-and-set is the
// sole correctness mechanism for concurrent accepts. On zero rows the current
// state is re-read to tell the caller which precondition failed.
func (r *Repository) AssignDriver(ctx context.Context, rideID, driverID uuid.UUID) (*Ride, error) {
	query := `
		UPDATE rides
		SET driver_id = $2, status = 'accepted', updated_at = NOW()
		WHERE id = $1 AND status = 'requested' AND driver_id IS NULL
		RETURNING ` + rideColumns

	ride, err := scanRide(r.db.QueryRow(ctx, query, rideID, driverID))
	if err == nil {
		return ride, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to assign driver to ride %s: %w", rideID, err)
	}

	current, err := r.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.HasDriver() {
		return nil, ErrAlreadyAssigned
	}
	return nil, ErrNotAssignable
}

// MarkArrived transitions accepted to arrived for the assigned driver.
func (r *Repository) MarkArrived(ctx context.Context, rideID, driverID uuid.UUID) (*Ride, error) {
	query := `
		UPDATE rides
		SET status = 'arrived', updated_at = NOW()
		WHERE id = $1 AND driver_id = $2 AND status = 'accepted'
		RETURNING ` + rideColumns

	ride, err := scanRide(r.db.QueryRow(ctx, query, rideID, driverID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark ride %s arrived: %w", rideID, err)
	}
	return ride, nil
}

// Start transitions to in_progress and stamps the actual start time.
func (r *Repository) Start(ctx context.Context, rideID uuid.UUID, startedAt time.Time) (*Ride, error) {
	query := `
		UPDATE rides
		SET status = 'in_progress', actual_start_time = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('accepted', 'arrived')
		RETURNING ` + rideColumns

	ride, err := scanRide(r.db.QueryRow(ctx, query, rideID, startedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start ride %s: %w", rideID, err)
	}
	return ride, nil
}

// PersistTripTimes records the end time and actual duration while the ride is
// still in_progress. This is written before fare recalculation so a restart
// mid-completion never recalculates from a missing duration.
func (r *Repository) PersistTripTimes(ctx context.Context, rideID uuid.UUID, endedAt time.Time, durationMin float64) error {
	query := `
		UPDATE rides
		SET actual_end_time = $2, actual_duration_min = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`

	tag, err := r.db.Exec(ctx, query, rideID, endedAt, durationMin)
	if err != nil {
		return fmt.Errorf("failed to persist trip times for ride %s: %w", rideID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

// Complete finalises the ride with the recalculated fare.
func (r *Repository) Complete(ctx context.Context, rideID uuid.UUID, breakdown fares.Breakdown) (*Ride, error) {
	data, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fare breakdown: %w", err)
	}

	query := `
		UPDATE rides
		SET status = 'completed', fare = $2, fare_breakdown = $3, discount = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
		RETURNING ` + rideColumns

	ride, err := scanRide(r.db.QueryRow(ctx, query, rideID, breakdown.Final, data, breakdown.Discount))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete ride %s: %w", rideID, err)
	}
	return ride, nil
}

// Cancel transitions any pre-terminal status to cancelled and records the fee.
func (r *Repository) Cancel(ctx context.Context, rideID uuid.UUID, cancelledBy, reason string, fee float64) (*Ride, error) {
	query := `
		UPDATE rides
		SET status = 'cancelled', cancelled_by = $2, cancellation_reason = $3,
		    cancellation_fee = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ('requested', 'accepted', 'arrived', 'in_progress')
		RETURNING ` + rideColumns

	ride, err := scanRide(r.db.QueryRow(ctx, query, rideID, cancelledBy, reason, fee))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel ride %s: %w", rideID, err)
	}
	return ride, nil
}

// RecordRefund writes the refund outcome. refunded is written at most once;
// the ledger check in refund orchestration guards re-entry.
func (r *Repository) RecordRefund(ctx context.Context, rideID uuid.UUID, refundAmount float64) error {
	query := `
		UPDATE rides
		SET refund_amount = $2, payment_status = 'refunded', updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'refunded'
	`

	if _, err := r.db.Exec(ctx, query, rideID, refundAmount); err != nil {
		return fmt.Errorf("failed to record refund for ride %s: %w", rideID, err)
	}
	return nil
}

// UpdateDetails applies the mutable fields permitted by the update guardrails.
func (r *Repository) UpdateDetails(ctx context.Context, ride *Ride) error {
	var passenger []byte
	var err error
	if ride.Passenger != nil {
		if passenger, err = json.Marshal(ride.Passenger); err != nil {
			return fmt.Errorf("failed to encode passenger: %w", err)
		}
	}

	query := `
		UPDATE rides
		SET dropoff_lat = $2, dropoff_lng = $3, distance_km = $4, passenger = $5, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		ride.ID, ride.DropoffLocation.Lat, ride.DropoffLocation.Lng, ride.DistanceKm, passenger)
	if err != nil {
		return fmt.Errorf("failed to update ride %s: %w", ride.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

// SetShareToken stores a share token and its expiry.
func (r *Repository) SetShareToken(ctx context.Context, rideID uuid.UUID, token string, expiresAt time.Time) error {
	query := `
		UPDATE rides
		SET share_token = $2, share_token_expires_at = $3, is_shared = true, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, rideID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set share token for ride %s: %w", rideID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

// ClearShareToken revokes a ride's share link.
func (r *Repository) ClearShareToken(ctx context.Context, rideID uuid.UUID) error {
	query := `
		UPDATE rides
		SET share_token = NULL, share_token_expires_at = NULL, is_shared = false, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, rideID)
	if err != nil {
		return fmt.Errorf("failed to clear share token for ride %s: %w", rideID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

// GetByShareToken resolves a live share token to its ride.
func (r *Repository) GetByShareToken(ctx context.Context, token string) (*Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE share_token = $1 AND share_token_expires_at > NOW()`

	ride, err := scanRide(r.db.QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
	}
	return ride, nil
}

// ListByRider returns the rider's rides, newest first.
func (r *Repository) ListByRider(ctx context.Context, riderID uuid.UUID, limit, offset int) ([]*Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE rider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, riderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides for rider %s: %w", riderID, err)
	}
	defer rows.Close()

	var result []*Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		result = append(result, ride)
	}
	return result, rows.Err()
}
