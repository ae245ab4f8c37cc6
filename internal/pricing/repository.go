package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/ride-dispatch/internal/fares"
)

// ErrPromoNotFound is returned when no active promo exists for a code.
var ErrPromoNotFound = errors.New("promo not found")

// Repository handles database operations for pricing configuration and promos.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new pricing repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetSnapshot assembles the current pricing snapshot from the settings row
// and the vehicle tier table.
func (r *Repository) GetSnapshot(ctx context.Context) (fares.PricingSnapshot, error) {
	query := `
		SELECT per_km_rate, minimum_fare, platform_fee_pct, driver_commission_pct,
		       full_day_flat_rate, rental_per_day_rate, date_wise_per_date_rate
		FROM pricing_settings
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var snap fares.PricingSnapshot
	err := r.db.QueryRow(ctx, query).Scan(
		&snap.PerKmRate, &snap.MinimumFare, &snap.PlatformFeePct, &snap.DriverCommissionPct,
		&snap.FullDayFlatRate, &snap.RentalPerDayRate, &snap.DateWisePerDateRate,
	)
	if err != nil {
		return fares.PricingSnapshot{}, fmt.Errorf("failed to load pricing settings: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT vehicle_tier, base_price, per_minute_rate FROM vehicle_tiers WHERE is_active = true`)
	if err != nil {
		return fares.PricingSnapshot{}, fmt.Errorf("failed to load vehicle tiers: %w", err)
	}
	defer rows.Close()

	snap.Tiers = make(map[string]fares.TierPricing)
	for rows.Next() {
		var name string
		var tier fares.TierPricing
		if err := rows.Scan(&name, &tier.BasePrice, &tier.PerMinuteRate); err != nil {
			return fares.PricingSnapshot{}, fmt.Errorf("failed to scan vehicle tier: %w", err)
		}
		snap.Tiers[name] = tier
	}
	if err := rows.Err(); err != nil {
		return fares.PricingSnapshot{}, fmt.Errorf("failed to iterate vehicle tiers: %w", err)
	}

	return snap, nil
}

// GetPromoByCode retrieves an active promo definition by code.
func (r *Repository) GetPromoByCode(ctx context.Context, code string) (fares.Promo, error) {
	query := `
		SELECT code, promo_type, value, max_discount, min_order_amount,
		       valid_from, valid_until, usage_limit, per_user_limit, booking_types
		FROM promos
		WHERE code = $1 AND is_active = true
	`

	var p fares.Promo
	var bookingTypes []string
	err := r.db.QueryRow(ctx, query, code).Scan(
		&p.Code, &p.Type, &p.Value, &p.MaxDiscount, &p.MinOrderAmount,
		&p.ValidFrom, &p.ValidUntil, &p.UsageLimit, &p.PerUserLimit, &bookingTypes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return fares.Promo{}, ErrPromoNotFound
	}
	if err != nil {
		return fares.Promo{}, fmt.Errorf("failed to load promo %s: %w", code, err)
	}

	for _, bt := range bookingTypes {
		p.BookingTypes = append(p.BookingTypes, fares.BookingType(bt))
	}
	return p, nil
}

// GetPromoUsage counts prior redemptions for the promo, per user and total.
func (r *Repository) GetPromoUsage(ctx context.Context, code string, userID uuid.UUID) (userCount, totalCount int, err error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE user_id = $2), COUNT(*)
		FROM promo_usages
		WHERE promo_code = $1
	`

	err = r.db.QueryRow(ctx, query, code, userID).Scan(&userCount, &totalCount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count promo usage for %s: %w", code, err)
	}
	return userCount, totalCount, nil
}

// RecordPromoUsage persists one redemption.
func (r *Repository) RecordPromoUsage(ctx context.Context, code string, userID, rideID uuid.UUID) error {
	query := `
		INSERT INTO promo_usages (promo_code, user_id, ride_id, used_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := r.db.Exec(ctx, query, code, userID, rideID); err != nil {
		return fmt.Errorf("failed to record promo usage for %s: %w", code, err)
	}
	return nil
}
