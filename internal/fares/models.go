package fares

import "time"

// BookingType distinguishes instant dispatch from pre-scheduled bookings.
type BookingType string

const (
	BookingInstant  BookingType = "INSTANT"
	BookingFullDay  BookingType = "FULL_DAY"
	BookingRental   BookingType = "RENTAL"
	BookingDateWise BookingType = "DATE_WISE"
)

// TierPricing is the per-vehicle-tier portion of the pricing snapshot.
type TierPricing struct {
	BasePrice     float64 `json:"base_price"`
	PerMinuteRate float64 `json:"per_minute_rate"`
}

// PricingSnapshot is a point-in-time copy of pricing configuration. The
// engine never reads storage; callers load a snapshot and pass it in.
type PricingSnapshot struct {
	PerKmRate           float64                `json:"per_km_rate"`
	MinimumFare         float64                `json:"minimum_fare"`
	PlatformFeePct      float64                `json:"platform_fee_pct"`
	DriverCommissionPct float64                `json:"driver_commission_pct"`
	Tiers               map[string]TierPricing `json:"tiers"`

	FullDayFlatRate     float64 `json:"full_day_flat_rate"`
	RentalPerDayRate    float64 `json:"rental_per_day_rate"`
	DateWisePerDateRate float64 `json:"date_wise_per_date_rate"`
}

// Breakdown itemises a fare. Final is AfterMinimum less Discount.
type Breakdown struct {
	Base         float64 `json:"base"`
	Distance     float64 `json:"distance"`
	Time         float64 `json:"time"`
	Subtotal     float64 `json:"subtotal"`
	AfterMinimum float64 `json:"after_minimum"`
	Discount     float64 `json:"discount"`
	Final        float64 `json:"final"`
}

// PromoType selects the discount formula.
type PromoType string

const (
	PromoFixed      PromoType = "fixed"
	PromoPercentage PromoType = "percentage"
)

// Promo is a discount definition as loaded by the promo provider.
type Promo struct {
	Code           string        `json:"code"`
	Type           PromoType     `json:"type"`
	Value          float64       `json:"value"`
	MaxDiscount    float64       `json:"max_discount"`
	MinOrderAmount float64       `json:"min_order_amount"`
	ValidFrom      time.Time     `json:"valid_from"`
	ValidUntil     time.Time     `json:"valid_until"`
	UsageLimit     int           `json:"usage_limit"`
	PerUserLimit   int           `json:"per_user_limit"`
	BookingTypes   []BookingType `json:"booking_types"`
}

// PromoContext carries the facts needed to judge promo eligibility.
type PromoContext struct {
	Now             time.Time
	BookingType     BookingType
	UserUsageCount  int
	TotalUsageCount int
}

// EarningsSplit divides a final fare between platform and driver.
type EarningsSplit struct {
	PlatformFee   float64 `json:"platform_fee"`
	DriverEarning float64 `json:"driver_earning"`
	// Adjusted is set when DriverEarning was corrected to restore the
	// split-sums-to-fare property.
	Adjusted bool `json:"-"`
}
