package fares

import (
	"fmt"
	"math"
)

// Engine computes quotes, discounts, post-trip recalculations and earnings
// splits. All methods are pure; every monetary output is rounded to two
// decimal places, half away from zero.
type Engine struct{}

// NewEngine builds the fare engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Quote prices an instant ride from the snapshot's tier rates.
func (e *Engine) Quote(p PricingSnapshot, vehicleTier string, distanceKm, durationMin float64) (Breakdown, error) {
	tier, ok := p.Tiers[vehicleTier]
	if !ok {
		return Breakdown{}, fmt.Errorf("unknown vehicle tier %q", vehicleTier)
	}
	if distanceKm < 0 || durationMin < 0 {
		return Breakdown{}, fmt.Errorf("negative distance or duration")
	}

	base := roundMoney(tier.BasePrice)
	distance := roundMoney(distanceKm * p.PerKmRate)
	timeFare := roundMoney(durationMin * tier.PerMinuteRate)
	subtotal := roundMoney(base + distance + timeFare)
	afterMinimum := subtotal
	if afterMinimum < p.MinimumFare {
		afterMinimum = roundMoney(p.MinimumFare)
	}

	return Breakdown{
		Base:         base,
		Distance:     distance,
		Time:         timeFare,
		Subtotal:     subtotal,
		AfterMinimum: afterMinimum,
		Final:        afterMinimum,
	}, nil
}

// FlatFare prices non-instant bookings. These bypass the per-km quote
// entirely: FULL_DAY is a flat rate, RENTAL is per day, DATE_WISE per date.
func (e *Engine) FlatFare(p PricingSnapshot, bookingType BookingType, units int) (Breakdown, error) {
	var total float64
	switch bookingType {
	case BookingFullDay:
		total = p.FullDayFlatRate
	case BookingRental:
		if units < 1 {
			return Breakdown{}, fmt.Errorf("rental booking requires a day count")
		}
		total = p.RentalPerDayRate * float64(units)
	case BookingDateWise:
		if units < 1 {
			return Breakdown{}, fmt.Errorf("date-wise booking requires at least one date")
		}
		total = p.DateWisePerDateRate * float64(units)
	default:
		return Breakdown{}, fmt.Errorf("booking type %q has no flat pricing", bookingType)
	}

	total = roundMoney(total)
	return Breakdown{
		Base:         total,
		Subtotal:     total,
		AfterMinimum: total,
		Final:        total,
	}, nil
}

// ApplyPromo validates promo eligibility and applies the discount to b.
// The discount is clamped to [0, AfterMinimum] so the final fare is never
// negative. Returns the updated breakdown or the eligibility error.
func (e *Engine) ApplyPromo(b Breakdown, promo Promo, ctx PromoContext) (Breakdown, error) {
	if err := validatePromo(b, promo, ctx); err != nil {
		return b, err
	}

	var discount float64
	switch promo.Type {
	case PromoFixed:
		discount = promo.Value
	case PromoPercentage:
		discount = b.AfterMinimum * promo.Value / 100
		if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
			discount = promo.MaxDiscount
		}
	default:
		return b, fmt.Errorf("unknown promo type %q", promo.Type)
	}

	if discount < 0 {
		discount = 0
	}
	if discount > b.AfterMinimum {
		discount = b.AfterMinimum
	}

	b.Discount = roundMoney(discount)
	b.Final = roundMoney(b.AfterMinimum - b.Discount)
	return b, nil
}

func validatePromo(b Breakdown, promo Promo, ctx PromoContext) error {
	if !promo.ValidFrom.IsZero() && ctx.Now.Before(promo.ValidFrom) {
		return fmt.Errorf("promo %s not yet active", promo.Code)
	}
	if !promo.ValidUntil.IsZero() && ctx.Now.After(promo.ValidUntil) {
		return fmt.Errorf("promo %s expired", promo.Code)
	}
	if promo.UsageLimit > 0 && ctx.TotalUsageCount >= promo.UsageLimit {
		return fmt.Errorf("promo %s usage limit reached", promo.Code)
	}
	if promo.PerUserLimit > 0 && ctx.UserUsageCount >= promo.PerUserLimit {
		return fmt.Errorf("promo %s already used", promo.Code)
	}
	if promo.MinOrderAmount > 0 && b.AfterMinimum < promo.MinOrderAmount {
		return fmt.Errorf("promo %s requires a minimum fare of %.2f", promo.Code, promo.MinOrderAmount)
	}
	if len(promo.BookingTypes) > 0 {
		applicable := false
		for _, bt := range promo.BookingTypes {
			if bt == ctx.BookingType {
				applicable = true
				break
			}
		}
		if !applicable {
			return fmt.Errorf("promo %s not applicable to %s bookings", promo.Code, ctx.BookingType)
		}
	}
	return nil
}

// RecalculateInput carries everything a post-trip recalculation needs.
type RecalculateInput struct {
	Pricing      PricingSnapshot
	VehicleTier  string
	DistanceKm   float64
	EstimatedMin float64
	ActualMin    float64
	Quoted       Breakdown
	// Promo is re-applied when non-nil and still valid; an invalid promo
	// simply drops the discount rather than failing the recalculation.
	Promo        *Promo
	PromoContext PromoContext
}

// Recalculate re-quotes a completed instant ride with the actual duration.
// When the trip ran shorter than estimated, the final fare is capped at the
// original quote so a rider never pays more than quoted for a faster trip.
// A trip that ran longer than estimated is not capped.
func (e *Engine) Recalculate(in RecalculateInput) (Breakdown, error) {
	b, err := e.Quote(in.Pricing, in.VehicleTier, in.DistanceKm, in.ActualMin)
	if err != nil {
		return Breakdown{}, err
	}

	if in.Promo != nil {
		if withPromo, err := e.ApplyPromo(b, *in.Promo, in.PromoContext); err == nil {
			b = withPromo
		}
	}

	if in.ActualMin < in.EstimatedMin && b.Final > in.Quoted.Final {
		b.Final = in.Quoted.Final
	}
	return b, nil
}

// SplitEarnings divides finalFare between platform and driver. When a driver
// commission percentage is configured it takes precedence; otherwise the
// driver receives the fare less the platform fee. If rounding drifts the sum
// off finalFare by more than 0.01, DriverEarning is corrected and Adjusted is
// set so the caller can log the integrity warning.
func (e *Engine) SplitEarnings(finalFare, platformFeePct, driverCommissionPct float64) EarningsSplit {
	var split EarningsSplit
	if driverCommissionPct > 0 {
		split.DriverEarning = roundMoney(finalFare * driverCommissionPct)
		split.PlatformFee = roundMoney(finalFare - split.DriverEarning)
	} else {
		split.PlatformFee = roundMoney(finalFare * platformFeePct)
		split.DriverEarning = roundMoney(finalFare - split.PlatformFee)
	}

	if math.Abs(split.PlatformFee+split.DriverEarning-finalFare) > 0.01 {
		split.DriverEarning = roundMoney(finalFare - split.PlatformFee)
		split.Adjusted = true
	}
	return split
}

// roundMoney rounds to two decimal places, half away from zero.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
