package rides

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-dispatch/internal/fares"
	"github.com/richxcame/ride-dispatch/internal/geo"
)

// Status is the ride lifecycle state. completed and cancelled are terminal.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ActiveStatuses are the states in which a ride blocks its rider from
// creating another one.
var ActiveStatuses = []Status{StatusRequested, StatusAccepted, StatusArrived, StatusInProgress}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentMethod enumerates how a ride is paid.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentWallet   PaymentMethod = "WALLET"
	PaymentRazorpay PaymentMethod = "RAZORPAY"
	PaymentHybrid   PaymentMethod = "HYBRID"
)

// PaymentStatus tracks settlement. refunded is written at most once.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Actor identifies who performed a cancellation.
const (
	CancelledByRider  = "rider"
	CancelledByDriver = "driver"
	CancelledBySystem = "system"
)

// System-attributed cancellation reasons. These never incur a rider fee.
const (
	ReasonNoDriverFound      = "no_driver_found"
	ReasonAcceptTimeout      = "acceptance_timeout"
	ReasonAllDriversRejected = "all_drivers_rejected"
	ReasonStaleRequest       = "stale_request"
)

// SystemReasons indexes the reasons above for fee decisions.
var SystemReasons = map[string]bool{
	ReasonNoDriverFound:      true,
	ReasonAcceptTimeout:      true,
	ReasonAllDriversRejected: true,
	ReasonStaleRequest:       true,
}

// BookingMeta carries the schedule for non-instant bookings. Exactly the
// fields relevant to the booking type are set.
type BookingMeta struct {
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	DayCount  int         `json:"day_count,omitempty"`
	Dates     []time.Time `json:"dates,omitempty"`
}

// Units returns the flat-pricing multiplier for the booking type.
func (m *BookingMeta) Units(bt fares.BookingType) int {
	if m == nil {
		return 0
	}
	switch bt {
	case fares.BookingRental:
		return m.DayCount
	case fares.BookingDateWise:
		return len(m.Dates)
	default:
		return 1
	}
}

// Passenger is the person taking the trip when a ride is booked for
// someone else.
type Passenger struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Ride is the central entity. Only the lifecycle paths in the service write
// status; financial fields are written once by refund orchestration.
type Ride struct {
	ID       uuid.UUID  `json:"id"`
	RiderID  uuid.UUID  `json:"rider_id"`
	DriverID *uuid.UUID `json:"driver_id,omitempty"`

	PickupLocation  geo.Point `json:"pickup_location"`
	DropoffLocation geo.Point `json:"dropoff_location"`
	DistanceKm      float64   `json:"distance_km"`
	VehicleTier     string    `json:"vehicle_tier"`

	Fare          float64         `json:"fare"`
	FareBreakdown fares.Breakdown `json:"fare_breakdown"`
	PromoCode     *string         `json:"promo_code,omitempty"`
	Discount      float64         `json:"discount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaidAmount    float64         `json:"paid_amount"`
	WalletPaid    float64         `json:"wallet_paid"`

	// GatewayPaymentID is the gateway's capture reference, set by the
	// payment layer once a gateway charge succeeds. Refunds require it.
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty"`

	CancellationFee    float64 `json:"cancellation_fee"`
	RefundAmount       float64 `json:"refund_amount"`
	CancelledBy        *string `json:"cancelled_by,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`

	Status      Status            `json:"status"`
	BookingType fares.BookingType `json:"booking_type"`
	BookingMeta *BookingMeta      `json:"booking_meta,omitempty"`

	StartOTP string `json:"-"`
	StopOTP  string `json:"-"`

	EstimatedDurationMin float64    `json:"estimated_duration_min"`
	ActualStartTime      *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime        *time.Time `json:"actual_end_time,omitempty"`
	ActualDurationMin    *float64   `json:"actual_duration_min,omitempty"`

	RideFor   string     `json:"ride_for"`
	Passenger *Passenger `json:"passenger,omitempty"`

	ShareToken          *string    `json:"share_token,omitempty"`
	ShareTokenExpiresAt *time.Time `json:"share_token_expires_at,omitempty"`
	IsShared            bool       `json:"is_shared"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDriver reports whether a driver is assigned.
func (r *Ride) HasDriver() bool {
	return r.DriverID != nil
}

// CreateRequest is the ride creation payload.
type CreateRequest struct {
	PickupLocation  geo.Point         `json:"pickup_location" binding:"required"`
	DropoffLocation geo.Point         `json:"dropoff_location" binding:"required"`
	VehicleTier     string            `json:"vehicle_tier" binding:"required"`
	BookingType     fares.BookingType `json:"booking_type" binding:"required"`
	BookingMeta     *BookingMeta      `json:"booking_meta,omitempty"`
	PromoCode       string            `json:"promo_code,omitempty"`
	PaymentMethod   PaymentMethod     `json:"payment_method" binding:"required"`
	DistanceKm      float64           `json:"distance_km,omitempty"`
	EstimatedMin    float64           `json:"estimated_duration_min,omitempty"`
	RideFor         string            `json:"ride_for,omitempty"`
	Passenger       *Passenger        `json:"passenger,omitempty"`
}

// CreateResponse returns the ride plus the OTPs, which are shown to the
// rider exactly once.
type CreateResponse struct {
	Ride     *Ride  `json:"ride"`
	StartOTP string `json:"start_otp"`
	StopOTP  string `json:"stop_otp"`
}

// UpdateRequest carries the mutable ride fields. OTPs are deliberately not
// representable here and the service re-checks guardrails per status.
type UpdateRequest struct {
	DropoffLocation *geo.Point `json:"dropoff_location,omitempty"`
	Passenger       *Passenger `json:"passenger,omitempty"`
}

// generateOTP returns a 4-digit code using crypto randomness.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// generateShareToken returns an opaque token for third-party trip visibility.
func generateShareToken() string {
	return uuid.NewString()
}
