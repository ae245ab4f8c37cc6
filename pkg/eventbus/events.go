package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Subjects used by the dispatch service.
const (
	SubjectRides        = "rides.lifecycle"
	SubjectDispatchJobs = "dispatch.jobs"
)

// Event types carried on SubjectRides.
const (
	EventRideRequested = "ride.requested"
	EventRideAccepted  = "ride.accepted"
	EventRideArrived   = "ride.arrived"
	EventRideStarted   = "ride.started"
	EventRideCompleted = "ride.completed"
	EventRideCancelled = "ride.cancelled"
	EventRideReminder  = "ride.reminder"
)

// EventDispatchJob is the type carried on SubjectDispatchJobs.
const EventDispatchJob = "dispatch.job"

// DispatchJobData is the discovery job payload. It carries only the ride id;
// consumers re-read the ride so stale queue entries cannot act on old state.
type DispatchJobData struct {
	RideID uuid.UUID `json:"ride_id"`
}

type RideRequestedData struct {
	RideID      uuid.UUID `json:"ride_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	BookingType string    `json:"booking_type"`
	PickupLat   float64   `json:"pickup_lat"`
	PickupLng   float64   `json:"pickup_lng"`
}

type RideAcceptedData struct {
	RideID   uuid.UUID `json:"ride_id"`
	RiderID  uuid.UUID `json:"rider_id"`
	DriverID uuid.UUID `json:"driver_id"`
}

type RideStartedData struct {
	RideID    uuid.UUID `json:"ride_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	StartedAt time.Time `json:"started_at"`
}

type RideCompletedData struct {
	RideID      uuid.UUID `json:"ride_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	FinalFare   float64   `json:"final_fare"`
	CompletedAt time.Time `json:"completed_at"`
}

type RideReminderData struct {
	RideID       uuid.UUID `json:"ride_id"`
	RiderID      uuid.UUID `json:"rider_id"`
	ThresholdMin int       `json:"threshold_min"`
	StartsAt     time.Time `json:"starts_at"`
}

type RideCancelledData struct {
	RideID          uuid.UUID `json:"ride_id"`
	CancelledBy     string    `json:"cancelled_by"`
	CancellationFee float64   `json:"cancellation_fee"`
}
