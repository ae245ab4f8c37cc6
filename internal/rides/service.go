package rides

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/fares"
	"github.com/richxcame/ride-dispatch/internal/geo"
	"github.com/richxcame/ride-dispatch/internal/locks"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/logger"
)

const shareTokenTTL = 24 * time.Hour

// Service owns the ride state machine: creation, OTP transitions, completion
// and cancellation. Assignment lives in the dispatch coordinator.
type Service struct {
	store    Store
	guard    Locker
	engine   *fares.Engine
	pricing  PricingProvider
	queue    Queue
	bus      Publisher
	drivers  DriverState
	refunder Refunder
}

// NewService creates a new ride service.
func NewService(store Store, guard Locker, engine *fares.Engine, pricing PricingProvider,
	queue Queue, bus Publisher, drivers DriverState, refunder Refunder) *Service {
	return &Service{
		store:    store,
		guard:    guard,
		engine:   engine,
		pricing:  pricing,
		queue:    queue,
		bus:      bus,
		drivers:  drivers,
		refunder: refunder,
	}
}

// CreateRide validates the request, quotes a fare and persists the ride in
// requested state, then enqueues a discovery job. The per-rider creation lock
// prevents duplicate submissions racing across instances; if the lock backend
// is down we degrade to the durable uniqueness check alone.
func (s *Service) CreateRide(ctx context.Context, riderID uuid.UUID, req *CreateRequest) (*CreateResponse, error) {
	if !req.PickupLocation.Valid() || !req.DropoffLocation.Valid() {
		return nil, common.NewBadRequestError("invalid pickup or dropoff location", nil)
	}
	if req.BookingMeta == nil && req.BookingType != fares.BookingInstant {
		return nil, common.NewBadRequestError("booking meta is required for scheduled bookings", nil)
	}

	release, err := s.guard.AcquireCreate(ctx, riderID)
	if errors.Is(err, locks.ErrNotAcquired) {
		// The lock may be an orphan from a crashed instance. Durable state
		// decides: no active ride means the holder cannot finish its create.
		if _, aerr := s.store.GetActiveByRider(ctx, riderID); errors.Is(aerr, ErrRideNotFound) {
			if cerr := s.guard.CleanupStale(ctx, riderID); cerr != nil {
				logger.WithContext(ctx).Warn("stale create lock cleanup failed",
					zap.String("rider_id", riderID.String()), zap.Error(cerr))
			}
			release, err = s.guard.AcquireCreate(ctx, riderID)
		}
	}
	switch {
	case errors.Is(err, locks.ErrNotAcquired):
		return nil, common.NewConflictError("a ride request is already being processed")
	case err != nil:
		logger.WithContext(ctx).Warn("lock backend unavailable, degrading to storage check",
			zap.String("rider_id", riderID.String()), zap.Error(err))
	default:
		defer release()
	}

	if active, err := s.store.GetActiveByRider(ctx, riderID); err == nil && active != nil {
		return nil, common.NewConflictError("rider already has an active ride")
	} else if err != nil && !errors.Is(err, ErrRideNotFound) {
		return nil, common.NewInternalError("failed to check active rides", err)
	}

	distance := req.DistanceKm
	if distance <= 0 || distance > geo.MaxPlausibleDistanceKm {
		distance = geo.HaversineKm(req.PickupLocation, req.DropoffLocation)
	}
	estimated := req.EstimatedMin
	if estimated <= 0 {
		estimated = geo.EstimateETA(distance).Minutes()
	}

	snapshot, err := s.pricing.Snapshot(ctx)
	if err != nil {
		return nil, common.NewServiceUnavailableError("pricing configuration unavailable", err)
	}

	var breakdown fares.Breakdown
	if req.BookingType == fares.BookingInstant {
		breakdown, err = s.engine.Quote(snapshot, req.VehicleTier, distance, estimated)
	} else {
		breakdown, err = s.engine.FlatFare(snapshot, req.BookingType, req.BookingMeta.Units(req.BookingType))
	}
	if err != nil {
		return nil, common.NewBadRequestError(err.Error(), err)
	}

	var promoCode *string
	if req.PromoCode != "" {
		promo, pctx, err := s.pricing.ResolvePromo(ctx, req.PromoCode, riderID, req.BookingType)
		if err != nil {
			return nil, common.NewBadRequestError("invalid promo code", err)
		}
		breakdown, err = s.engine.ApplyPromo(breakdown, promo, pctx)
		if err != nil {
			return nil, common.NewBadRequestError(err.Error(), err)
		}
		promoCode = &req.PromoCode
	}

	startOTP, err := generateOTP()
	if err != nil {
		return nil, common.NewInternalError("failed to generate otp", err)
	}
	stopOTP, err := generateOTP()
	if err != nil {
		return nil, common.NewInternalError("failed to generate otp", err)
	}

	ride := &Ride{
		ID:                   uuid.New(),
		RiderID:              riderID,
		PickupLocation:       req.PickupLocation,
		DropoffLocation:      req.DropoffLocation,
		DistanceKm:           distance,
		VehicleTier:          req.VehicleTier,
		Fare:                 breakdown.Final,
		FareBreakdown:        breakdown,
		PromoCode:            promoCode,
		Discount:             breakdown.Discount,
		PaymentMethod:        req.PaymentMethod,
		PaymentStatus:        PaymentPending,
		Status:               StatusRequested,
		BookingType:          req.BookingType,
		BookingMeta:          req.BookingMeta,
		StartOTP:             startOTP,
		StopOTP:              stopOTP,
		EstimatedDurationMin: estimated,
		RideFor:              req.RideFor,
		Passenger:            req.Passenger,
	}

	if err := s.store.Create(ctx, ride); err != nil {
		return nil, common.NewInternalError("failed to create ride", err)
	}

	if promoCode != nil {
		if err := s.pricing.CommitPromo(ctx, *promoCode, riderID, ride.ID); err != nil {
			logger.WithContext(ctx).Warn("failed to record promo usage",
				zap.String("ride_id", ride.ID.String()), zap.Error(err))
		}
	}

	s.publish(ctx, eventbus.EventRideRequested, eventbus.RideRequestedData{
		RideID:      ride.ID,
		RiderID:     riderID,
		BookingType: string(ride.BookingType),
		PickupLat:   ride.PickupLocation.Lat,
		PickupLng:   ride.PickupLocation.Lng,
	})

	if err := s.queue.Enqueue(ctx, ride.ID); err != nil {
		logger.WithContext(ctx).Error("failed to enqueue discovery job",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
	}

	return &CreateResponse{Ride: ride, StartOTP: startOTP, StopOTP: stopOTP}, nil
}

// GetRide retrieves a ride for one of its parties.
func (s *Service) GetRide(ctx context.Context, rideID uuid.UUID) (*Ride, error) {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get ride", err)
	}
	return ride, nil
}

// ListRides returns the rider's history.
func (s *Service) ListRides(ctx context.Context, riderID uuid.UUID, limit, offset int) ([]*Ride, error) {
	rides, err := s.store.ListByRider(ctx, riderID, limit, offset)
	if err != nil {
		return nil, common.NewInternalError("failed to list rides", err)
	}
	return rides, nil
}

// MarkArrived transitions accepted to arrived for the assigned driver.
func (s *Service) MarkArrived(ctx context.Context, rideID, driverID uuid.UUID) (*Ride, error) {
	ride, err := s.store.MarkArrived(ctx, rideID, driverID)
	if errors.Is(err, ErrRideNotFound) {
		return nil, s.transitionError(ctx, rideID, driverID, StatusAccepted)
	}
	if err != nil {
		return nil, common.NewInternalError("failed to mark arrival", err)
	}

	s.publish(ctx, eventbus.EventRideArrived, eventbus.RideAcceptedData{
		RideID: ride.ID, RiderID: ride.RiderID, DriverID: driverID,
	})
	return ride, nil
}

// StartRide verifies the start OTP and transitions to in_progress.
func (s *Service) StartRide(ctx context.Context, rideID, driverID uuid.UUID, otp string) (*Ride, error) {
	ride, err := s.loadForDriver(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	if ride.Status != StatusAccepted && ride.Status != StatusArrived {
		return nil, common.NewUnprocessableError("ride cannot be started in status " + string(ride.Status))
	}
	if otp != ride.StartOTP {
		return nil, common.NewBadRequestError("incorrect start otp", nil)
	}

	started, err := s.store.Start(ctx, rideID, time.Now().UTC())
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewUnprocessableError("ride is no longer startable")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to start ride", err)
	}

	s.publish(ctx, eventbus.EventRideStarted, eventbus.RideStartedData{
		RideID: started.ID, DriverID: driverID, StartedAt: *started.ActualStartTime,
	})
	return started, nil
}

// CompleteRide verifies the stop OTP, persists trip times, recalculates the
// fare from durable state and finalises the ride. The driver's busy flag is
// cleared only after the ride is marked completed.
func (s *Service) CompleteRide(ctx context.Context, rideID, driverID uuid.UUID, otp string) (*Ride, error) {
	ride, err := s.loadForDriver(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	if ride.Status != StatusInProgress {
		return nil, common.NewUnprocessableError("ride cannot be completed in status " + string(ride.Status))
	}
	if otp != ride.StopOTP {
		return nil, common.NewBadRequestError("incorrect stop otp", nil)
	}
	if ride.ActualStartTime == nil {
		return nil, common.NewInternalError("ride has no recorded start time", nil)
	}

	endedAt := time.Now().UTC()
	durationMin := endedAt.Sub(*ride.ActualStartTime).Minutes()
	if err := s.store.PersistTripTimes(ctx, rideID, endedAt, durationMin); err != nil {
		return nil, common.NewInternalError("failed to persist trip times", err)
	}

	// Re-read so recalculation uses the durable duration, not the in-memory
	// value; a restart between the two writes then resumes correctly.
	ride, err = s.store.GetByID(ctx, rideID)
	if err != nil {
		return nil, common.NewInternalError("failed to reload ride", err)
	}

	breakdown, err := s.finalBreakdown(ctx, ride)
	if err != nil {
		return nil, err
	}

	completed, err := s.store.Complete(ctx, rideID, breakdown)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewUnprocessableError("ride is no longer completable")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to complete ride", err)
	}

	// Scheduled bookings set the flag at window open, instant ones at
	// assignment; either way completion frees the driver.
	if err := s.drivers.SetBusy(ctx, driverID, false); err != nil {
		logger.WithContext(ctx).Warn("failed to clear driver busy flag",
			zap.String("driver_id", driverID.String()), zap.Error(err))
	}

	s.publishEarnings(ctx, completed)
	s.publish(ctx, eventbus.EventRideCompleted, eventbus.RideCompletedData{
		RideID:      completed.ID,
		DriverID:    driverID,
		FinalFare:   completed.Fare,
		CompletedAt: endedAt,
	})
	return completed, nil
}

// CancelRide cancels a pre-terminal ride, computes the fee from the status
// the ride held before cancellation, and hands off to refund orchestration.
// Refund failures are logged, never rolled back into the cancellation.
func (s *Service) CancelRide(ctx context.Context, rideID uuid.UUID, cancelledBy, reason string) (*Ride, error) {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get ride", err)
	}
	if ride.Status.IsTerminal() {
		return nil, common.NewUnprocessableError("ride is already " + string(ride.Status))
	}

	originalStatus := ride.Status
	fee := s.refunder.ComputeCancellationFee(originalStatus, cancelledBy, reason)

	cancelled, err := s.store.Cancel(ctx, rideID, cancelledBy, reason, fee)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewUnprocessableError("ride is no longer cancellable")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to cancel ride", err)
	}

	if err := s.refunder.Refund(ctx, cancelled, fee); err != nil {
		logger.WithContext(ctx).Error("refund failed, requires manual follow-up",
			zap.String("ride_id", rideID.String()), zap.Error(err))
	}

	if cancelled.DriverID != nil &&
		(cancelled.BookingType == fares.BookingInstant || originalStatus == StatusInProgress) {
		if err := s.drivers.SetBusy(ctx, *cancelled.DriverID, false); err != nil {
			logger.WithContext(ctx).Warn("failed to clear driver busy flag",
				zap.String("driver_id", cancelled.DriverID.String()), zap.Error(err))
		}
	}

	s.publish(ctx, eventbus.EventRideCancelled, eventbus.RideCancelledData{
		RideID:          cancelled.ID,
		CancelledBy:     cancelledBy,
		CancellationFee: fee,
	})
	return cancelled, nil
}

// UpdateRide applies rider edits under the status guardrails: passenger
// details freeze once a driver has accepted, and OTPs are never updatable.
func (s *Service) UpdateRide(ctx context.Context, rideID, riderID uuid.UUID, req *UpdateRequest) (*Ride, error) {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get ride", err)
	}
	if ride.RiderID != riderID {
		return nil, common.NewForbiddenError("not your ride")
	}
	if ride.Status.IsTerminal() {
		return nil, common.NewUnprocessableError("ride is already " + string(ride.Status))
	}

	if req.Passenger != nil {
		if ride.Status != StatusRequested {
			return nil, common.NewUnprocessableError("passenger details are locked once a driver accepts")
		}
		ride.Passenger = req.Passenger
	}

	if req.DropoffLocation != nil {
		if !req.DropoffLocation.Valid() {
			return nil, common.NewBadRequestError("invalid dropoff location", nil)
		}
		ride.DropoffLocation = *req.DropoffLocation
		ride.DistanceKm = geo.HaversineKm(ride.PickupLocation, ride.DropoffLocation)
	}

	if err := s.store.UpdateDetails(ctx, ride); err != nil {
		return nil, common.NewInternalError("failed to update ride", err)
	}
	return ride, nil
}

// ShareRide issues a time-boxed token for third-party trip visibility.
func (s *Service) ShareRide(ctx context.Context, rideID, riderID uuid.UUID) (string, error) {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return "", common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return "", common.NewInternalError("failed to get ride", err)
	}
	if ride.RiderID != riderID {
		return "", common.NewForbiddenError("not your ride")
	}

	token := generateShareToken()
	if err := s.store.SetShareToken(ctx, rideID, token, time.Now().Add(shareTokenTTL)); err != nil {
		return "", common.NewInternalError("failed to share ride", err)
	}
	return token, nil
}

// UnshareRide revokes an earlier share link.
func (s *Service) UnshareRide(ctx context.Context, rideID, riderID uuid.UUID) error {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return common.NewInternalError("failed to get ride", err)
	}
	if ride.RiderID != riderID {
		return common.NewForbiddenError("not your ride")
	}

	if err := s.store.ClearShareToken(ctx, rideID); err != nil {
		return common.NewInternalError("failed to unshare ride", err)
	}
	return nil
}

// GetSharedRide resolves a share token.
func (s *Service) GetSharedRide(ctx context.Context, token string) (*Ride, error) {
	ride, err := s.store.GetByShareToken(ctx, token)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("shared ride not found or link expired")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to resolve share link", err)
	}
	return ride, nil
}

func (s *Service) loadForDriver(ctx context.Context, rideID, driverID uuid.UUID) (*Ride, error) {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get ride", err)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return nil, common.NewForbiddenError("ride is not assigned to this driver")
	}
	return ride, nil
}

func (s *Service) transitionError(ctx context.Context, rideID, driverID uuid.UUID, want Status) error {
	ride, err := s.store.GetByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return common.NewNotFoundError("ride not found")
	}
	if err != nil {
		return common.NewInternalError("failed to get ride", err)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return common.NewForbiddenError("ride is not assigned to this driver")
	}
	return common.NewUnprocessableError("ride is in status " + string(ride.Status) + ", expected " + string(want))
}

// finalBreakdown recalculates an instant ride's fare from its durable state.
// Non-instant bookings keep their flat quote.
func (s *Service) finalBreakdown(ctx context.Context, ride *Ride) (fares.Breakdown, error) {
	if ride.BookingType != fares.BookingInstant {
		return ride.FareBreakdown, nil
	}
	if ride.ActualDurationMin == nil {
		return fares.Breakdown{}, common.NewInternalError("ride has no recorded duration", nil)
	}

	snapshot, err := s.pricing.Snapshot(ctx)
	if err != nil {
		// Recalculation is an adjustment; the quoted fare stands if the
		// pricing provider is down.
		logger.WithContext(ctx).Warn("pricing unavailable, keeping quoted fare",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
		return ride.FareBreakdown, nil
	}

	in := fares.RecalculateInput{
		Pricing:      snapshot,
		VehicleTier:  ride.VehicleTier,
		DistanceKm:   ride.DistanceKm,
		EstimatedMin: ride.EstimatedDurationMin,
		ActualMin:    *ride.ActualDurationMin,
		Quoted:       ride.FareBreakdown,
	}
	if ride.PromoCode != nil {
		promo, pctx, err := s.pricing.ResolvePromo(ctx, *ride.PromoCode, ride.RiderID, ride.BookingType)
		if err == nil {
			in.Promo = &promo
			in.PromoContext = pctx
		}
	}

	breakdown, err := s.engine.Recalculate(in)
	if err != nil {
		logger.WithContext(ctx).Warn("fare recalculation failed, keeping quoted fare",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
		return ride.FareBreakdown, nil
	}
	return breakdown, nil
}

func (s *Service) publishEarnings(ctx context.Context, ride *Ride) {
	snapshot, err := s.pricing.Snapshot(ctx)
	if err != nil {
		logger.WithContext(ctx).Warn("pricing unavailable, skipping earnings event",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
		return
	}

	split := s.engine.SplitEarnings(ride.Fare, snapshot.PlatformFeePct, snapshot.DriverCommissionPct)
	if split.Adjusted {
		logger.WithContext(ctx).Warn("earnings split corrected beyond tolerance",
			zap.String("ride_id", ride.ID.String()),
			zap.Float64("fare", ride.Fare),
			zap.Float64("platform_fee", split.PlatformFee),
			zap.Float64("driver_earning", split.DriverEarning))
	}

	s.publish(ctx, "ride.earnings", map[string]any{
		"ride_id":        ride.ID,
		"breakdown":      ride.FareBreakdown,
		"platform_fee":   split.PlatformFee,
		"driver_earning": split.DriverEarning,
	})
}

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if err := s.bus.Publish(ctx, eventbus.SubjectRides, eventType, payload); err != nil {
		logger.WithContext(ctx).Warn("failed to publish event",
			zap.String("type", eventType), zap.Error(err))
	}
}
