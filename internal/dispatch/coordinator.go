package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/drivers"
	"github.com/richxcame/ride-dispatch/internal/fares"
	"github.com/richxcame/ride-dispatch/internal/geo"
	"github.com/richxcame/ride-dispatch/internal/locks"
	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/websocket"
)

// Candidate is an eligible driver found by a discovery round.
type Candidate struct {
	DriverID   uuid.UUID `json:"driver_id"`
	DistanceKm float64   `json:"distance_km"`
	ETAMin     float64   `json:"eta_min"`
}

// SearchResult carries the candidates plus the radius that produced them.
type SearchResult struct {
	Candidates []Candidate `json:"candidates"`
	RadiusKm   float64     `json:"radius_km"`
}

// Coordinator finds candidate drivers via progressive radius expansion and
// performs the race-free driver-to-ride assignment.
type Coordinator struct {
	rides         RideStore
	drivers       DriverStore
	index         GeoIndex
	sessions      Sessions
	guard         Locker
	bus           Publisher
	radiiKm       []float64
	maxCandidates int
}

// NewCoordinator creates a dispatch coordinator. radiiKm must be ascending.
func NewCoordinator(rideStore RideStore, driverStore DriverStore, index GeoIndex,
	sessions Sessions, guard Locker, bus Publisher, radiiKm []float64, maxCandidates int) *Coordinator {
	return &Coordinator{
		rides:         rideStore,
		drivers:       driverStore,
		index:         index,
		sessions:      sessions,
		guard:         guard,
		bus:           bus,
		radiiKm:       radiiKm,
		maxCandidates: maxCandidates,
	}
}

// FindCandidates tries each radius in order and stops at the first one that
// yields at least one eligible driver. An empty result means the largest
// radius was exhausted.
func (c *Coordinator) FindCandidates(ctx context.Context, pickup geo.Point, bookingType fares.BookingType, vehicleTier string) (*SearchResult, error) {
	for _, radius := range c.radiiKm {
		near, err := c.index.Nearby(ctx, pickup, radius, c.maxCandidates*3)
		if err != nil {
			return nil, err
		}
		if len(near) == 0 {
			continue
		}

		eligible, err := c.filterEligible(ctx, near, bookingType, vehicleTier)
		if err != nil {
			return nil, err
		}
		if len(eligible) == 0 {
			continue
		}
		if len(eligible) > c.maxCandidates {
			eligible = eligible[:c.maxCandidates]
		}
		return &SearchResult{Candidates: eligible, RadiusKm: radius}, nil
	}
	return &SearchResult{}, nil
}

// filterEligible keeps drivers that are active, online, reachable over a live
// session, tier-matched and not busy. FULL_DAY and RENTAL bookings also admit
// drivers whose only commitment is a future scheduled window.
func (c *Coordinator) filterEligible(ctx context.Context, near []geo.Candidate, bookingType fares.BookingType, vehicleTier string) ([]Candidate, error) {
	ids := make([]uuid.UUID, 0, len(near))
	distance := make(map[uuid.UUID]float64, len(near))
	for _, n := range near {
		id, err := uuid.Parse(n.DriverID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		distance[id] = n.DistanceKm
	}

	records, err := c.drivers.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*drivers.Driver, len(records))
	for _, d := range records {
		byID[d.ID] = d
	}

	scheduled := bookingType == fares.BookingFullDay || bookingType == fares.BookingRental
	now := time.Now()

	var eligible []Candidate
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			continue
		}
		if vehicleTier != "" && d.VehicleType != vehicleTier {
			continue
		}
		if !c.sessions.IsConnected(id) {
			continue
		}

		available := d.AvailableForInstant()
		if !available && scheduled {
			available = d.AvailableForScheduled(now)
		}
		if !available {
			continue
		}

		eligible = append(eligible, Candidate{
			DriverID:   id,
			DistanceKm: distance[id],
			ETAMin:     geo.EstimateETA(distance[id]).Minutes(),
		})
	}
	return eligible, nil
}

// Assign performs the atomic driver-to-ride assignment. The conditional
// update in the store is the sole race-prevention mechanism; the acceptance
// lock only fails concurrent attempts fast with a clearer error.
func (c *Coordinator) Assign(ctx context.Context, rideID, driverID uuid.UUID) (*rides.Ride, error) {
	release, err := c.guard.AcquireAccept(ctx, rideID)
	switch {
	case errors.Is(err, locks.ErrNotAcquired):
		return nil, common.NewConflictError("ride is being accepted by another driver")
	case err != nil:
		logger.WithContext(ctx).Warn("lock backend unavailable, relying on conditional update",
			zap.String("ride_id", rideID.String()), zap.Error(err))
	default:
		defer release()
	}

	ride, err := c.rides.AssignDriver(ctx, rideID, driverID)
	switch {
	case errors.Is(err, rides.ErrAlreadyAssigned):
		return nil, common.NewConflictError("ride is no longer available")
	case errors.Is(err, rides.ErrNotAssignable):
		return nil, common.NewUnprocessableError("ride is no longer open for assignment")
	case errors.Is(err, rides.ErrRideNotFound):
		return nil, common.NewNotFoundError("ride not found")
	case err != nil:
		return nil, common.NewInternalError("failed to assign driver", err)
	}

	c.markDriverCommitted(ctx, ride, driverID)

	if err := c.bus.Publish(ctx, eventbus.SubjectRides, eventbus.EventRideAccepted, eventbus.RideAcceptedData{
		RideID:   ride.ID,
		RiderID:  ride.RiderID,
		DriverID: driverID,
	}); err != nil {
		logger.WithContext(ctx).Warn("failed to publish accept event",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
	}

	c.sessions.SendToUser(ride.RiderID, websocket.Message{
		Type: "ride_accepted",
		Data: map[string]any{"ride_id": ride.ID, "driver_id": driverID},
	})
	return ride, nil
}

// markDriverCommitted flips the busy flags after a successful assignment.
// Instant rides make the driver busy now; scheduled bookings only record the
// window end so the driver stays dispatchable until it opens.
func (c *Coordinator) markDriverCommitted(ctx context.Context, ride *rides.Ride, driverID uuid.UUID) {
	log := logger.WithContext(ctx)

	switch ride.BookingType {
	case fares.BookingFullDay, fares.BookingRental:
		if ride.BookingMeta != nil && ride.BookingMeta.EndTime != nil {
			if err := c.drivers.SetBusyUntil(ctx, driverID, *ride.BookingMeta.EndTime); err != nil {
				log.Warn("failed to set driver busy window",
					zap.String("driver_id", driverID.String()), zap.Error(err))
			}
		}
	default:
		if err := c.drivers.SetBusy(ctx, driverID, true); err != nil {
			log.Warn("failed to set driver busy",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
		if err := c.index.Remove(ctx, driverID.String()); err != nil {
			log.Warn("failed to deindex driver",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}
}

// ProcessJob handles one discovery job: search for candidates and notify
// them. The per-ride matching lock keeps concurrent workers from running
// duplicate rounds. A job with no candidates at the largest radius is
// terminal; the scheduler later expires rides stuck in requested.
func (c *Coordinator) ProcessJob(ctx context.Context, rideID uuid.UUID) error {
	release, err := c.guard.AcquireMatch(ctx, rideID)
	if errors.Is(err, locks.ErrNotAcquired) {
		logger.WithContext(ctx).Debug("matching already in progress",
			zap.String("ride_id", rideID.String()))
		return nil
	}
	if err == nil {
		defer release()
	}

	ride, err := c.rides.GetByID(ctx, rideID)
	if errors.Is(err, rides.ErrRideNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if ride.Status != rides.StatusRequested || ride.HasDriver() {
		return nil
	}

	result, err := c.FindCandidates(ctx, ride.PickupLocation, ride.BookingType, ride.VehicleTier)
	if err != nil {
		return err
	}
	if len(result.Candidates) == 0 {
		logger.WithContext(ctx).Info("no drivers found at any radius",
			zap.String("ride_id", rideID.String()),
			zap.Float64("max_radius_km", c.radiiKm[len(c.radiiKm)-1]))
		return nil
	}

	for _, cand := range result.Candidates {
		c.sessions.SendToUser(cand.DriverID, websocket.Message{
			Type: "ride_offer",
			Data: map[string]any{
				"ride_id":     ride.ID,
				"pickup":      ride.PickupLocation,
				"dropoff":     ride.DropoffLocation,
				"fare":        ride.Fare,
				"distance_km": cand.DistanceKm,
			},
		})
	}

	logger.WithContext(ctx).Info("notified candidate drivers",
		zap.String("ride_id", rideID.String()),
		zap.Int("candidates", len(result.Candidates)),
		zap.Float64("radius_km", result.RadiusKm))
	return nil
}
