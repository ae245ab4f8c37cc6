package drivers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/geo"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/logger"
)

// Store is the persistence surface the driver service depends on.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Driver, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error
	ReconcileBusy(ctx context.Context, id uuid.UUID) (bool, error)
}

// Index is the searchable location index, satisfied by geo.DriverIndex.
type Index interface {
	UpdateLocation(ctx context.Context, driverID string, p geo.Point) error
	Remove(ctx context.Context, driverID string) error
}

// Service owns driver availability: heartbeats, presence and the busy-flag
// reconciliation pass.
type Service struct {
	store Store
	index Index
}

// NewService creates a new driver service.
func NewService(store Store, index Index) *Service {
	return &Service{store: store, index: index}
}

// Heartbeat persists the driver's position and refreshes the geo index.
// Busy drivers are kept out of the index so they never surface in search.
func (s *Service) Heartbeat(ctx context.Context, driverID uuid.UUID, update LocationUpdate) error {
	p := geo.Point{Lat: update.Lat, Lng: update.Lng}
	if !p.Valid() {
		return common.NewBadRequestError("invalid coordinates", nil)
	}

	driver, err := s.store.GetByID(ctx, driverID)
	if errors.Is(err, ErrDriverNotFound) {
		return common.NewNotFoundError("driver not found")
	}
	if err != nil {
		return common.NewInternalError("failed to load driver", err)
	}

	if err := s.store.UpdateLocation(ctx, driverID, p.Lat, p.Lng); err != nil {
		return common.NewInternalError("failed to update location", err)
	}

	if driver.IsActive && driver.IsOnline && !driver.IsBusy {
		if err := s.index.UpdateLocation(ctx, driverID.String(), p); err != nil {
			return common.NewInternalError("failed to index location", err)
		}
	} else {
		if err := s.index.Remove(ctx, driverID.String()); err != nil {
			logger.Get().Warn("failed to deindex driver",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}
	return nil
}

// GoOnline marks the driver available for dispatch.
func (s *Service) GoOnline(ctx context.Context, driverID uuid.UUID) error {
	if err := s.store.SetOnline(ctx, driverID, true); err != nil {
		if errors.Is(err, ErrDriverNotFound) {
			return common.NewNotFoundError("driver not found")
		}
		return common.NewInternalError("failed to go online", err)
	}
	return nil
}

// GoOffline marks the driver unavailable and drops them from the index.
func (s *Service) GoOffline(ctx context.Context, driverID uuid.UUID) error {
	if err := s.store.SetOnline(ctx, driverID, false); err != nil {
		if errors.Is(err, ErrDriverNotFound) {
			return common.NewNotFoundError("driver not found")
		}
		return common.NewInternalError("failed to go offline", err)
	}
	if err := s.index.Remove(ctx, driverID.String()); err != nil {
		logger.Get().Warn("failed to deindex driver",
			zap.String("driver_id", driverID.String()), zap.Error(err))
	}
	return nil
}

// Reconcile recomputes the driver's busy flag from their active rides. Used
// after completion and by operational tooling when drift is suspected.
func (s *Service) Reconcile(ctx context.Context, driverID uuid.UUID) (bool, error) {
	busy, err := s.store.ReconcileBusy(ctx, driverID)
	if err != nil {
		if errors.Is(err, ErrDriverNotFound) {
			return false, common.NewNotFoundError("driver not found")
		}
		return false, common.NewInternalError("failed to reconcile driver", err)
	}
	if busy {
		if err := s.index.Remove(ctx, driverID.String()); err != nil {
			logger.Get().Warn("failed to deindex driver",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}
	return busy, nil
}
