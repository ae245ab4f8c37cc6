package drivers

import (
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-dispatch/internal/geo"
)

// Driver is the dispatch-facing view of a driver. Profile CRUD lives in the
// accounts service; this service only reads and flips availability state.
type Driver struct {
	ID          uuid.UUID  `json:"id"`
	IsActive    bool       `json:"is_active"`
	IsOnline    bool       `json:"is_online"`
	IsBusy      bool       `json:"is_busy"`
	BusyUntil   *time.Time `json:"busy_until,omitempty"`
	VehicleType string     `json:"vehicle_type"`
	Location    geo.Point  `json:"location"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AvailableForInstant reports whether the driver can take an instant ride now.
func (d *Driver) AvailableForInstant() bool {
	return d.IsActive && d.IsOnline && !d.IsBusy
}

// AvailableForScheduled reports whether the driver can take a FULL_DAY or
// RENTAL booking. A driver busy only with a future scheduled booking is still
// eligible because the windows do not overlap yet.
func (d *Driver) AvailableForScheduled(now time.Time) bool {
	if !d.IsActive || !d.IsOnline {
		return false
	}
	if !d.IsBusy {
		return true
	}
	return d.BusyUntil != nil && d.BusyUntil.After(now)
}

// LocationUpdate is the heartbeat payload a driver app sends.
type LocationUpdate struct {
	Lat float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng float64 `json:"lng" binding:"required,min=-180,max=180"`
}
