package geo

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/richxcame/ride-dispatch/pkg/redis"
)

const (
	driverGeoKey = "geo:drivers:available"

	// locationTTL expires a driver's last-seen marker. Drivers that stop
	// heartbeating drop out of search results via the freshness check.
	locationTTL = 2 * time.Minute

	lastSeenKeyPrefix = "geo:drivers:seen:"
)

// Candidate is one driver returned by a radius search.
type Candidate struct {
	DriverID   string
	DistanceKm float64
	Location   Point
}

// DriverIndex maintains available driver positions in a Redis GEO set.
type DriverIndex struct {
	client *redis.Client
}

// NewDriverIndex builds an index over the shared Redis client.
func NewDriverIndex(client *redis.Client) *DriverIndex {
	return &DriverIndex{client: client}
}

// UpdateLocation upserts the driver position and refreshes the freshness marker.
func (idx *DriverIndex) UpdateLocation(ctx context.Context, driverID string, p Point) error {
	if !p.Valid() {
		return fmt.Errorf("invalid coordinates (%f, %f)", p.Lat, p.Lng)
	}
	if err := idx.client.GeoAdd(ctx, driverGeoKey, &goredis.GeoLocation{
		Name:      driverID,
		Latitude:  p.Lat,
		Longitude: p.Lng,
	}).Err(); err != nil {
		return fmt.Errorf("geoadd driver %s: %w", driverID, err)
	}
	if err := idx.client.SetWithExpiration(ctx, lastSeenKeyPrefix+driverID, "1", locationTTL); err != nil {
		return fmt.Errorf("mark driver %s seen: %w", driverID, err)
	}
	return nil
}

// Remove deletes the driver from the searchable set, typically on going
// offline or accepting a ride.
func (idx *DriverIndex) Remove(ctx context.Context, driverID string) error {
	if err := idx.client.ZRem(ctx, driverGeoKey, driverID).Err(); err != nil {
		return fmt.Errorf("remove driver %s: %w", driverID, err)
	}
	return nil
}

// Nearby returns up to limit drivers within radiusKm of origin, closest first,
// filtered to those with a fresh heartbeat.
func (idx *DriverIndex) Nearby(ctx context.Context, origin Point, radiusKm float64, limit int) ([]Candidate, error) {
	locs, err := idx.client.GeoSearchLocation(ctx, driverGeoKey, &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Latitude:   origin.Lat,
			Longitude:  origin.Lng,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	candidates := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		fresh, err := idx.client.Exists(ctx, lastSeenKeyPrefix+loc.Name)
		if err != nil {
			return nil, fmt.Errorf("freshness check %s: %w", loc.Name, err)
		}
		if !fresh {
			continue
		}
		candidates = append(candidates, Candidate{
			DriverID:   loc.Name,
			DistanceKm: round2(loc.Dist),
			Location:   Point{Lat: loc.Latitude, Lng: loc.Longitude},
		})
	}
	return candidates, nil
}
