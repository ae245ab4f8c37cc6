package geo

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/ride-dispatch/pkg/redis"
)

func newTestIndex(t *testing.T) (*DriverIndex, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return NewDriverIndex(redis.Wrap(db)), mock
}

func TestUpdateLocation(t *testing.T) {
	idx, mock := newTestIndex(t)

	mock.ExpectGeoAdd(driverGeoKey, &goredis.GeoLocation{
		Name:      "driver-1",
		Latitude:  28.6315,
		Longitude: 77.2167,
	}).SetVal(1)
	mock.ExpectSet(lastSeenKeyPrefix+"driver-1", "1", 2*time.Minute).SetVal("OK")

	err := idx.UpdateLocation(context.Background(), "driver-1", Point{Lat: 28.6315, Lng: 77.2167})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLocation_RejectsInvalidCoordinates(t *testing.T) {
	idx, _ := newTestIndex(t)
	err := idx.UpdateLocation(context.Background(), "driver-1", Point{Lat: 95, Lng: 0})
	assert.Error(t, err)
}

func TestNearby_FiltersStaleDrivers(t *testing.T) {
	idx, mock := newTestIndex(t)

	origin := Point{Lat: 28.6315, Lng: 77.2167}
	mock.ExpectGeoSearchLocation(driverGeoKey, &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Latitude:   origin.Lat,
			Longitude:  origin.Lng,
			Radius:     3,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      10,
		},
		WithCoord: true,
		WithDist:  true,
	}).SetVal([]goredis.GeoLocation{
		{Name: "driver-fresh", Dist: 1.234, Latitude: 28.64, Longitude: 77.22},
		{Name: "driver-stale", Dist: 2.5, Latitude: 28.65, Longitude: 77.23},
	})
	mock.ExpectExists(lastSeenKeyPrefix + "driver-fresh").SetVal(1)
	mock.ExpectExists(lastSeenKeyPrefix + "driver-stale").SetVal(0)

	got, err := idx.Nearby(context.Background(), origin, 3, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "driver-fresh", got[0].DriverID)
	assert.Equal(t, 1.23, got[0].DistanceKm)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove(t *testing.T) {
	idx, mock := newTestIndex(t)
	mock.ExpectZRem(driverGeoKey, "driver-1").SetVal(1)

	require.NoError(t, idx.Remove(context.Background(), "driver-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
