package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Connaught Place to IGI Airport, Delhi. Roughly 16 km great-circle.
	cp := Point{Lat: 28.6315, Lng: 77.2167}
	igi := Point{Lat: 28.5562, Lng: 77.1000}

	d := HaversineKm(cp, igi)
	assert.InDelta(t, 14.2, d, 0.5)
}

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	p := Point{Lat: 12.9716, Lng: 77.5946}
	assert.Equal(t, 0.0, HaversineKm(p, p))
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := Point{Lat: 19.0760, Lng: 72.8777}
	b := Point{Lat: 18.5204, Lng: 73.8567}
	assert.Equal(t, HaversineKm(a, b), HaversineKm(b, a))
}

func TestHaversineKm_RoundsToTwoDecimals(t *testing.T) {
	a := Point{Lat: 28.6315, Lng: 77.2167}
	b := Point{Lat: 28.6350, Lng: 77.2200}
	d := HaversineKm(a, b)
	assert.InDelta(t, math.Round(d*100)/100, d, 1e-9)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 0, Lng: 0}.Valid())
	assert.True(t, Point{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: -181}.Valid())
}

func TestEstimateETA(t *testing.T) {
	assert.Equal(t, time.Minute, EstimateETA(0))
	assert.Equal(t, time.Minute, EstimateETA(0.1))
	// 30 km at 30 km/h is one hour.
	assert.Equal(t, time.Hour, EstimateETA(30))
	assert.Equal(t, 10*time.Minute, EstimateETA(5))
}
