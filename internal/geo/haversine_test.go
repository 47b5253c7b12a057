package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name       string
		lat1, lng1 float64
		lat2, lng2 float64
		want       float64
		delta      float64
	}{
		{"same point", 12.9716, 77.5946, 12.9716, 77.5946, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111.195, 0.01},
		{"bengaluru to mumbai", 12.9716, 77.5946, 19.0760, 72.8777, 845, 5},
		{"antipodes", 0, 0, 0, 180, 20015.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}

func TestHaversineKmSymmetric(t *testing.T) {
	a := HaversineKm(55.7558, 37.6173, 59.9343, 30.3351)
	b := HaversineKm(59.9343, 30.3351, 55.7558, 37.6173)
	assert.InDelta(t, a, b, 1e-9)
}
