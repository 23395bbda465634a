package geo

import (
	"math"
	"testing"
)

func TestDistance_OneThousandthDegreeLatitude(t *testing.T) {
	d := Distance(39.914, 116.404, 39.915, 116.404)

	if math.Abs(d-111.195) > 0.01 {
		t.Errorf("expected ~111.195m, got %f", d)
	}
}

func TestDistance_SamePoint(t *testing.T) {
	if d := Distance(10, 20, 10, 20); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestInitialBearing_Cardinal(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
	}{
		{"north", 39.914, 116.404, 39.915, 116.404, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InitialBearing(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestNormalizeDegrees(t *testing.T) {
	if got := NormalizeDegrees(-90); got != 270 {
		t.Errorf("expected 270, got %f", got)
	}
	if got := NormalizeDegrees(720); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestDestination_InvertsDistanceAndBearing(t *testing.T) {
	lat, lng := Destination(39.915, 116.404, 45, 1000)

	if d := Distance(39.915, 116.404, lat, lng); math.Abs(d-1000) > 1e-6 {
		t.Errorf("expected 1000m, got %f", d)
	}
	if b := InitialBearing(39.915, 116.404, lat, lng); math.Abs(b-45) > 1e-6 {
		t.Errorf("expected bearing 45, got %f", b)
	}
}
