package geo

import (
	"math"
	"testing"
)

func TestWGS84ToGCJ02_OffsetsInsideChina(t *testing.T) {
	lat, lng := WGS84ToGCJ02(39.915, 116.404)

	d := Distance(39.915, 116.404, lat, lng)
	if d < 100 || d > 1000 {
		t.Errorf("expected a few hundred meters offset, got %f", d)
	}
}

func TestWGS84ToGCJ02_NoOffsetOutsideChina(t *testing.T) {
	lat, lng := WGS84ToGCJ02(48.8566, 2.3522)

	if lat != 48.8566 || lng != 2.3522 {
		t.Errorf("expected unchanged coordinates, got (%f, %f)", lat, lng)
	}
}

func TestGCJ02RoundTrip(t *testing.T) {
	gLat, gLng := WGS84ToGCJ02(39.915, 116.404)
	lat, lng := GCJ02ToWGS84(gLat, gLng)

	if math.Abs(lat-39.915) > 1e-7 || math.Abs(lng-116.404) > 1e-7 {
		t.Errorf("round trip drifted: (%f, %f)", lat, lng)
	}
}

func TestBD09RoundTrip(t *testing.T) {
	bLat, bLng := FromWGS84(31.2304, 121.4737, BD09)
	lat, lng := ToWGS84(bLat, bLng, BD09)

	if d := Distance(31.2304, 121.4737, lat, lng); d > 1 {
		t.Errorf("round trip drifted %fm", d)
	}
}

func TestToWGS84_WGS84IsIdentity(t *testing.T) {
	lat, lng := ToWGS84(39.915, 116.404, WGS84)
	if lat != 39.915 || lng != 116.404 {
		t.Errorf("expected identity, got (%f, %f)", lat, lng)
	}
}

func TestParseDatum(t *testing.T) {
	tests := map[string]Datum{
		"":       WGS84,
		"WGS-84": WGS84,
		"gcj02":  GCJ02,
		"BD09":   BD09,
		"bd09ll": BD09,
	}
	for input, want := range tests {
		got, err := ParseDatum(input)
		if err != nil {
			t.Errorf("input %q: unexpected error %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("input %q: expected %s, got %s", input, want, got)
		}
	}
}
