package geo

import (
	"errors"
	"math"
	"testing"
)

func TestParseCoordinate_Valid(t *testing.T) {
	c, err := ParseCoordinate("39.915, 116.404")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Latitude != 39.915 {
		t.Errorf("expected lat=39.915, got %f", c.Latitude)
	}
	if c.Longitude != 116.404 {
		t.Errorf("expected lng=116.404, got %f", c.Longitude)
	}
	if c.Datum != WGS84 {
		t.Errorf("expected default datum wgs84, got %s", c.Datum)
	}
}

func TestParseCoordinate_WithDatum(t *testing.T) {
	c, err := ParseCoordinate("39.915,116.404,bd09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Datum != BD09 {
		t.Errorf("expected bd09, got %s", c.Datum)
	}
}

func TestParseCoordinate_Invalid(t *testing.T) {
	tests := []string{
		"",
		"39.915",
		"abc,116.404",
		"39.915,xyz",
		"91,0",
		"0,181",
		"1,2,3,4",
		"NaN,116.404",
		"39.915,nan",
		"Inf,0",
	}
	for _, input := range tests {
		_, err := ParseCoordinate(input)
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("input %q: expected ErrInvalidCoordinates, got %v", input, err)
		}
	}
}

func TestValidate_RejectsNaN(t *testing.T) {
	if err := Validate(math.NaN(), 0); !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates for NaN latitude, got %v", err)
	}
	if err := Validate(0, math.NaN()); !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates for NaN longitude, got %v", err)
	}
	if err := Validate(39.915, 116.404); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseCoordinate_UnknownDatum(t *testing.T) {
	_, err := ParseCoordinate("1,2,mars")
	if err == nil {
		t.Fatal("expected error for unknown datum")
	}
}

func TestPoint3857From4326_Origin(t *testing.T) {
	point, err := Point3857From4326(0, 0)
	if err != nil {
		t.Fatal(err)
	}

	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if math.Abs(coords.X) > 1e-6 || math.Abs(coords.Y) > 1e-6 {
		t.Errorf("expected origin, got (%f, %f)", coords.X, coords.Y)
	}
}

func TestPoint3857_RoundTrip(t *testing.T) {
	point, err := Point3857From4326(39.915, 116.404)
	if err != nil {
		t.Fatal(err)
	}

	lat, lng, ok := LatLngFrom3857(point)
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if math.Abs(lat-39.915) > 1e-7 {
		t.Errorf("expected lat=39.915, got %f", lat)
	}
	if math.Abs(lng-116.404) > 1e-7 {
		t.Errorf("expected lng=116.404, got %f", lng)
	}
}
