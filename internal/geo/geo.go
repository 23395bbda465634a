package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Persisted locations are stored as EPSG:3857 points in WKB so SQLite and Postgres
// share one column format. Latitude/longitude stay WGS84 everywhere else.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Coordinate is a parsed "lat,lng[,datum]" input.
type Coordinate struct {
	Latitude  float64
	Longitude float64
	Datum     Datum
}

// ParseCoordinate parses a string in the format "lat,lng" or "lat,lng,datum".
// The datum defaults to WGS84.
func ParseCoordinate(coords string) (Coordinate, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, ErrInvalidCoordinates
	}
	if err := Validate(lat, lng); err != nil {
		return Coordinate{}, err
	}

	datum := WGS84
	if len(parts) == 3 {
		datum, err = ParseDatum(parts[2])
		if err != nil {
			return Coordinate{}, err
		}
	}
	return Coordinate{Latitude: lat, Longitude: lng, Datum: datum}, nil
}

// Validate checks that lat/lng are numbers inside the WGS84 range.
func Validate(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: lat=%f lng=%f", ErrInvalidCoordinates, lat, lng)
	}
	return nil
}

// Point3857From4326 projects a WGS84 latitude/longitude to a web mercator point.
func Point3857From4326(latitude, longitude float64) (geom.Point, error) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point, err := geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	if err != nil {
		return geom.Point{}, fmt.Errorf("projecting %f,%f: %w", latitude, longitude, err)
	}
	return point, nil
}

// LatLngFrom3857 converts a stored web mercator point back to WGS84.
// Empty points return ok=false.
func LatLngFrom3857(point geom.Point) (lat, lng float64, ok bool) {
	coords, ok := point.Coordinates()
	if !ok {
		return 0, 0, false
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(3857, 4326)
	lng, lat, _ = f(coords.X, coords.Y, 0)
	return lat, lng, true
}
