package geocode

import (
	"context"

	"github.com/mockloc/mockloc/internal/geo"
	"googlemaps.github.io/maps"
)

// Google geocodes through the Google Geocoding API. Results are WGS84.
type Google struct {
	client *maps.Client
}

// NewGoogle creates a Google client. Extra options are passed to maps.NewClient.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Google{client: client}, nil
}

func (g *Google) Name() string { return "google" }

// Geocode implements Geocoder.
func (g *Google) Geocode(ctx context.Context, address string) (Result, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, ErrNotFound
	}

	best := results[0]
	confidence := 0.5
	switch best.Geometry.LocationType {
	case "ROOFTOP":
		confidence = 1
	case "RANGE_INTERPOLATED":
		confidence = 0.8
	case "APPROXIMATE":
		confidence = 0.3
	}
	if best.PartialMatch {
		confidence /= 2
	}

	return Result{
		Latitude:   best.Geometry.Location.Lat,
		Longitude:  best.Geometry.Location.Lng,
		Datum:      geo.WGS84,
		Address:    best.FormattedAddress,
		Confidence: confidence,
	}, nil
}
