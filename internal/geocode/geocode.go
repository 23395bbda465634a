// Package geocode turns user input into a WGS84 target, either by parsing a
// coordinate directly or by asking an address geocoding service.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/pkg/core"
)

var (
	// ErrNotFound is returned when the service has no match for an address.
	ErrNotFound = errors.New("address not found")
	// ErrNoGeocoder is returned for address input when no service is configured.
	ErrNoGeocoder = errors.New("no geocoder configured")
)

// Result is one geocoding match in the datum the service reports.
type Result struct {
	Latitude  float64
	Longitude float64
	Datum     geo.Datum
	Address   string
	// Confidence is in [0,1]; zero when the service does not report one.
	Confidence float64
}

// Geocoder looks up an address.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) (Result, error)
}

// Resolver resolves free-form input to a target.
type Resolver struct {
	geocoder Geocoder
}

// NewResolver creates a resolver. g may be nil, in which case only coordinates
// are accepted.
func NewResolver(g Geocoder) *Resolver {
	return &Resolver{geocoder: g}
}

// Resolve parses "lat,lng[,datum]" or geocodes the input as an address. The
// target is always in WGS84.
func (r *Resolver) Resolve(ctx context.Context, input string) (core.TargetLocation, Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return core.TargetLocation{}, Result{}, fmt.Errorf("empty location")
	}

	if c, err := geo.ParseCoordinate(input); err == nil {
		res := Result{Latitude: c.Latitude, Longitude: c.Longitude, Datum: c.Datum, Address: input, Confidence: 1}
		return toTarget(res), res, nil
	} else if looksNumeric(input) {
		return core.TargetLocation{}, Result{}, err
	}

	if r.geocoder == nil {
		return core.TargetLocation{}, Result{}, ErrNoGeocoder
	}
	res, err := r.geocoder.Geocode(ctx, input)
	if err != nil {
		return core.TargetLocation{}, Result{}, fmt.Errorf("%s geocode %q: %w", r.geocoder.Name(), input, err)
	}
	if err := geo.Validate(res.Latitude, res.Longitude); err != nil {
		return core.TargetLocation{}, Result{}, err
	}
	return toTarget(res), res, nil
}

func toTarget(res Result) core.TargetLocation {
	lat, lng := geo.ToWGS84(res.Latitude, res.Longitude, res.Datum)
	return core.NewTarget(lat, lng)
}

// looksNumeric reports whether input was meant as a coordinate pair.
func looksNumeric(input string) bool {
	first, _, _ := strings.Cut(input, ",")
	_, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	return err == nil
}

// FromConfig builds the geocoder selected by cfg. It returns nil when the chosen
// service has no credentials.
func FromConfig(cfg config.GeocodeConfig) (Geocoder, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "baidu":
		if cfg.BaiduAK == "" {
			return nil, nil
		}
		return NewBaidu(BaiduConfig{BaseURL: cfg.BaiduBaseURL, AK: cfg.BaiduAK, SK: cfg.BaiduSK, Timeout: timeout}), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, nil
		}
		return NewGoogle(cfg.GoogleAPIKey)
	}
	return nil, fmt.Errorf("unknown geocode provider: %q", cfg.Provider)
}
