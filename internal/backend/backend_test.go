package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandard_PermissionFollowsMockSelection(t *testing.T) {
	ctx := context.Background()
	sim := NewSimPlatform()
	b := NewStandard(sim)

	assert.NoError(t, b.CheckPermission(ctx))

	sim.SetMockAllowed(false)
	err := b.CheckPermission(ctx)
	assert.ErrorIs(t, err, provider.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "developer options")
}

func TestBroker_RequiresGrant(t *testing.T) {
	ctx := context.Background()
	sim := NewSimPlatform()
	b := NewBroker(sim)

	assert.Equal(t, "broker", b.Name())
	assert.ErrorIs(t, b.CheckPermission(ctx), provider.ErrPermissionDenied)

	sim.SetBrokerGranted(true)
	sim.SetMockAllowed(false)
	assert.NoError(t, b.CheckPermission(ctx), "broker does not need the mock app selection")
}

type fakeElevator struct {
	err   error
	calls int
}

func (f *fakeElevator) Elevate(context.Context) error {
	f.calls++
	return f.err
}

func TestPrivilegedFallback_ElevatesOnce(t *testing.T) {
	ctx := context.Background()
	el := &fakeElevator{}
	b := NewPrivilegedFallback(NewSimPlatform(), el)

	require.NoError(t, b.CheckPermission(ctx))
	require.NoError(t, b.CheckPermission(ctx))
	assert.Equal(t, 1, el.calls)
	assert.Equal(t, "privileged_fallback", b.Name())
}

func TestPrivilegedFallback_ElevationFailure(t *testing.T) {
	el := &fakeElevator{err: provider.ErrPermissionDenied}
	b := NewPrivilegedFallback(NewSimPlatform(), el)

	err := b.CheckPermission(context.Background())
	assert.ErrorIs(t, err, provider.ErrPermissionDenied)

	// not cached on failure
	_ = b.CheckPermission(context.Background())
	assert.Equal(t, 2, el.calls)
}

func TestSuperuserElevator(t *testing.T) {
	missing := SuperuserElevator{LookPath: func(string) (string, error) { return "", errors.New("not found") }}
	assert.ErrorIs(t, missing.Elevate(context.Background()), provider.ErrPermissionDenied)

	var looked string
	present := SuperuserElevator{LookPath: func(f string) (string, error) {
		looked = f
		return "/system/xbin/" + f, nil
	}}
	assert.NoError(t, present.Elevate(context.Background()))
	assert.Equal(t, "su", looked)
}

func TestSimPlatform_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sim := NewSimPlatform()

	require.NoError(t, sim.AddTestProvider(ctx, "gps", core.CapabilitiesFor(core.ProviderGPS)))
	assert.ErrorIs(t, sim.AddTestProvider(ctx, "gps", core.Capabilities{}), provider.ErrProviderConflict)

	require.NoError(t, sim.SetTestProviderEnabled(ctx, "gps", true))
	assert.True(t, sim.Enabled("gps"))

	_, ok, err := sim.LastKnownLocation(ctx, "gps")
	require.NoError(t, err)
	assert.False(t, ok)

	sample := core.LocationSample{Latitude: 39.9, Longitude: 116.4, Time: time.Now()}
	require.NoError(t, sim.SetTestProviderLocation(ctx, "gps", sample))
	assert.Equal(t, 1, sim.Pushes("gps"))

	got, ok, err := sim.LastKnownLocation(ctx, "gps")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 39.9, got.Latitude)

	require.NoError(t, sim.RemoveTestProvider(ctx, "gps"))
	assert.Empty(t, sim.Providers())
	assert.ErrorIs(t, sim.RemoveTestProvider(ctx, "gps"), provider.ErrUnknownProvider)
}

func TestSimPlatform_Drift(t *testing.T) {
	ctx := context.Background()
	sim := NewSimPlatform()
	require.NoError(t, sim.AddTestProvider(ctx, "gps", core.Capabilities{}))
	require.NoError(t, sim.SetTestProviderLocation(ctx, "gps", core.LocationSample{Latitude: 39.9, Longitude: 116.4}))
	require.NoError(t, sim.InjectDrift("gps", 150))

	got, _, err := sim.LastKnownLocation(ctx, "gps")
	require.NoError(t, err)
	assert.InDelta(t, 150, geo.Distance(39.9, 116.4, got.Latitude, got.Longitude), 0.5)

	// a fresh push does not clear drift; only re-registration does
	require.NoError(t, sim.SetTestProviderLocation(ctx, "gps", core.LocationSample{Latitude: 39.9, Longitude: 116.4}))
	got, _, _ = sim.LastKnownLocation(ctx, "gps")
	assert.Greater(t, geo.Distance(39.9, 116.4, got.Latitude, got.Longitude), 100.0)

	require.NoError(t, sim.RemoveTestProvider(ctx, "gps"))
	require.NoError(t, sim.AddTestProvider(ctx, "gps", core.Capabilities{}))
	require.NoError(t, sim.SetTestProviderLocation(ctx, "gps", core.LocationSample{Latitude: 39.9, Longitude: 116.4}))
	got, _, _ = sim.LastKnownLocation(ctx, "gps")
	assert.InDelta(t, 0, geo.Distance(39.9, 116.4, got.Latitude, got.Longitude), 1e-6)

	assert.ErrorIs(t, sim.InjectDrift("network", 10), provider.ErrUnknownProvider)
}

func TestSimPlatform_Outage(t *testing.T) {
	ctx := context.Background()
	sim := NewSimPlatform()
	require.NoError(t, sim.AddTestProvider(ctx, "gps", core.Capabilities{}))

	sim.SetOutage(true)
	assert.ErrorIs(t, sim.SetTestProviderLocation(ctx, "gps", core.LocationSample{}), provider.ErrPlatformUnavailable)
	_, err := sim.NetworkState(ctx)
	assert.ErrorIs(t, err, provider.ErrPlatformUnavailable)

	sim.SetOutage(false)
	sim.SetNetwork(core.InterferenceState{NetworkTransportEnabled: true})
	state, err := sim.NetworkState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Active())
}
