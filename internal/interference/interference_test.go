package interference

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mockloc/mockloc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	states []core.InterferenceState
	errs   []error
	i      int
}

func (p *scriptedSource) NetworkState(context.Context) (core.InterferenceState, error) {
	i := p.i
	p.i++
	if i < len(p.errs) && p.errs[i] != nil {
		return core.InterferenceState{}, p.errs[i]
	}
	return p.states[i], nil
}

func newLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestPoll_RisingAndFallingEdges(t *testing.T) {
	src := &scriptedSource{states: []core.InterferenceState{
		{},
		{NetworkTransportEnabled: true},
		{NetworkTransportEnabled: true, NetworkTransportConnected: true},
		{NetworkTransportEnabled: true, NetworkTransportConnected: true},
		{},
	}}
	var changes []Change
	logger, buf := newLogger()
	h := New(src, false, func(c Change) { changes = append(changes, c) }, logger)

	ctx := context.Background()
	for range src.states {
		require.NoError(t, h.Poll(ctx))
	}

	require.Len(t, changes, 4)
	assert.Equal(t, Change{Signal: SignalEnabled, Rising: true, State: core.InterferenceState{NetworkTransportEnabled: true}}, changes[0])
	assert.Equal(t, SignalConnected, changes[1].Signal)
	assert.True(t, changes[1].Rising)
	assert.False(t, changes[2].Rising)
	assert.False(t, changes[3].Rising)
	assert.False(t, h.Active())

	assert.Contains(t, buf.String(), "disable Wi-Fi")
	assert.Contains(t, buf.String(), "interference cleared")
}

func TestPoll_TolerateChangesAdviceOnly(t *testing.T) {
	src := &scriptedSource{states: []core.InterferenceState{{NetworkTransportConnected: true}}}
	var got []Change
	logger, buf := newLogger()
	h := New(src, true, func(c Change) { got = append(got, c) }, logger)

	require.NoError(t, h.Poll(context.Background()))

	require.Len(t, got, 1)
	assert.True(t, got[0].Tolerated)
	assert.True(t, got[0].Rising)
	assert.True(t, h.Active())
	assert.NotContains(t, buf.String(), "disable Wi-Fi")
	assert.Contains(t, buf.String(), "kept on for target app")
}

func TestPoll_ReadErrorKeepsState(t *testing.T) {
	src := &scriptedSource{
		states: []core.InterferenceState{{NetworkTransportEnabled: true}, {}},
		errs:   []error{nil, errors.New("binder died")},
	}
	calls := 0
	logger, buf := newLogger()
	h := New(src, false, func(Change) { calls++ }, logger)

	require.NoError(t, h.Poll(context.Background()))
	require.NoError(t, h.Poll(context.Background()))

	assert.Equal(t, 1, calls)
	assert.True(t, h.State().NetworkTransportEnabled)
	assert.Contains(t, buf.String(), "reading network state failed")
}
