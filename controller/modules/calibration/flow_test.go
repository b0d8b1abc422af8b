package calibration

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
	"github.com/CornwallCorndog/Even-Crop/controller/storage"
)

type fakeBridge struct {
	bridge.Dispatcher
	mu   sync.Mutex
	cmds []bridge.Command
}

func (f *fakeBridge) Send(c bridge.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, c)
}

func (f *fakeBridge) Close() error { return nil }

func (f *fakeBridge) sent() []bridge.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridge.Command{}, f.cmds...)
}

func setup(t *testing.T) (*state.Store, *fakeBridge) {
	t.Helper()
	st, err := state.NewStore(storage.NewMemStore())
	require.NoError(t, err)
	return st, &fakeBridge{}
}

func TestComputeFlow(t *testing.T) {
	res := ComputeFlow(950, 4750, 100)
	assert.InDelta(t, 5.0, res.PulsesPerMl, 1e-9)
	assert.Equal(t, 500, res.PulsesPerCycle)
	assert.InDelta(t, 0.05, res.ErrorFrac, 1e-9)
}

func TestComputeFlowTinyTargetFloorsAtOne(t *testing.T) {
	res := ComputeFlow(1000, 1, 0)
	assert.Equal(t, 1, res.PulsesPerCycle)
}

func TestFlowConfirmApplies(t *testing.T) {
	st, b := setup(t)
	s, err := NewFlowSession(st, b, 1)
	require.NoError(t, err)

	res, err := s.Confirm(950, 4750)
	require.NoError(t, err)
	assert.Equal(t, 500, res.PulsesPerCycle)

	st.View(func(x *state.State) {
		assert.Equal(t, 500, x.Unit(1).PulsesPerCycle)
	})
	require.NotEmpty(t, b.sent())
	assert.Equal(t, bridge.Set{Key: "unit-ppc", ID: 1, Value: 500}, b.sent()[0])
}

func TestFlowConfirmRejectsBadMeasurements(t *testing.T) {
	st, b := setup(t)
	s, err := NewFlowSession(st, b, 1)
	require.NoError(t, err)

	for _, tc := range []struct {
		measured, pulses float64
	}{
		{0, 4750},
		{-10, 4750},
		{math.NaN(), 4750},
		{math.Inf(1), 4750},
		{950, 0},
		{950, -5},
		{950, math.NaN()},
	} {
		_, err := s.Confirm(tc.measured, tc.pulses)
		assert.Error(t, err, "measured=%v pulses=%v", tc.measured, tc.pulses)
	}

	// a rejected run changes nothing
	st.View(func(x *state.State) {
		assert.Equal(t, 100, x.Unit(1).PulsesPerCycle)
	})
	assert.Empty(t, b.sent())
}

func TestFlowSessionUnknownUnit(t *testing.T) {
	st, b := setup(t)
	_, err := NewFlowSession(st, b, 99)
	assert.Error(t, err)
}

func TestFlowStartRunSendsReferenceTarget(t *testing.T) {
	st, b := setup(t)
	s, err := NewFlowSession(st, b, 3)
	require.NoError(t, err)
	s.StartRun()
	require.NotEmpty(t, b.sent())
	assert.Equal(t,
		bridge.Cal{Mode: "flow", Cmd: "start", ID: 3, TargetMl: FlowReferenceMl},
		b.sent()[0])
}
