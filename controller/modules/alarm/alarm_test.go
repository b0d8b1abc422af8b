package alarm

import (
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

type countingSounder struct {
	mu    sync.Mutex
	plays int
	stops int
}

func (c *countingSounder) Play() {
	c.mu.Lock()
	c.plays++
	c.mu.Unlock()
}

func (c *countingSounder) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

func setup(t *testing.T) (*state.Store, *Detector, *countingSounder) {
	t.Helper()
	st, err := state.NewStore(storage.NewMemStore())
	require.NoError(t, err)
	snd := &countingSounder{}
	return st, New(st, &fakeBridge{}, snd), snd
}

func setStatus(st *state.Store, id int, status state.Status) {
	st.Update(func(s *state.State) {
		s.Unit(id).Status = status
	})
}

func TestSingleBlockedCycleDoesNotAlarm(t *testing.T) {
	st, d, _ := setup(t)
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	assert.False(t, d.Playing())
}

func TestSustainedBlockageAlarms(t *testing.T) {
	st, d, snd := setup(t)
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	d.OnCycle()
	assert.True(t, d.Playing())
	assert.Equal(t, 1, snd.plays)

	// still blocked: the loop keeps playing, it is not restarted
	d.OnCycle()
	assert.True(t, d.Playing())
	assert.Equal(t, 1, snd.plays)
}

func TestRecoveryStopsAlarm(t *testing.T) {
	st, d, snd := setup(t)
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	d.OnCycle()
	require.True(t, d.Playing())

	setStatus(st, 1, state.StatusOK)
	d.OnCycle()
	assert.False(t, d.Playing())
	assert.Equal(t, 1, snd.stops)
}

func TestMuteStopsAlarmImmediately(t *testing.T) {
	st, d, snd := setup(t)
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	d.OnCycle()
	require.True(t, d.Playing())

	d.SetMuted(true)
	assert.False(t, d.Playing())
	assert.Equal(t, 1, snd.stops)

	// unmuting while still blocked resumes without waiting for a new streak
	d.SetMuted(false)
	assert.True(t, d.Playing())
}

func TestHardMuteSuppressesAlarm(t *testing.T) {
	st, d, _ := setup(t)
	st.Update(func(s *state.State) { s.Buzzer.HardMute = true })
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	d.OnCycle()
	assert.False(t, d.Playing())
}

func TestDisabledUnitNeverAlarms(t *testing.T) {
	st, d, _ := setup(t)
	st.Update(func(s *state.State) {
		u := s.Unit(1)
		u.Enabled = false
		u.Status = state.StatusBlocked
	})
	d.OnCycle()
	d.OnCycle()
	assert.False(t, d.Playing())
}

func TestTramlinedUnitNeverAlarms(t *testing.T) {
	st, d, _ := setup(t)
	st.Update(func(s *state.State) {
		s.Tramline[1] = true
		s.Unit(1).Status = state.StatusBlocked
	})
	d.OnCycle()
	d.OnCycle()
	assert.False(t, d.Playing())
}

func TestInterruptedStreakResets(t *testing.T) {
	st, d, _ := setup(t)
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	setStatus(st, 1, state.StatusWarn)
	d.OnCycle()
	setStatus(st, 1, state.StatusBlocked)
	d.OnCycle()
	assert.False(t, d.Playing())
}
