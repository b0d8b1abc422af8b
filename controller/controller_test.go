package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
	"github.com/CornwallCorndog/Even-Crop/controller/storage"
)

func TestAutoDelayEventReclampsGroupB(t *testing.T) {
	st, err := state.NewStore(storage.NewMemStore())
	require.NoError(t, err)
	st.Update(func(s *state.State) {
		s.AutoDelay.CurrentMs = 500
		u := s.Unit(2) // group B by default
		u.PerDelayMs = -450
	})
	c := &Controller{store: st}

	c.onEvent(bridge.Event{Name: bridge.EventAutoDelay, Value: 300})
	st.View(func(s *state.State) {
		assert.Equal(t, 300, s.AutoDelay.CurrentMs)
		assert.Equal(t, -300, s.Unit(2).PerDelayMs)
		assert.Equal(t, 0, s.Unit(1).PerDelayMs)
	})

	// unrelated events change nothing
	c.onEvent(bridge.Event{Name: "lid-open", Value: 1})
	st.View(func(s *state.State) {
		assert.Equal(t, 300, s.AutoDelay.CurrentMs)
	})
}

func TestAutoDelayEventClampsNegativeReport(t *testing.T) {
	st, err := state.NewStore(storage.NewMemStore())
	require.NoError(t, err)
	c := &Controller{store: st}

	c.onEvent(bridge.Event{Name: bridge.EventAutoDelay, Value: -40})
	st.View(func(s *state.State) {
		assert.Equal(t, 0, s.AutoDelay.CurrentMs)
	})
}
