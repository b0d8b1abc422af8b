package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/alarm"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/calibration"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/tramline"
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

type fixture struct {
	store  *state.Store
	bridge *fakeBridge
	router *mux.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := state.NewStore(storage.NewMemStore())
	require.NoError(t, err)
	b := &fakeBridge{}
	flush := calibration.NewFlush(st, b)
	t.Cleanup(flush.Close)
	a := New(st, b, tramline.New(st, b), alarm.New(st, b, alarm.NewLogSounder()), flush)

	r := mux.NewRouter()
	a.LoadAPI(r)
	return &fixture{store: st, bridge: b, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetState(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var st state.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, float64(100), st.TargetMl)
	assert.Len(t, st.Units, state.UnitCount)
}

func TestSetTargetClampsNegative(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/target", map[string]float64{"value": -20})
	require.Equal(t, http.StatusNoContent, w.Code)
	f.store.View(func(s *state.State) {
		assert.Equal(t, float64(0), s.TargetMl)
	})
}

func TestSetDeliveryModeValidation(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/delivery-mode", map[string]string{"value": "timed"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "POST", "/api/delivery-mode", map[string]string{"value": "sprinkle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.store.View(func(s *state.State) {
		assert.Equal(t, state.ModeTimed, s.DeliveryMode)
	})
}

func TestSetUnitDelayClampedByGroup(t *testing.T) {
	f := newFixture(t)
	// unit 1 defaults to group A
	w := f.do(t, "POST", "/api/units/1/delay-ms", map[string]int{"value": -200})
	require.Equal(t, http.StatusNoContent, w.Code)

	// unit 2 defaults to group B, live delay 500
	w = f.do(t, "POST", "/api/units/2/delay-ms", map[string]int{"value": -9999})
	require.Equal(t, http.StatusNoContent, w.Code)

	f.store.View(func(s *state.State) {
		assert.Equal(t, 0, s.Unit(1).PerDelayMs)
		assert.Equal(t, -500, s.Unit(2).PerDelayMs)
	})
}

func TestSetUnitFieldRejectsUnknown(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/units/1/frobnicate", map[string]int{"value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/api/units/99/enabled", map[string]bool{"value": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupChangeReclampsDelay(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(s *state.State) {
		u := s.Unit(2)
		u.Group = state.GroupB
		u.PerDelayMs = -400
	})
	w := f.do(t, "POST", "/api/units/2/group", map[string]string{"value": "A"})
	require.Equal(t, http.StatusNoContent, w.Code)
	f.store.View(func(s *state.State) {
		assert.Equal(t, state.GroupA, s.Unit(2).Group)
		assert.Equal(t, 0, s.Unit(2).PerDelayMs)
	})
}

func TestTramlinePresetRoundTrip(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/tramline/3", map[string]bool{"off": true})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "POST", "/api/tramline/preset/left", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var presets state.TramPresets
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &presets))
	assert.Equal(t, []int{3}, presets.Left)
	assert.Equal(t, state.SideLeft, presets.Active)

	w = f.do(t, "POST", "/api/tramline/preset/sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuzzerMute(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/buzzer/mute", map[string]bool{"value": true})
	require.Equal(t, http.StatusNoContent, w.Code)
	f.store.View(func(s *state.State) {
		assert.True(t, s.Buzzer.Muted)
	})
}

func TestFlowCalibrationEndpoints(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/calibrate/flow/1/start", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "POST", "/api/calibrate/flow/1/confirm",
		map[string]float64{"measuredMl": 950, "pulses": 4750})
	require.Equal(t, http.StatusOK, w.Code)

	var res calibration.FlowResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 500, res.PulsesPerCycle)

	w = f.do(t, "POST", "/api/calibrate/flow/1/confirm",
		map[string]float64{"measuredMl": -1, "pulses": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestFlushEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/flush/2", map[string]int{"ms": 60000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":true}`, w.Body.String())

	w = f.do(t, "POST", "/api/flush/2", map[string]int{"ms": 60000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":false}`, w.Body.String())
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/profiles/summer", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "GET", "/api/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["summer"]`, w.Body.String())

	f.do(t, "POST", "/api/target", map[string]float64{"value": 40})
	w = f.do(t, "POST", "/api/profiles/summer/apply", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	f.store.View(func(s *state.State) {
		assert.Equal(t, float64(100), s.TargetMl)
	})

	w = f.do(t, "DELETE", "/api/profiles/summer", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, "GET", "/api/profiles/summer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/target", map[string]float64{"value": 80})

	w := f.do(t, "GET", "/api/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []struct {
		Msg  string `json:"msg"`
		When string `json:"when"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[len(entries)-1].Msg, "Target set")
	assert.NotEmpty(t, entries[len(entries)-1].When)
}
