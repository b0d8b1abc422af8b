package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/CornwallCorndog/Even-Crop/controller/modules/calibration"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

func (a *API) tramUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Off bool `json:"off"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	a.tram.SetUnitOff(id, payload.Off)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) tramClear(w http.ResponseWriter, r *http.Request) {
	a.tram.ClearOverrides()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) tramPreset(w http.ResponseWriter, r *http.Request) {
	var side state.Side
	switch mux.Vars(r)["side"] {
	case "left":
		side = state.SideLeft
	case "right":
		side = state.SideRight
	default:
		http.Error(w, "side must be left or right", http.StatusBadRequest)
		return
	}
	a.tram.TogglePreset(side)
	var presets state.TramPresets
	a.store.View(func(st *state.State) { presets = st.TramPresets })
	writeJSON(w, presets)
}

func (a *API) setMute(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	a.alarm.SetMuted(payload.Value)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setHardMute(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	a.alarm.SetHardMute(payload.Value)
	w.WriteHeader(http.StatusNoContent)
}

// flowSession returns (creating on first use) the open wizard for a
// unit. Sessions stay open until the operator is satisfied; there is no
// automatic termination.
func (a *API) flowSession(id int) (*calibration.FlowSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.flow[id]; ok {
		return s, nil
	}
	s, err := calibration.NewFlowSession(a.store, a.bridge, id)
	if err != nil {
		return nil, err
	}
	a.flow[id] = s
	return s, nil
}

func (a *API) timedSession(id int) (*calibration.TimedSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.timed[id]; ok {
		return s, nil
	}
	s, err := calibration.NewTimedSession(a.store, a.bridge, id)
	if err != nil {
		return nil, err
	}
	a.timed[id] = s
	return s, nil
}

func (a *API) flowStart(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	s, err := a.flowSession(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.StartRun()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) flowConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	var payload struct {
		MeasuredMl float64 `json:"measuredMl"`
		Pulses     float64 `json:"pulses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	s, err := a.flowSession(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.Confirm(payload.MeasuredMl, payload.Pulses)
	if err != nil {
		// rejected locally; nothing was applied, dialog stays open
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, res)
}

func (a *API) timedStart(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	s, err := a.timedSession(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Begin(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) timedConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	var payload struct {
		MeasuredMl float64 `json:"measuredMl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	s, err := a.timedSession(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msPerMl, err := s.Confirm(payload.MeasuredMl)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]float64{"msPerMl": msPerMl})
}

func (a *API) timedCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	s, err := a.timedSession(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) flushToggle(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Ms int `json:"ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.Ms <= 0 {
		payload.Ms = calibration.SquirtMs
	}
	running := a.flush.Toggle(id, payload.Ms)
	writeJSON(w, map[string]bool{"running": running})
}

func (a *API) profileList(w http.ResponseWriter, r *http.Request) {
	names := a.store.ListProfiles()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

func (a *API) profileGet(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.LoadProfile(mux.Vars(r)["name"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func (a *API) profileSave(w http.ResponseWriter, r *http.Request) {
	if err := a.store.SaveProfile(mux.Vars(r)["name"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) profileApply(w http.ResponseWriter, r *http.Request) {
	if err := a.store.ApplyProfile(mux.Vars(r)["name"]); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) profileDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteProfile(mux.Vars(r)["name"]); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) eventList(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		T    int64  `json:"t"`
		Msg  string `json:"msg"`
		When string `json:"when"`
	}
	var out []entry
	a.store.View(func(st *state.State) {
		out = make([]entry, 0, len(st.EventLog))
		for _, e := range st.EventLog {
			out = append(out, entry{
				T:    e.T,
				Msg:  e.Msg,
				When: humanize.Time(time.UnixMilli(e.T)),
			})
		}
	})
	writeJSON(w, out)
}
