package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

func (a *API) setTarget(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.Value < 0 {
		payload.Value = 0
	}
	a.store.Update(func(st *state.State) { st.TargetMl = payload.Value })
	a.bridge.Send(bridge.Set{Key: "target", Value: payload.Value})
	a.store.LogEvent(fmt.Sprintf("Target set to %g ml/plant", payload.Value))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setDeliveryMode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	mode := state.DeliveryMode(payload.Value)
	if mode != state.ModeFlow && mode != state.ModeTimed {
		http.Error(w, "mode must be flow or timed", http.StatusBadRequest)
		return
	}
	a.store.Update(func(st *state.State) { st.DeliveryMode = mode })
	a.bridge.Send(bridge.Set{Key: "delivery-mode", Value: string(mode)})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setRunning(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	a.store.Update(func(st *state.State) { st.Running = payload.Value })
	a.bridge.Send(bridge.Set{Key: "running", Value: payload.Value})
	if payload.Value {
		a.store.LogEvent("RUN")
	} else {
		a.store.LogEvent("STOP")
	}
	w.WriteHeader(http.StatusNoContent)
}

// setUnitField routes one per-unit setting. Out-of-range values are
// clamped to the nearest legal value, never stored invalid.
func (a *API) setUnitField(w http.ResponseWriter, r *http.Request) {
	id, ok := a.unitID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	field := mux.Vars(r)["field"]
	var cmd bridge.Command
	var badField, badValue bool
	a.store.Update(func(st *state.State) {
		u := st.Unit(id)
		if u == nil {
			badField = true
			return
		}
		switch field {
		case "enabled":
			var v bool
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			u.Enabled = v
			cmd = bridge.Set{Key: "unit-enabled", ID: id, Value: v}
		case "group":
			var v string
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			g := state.GroupA
			if v == "B" {
				g = state.GroupB
			}
			u.Group = g
			u.PerDelayMs = state.ClampPerDelay(g, u.PerDelayMs, st.AutoDelay.CurrentMs)
			cmd = bridge.Set{Key: "unit-group", ID: id, Value: string(g)}
		case "momentary":
			var v string
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			switch v {
			case "None", "M1", "M2", "M3":
			default:
				badValue = true
				return
			}
			u.Momentary = v
			cmd = bridge.Set{Key: "unit-momentary", ID: id, Value: v}
		case "offset":
			var v int
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			if v < 0 {
				v = 0
			}
			if v > 100 {
				v = 100
			}
			u.Offset = v
			cmd = bridge.Set{Key: "unit-offset", ID: id, Value: v}
		case "delay-ms":
			var v int
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			v = state.ClampPerDelay(u.Group, v, st.AutoDelay.CurrentMs)
			u.PerDelayMs = v
			cmd = bridge.Set{Key: "unit-delay-ms", ID: id, Value: v}
		case "mode":
			var v string
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			m := state.UnitMode(v)
			if m != state.UnitFlow && m != state.UnitTimed {
				m = state.UnitInherit
			}
			u.Mode = m
			cmd = bridge.Set{Key: "unit-delivery-mode", ID: id, Value: string(m)}
		case "pulses-per-cycle":
			var v int
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			if v < 1 {
				v = 1
			}
			u.PulsesPerCycle = v
			cmd = bridge.Set{Key: "unit-ppc", ID: id, Value: v}
		case "k-factor":
			var v int
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			if v < 1 {
				v = 1
			}
			u.PulsesPerLiter = v
			cmd = bridge.Set{Key: "unit-kfactor", ID: id, Value: v}
		case "ms-per-ml":
			var v float64
			if badValue = json.Unmarshal(payload.Value, &v) != nil; badValue {
				return
			}
			if v < 0.1 {
				v = 0.1
			}
			u.MsPerMl = v
			cmd = bridge.Set{Key: "unit-msperml", ID: id, Value: v}
		default:
			badField = true
		}
	})
	if badField {
		http.Error(w, "unknown unit field", http.StatusBadRequest)
		return
	}
	if badValue {
		http.Error(w, "invalid value", http.StatusBadRequest)
		return
	}
	if cmd != nil {
		a.bridge.Send(cmd)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setMomentary(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	switch name {
	case "M1", "M2", "M3":
	default:
		http.Error(w, "unknown momentary input", http.StatusBadRequest)
		return
	}
	var payload state.MomentaryCfg
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.Offset < 0 {
		payload.Offset = 0
	}
	if payload.Offset > 100 {
		payload.Offset = 100
	}
	a.store.Update(func(st *state.State) { st.Momentary[name] = payload })
	a.bridge.Send(bridge.Set{Key: "momentary", Value: map[string]interface{}{
		"name": name, "enabled": payload.Enabled, "offset": payload.Offset,
	}})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setAutoDelay(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled    bool `json:"enabled"`
		ManualMs   int  `json:"manualMs"`
		GeomLeadMs int  `json:"geomLeadMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.ManualMs < 0 {
		payload.ManualMs = 0
	}
	if payload.GeomLeadMs < 0 {
		payload.GeomLeadMs = 0
	}
	a.store.Update(func(st *state.State) {
		st.AutoDelay.Enabled = payload.Enabled
		st.AutoDelay.ManualMs = payload.ManualMs
		st.AutoDelay.GeomLeadMs = payload.GeomLeadMs
	})
	a.bridge.Send(bridge.Set{Key: "auto-delay", Value: map[string]interface{}{
		"enabled": payload.Enabled, "manualMs": payload.ManualMs, "geomLeadMs": payload.GeomLeadMs,
	}})
	w.WriteHeader(http.StatusNoContent)
}
