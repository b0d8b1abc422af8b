// Package api exposes every operator-facing operation over HTTP. The GUI
// that consumes it is out of scope; handlers follow the
// optimistic-local-update pattern: mutate and persist the store first,
// then fire the matching bridge command without waiting on it.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/alarm"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/calibration"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/tramline"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

type API struct {
	store  *state.Store
	bridge bridge.Bridge
	tram   *tramline.Engine
	alarm  *alarm.Detector
	flush  *calibration.Flush

	mu    sync.Mutex
	flow  map[int]*calibration.FlowSession
	timed map[int]*calibration.TimedSession
}

func New(store *state.Store, b bridge.Bridge, tram *tramline.Engine, det *alarm.Detector, flush *calibration.Flush) *API {
	return &API{
		store:  store,
		bridge: b,
		tram:   tram,
		alarm:  det,
		flush:  flush,
		flow:   make(map[int]*calibration.FlowSession),
		timed:  make(map[int]*calibration.TimedSession),
	}
}

// LoadAPI registers all REST endpoints.
func (a *API) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api").Subrouter()
	sr.HandleFunc("/state", a.getState).Methods("GET")
	sr.HandleFunc("/target", a.setTarget).Methods("POST")
	sr.HandleFunc("/delivery-mode", a.setDeliveryMode).Methods("POST")
	sr.HandleFunc("/running", a.setRunning).Methods("POST")
	sr.HandleFunc("/units/{id}/{field}", a.setUnitField).Methods("POST")
	sr.HandleFunc("/momentary/{name}", a.setMomentary).Methods("POST")
	sr.HandleFunc("/auto-delay", a.setAutoDelay).Methods("POST")

	sr.HandleFunc("/tramline/clear", a.tramClear).Methods("POST")
	sr.HandleFunc("/tramline/preset/{side}", a.tramPreset).Methods("POST")
	sr.HandleFunc("/tramline/{id}", a.tramUnit).Methods("POST")

	sr.HandleFunc("/buzzer/mute", a.setMute).Methods("POST")
	sr.HandleFunc("/buzzer/hard-mute", a.setHardMute).Methods("POST")

	sr.HandleFunc("/calibrate/flow/{id}/start", a.flowStart).Methods("POST")
	sr.HandleFunc("/calibrate/flow/{id}/confirm", a.flowConfirm).Methods("POST")
	sr.HandleFunc("/calibrate/timed/{id}/start", a.timedStart).Methods("POST")
	sr.HandleFunc("/calibrate/timed/{id}/confirm", a.timedConfirm).Methods("POST")
	sr.HandleFunc("/calibrate/timed/{id}/cancel", a.timedCancel).Methods("POST")
	sr.HandleFunc("/flush/{id}", a.flushToggle).Methods("POST")

	sr.HandleFunc("/profiles", a.profileList).Methods("GET")
	sr.HandleFunc("/profiles/{name}", a.profileGet).Methods("GET")
	sr.HandleFunc("/profiles/{name}", a.profileSave).Methods("POST")
	sr.HandleFunc("/profiles/{name}/apply", a.profileApply).Methods("POST")
	sr.HandleFunc("/profiles/{name}", a.profileDelete).Methods("DELETE")

	sr.HandleFunc("/events", a.eventList).Methods("GET")

	r.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func pathInt(r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[key])
	return n, err == nil
}

func (a *API) unitID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := pathInt(r, "id")
	if !ok || id < 1 || id > state.UnitCount {
		http.Error(w, "unknown unit", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.store.Snapshot())
}
