// Package calibration implements the guided procedures that turn field
// measurements into per-unit delivery coefficients, plus the manual
// flush helper. Sessions stay open across runs; the operator decides
// when the numbers are good enough.
package calibration

import (
	"fmt"
	"math"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

// FlowReferenceMl is the reference run volume the operator collects
// against during flow calibration.
const FlowReferenceMl = 1000

// FlowResult is what one confirmed flow run produced. ErrorFrac is the
// relative miss against the reference volume; it is displayed, never
// enforced.
type FlowResult struct {
	PulsesPerMl    float64 `json:"pulsesPerMl"`
	PulsesPerCycle int     `json:"pulsesPerCycle"`
	ErrorFrac      float64 `json:"errorFrac"`
}

// FlowSession is the repeatable flow-calibration wizard for one unit.
type FlowSession struct {
	store  *state.Store
	bridge bridge.Bridge
	unitID int
}

func NewFlowSession(store *state.Store, b bridge.Bridge, unitID int) (*FlowSession, error) {
	var ok bool
	store.View(func(st *state.State) { ok = st.Unit(unitID) != nil })
	if !ok {
		return nil, fmt.Errorf("flow calibration: no unit %d", unitID)
	}
	return &FlowSession{store: store, bridge: b, unitID: unitID}, nil
}

// StartRun asks the remote controller for a reference run. The operator
// collects the output and comes back with Confirm.
func (s *FlowSession) StartRun() {
	s.bridge.Send(bridge.Cal{Mode: "flow", Cmd: "start", ID: s.unitID, TargetMl: FlowReferenceMl})
	s.store.LogEvent(fmt.Sprintf("Flow calibration run: unit %d, target %d ml", s.unitID, FlowReferenceMl))
}

// ComputeFlow derives the coefficients from one measured run. Pure; no
// state is touched.
func ComputeFlow(measuredMl, pulses, targetMl float64) FlowResult {
	pulsesPerMl := pulses / measuredMl
	ppc := int(math.Round(pulsesPerMl * math.Max(1, targetMl)))
	if ppc < 1 {
		ppc = 1
	}
	return FlowResult{
		PulsesPerMl:    pulsesPerMl,
		PulsesPerCycle: ppc,
		ErrorFrac:      math.Abs(measuredMl-FlowReferenceMl) / FlowReferenceMl,
	}
}

// Confirm validates the operator's measurements, applies the new
// pulses-per-cycle locally and remotely, and leaves the session open.
// A bad measurement changes nothing.
func (s *FlowSession) Confirm(measuredMl, pulses float64) (FlowResult, error) {
	if err := checkMeasurement(measuredMl); err != nil {
		return FlowResult{}, err
	}
	if !(pulses > 0) || math.IsInf(pulses, 0) {
		return FlowResult{}, fmt.Errorf("pulse count must be a positive number")
	}
	var target float64
	s.store.View(func(st *state.State) { target = st.TargetMl })
	res := ComputeFlow(measuredMl, pulses, target)

	s.store.Update(func(st *state.State) {
		if u := st.Unit(s.unitID); u != nil {
			u.PulsesPerCycle = res.PulsesPerCycle
		}
	})
	s.bridge.Send(bridge.Set{Key: "unit-ppc", ID: s.unitID, Value: res.PulsesPerCycle})
	s.store.LogEvent(fmt.Sprintf("Unit %d flow calibrated: %d pulses/cycle (error %.1f%%)",
		s.unitID, res.PulsesPerCycle, res.ErrorFrac*100))
	return res, nil
}

func checkMeasurement(measuredMl float64) error {
	if math.IsNaN(measuredMl) || math.IsInf(measuredMl, 0) || measuredMl <= 0 {
		return fmt.Errorf("measured volume must be a positive number of ml")
	}
	return nil
}

// Round3 rounds to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
