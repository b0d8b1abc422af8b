package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

const (
	// CountdownTicks seconds of operator warning before the squirt.
	CountdownTicks = 10
	// SquirtMs is the fixed actuation duration measured against.
	SquirtMs = 5000
	// stopGrace pads the stop command past the nominal duration.
	stopGrace = 500 * time.Millisecond
)

type timedPhase int

const (
	phaseIdle timedPhase = iota
	phaseCountdown
	phaseSquirt
	phaseMeasure
)

// TimedSession is the repeatable timed-calibration wizard for one unit:
// a 10 second countdown, a fixed 5000 ms squirt, then the operator
// reports the collected volume. Cancelling tears the countdown down
// deterministically, and a cancel that lands mid-squirt still sends the
// stop so the remote device is never left actuating.
type TimedSession struct {
	store  *state.Store
	bridge bridge.Bridge
	unitID int

	// OnTick, when set, observes each countdown decrement.
	OnTick func(remaining int)

	tickEvery time.Duration // test hook

	mu    sync.Mutex
	phase timedPhase
	quit  chan struct{}
}

func NewTimedSession(store *state.Store, b bridge.Bridge, unitID int) (*TimedSession, error) {
	var ok bool
	store.View(func(st *state.State) { ok = st.Unit(unitID) != nil })
	if !ok {
		return nil, fmt.Errorf("timed calibration: no unit %d", unitID)
	}
	return &TimedSession{store: store, bridge: b, unitID: unitID, tickEvery: time.Second}, nil
}

// Begin starts (or restarts, after a confirmed run) the countdown.
func (s *TimedSession) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phaseCountdown || s.phase == phaseSquirt {
		return fmt.Errorf("timed calibration already running")
	}
	s.phase = phaseCountdown
	s.quit = make(chan struct{})
	go s.run(s.quit)
	return nil
}

func (s *TimedSession) run(quit chan struct{}) {
	t := time.NewTicker(s.tickEvery)
	defer t.Stop()
	remaining := CountdownTicks
	for remaining > 0 {
		select {
		case <-t.C:
			remaining--
			if s.OnTick != nil {
				s.OnTick(remaining)
			}
		case <-quit:
			return
		}
	}

	s.setPhase(phaseSquirt)
	s.bridge.Send(bridge.Cal{Mode: "timed", Cmd: "start", ID: s.unitID, Ms: SquirtMs})
	s.store.LogEvent(fmt.Sprintf("Timed calibration squirt: unit %d, %d ms", s.unitID, SquirtMs))

	select {
	case <-time.After(SquirtMs*time.Millisecond + stopGrace):
		s.sendStop()
		s.setPhase(phaseMeasure)
	case <-quit:
		// cancelled mid-squirt: the device must still be told to stop
		s.sendStop()
	}
}

// Confirm validates the measured volume and applies the derived
// coefficient: msPerMl = squirt duration / measured ml, to 3 decimals.
func (s *TimedSession) Confirm(measuredMl float64) (float64, error) {
	if err := checkMeasurement(measuredMl); err != nil {
		return 0, err
	}
	msPerMl := Round3(SquirtMs / measuredMl)
	s.store.Update(func(st *state.State) {
		if u := st.Unit(s.unitID); u != nil {
			u.MsPerMl = msPerMl
		}
	})
	s.bridge.Send(bridge.Set{Key: "unit-msperml", ID: s.unitID, Value: msPerMl})
	s.store.LogEvent(fmt.Sprintf("Unit %d timed calibrated: %.3f ms/ml", s.unitID, msPerMl))
	return msPerMl, nil
}

// Cancel closes the session's timer task. Safe to call in any phase,
// once or repeatedly.
func (s *TimedSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	s.phase = phaseIdle
}

func (s *TimedSession) sendStop() {
	s.bridge.Send(bridge.Cal{Mode: "timed", Cmd: "stop", ID: s.unitID})
}

func (s *TimedSession) setPhase(p timedPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}
