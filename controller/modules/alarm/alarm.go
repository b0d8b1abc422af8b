// Package alarm watches unit statuses across delivery cycles and drives
// the audible alarm while a blockage is sustained.
package alarm

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

// StreakThreshold is how many consecutive BLOCKED cycles a unit needs
// before the alarm sounds.
const StreakThreshold = 2

// Sounder is the audio loop. Play (re)starts it from the beginning;
// Stop halts and rewinds. The hardware buzzer lives on the remote side,
// so the default implementation only logs.
type Sounder interface {
	Play()
	Stop()
}

type logSounder struct{}

func (logSounder) Play() { logrus.Warn("alarm: sounding") }
func (logSounder) Stop() { logrus.Info("alarm: silenced") }

// NewLogSounder returns the default log-only Sounder.
func NewLogSounder() Sounder { return logSounder{} }

// Detector keeps a per-unit consecutive-BLOCKED counter and holds the
// alarm while the condition is true. Level-triggered: the alarm follows
// the condition on every evaluation, not just on edges.
type Detector struct {
	store   *state.Store
	bridge  bridge.Bridge
	sounder Sounder

	mu      sync.Mutex
	streaks map[int]int
	playing bool
}

func New(store *state.Store, b bridge.Bridge, sounder Sounder) *Detector {
	if sounder == nil {
		sounder = logSounder{}
	}
	return &Detector{
		store:   store,
		bridge:  b,
		sounder: sounder,
		streaks: make(map[int]int),
	}
}

// OnCycle is the cycle listener: recompute every streak counter, then
// re-evaluate the alarm condition.
func (d *Detector) OnCycle() {
	d.mu.Lock()
	var condition bool
	d.store.View(func(st *state.State) {
		for i := range st.Units {
			u := &st.Units[i]
			if u.Status == state.StatusBlocked {
				d.streaks[u.ID]++
			} else {
				d.streaks[u.ID] = 0
			}
		}
		condition = d.condition(st)
	})
	d.apply(condition)
	d.mu.Unlock()
}

// condition holds when some enabled, non-overridden unit is blocked
// right now, some streak is sustained, and the buzzer is audible.
// Caller holds d.mu.
func (d *Detector) condition(st *state.State) bool {
	if st.Buzzer.Muted || st.Buzzer.HardMute {
		return false
	}
	blockedNow := false
	for i := range st.Units {
		u := &st.Units[i]
		if u.Enabled && !st.TramlineOff(u.ID) && u.Status == state.StatusBlocked {
			blockedNow = true
			break
		}
	}
	if !blockedNow {
		return false
	}
	for _, n := range d.streaks {
		if n >= StreakThreshold {
			return true
		}
	}
	return false
}

// apply moves the audio loop to match the condition. Caller holds d.mu.
func (d *Detector) apply(condition bool) {
	switch {
	case condition && !d.playing:
		d.playing = true
		d.sounder.Play()
	case !condition && d.playing:
		d.playing = false
		d.sounder.Stop()
	}
}

// refresh re-evaluates without advancing streaks; used when mute flags
// change between cycles.
func (d *Detector) refresh() {
	d.mu.Lock()
	var condition bool
	d.store.View(func(st *state.State) { condition = d.condition(st) })
	d.apply(condition)
	d.mu.Unlock()
}

// SetMuted flips the soft mute. Any playing alarm stops on this call,
// not on the next cycle tick.
func (d *Detector) SetMuted(muted bool) {
	d.store.Update(func(st *state.State) { st.Buzzer.Muted = muted })
	d.bridge.Send(bridge.Set{Key: "buzzer-muted", Value: muted})
	d.refresh()
}

// SetHardMute flips the hard mute, same immediate-stop contract.
func (d *Detector) SetHardMute(hard bool) {
	d.store.Update(func(st *state.State) { st.Buzzer.HardMute = hard })
	d.bridge.Send(bridge.Set{Key: "buzzer-hardmute", Value: hard})
	d.refresh()
}

// Playing reports whether the audio loop is currently running.
func (d *Detector) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}
