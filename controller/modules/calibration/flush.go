package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

// Flush is the manual line-flush helper: a timed actuation toggled on
// and off per unit. Toggling on schedules an automatic stop after the
// requested duration plus grace; toggling off early cancels that task
// and stops immediately. Close stops anything still running.
type Flush struct {
	store  *state.Store
	bridge bridge.Bridge

	mu       sync.Mutex
	timers   map[int]*time.Timer
	quitters map[int]chan struct{}
}

func NewFlush(store *state.Store, b bridge.Bridge) *Flush {
	return &Flush{
		store:    store,
		bridge:   b,
		timers:   make(map[int]*time.Timer),
		quitters: make(map[int]chan struct{}),
	}
}

// Toggle flips the flush state of one unit and reports whether it is
// now running.
func (f *Flush) Toggle(unitID, ms int) bool {
	f.mu.Lock()
	if t, ok := f.timers[unitID]; ok {
		t.Stop()
		delete(f.timers, unitID)
		f.mu.Unlock()
		f.sendStop(unitID)
		f.store.LogEvent(fmt.Sprintf("Flush stopped: unit %d", unitID))
		return false
	}
	if ms < 1 {
		ms = 1
	}
	f.bridge.Send(bridge.Cal{Mode: "timed", Cmd: "start", ID: unitID, Ms: ms})
	f.timers[unitID] = time.AfterFunc(time.Duration(ms)*time.Millisecond+stopGrace, func() {
		f.mu.Lock()
		delete(f.timers, unitID)
		f.mu.Unlock()
		f.sendStop(unitID)
	})
	f.mu.Unlock()
	f.store.LogEvent(fmt.Sprintf("Flush started: unit %d, %d ms", unitID, ms))
	return true
}

// Running reports whether a flush is active for the unit.
func (f *Flush) Running(unitID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.timers[unitID]
	return ok
}

// Close cancels every pending auto-stop and stops any unit still
// actuating, then tears down schedules.
func (f *Flush) Close() {
	f.mu.Lock()
	running := make([]int, 0, len(f.timers))
	for id, t := range f.timers {
		t.Stop()
		running = append(running, id)
	}
	f.timers = make(map[int]*time.Timer)
	for id, q := range f.quitters {
		close(q)
		delete(f.quitters, id)
	}
	f.mu.Unlock()
	for _, id := range running {
		f.sendStop(id)
	}
}

func (f *Flush) sendStop(unitID int) {
	f.bridge.Send(bridge.Cal{Mode: "timed", Cmd: "stop", ID: unitID})
}
