// Package tramline maintains the temporary "force off" overrides and the
// two captured left/right preset sets.
package tramline

import (
	"fmt"
	"sort"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

type Engine struct {
	store  *state.Store
	bridge bridge.Bridge
}

func New(store *state.Store, b bridge.Bridge) *Engine {
	return &Engine{store: store, bridge: b}
}

// TogglePreset is the one button per side. Three transitions, checked in
// order:
//
//  1. capture: something is currently off: the off-set becomes this
//     side's stored preset and the side goes active. Capture wins over
//     apply/clear no matter which side was pressed.
//  2. clear: nothing is off and this side is already active: all
//     overrides drop and no side is active.
//  3. apply: nothing is off, side is idle: the stored set replaces the
//     (empty or other-side) overrides wholesale.
//
// The remote side is told to clear before re-applying unit by unit; it
// may coalesce, so the ordering matters.
func (e *Engine) TogglePreset(side state.Side) {
	var cmds []bridge.Command
	var logMsg string
	e.store.Update(func(st *state.State) {
		switch {
		case len(st.Tramline) > 0:
			ids := offSet(st)
			if side == state.SideRight {
				st.TramPresets.Right = ids
			} else {
				st.TramPresets.Left = ids
			}
			st.TramPresets.Active = side
			logMsg = fmt.Sprintf("Tramline preset %s captured (%d units)", side, len(ids))

		case st.TramPresets.Active == side:
			st.Tramline = map[int]bool{}
			st.TramPresets.Active = state.SideNone
			cmds = append(cmds, bridge.TramClear{})
			logMsg = fmt.Sprintf("Tramline preset %s cleared", side)

		default:
			st.Tramline = map[int]bool{}
			cmds = append(cmds, bridge.TramClear{})
			for _, id := range st.TramPresets.Set(side) {
				st.Tramline[id] = true
				cmds = append(cmds, bridge.Tram{ID: id, Off: true})
			}
			st.TramPresets.Active = side
			logMsg = fmt.Sprintf("Tramline preset %s applied (%d units)", side, len(st.Tramline))
		}
	})
	for _, c := range cmds {
		e.bridge.Send(c)
	}
	e.store.LogEvent(logMsg)
}

// SetUnitOff toggles a single unit's override directly. If the resulting
// off-set is empty, or it escapes the active preset's stored set, the
// active marker resets so it never lies about what is applied.
func (e *Engine) SetUnitOff(id int, off bool) {
	e.store.Update(func(st *state.State) {
		if off {
			st.Tramline[id] = true
		} else {
			delete(st.Tramline, id)
		}
		if len(st.Tramline) == 0 {
			st.TramPresets.Active = state.SideNone
			return
		}
		if a := st.TramPresets.Active; a != state.SideNone && !subset(st.Tramline, st.TramPresets.Set(a)) {
			st.TramPresets.Active = state.SideNone
		}
	})
	e.bridge.Send(bridge.Tram{ID: id, Off: off})
}

// ClearOverrides empties the off-set without touching the stored presets
// or the active marker.
func (e *Engine) ClearOverrides() {
	e.store.Update(func(st *state.State) {
		st.Tramline = map[int]bool{}
	})
	e.bridge.Send(bridge.TramClear{})
	e.store.LogEvent("Tramline overrides cleared")
}

func offSet(st *state.State) []int {
	ids := make([]int, 0, len(st.Tramline))
	for id, off := range st.Tramline {
		if off {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func subset(off map[int]bool, ids []int) bool {
	stored := make(map[int]bool, len(ids))
	for _, id := range ids {
		stored[id] = true
	}
	for id := range off {
		if !stored[id] {
			return false
		}
	}
	return true
}
