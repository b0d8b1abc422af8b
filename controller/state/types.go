package state

import (
	"encoding/json"
	"reflect"
)

// Delivery strategy for a cycle.
type DeliveryMode string

const (
	ModeFlow  DeliveryMode = "flow"
	ModeTimed DeliveryMode = "timed"
)

// Per-unit override of the global delivery strategy.
type UnitMode string

const (
	UnitInherit UnitMode = "inherit"
	UnitFlow    UnitMode = "flow"
	UnitTimed   UnitMode = "timed"
)

// Group of a unit within the firing pattern.
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
)

// Status of a unit after its last delivery cycle.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarn    Status = "WARN"
	StatusInspect Status = "INSPECT"
	StatusBlocked Status = "BLOCKED"
)

// Side names one of the two tramline presets.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideNone  Side = ""
)

// UnitCount is the number of physical dispensing channels.
const UnitCount = 11

// MomentaryCfg holds the timing offset for one momentary switch input.
// Offset is a percent (0..100) mapped to 0..1000 ms downstream.
type MomentaryCfg struct {
	Enabled bool `json:"enabled"`
	Offset  int  `json:"offset"`
}

// TramPresets holds the two captured preset sets and which is applied.
type TramPresets struct {
	Left   []int `json:"left"`
	Right  []int `json:"right"`
	Active Side  `json:"active"`
}

// Set returns the stored unit ids for side.
func (p *TramPresets) Set(side Side) []int {
	if side == SideRight {
		return p.Right
	}
	return p.Left
}

// Buzzer mute flags.
type Buzzer struct {
	Muted    bool `json:"muted"`
	HardMute bool `json:"hardMute"`
}

// AutoDelay is the Diamond inter-group delay configuration. CurrentMs is
// whatever the remote controller last reported; ManualMs and GeomLeadMs
// are local tuning inputs.
type AutoDelay struct {
	Enabled    bool `json:"enabled"`
	ManualMs   int  `json:"manualMs"`
	GeomLeadMs int  `json:"geomLeadMs"`
	CurrentMs  int  `json:"currentMs"`
}

// LogEntry is one event log record (t is unix milliseconds).
type LogEntry struct {
	T   int64  `json:"t"`
	Msg string `json:"msg"`
}

// UnitConfig is the configuration and last-cycle status of one channel.
// LastDeliveredMl, Deviation and Status are written only by the bridge or
// the simulator.
type UnitConfig struct {
	ID              int      `json:"id"`
	Enabled         bool     `json:"enabled"`
	Group           Group    `json:"group"`
	Momentary       string   `json:"momentary"`
	Offset          int      `json:"offset"`
	PerDelayMs      int      `json:"perDelayMs"`
	LastDeliveredMl *float64 `json:"lastDeliveredMl"`
	Deviation       *float64 `json:"deviation"`
	Status          Status   `json:"status"`
	PulsesPerCycle  int      `json:"pulsesPerCycle"`
	PulsesPerLiter  int      `json:"pulsesPerLiter"`
	MsPerMl         float64  `json:"msPerMl"`
	Mode            UnitMode `json:"mode"`

	// Fields written by a newer schema are preserved across load/save.
	Extra map[string]json.RawMessage `json:"-"`
}

// State is the canonical client-side view of the whole rig. One instance
// exists per process, owned by Store.
type State struct {
	TargetMl     float64                 `json:"targetMl"`
	Running      bool                    `json:"running"`
	DeliveryMode DeliveryMode            `json:"deliveryMode"`
	Momentary    map[string]MomentaryCfg `json:"momentary"`
	Tramline     map[int]bool            `json:"tramline"`
	TramPresets  TramPresets             `json:"tramPresets"`
	Buzzer       Buzzer                  `json:"buzzer"`
	AutoDelay    AutoDelay               `json:"autoDelay"`
	Units        []UnitConfig            `json:"units"`
	EventLog     []LogEntry              `json:"eventLog"`
	LogPage      int                     `json:"logPage"`
	Simulation   bool                    `json:"simulation"`
	Lang         string                  `json:"lang"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Unit returns a pointer into Units for the given id, or nil.
func (s *State) Unit(id int) *UnitConfig {
	for i := range s.Units {
		if s.Units[i].ID == id {
			return &s.Units[i]
		}
	}
	return nil
}

// EffectiveMode resolves a unit's delivery strategy against the global one.
func (s *State) EffectiveMode(u *UnitConfig) DeliveryMode {
	switch u.Mode {
	case UnitFlow:
		return ModeFlow
	case UnitTimed:
		return ModeTimed
	default:
		return s.DeliveryMode
	}
}

// TramlineOff reports whether a unit is temporarily forced off.
func (s *State) TramlineOff(id int) bool {
	return s.Tramline[id]
}

var (
	stateKeys = jsonKeys(reflect.TypeOf(State{}))
	unitKeys  = jsonKeys(reflect.TypeOf(UnitConfig{}))
)

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		for j := 0; j < len(tag); j++ {
			if tag[j] == ',' {
				tag = tag[:j]
				break
			}
		}
		keys[tag] = struct{}{}
	}
	return keys
}

func splitUnknown(data []byte, known map[string]struct{}) map[string]json.RawMessage {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func mergeUnknown(base []byte, extra map[string]json.RawMessage, known map[string]struct{}) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := known[k]; ok {
			continue
		}
		m[k] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes on top of compiled-in defaults so fields absent
// from an older schema keep their default values, and stashes unknown
// fields so a newer schema survives a load/save round trip.
func (s *State) UnmarshalJSON(data []byte) error {
	type alias State
	a := alias(*Default())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Extra = splitUnknown(data, stateKeys)
	*s = State(a)
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	type alias State
	base, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	return mergeUnknown(base, s.Extra, stateKeys)
}

func (u *UnitConfig) UnmarshalJSON(data []byte) error {
	type alias UnitConfig
	a := alias(defaultUnitAny())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Extra = splitUnknown(data, unitKeys)
	*u = UnitConfig(a)
	return nil
}

func (u UnitConfig) MarshalJSON() ([]byte, error) {
	type alias UnitConfig
	base, err := json.Marshal(alias(u))
	if err != nil {
		return nil, err
	}
	return mergeUnknown(base, u.Extra, unitKeys)
}
