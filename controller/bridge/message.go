package bridge

import "encoding/json"

// Outbound commands are a sum type, one variant per wire "type" value.
// Each marshals to the flat envelope the remote controller expects.
// There is no acknowledgement protocol: every send is at-most-once and
// callers reconcile from the next inbound telemetry or cycle instead.
type Command interface {
	kind() string
}

// Set updates one remote configuration key ("target", "unit-enabled",
// "unit-delay-ms", ...). Value is loosely typed on the wire.
type Set struct {
	Key   string      `json:"key"`
	ID    int         `json:"id,omitempty"`
	Value interface{} `json:"value"`
}

func (Set) kind() string { return "set" }

// Simulate toggles a remote-side simulation generator.
type Simulate struct {
	Mode string `json:"mode"`
	On   bool   `json:"on"`
}

func (Simulate) kind() string { return "simulate" }

// Tram forces one unit temporarily off (or back on).
type Tram struct {
	ID  int  `json:"id"`
	Off bool `json:"off"`
}

func (Tram) kind() string { return "tram" }

// TramClear drops every tramline override on the remote side.
type TramClear struct{}

func (TramClear) kind() string { return "tram-clear" }

// Cal drives a calibration or flush actuation on the remote side.
type Cal struct {
	Mode     string  `json:"mode"`
	Cmd      string  `json:"cmd"`
	ID       int     `json:"id"`
	Ms       int     `json:"ms,omitempty"`
	TargetMl float64 `json:"targetMl,omitempty"`
}

func (Cal) kind() string { return "cal" }

// Marshal wraps a command in its typed envelope.
func Marshal(c Command) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	m["type"], _ = json.Marshal(c.kind())
	return json.Marshal(m)
}

// Telemetry is one instantaneous reading set from the rig.
type Telemetry struct {
	Flow     float64 `json:"flow"`
	Pressure float64 `json:"pressure"`
	Speed    float64 `json:"speed"`
}

// Event is a free-form remote notification. The auto-delay report arrives
// here with Name "auto-delay" and the effective delay in Value.
type Event struct {
	Name  string
	Value float64
}

// EventAutoDelay is the Event.Name carrying the effective Diamond delay.
const EventAutoDelay = "auto-delay"
