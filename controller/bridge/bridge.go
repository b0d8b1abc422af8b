package bridge

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Bridge is the client side of the command/telemetry channel. Sends are
// fire-and-forget; notifications arrive in order on a single delivery
// queue regardless of how many listeners are registered.
type Bridge interface {
	Send(c Command)
	OnTelemetry(fn func(Telemetry))
	OnCycle(fn func())
	OnEvent(fn func(Event))
	Close() error
}

// Dispatcher holds listener registrations and fans inbound notifications
// out to them. A panicking listener is recovered and logged so the rest
// still run and the bridge survives.
type Dispatcher struct {
	mu        sync.Mutex
	telemetry []func(Telemetry)
	cycle     []func()
	event     []func(Event)
}

func (d *Dispatcher) OnTelemetry(fn func(Telemetry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.telemetry = append(d.telemetry, fn)
}

func (d *Dispatcher) OnCycle(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cycle = append(d.cycle, fn)
}

func (d *Dispatcher) OnEvent(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event = append(d.event, fn)
}

func guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("bridge: listener panic: %v", r)
		}
	}()
	fn()
}

func (d *Dispatcher) emitTelemetry(t Telemetry) {
	d.mu.Lock()
	listeners := append([]func(Telemetry){}, d.telemetry...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn := fn
		guard(func() { fn(t) })
	}
}

func (d *Dispatcher) emitCycle() {
	d.mu.Lock()
	listeners := append([]func(){}, d.cycle...)
	d.mu.Unlock()
	for _, fn := range listeners {
		guard(fn)
	}
}

func (d *Dispatcher) emitEvent(e Event) {
	d.mu.Lock()
	listeners := append([]func(Event){}, d.event...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn := fn
		guard(func() { fn(e) })
	}
}

// dispatch decodes one inbound frame by its type tag. Unknown kinds are
// ignored rather than treated as errors.
func (d *Dispatcher) dispatch(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		logrus.WithError(err).Debug("bridge: unreadable frame dropped")
		return
	}
	switch head.Type {
	case "telemetry":
		var t Telemetry
		if err := json.Unmarshal(data, &t); err != nil {
			return
		}
		d.emitTelemetry(t)
	case "cycle":
		d.emitCycle()
	case "event":
		var body struct {
			Ev    string  `json:"ev"`
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return
		}
		d.emitEvent(Event{Name: body.Ev, Value: body.Value})
	case "auto-delay":
		var body struct {
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return
		}
		d.emitEvent(Event{Name: EventAutoDelay, Value: body.Value})
	}
}
