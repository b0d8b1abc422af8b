package bridge

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CornwallCorndog/Even-Crop/controller/state"
)

const (
	telemetryEvery = 900 * time.Millisecond
	cycleEvery     = 1500 * time.Millisecond

	maxSimDeviation = 0.05
)

// Simulator is the self-contained fallback bridge: no remote controller,
// two periodic generators emitting plausible telemetry and delivery
// cycles against the local store.
type Simulator struct {
	Dispatcher

	store *state.Store
	rng   *rand.Rand

	// test hooks; production uses the package cadence constants
	telemetryEvery time.Duration
	cycleEvery     time.Duration

	closeOnce sync.Once
	quit      chan struct{}
}

func NewSimulator(store *state.Store) *Simulator {
	return &Simulator{
		store:          store,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		telemetryEvery: telemetryEvery,
		cycleEvery:     cycleEvery,
		quit:           make(chan struct{}),
	}
}

// Start launches both generators. Stop via Close.
func (s *Simulator) Start() {
	go s.loop(s.telemetryEvery, s.tickTelemetry)
	go s.loop(s.cycleEvery, s.tickCycle)
	logrus.Info("bridge: simulation mode active")
}

func (s *Simulator) loop(every time.Duration, tick func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			tick()
		case <-s.quit:
			return
		}
	}
}

func (s *Simulator) tickTelemetry() {
	s.emitTelemetry(Telemetry{
		Flow:     round1(6 + s.rng.Float64()*4),
		Pressure: round1(1.5 + s.rng.Float64()*1.2),
		Speed:    round1(5 + s.rng.Float64()*5),
	})
}

// tickCycle fabricates one completed delivery cycle: every enabled,
// non-overridden unit gets a deviation in ±5%, a derived delivered
// volume and a banded status. Units are persisted before listeners run.
func (s *Simulator) tickCycle() {
	s.store.Update(func(st *state.State) {
		target := math.Max(1, st.TargetMl)
		for i := range st.Units {
			u := &st.Units[i]
			if !u.Enabled || st.TramlineOff(u.ID) {
				continue
			}
			dev := (s.rng.Float64()*2 - 1) * maxSimDeviation
			delivered := math.Max(0, math.Round(target*(1+dev)))
			u.LastDeliveredMl = &delivered
			d := dev
			u.Deviation = &d
			u.Status = StatusForDeviation(dev)
		}
	})
	s.emitCycle()
}

// StatusForDeviation maps a signed deviation fraction onto the fixed
// status bands.
func StatusForDeviation(dev float64) state.Status {
	switch abs := math.Abs(dev); {
	case abs <= 0.05:
		return state.StatusOK
	case abs <= 0.10:
		return state.StatusWarn
	case abs <= 0.15:
		return state.StatusInspect
	default:
		return state.StatusBlocked
	}
}

// Send has no remote side to reach; commands are accepted and dropped.
func (s *Simulator) Send(c Command) {
	logrus.Debugf("bridge(sim): command %T dropped", c)
}

func (s *Simulator) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	return nil
}

// Connect picks the operating mode for this process: live unless forced
// into simulation, with automatic fallback when the handshake fails or
// times out. The mode is fixed until restart.
func Connect(url string, forceSim bool, store *state.Store) Bridge {
	if !forceSim && url != "" {
		if live, err := Dial(url); err == nil {
			store.Update(func(st *state.State) { st.Simulation = false })
			return live
		} else {
			logrus.WithError(err).Warn("bridge: live connection failed, falling back to simulation")
		}
	}
	store.Update(func(st *state.State) { st.Simulation = true })
	sim := NewSimulator(store)
	sim.Start()
	return sim
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
