package state

// Compiled-in defaults. The first four units ship enabled, groups
// alternate A/B so the default layout forms a Diamond pattern.

const (
	defaultTargetMl       = 100
	defaultPulsesPerCycle = 100
	defaultPulsesPerLiter = 450
	defaultMsPerMl        = 5.0
	defaultAutoDelayMs    = 500
)

func defaultUnit(i int) UnitConfig {
	group := GroupA
	if i%2 == 1 {
		group = GroupB
	}
	return UnitConfig{
		ID:             i + 1,
		Enabled:        i < 4,
		Group:          group,
		Momentary:      "M1",
		Status:         StatusOK,
		PulsesPerCycle: defaultPulsesPerCycle,
		PulsesPerLiter: defaultPulsesPerLiter,
		MsPerMl:        defaultMsPerMl,
		Mode:           UnitInherit,
	}
}

// defaultUnitAny is the position-independent unit default used when
// decoding a unit whose index is not yet known.
func defaultUnitAny() UnitConfig {
	u := defaultUnit(0)
	u.ID = 0
	u.Enabled = true
	return u
}

// Default returns a fresh state with every field at its compiled-in value.
func Default() *State {
	units := make([]UnitConfig, UnitCount)
	for i := range units {
		units[i] = defaultUnit(i)
	}
	return &State{
		TargetMl:     defaultTargetMl,
		DeliveryMode: ModeFlow,
		Momentary: map[string]MomentaryCfg{
			"M1": {Enabled: true},
			"M2": {},
			"M3": {},
		},
		Tramline:    map[int]bool{},
		TramPresets: TramPresets{Left: []int{}, Right: []int{}},
		AutoDelay: AutoDelay{
			Enabled:   true,
			ManualMs:  defaultAutoDelayMs,
			CurrentMs: defaultAutoDelayMs,
		},
		Units:    units,
		EventLog: []LogEntry{},
	}
}
