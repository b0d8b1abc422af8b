package state

// Migrate normalizes a loaded state in place and returns it. The pass is
// additive and idempotent: absent or nonsensical values are replaced with
// defaults, legal values are never rewritten, and fields it does not know
// about are left alone.
func Migrate(s *State) *State {
	if s.TargetMl < 0 {
		s.TargetMl = 0
	}
	if s.DeliveryMode != ModeFlow && s.DeliveryMode != ModeTimed {
		s.DeliveryMode = ModeFlow
	}
	if s.Momentary == nil {
		s.Momentary = map[string]MomentaryCfg{}
	}
	for _, name := range []string{"M1", "M2", "M3"} {
		m, ok := s.Momentary[name]
		if !ok {
			m = MomentaryCfg{Enabled: name == "M1"}
		}
		m.Offset = clampInt(m.Offset, 0, 100)
		s.Momentary[name] = m
	}
	if s.Tramline == nil {
		s.Tramline = map[int]bool{}
	}
	// Drop stale false entries so "is anything off" is a length check.
	for id, off := range s.Tramline {
		if !off {
			delete(s.Tramline, id)
		}
	}
	if s.TramPresets.Left == nil {
		s.TramPresets.Left = []int{}
	}
	if s.TramPresets.Right == nil {
		s.TramPresets.Right = []int{}
	}
	if s.TramPresets.Active != SideLeft && s.TramPresets.Active != SideRight {
		s.TramPresets.Active = SideNone
	}
	if s.AutoDelay.ManualMs < 0 {
		s.AutoDelay.ManualMs = 0
	}
	if s.AutoDelay.GeomLeadMs < 0 {
		s.AutoDelay.GeomLeadMs = 0
	}
	if s.AutoDelay.CurrentMs <= 0 {
		s.AutoDelay.CurrentMs = s.AutoDelay.ManualMs
	}
	migrateUnits(s)
	if s.EventLog == nil {
		s.EventLog = []LogEntry{}
	}
	if len(s.EventLog) > maxEventLog {
		s.EventLog = s.EventLog[len(s.EventLog)-maxEventLog:]
	}
	return s
}

func migrateUnits(s *State) {
	// Pad or truncate to exactly UnitCount channels, ids 1..UnitCount.
	for i := len(s.Units); i < UnitCount; i++ {
		s.Units = append(s.Units, defaultUnit(i))
	}
	s.Units = s.Units[:UnitCount]

	for i := range s.Units {
		u := &s.Units[i]
		u.ID = i + 1
		if u.Group != GroupA && u.Group != GroupB {
			u.Group = defaultUnit(i).Group
		}
		switch u.Momentary {
		case "None", "M1", "M2", "M3":
		default:
			u.Momentary = "M1"
		}
		u.Offset = clampInt(u.Offset, 0, 100)
		u.PerDelayMs = ClampPerDelay(u.Group, u.PerDelayMs, s.AutoDelay.CurrentMs)
		switch u.Status {
		case StatusOK, StatusWarn, StatusInspect, StatusBlocked:
		default:
			u.Status = StatusOK
		}
		if u.PulsesPerCycle < 1 {
			u.PulsesPerCycle = defaultPulsesPerCycle
		}
		if u.PulsesPerLiter < 1 {
			u.PulsesPerLiter = defaultPulsesPerLiter
		}
		if u.MsPerMl < 0.1 {
			u.MsPerMl = defaultMsPerMl
		}
		switch u.Mode {
		case UnitInherit, UnitFlow, UnitTimed:
		default:
			u.Mode = UnitInherit
		}
	}
}

// ClampPerDelay bounds a per-unit delay to its group invariant: group A
// never fires early, group B may lead by at most the live Diamond delay.
func ClampPerDelay(group Group, ms, currentAutoDelayMs int) int {
	floor := 0
	if group == GroupB {
		floor = -currentAutoDelayMs
		if floor > 0 {
			floor = 0
		}
	}
	if ms < floor {
		return floor
	}
	return ms
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
