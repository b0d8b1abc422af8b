package state

import (
	"fmt"
	"sort"
	"strings"
)

// Profile is the persistent-configuration subset of State: enough to
// reproduce behavior on another rig, nothing transient. Tramline
// overrides, presets, the event log and runtime status fields stay out.
type Profile struct {
	TargetMl     float64                 `json:"targetMl"`
	DeliveryMode DeliveryMode            `json:"deliveryMode"`
	Momentary    map[string]MomentaryCfg `json:"momentary"`
	AutoDelay    AutoDelay               `json:"autoDelay"`
	Units        []UnitConfig            `json:"units"`
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '-', c == '_', c == ' ', c == '.':
			b.WriteRune(c)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "profile"
	}
	return out
}

func profileOf(st *State) Profile {
	units := make([]UnitConfig, len(st.Units))
	copy(units, st.Units)
	for i := range units {
		units[i].LastDeliveredMl = nil
		units[i].Deviation = nil
		units[i].Status = StatusOK
	}
	mom := make(map[string]MomentaryCfg, len(st.Momentary))
	for k, v := range st.Momentary {
		mom[k] = v
	}
	return Profile{
		TargetMl:     st.TargetMl,
		DeliveryMode: st.DeliveryMode,
		Momentary:    mom,
		AutoDelay:    st.AutoDelay,
		Units:        units,
	}
}

// SaveProfile captures the current configuration under name.
func (s *Store) SaveProfile(name string) error {
	var p Profile
	s.View(func(st *State) { p = profileOf(st) })
	return s.db.Put(ProfileBucket, sanitizeName(name), &p)
}

// LoadProfile reads a stored profile without applying it.
func (s *Store) LoadProfile(name string) (Profile, error) {
	var p Profile
	if err := s.db.Get(ProfileBucket, sanitizeName(name), &p); err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", name, err)
	}
	return p, nil
}

// ApplyProfile merges a stored profile into the live state. Tramline
// overrides, presets and the event log are left intact; the merged state
// is migrated so unit invariants hold against the live Diamond delay.
func (s *Store) ApplyProfile(name string) error {
	p, err := s.LoadProfile(name)
	if err != nil {
		return err
	}
	s.Update(func(st *State) {
		st.TargetMl = p.TargetMl
		st.DeliveryMode = p.DeliveryMode
		if p.Momentary != nil {
			st.Momentary = p.Momentary
		}
		st.AutoDelay = p.AutoDelay
		if p.Units != nil {
			st.Units = p.Units
		}
		Migrate(st)
	})
	s.LogEvent("Profile applied: " + sanitizeName(name))
	return nil
}

// ListProfiles returns stored profile names, sorted.
func (s *Store) ListProfiles() []string {
	var names []string
	if err := s.db.List(ProfileBucket, func(id string, _ []byte) error {
		names = append(names, id)
		return nil
	}); err != nil {
		return nil
	}
	sort.Strings(names)
	return names
}

// DeleteProfile removes a stored profile.
func (s *Store) DeleteProfile(name string) error {
	return s.db.Delete(ProfileBucket, sanitizeName(name))
}
