package state

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CornwallCorndog/Even-Crop/controller/storage"
)

const (
	Bucket        = "state"
	ProfileBucket = "profiles"
	stateKey      = "current"

	maxEventLog = 100
)

// Store owns the process-wide State. All reads and mutations go through
// View/Update so a preemptive runtime stays as safe as the original
// single-threaded one. Every Update persists before returning; a storage
// failure is logged and the in-memory state stays authoritative.
type Store struct {
	mu    sync.Mutex
	db    storage.Store
	state *State
}

// NewStore ensures buckets exist and loads the persisted state, falling
// back to defaults when the blob is absent or corrupt.
func NewStore(db storage.Store) (*Store, error) {
	for _, b := range []string{Bucket, ProfileBucket} {
		if err := db.CreateBucket(b); err != nil {
			return nil, err
		}
	}
	s := &Store{db: db}
	s.load()
	return s, nil
}

func (s *Store) load() {
	st := Default()
	var raw json.RawMessage
	if err := s.db.Get(Bucket, stateKey, &raw); err == nil {
		loaded := new(State)
		if err := json.Unmarshal(raw, loaded); err != nil {
			logrus.WithError(err).Warn("state: persisted blob unreadable, using defaults")
		} else {
			st = loaded
		}
	}
	s.state = Migrate(st)
	s.persist()
}

func (s *Store) persist() {
	if err := s.db.Put(Bucket, stateKey, s.state); err != nil {
		logrus.WithError(err).Warn("state: save failed")
	}
}

// View runs fn with the state under the store lock. fn must not retain
// the pointer.
func (s *Store) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Update runs fn with the state under the store lock, then persists.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
	s.persist()
}

// Snapshot returns a deep copy of the current state via a JSON round trip.
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.state)
	if err != nil {
		logrus.WithError(err).Warn("state: snapshot failed")
		return Default()
	}
	out := new(State)
	if err := json.Unmarshal(data, out); err != nil {
		logrus.WithError(err).Warn("state: snapshot failed")
		return Default()
	}
	return out
}

// LogEvent appends a capped event-log entry and persists.
func (s *Store) LogEvent(msg string) {
	s.Update(func(st *State) {
		st.EventLog = append(st.EventLog, LogEntry{T: time.Now().UnixMilli(), Msg: msg})
		if len(st.EventLog) > maxEventLog {
			st.EventLog = st.EventLog[len(st.EventLog)-maxEventLog:]
		}
	})
}

// Reset discards the persisted state and reinstalls defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Default()
	s.persist()
}
