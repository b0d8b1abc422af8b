package calibration

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
)

// ParseSchedule parses an RRULE string (e.g. "FREQ=DAILY;BYHOUR=6").
// Empty string means no schedule.
func ParseSchedule(ruleStr string) (*rrule.RRule, error) {
	if ruleStr == "" {
		return nil, nil
	}
	start := time.Now().UTC().Format("20060102T150405Z")
	return rrule.StrToRRule("DTSTART=" + start + ";" + ruleStr)
}

// StartSchedule runs a maintenance flush of a unit on each recurrence of
// the rule until its quitter channel closes. Applied rigs use this to
// keep seldom-used lines from clogging between jobs.
func (f *Flush) StartSchedule(unitID int, ruleStr string, ms int) error {
	rr, err := ParseSchedule(ruleStr)
	if err != nil {
		return fmt.Errorf("flush schedule for unit %d: %w", unitID, err)
	}
	if rr == nil {
		return nil
	}
	quit := make(chan struct{})
	f.mu.Lock()
	if old, ok := f.quitters[unitID]; ok {
		close(old)
	}
	f.quitters[unitID] = quit
	f.mu.Unlock()

	go func() {
		for {
			next := rr.After(time.Now(), false)
			if next.IsZero() {
				return
			}
			select {
			case <-time.After(time.Until(next)):
				if f.Running(unitID) {
					continue
				}
				logrus.Infof("calibration: scheduled flush, unit %d", unitID)
				f.Toggle(unitID, ms)
			case <-quit:
				return
			}
		}
	}()
	return nil
}
