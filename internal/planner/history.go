package planner

import (
	"sort"
	"time"
)

// HistoryEntry is one training session in the snapshot handed to the engine.
type HistoryEntry struct {
	WorkoutID        string
	SessionID        string
	TypeID           string
	Start            time.Time
	DurationMin      int
	HighIntensityMin float64
	Strain           float64
	Exertion         int
	HighIntensity    bool
	LegHeavy         bool
	Projected        bool
}

// History is a read-only, start-ordered snapshot of recent training.
type History struct {
	entries []HistoryEntry
}

// NewHistory builds a snapshot, dropping duplicate workout ids so no load is counted twice.
func NewHistory(entries []HistoryEntry) History {
	seen := make(map[string]struct{}, len(entries))
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.WorkoutID != "" {
			if _, dup := seen[e.WorkoutID]; dup {
				continue
			}
			seen[e.WorkoutID] = struct{}{}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].WorkoutID < out[j].WorkoutID
	})
	return History{entries: out}
}

// Entries returns a copy of the snapshot.
func (h History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of entries.
func (h History) Len() int {
	return len(h.entries)
}

// With returns a new snapshot with e appended; h is left untouched.
func (h History) With(e HistoryEntry) History {
	entries := make([]HistoryEntry, 0, len(h.entries)+1)
	entries = append(entries, h.entries...)
	entries = append(entries, e)
	return NewHistory(entries)
}

// windowStats aggregates what the engine needs for one day.
type windowStats struct {
	highIntensityMin      float64
	highIntensitySessions int
	strain                float64
	yesterdayStrain       float64
	lastHighIntensity     time.Time
	legHeavyYesterday     bool
	lastByType            map[string]time.Time
}

// stats summarizes entries that started before at. Load sums are restricted to the
// trailing windowDays before at; yesterday is the calendar day before dayStart.
func (h History) stats(at, dayStart time.Time, windowDays int) windowStats {
	windowStart := at.Add(-time.Duration(windowDays) * 24 * time.Hour)
	yesterday := dayStart.Add(-24 * time.Hour)

	st := windowStats{lastByType: make(map[string]time.Time)}
	for _, e := range h.entries {
		if !e.Start.Before(at) {
			continue
		}
		if e.TypeID != "" {
			if last, ok := st.lastByType[e.TypeID]; !ok || e.Start.After(last) {
				st.lastByType[e.TypeID] = e.Start
			}
		}
		if e.HighIntensity && e.Start.After(st.lastHighIntensity) {
			st.lastHighIntensity = e.Start
		}
		if !e.Start.Before(yesterday) && e.Start.Before(dayStart) {
			st.yesterdayStrain += e.Strain
			if e.LegHeavy {
				st.legHeavyYesterday = true
			}
		}
		if e.Start.Before(windowStart) {
			continue
		}
		st.highIntensityMin += e.HighIntensityMin
		st.strain += e.Strain
		if e.HighIntensity {
			st.highIntensitySessions++
		}
	}
	return st
}
