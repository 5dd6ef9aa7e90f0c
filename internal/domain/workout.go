package domain

import "time"

// SourceWearable marks records ingested from the physiological platform.
const SourceWearable = "wearable"

// ZoneMinutes holds time spent per heart-rate zone, index 0 is Z0 and index 5 is Z5.
type ZoneMinutes [6]float64

// HighIntensity returns minutes spent in Z4 and above.
func (z ZoneMinutes) HighIntensity() float64 {
	return z[4] + z[5]
}

// Dominant returns the zone index with the most time, preferring the higher zone on ties.
func (z ZoneMinutes) Dominant() int {
	best := 0
	for i := 1; i < len(z); i++ {
		if z[i] >= z[best] && z[i] > 0 {
			best = i
		}
	}
	return best
}

// WorkoutRecord is a physiological workout owned by the external workout store.
type WorkoutRecord struct {
	ID           string
	UserID       string
	Start        time.Time
	End          time.Time
	ActivityType string
	Zones        ZoneMinutes
	Strain       float64
	Source       string
}

// Duration reports the recorded length of the workout.
func (w WorkoutRecord) Duration() time.Duration {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// DurationMinutes is Duration rounded down to whole minutes.
func (w WorkoutRecord) DurationMinutes() int {
	return int(w.Duration() / time.Minute)
}

// Contains reports whether ts falls inside [Start, End].
func (w WorkoutRecord) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}
