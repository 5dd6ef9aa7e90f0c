package domain

import (
	"sort"
	"strings"
	"time"
)

// MaxSoreness is the top of the soreness scale answered in chat.
const MaxSoreness = 5

// RecoverySignal is the merged daily readiness record for one user and date.
type RecoverySignal struct {
	UserID      string
	Date        time.Time
	RecoveryPct float64
	RestingHR   float64
	HRV         float64
	Soreness    int
	PainFlags   []string
	HasRecovery bool
	HasSoreness bool
	UpdatedAt   time.Time
}

// HasPain reports whether any pain flag was answered for the day.
func (s RecoverySignal) HasPain() bool {
	return len(s.PainFlags) > 0
}

// RecoveryInput is the normalized wearable webhook record.
type RecoveryInput struct {
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date"`
	RecoveryPct float64   `json:"recovery_pct"`
	RestingHR   float64   `json:"resting_hr"`
	HRV         float64   `json:"hrv"`
}

// Validate rejects out-of-range physiological values.
func (in RecoveryInput) Validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return invalidSignal("user_id is required")
	case in.Date.IsZero():
		return invalidSignal("date is required")
	case in.RecoveryPct < 0 || in.RecoveryPct > 100:
		return invalidSignal("recovery_pct must be within 0-100")
	case in.RestingHR < 0 || in.RestingHR > 250:
		return invalidSignal("resting_hr out of range")
	case in.HRV < 0:
		return invalidSignal("hrv must not be negative")
	}
	return nil
}

// SorenessInput is the chat answer for soreness and pain on a given day.
type SorenessInput struct {
	UserID    string    `json:"user_id"`
	Date      time.Time `json:"date"`
	Soreness  int       `json:"soreness"`
	PainFlags []string  `json:"pain_flags"`
}

// Validate rejects answers outside the soreness scale.
func (in SorenessInput) Validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return invalidSignal("user_id is required")
	case in.Date.IsZero():
		return invalidSignal("date is required")
	case in.Soreness < 0 || in.Soreness > MaxSoreness:
		return invalidSignal("soreness must be within 0-5")
	}
	return nil
}

// ApplyRecovery merges the wearable half into s.
func (s RecoverySignal) ApplyRecovery(in RecoveryInput) RecoverySignal {
	s.UserID = in.UserID
	s.Date = DateOf(in.Date)
	s.RecoveryPct = in.RecoveryPct
	s.RestingHR = in.RestingHR
	s.HRV = in.HRV
	s.HasRecovery = true
	return s
}

// ApplySoreness merges the chat half into s.
func (s RecoverySignal) ApplySoreness(in SorenessInput) RecoverySignal {
	s.UserID = in.UserID
	s.Date = DateOf(in.Date)
	s.Soreness = in.Soreness
	s.PainFlags = NormalizeFlags(in.PainFlags)
	s.HasSoreness = true
	return s
}

// Merge overlays the halves carried by newer onto s. A half that newer does not carry
// keeps the stored values, so the wearable and chat writers never clobber each other.
func (s RecoverySignal) Merge(newer RecoverySignal) RecoverySignal {
	out := s
	out.UserID = newer.UserID
	out.Date = DateOf(newer.Date)
	if newer.HasRecovery {
		out.RecoveryPct = newer.RecoveryPct
		out.RestingHR = newer.RestingHR
		out.HRV = newer.HRV
		out.HasRecovery = true
	}
	if newer.HasSoreness {
		out.Soreness = newer.Soreness
		out.PainFlags = newer.PainFlags
		out.HasSoreness = true
	}
	out.UpdatedAt = newer.UpdatedAt
	return out
}

// Validate checks a merged signal before it is used for planning.
func (s RecoverySignal) Validate() error {
	if s.HasRecovery {
		if err := (RecoveryInput{UserID: s.UserID, Date: s.Date, RecoveryPct: s.RecoveryPct, RestingHR: s.RestingHR, HRV: s.HRV}).Validate(); err != nil {
			return err
		}
	}
	if s.HasSoreness {
		if err := (SorenessInput{UserID: s.UserID, Date: s.Date, Soreness: s.Soreness}).Validate(); err != nil {
			return err
		}
	}
	if !s.HasRecovery && !s.HasSoreness {
		return invalidSignal("signal carries neither recovery nor soreness data")
	}
	return nil
}

// DateOf truncates ts to a UTC calendar date.
func DateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeFlags lowercases, trims, deduplicates and sorts pain flags.
func NormalizeFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(flags))
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		clean := strings.ToLower(strings.TrimSpace(f))
		if clean == "" || clean == "none" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func invalidSignal(detail string) error {
	return &detailError{base: ErrInvalidSignal, detail: detail}
}
