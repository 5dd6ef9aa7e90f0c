package planner

import (
	"math"
	"sort"
	"strings"
	"time"

	"example.com/coach/internal/domain"
)

// Constraint names recorded on rejected verdicts.
const (
	ConstraintEquipment = "equipment"
	ConstraintPain      = "pain"
	ConstraintLegPain   = "leg_pain"
	ConstraintSoreness  = "soreness"
	ConstraintZ4Limit   = "z4_limit"
	ConstraintZ4Spacing = "z4_spacing"
	ConstraintHeavyLegs = "heavy_legs"
)

// Verdict is the engine's decision for one session type on one day.
type Verdict struct {
	Type       SessionType `json:"type"`
	Accepted   bool        `json:"accepted"`
	Constraint string      `json:"constraint,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Benefit    float64     `json:"benefit"`
	Cost       float64     `json:"cost"`
	Net        float64     `json:"net"`
	// DaysSince is -1 when the type does not appear in history.
	DaysSince int `json:"days_since"`
}

// Day is the per-day input to the engine.
type Day struct {
	// Date is the calendar day being planned (UTC midnight).
	Date time.Time
	// At is the instant the day is evaluated from; history at or after At is ignored.
	At        time.Time
	Signal    *domain.RecoverySignal
	Equipment EquipmentProfile
}

// Engine applies hard constraints and soft scoring to a catalogue.
type Engine struct {
	w Weights
}

// NewEngine builds an Engine with the given weights.
func NewEngine(w Weights) *Engine {
	return &Engine{w: w}
}

// Weights returns the coefficients the engine uses.
func (e *Engine) Weights() Weights {
	return e.w
}

// Evaluate returns one verdict per type: accepted types first, best net score first,
// then rejected types in catalogue order. No type is ever dropped.
func (e *Engine) Evaluate(types []SessionType, history History, day Day) []Verdict {
	at := day.At
	if at.IsZero() {
		at = day.Date
	}
	st := history.stats(at, day.Date, e.w.WindowDays)

	var soreness int
	var pain, legPain bool
	recovery := e.w.DefaultRecoveryPct
	if sig := day.Signal; sig != nil {
		if sig.HasSoreness {
			soreness = sig.Soreness
			pain = sig.HasPain()
			legPain = e.hasLegPain(sig.PainFlags)
		}
		if sig.HasRecovery {
			recovery = sig.RecoveryPct
		}
	}

	accepted := make([]Verdict, 0, len(types))
	rejected := make([]Verdict, 0)
	for _, t := range types {
		v := Verdict{Type: t, DaysSince: daysSince(st.lastByType, t.ID, day.Date)}
		if constraint, reason := e.exclude(t, st, at, day.Equipment, soreness, pain, legPain); constraint != "" {
			v.Constraint = constraint
			v.Reason = reason
			rejected = append(rejected, v)
			continue
		}
		v.Accepted = true
		v.Benefit, v.Cost = e.score(t, st, recovery, soreness, v.DaysSince)
		v.Net = v.Benefit - v.Cost
		accepted = append(accepted, v)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if a.Net != b.Net {
			return a.Net > b.Net
		}
		if va, vb := varietyRank(a.DaysSince), varietyRank(b.DaysSince); va != vb {
			return va > vb
		}
		return a.Type.ID < b.Type.ID
	})

	return append(accepted, rejected...)
}

// exclude evaluates hard constraints in order and returns the first that applies.
func (e *Engine) exclude(t SessionType, st windowStats, at time.Time, equipment EquipmentProfile, soreness int, pain, legPain bool) (string, string) {
	if !equipment.Allows(t.Equipment) {
		return ConstraintEquipment, "equipment unavailable"
	}
	if pain && t.HighIntensity {
		return ConstraintPain, "pain reported"
	}
	if legPain && t.Impact == ImpactHigh {
		return ConstraintLegPain, "leg pain reported: no high-impact sessions"
	}
	if soreness > e.w.SorenessCeiling && t.EccentricHeavy {
		return ConstraintSoreness, "soreness ceiling exceeded"
	}
	if !t.HighIntensity {
		return "", ""
	}
	if st.highIntensityMin > e.w.Z4CapMinutes || (e.w.MaxHighIntensitySessions > 0 && st.highIntensitySessions >= e.w.MaxHighIntensitySessions) {
		return ConstraintZ4Limit, "Z4 limit reached for the trailing window"
	}
	if !st.lastHighIntensity.IsZero() && at.Sub(st.lastHighIntensity).Hours() < e.w.MinHoursBetweenHighIntensity {
		return ConstraintZ4Spacing, "Z4 spacing: too soon after the last high-intensity session"
	}
	if st.legHeavyYesterday {
		return ConstraintHeavyLegs, "heavy leg load yesterday"
	}
	return "", ""
}

func (e *Engine) score(t SessionType, st windowStats, recovery float64, soreness, days int) (float64, float64) {
	benefit := t.BaseBenefit * e.w.RecoveryMultiplier(recovery)
	if e.w.isPreferred(t.ID) {
		benefit *= e.w.PreferredBonus
	}
	variety := e.w.VarietyCapDays
	if days >= 0 && days < variety {
		variety = days
	}
	benefit += e.w.VarietyPoints * float64(variety)

	strainMult := 1.0
	if e.w.StrainScale > 0 {
		strainMult += math.Max(0, st.yesterdayStrain-e.w.StrainThreshold) / e.w.StrainScale
	}
	loadMult := 1.0
	if e.w.LoadReference > 0 {
		loadMult += e.w.LoadCostFactor * st.strain / e.w.LoadReference
	}
	cost := t.BaseCost * (1 + float64(soreness)*e.w.SorenessCostFactor) * strainMult * loadMult
	if recovery < e.w.LowRecoveryPct && t.Impact == ImpactHigh {
		cost *= e.w.LowRecoveryImpactPenalty
	}

	if e.w.Z4CapMinutes > 0 {
		pressure := math.Min(1, st.highIntensityMin/e.w.Z4CapMinutes)
		share := e.w.LowIntensityPressureShare
		if t.HighIntensity {
			share = 1
		}
		cost += e.w.PressureCostPoints * pressure * share
	}
	return benefit, cost
}

func (e *Engine) hasLegPain(flags []string) bool {
	for _, f := range flags {
		for _, loc := range e.w.LegPainLocations {
			if strings.Contains(f, loc) {
				return true
			}
		}
	}
	return false
}

func daysSince(last map[string]time.Time, typeID string, day time.Time) int {
	ts, ok := last[typeID]
	if !ok {
		return -1
	}
	d := int(day.Sub(domain.DateOf(ts)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// varietyRank orders never-performed types ahead of any performed ones.
func varietyRank(days int) int {
	if days < 0 {
		return math.MaxInt32
	}
	return days
}
