package planner

import (
	"strings"

	"example.com/coach/internal/domain"
)

// Impact grades mechanical load on joints.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Equipment is what a session type needs.
type Equipment string

const (
	EquipmentNone       Equipment = "none"
	EquipmentKettlebell Equipment = "kettlebell"
	EquipmentBands      Equipment = "bands"
)

// EquipmentProfile describes what the user has access to on a given day.
type EquipmentProfile string

const (
	ProfileHomeFull    EquipmentProfile = "home_full"
	ProfileTravelBands EquipmentProfile = "travel_bands"
	ProfileTravelNone  EquipmentProfile = "travel_none"
)

// Allows reports whether equipment is available under the profile. Unknown profiles allow everything.
func (p EquipmentProfile) Allows(e Equipment) bool {
	switch p {
	case ProfileTravelBands:
		return e != EquipmentKettlebell
	case ProfileTravelNone:
		return e == EquipmentNone
	default:
		return true
	}
}

// SessionType is one recommendable kind of training session.
type SessionType struct {
	ID             string    `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	Family         string    `json:"family" yaml:"family"`
	Equipment      Equipment `json:"equipment" yaml:"equipment"`
	Impact         Impact    `json:"impact" yaml:"impact"`
	HighIntensity  bool      `json:"high_intensity" yaml:"high_intensity"`
	EccentricHeavy bool      `json:"eccentric_heavy" yaml:"eccentric_heavy"`
	LegHeavy       bool      `json:"leg_heavy" yaml:"leg_heavy"`
	BaseBenefit    float64   `json:"base_benefit" yaml:"base_benefit"`
	BaseCost       float64   `json:"base_cost" yaml:"base_cost"`
	DurationMin    int       `json:"duration_min" yaml:"duration_min"`

	// ExpectedZ4Min and ExpectedStrain are used when a recommendation is projected into history.
	ExpectedZ4Min  float64 `json:"expected_z4_min" yaml:"expected_z4_min"`
	ExpectedStrain float64 `json:"expected_strain" yaml:"expected_strain"`
}

// DefaultCatalogue returns the built-in session types.
func DefaultCatalogue() []SessionType {
	return []SessionType{
		{ID: "run_z2_30", Name: "Easy run Z2, 30 min", Family: "run", Equipment: EquipmentNone, Impact: ImpactHigh, LegHeavy: true, BaseBenefit: 5, BaseCost: 3, DurationMin: 30, ExpectedStrain: 7},
		{ID: "run_z3_30", Name: "Tempo run Z3, 30 min", Family: "run", Equipment: EquipmentNone, Impact: ImpactHigh, LegHeavy: true, BaseBenefit: 7, BaseCost: 5, DurationMin: 30, ExpectedZ4Min: 3, ExpectedStrain: 10},
		{ID: "run_z3_45", Name: "Tempo run Z3, 45 min", Family: "run", Equipment: EquipmentNone, Impact: ImpactHigh, LegHeavy: true, BaseBenefit: 8, BaseCost: 6.5, DurationMin: 45, ExpectedZ4Min: 5, ExpectedStrain: 12},
		{ID: "run_z4_20", Name: "Quality run Z4, 20 min", Family: "run", Equipment: EquipmentNone, Impact: ImpactHigh, HighIntensity: true, EccentricHeavy: true, LegHeavy: true, BaseBenefit: 9, BaseCost: 8, DurationMin: 20, ExpectedZ4Min: 20, ExpectedStrain: 13},
		{ID: "hiit_20", Name: "HIIT intervals, 20 min", Family: "hiit", Equipment: EquipmentNone, Impact: ImpactHigh, HighIntensity: true, EccentricHeavy: true, LegHeavy: true, BaseBenefit: 8.5, BaseCost: 7.5, DurationMin: 20, ExpectedZ4Min: 12, ExpectedStrain: 12},
		{ID: "kb_12", Name: "Kettlebell 12 kg", Family: "kettlebell", Equipment: EquipmentKettlebell, Impact: ImpactMedium, BaseBenefit: 6, BaseCost: 4, DurationMin: 30, ExpectedStrain: 8},
		{ID: "kb_20", Name: "Kettlebell 20 kg", Family: "kettlebell", Equipment: EquipmentKettlebell, Impact: ImpactMedium, EccentricHeavy: true, LegHeavy: true, BaseBenefit: 7.5, BaseCost: 6, DurationMin: 30, ExpectedStrain: 11},
		{ID: "lower_body_strength", Name: "Lower-body strength", Family: "strength", Equipment: EquipmentNone, Impact: ImpactMedium, EccentricHeavy: true, LegHeavy: true, BaseBenefit: 7, BaseCost: 5.5, DurationMin: 40, ExpectedStrain: 10},
		{ID: "bands_strength", Name: "Band strength", Family: "bands", Equipment: EquipmentBands, Impact: ImpactLow, BaseBenefit: 5.5, BaseCost: 3.5, DurationMin: 30, ExpectedStrain: 6},
		{ID: "bodyweight_strength", Name: "Bodyweight strength", Family: "bodyweight", Equipment: EquipmentNone, Impact: ImpactLow, BaseBenefit: 5, BaseCost: 3, DurationMin: 30, ExpectedStrain: 6},
		{ID: "barre", Name: "Barre", Family: "barre", Equipment: EquipmentNone, Impact: ImpactLow, BaseBenefit: 5, BaseCost: 2.5, DurationMin: 45, ExpectedStrain: 6},
		{ID: "mobility", Name: "Mobility and stretching", Family: "mobility", Equipment: EquipmentNone, Impact: ImpactLow, BaseBenefit: 3, BaseCost: 0.5, DurationMin: 30, ExpectedStrain: 2},
		{ID: "walking", Name: "Walk", Family: "walking", Equipment: EquipmentNone, Impact: ImpactLow, BaseBenefit: 2, BaseCost: 0.5, DurationMin: 30, ExpectedStrain: 3},
	}
}

// familyKeywords maps activity keywords onto a catalogue family. Order matters: the first match wins.
var familyKeywords = []struct {
	family   string
	keywords []string
}{
	{"hiit", []string{"hiit", "interval", "crossfit", "functional", "bootcamp"}},
	{"kettlebell", []string{"kettlebell", "kb "}},
	{"bands", []string{"band"}},
	{"barre", []string{"barre", "pilates"}},
	{"mobility", []string{"yoga", "mobility", "stretch"}},
	{"walking", []string{"walk", "hike", "hiking", "rucking"}},
	{"bodyweight", []string{"bodyweight", "calisthenics"}},
	{"strength", []string{"strength", "weight", "squat", "lift", "leg day"}},
	{"run", []string{"run", "jog", "treadmill"}},
}

// Classify maps a recorded workout, optionally with the user's activity hint, onto a
// catalogue type id. It returns "" when nothing fits.
func Classify(w domain.WorkoutRecord, hint string, hiThreshold float64) string {
	family := familyOf(w.ActivityType)
	if family == "" {
		family = familyOf(hint)
	}

	switch family {
	case "run":
		switch {
		case w.Zones.HighIntensity() >= hiThreshold || w.Zones.Dominant() >= 4:
			return "run_z4_20"
		case w.Zones.Dominant() == 3 && w.DurationMinutes() > 40:
			return "run_z3_45"
		case w.Zones.Dominant() == 3:
			return "run_z3_30"
		default:
			return "run_z2_30"
		}
	case "kettlebell":
		if w.Strain >= 10 {
			return "kb_20"
		}
		return "kb_12"
	case "hiit":
		return "hiit_20"
	case "strength":
		return "lower_body_strength"
	case "bands":
		return "bands_strength"
	case "bodyweight":
		return "bodyweight_strength"
	case "barre":
		return "barre"
	case "mobility":
		return "mobility"
	case "walking":
		return "walking"
	}

	if w.Zones.HighIntensity() >= hiThreshold {
		return "hiit_20"
	}
	return ""
}

func familyOf(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return ""
	}
	l += " "
	for _, fk := range familyKeywords {
		for _, kw := range fk.keywords {
			if strings.Contains(l, kw) {
				return fk.family
			}
		}
	}
	return ""
}

func typeByID(catalogue []SessionType, id string) (SessionType, bool) {
	for _, t := range catalogue {
		if t.ID == id {
			return t, true
		}
	}
	return SessionType{}, false
}
