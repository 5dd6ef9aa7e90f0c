// Package planner turns recovery signals and recent training history into a ranked
// multi-day training plan under hard safety constraints and soft benefit/cost scoring.
package planner

// Weights holds every coefficient used by the constraint engine and plan generator.
// Field comments describe the effect of raising the value.
type Weights struct {
	// Hard constraints.

	// SorenessCeiling excludes eccentric-heavy types when soreness is strictly above it.
	SorenessCeiling int `yaml:"soreness_ceiling"`
	// WindowDays is the trailing window for load and high-intensity accounting.
	WindowDays int `yaml:"window_days"`
	// Z4CapMinutes caps Z4+Z5 minutes inside the window before high-intensity types are excluded.
	Z4CapMinutes float64 `yaml:"z4_cap_minutes"`
	// MaxHighIntensitySessions caps high-intensity sessions inside the window.
	MaxHighIntensitySessions int `yaml:"max_high_intensity_sessions"`
	// MinHoursBetweenHighIntensity is the minimum spacing between high-intensity sessions.
	MinHoursBetweenHighIntensity float64 `yaml:"min_hours_between_high_intensity"`
	// HighIntensitySessionMinutes is the Z4+Z5 time that makes a recorded workout count as high intensity.
	HighIntensitySessionMinutes float64 `yaml:"high_intensity_session_minutes"`
	// LegPainLocations are pain flags that exclude high-impact types.
	LegPainLocations []string `yaml:"leg_pain_locations"`

	// Benefit.

	// DefaultRecoveryPct stands in when no recovery score is known for the day.
	DefaultRecoveryPct float64 `yaml:"default_recovery_pct"`
	// HighRecoveryPct and LowRecoveryPct bound the three recovery multiplier bands.
	HighRecoveryPct float64 `yaml:"high_recovery_pct"`
	LowRecoveryPct  float64 `yaml:"low_recovery_pct"`
	// VarietyPoints is added per day since the type was last performed, up to VarietyCapDays.
	VarietyPoints  float64 `yaml:"variety_points"`
	VarietyCapDays int     `yaml:"variety_cap_days"`
	// PreferredBonus multiplies the benefit of PreferredTypes.
	PreferredBonus float64  `yaml:"preferred_bonus"`
	PreferredTypes []string `yaml:"preferred_types"`

	// Cost.

	// SorenessCostFactor scales cost by 1 + soreness*factor.
	SorenessCostFactor float64 `yaml:"soreness_cost_factor"`
	// StrainThreshold and StrainScale shape the yesterday-strain multiplier.
	StrainThreshold float64 `yaml:"strain_threshold"`
	StrainScale     float64 `yaml:"strain_scale"`
	// LoadCostFactor and LoadReference scale cost by cumulative strain in the window.
	LoadCostFactor float64 `yaml:"load_cost_factor"`
	LoadReference  float64 `yaml:"load_reference"`
	// ExertionLoadPerMinute converts exertion*minutes into strain when a record carries none.
	ExertionLoadPerMinute float64 `yaml:"exertion_load_per_minute"`
	// PressureCostPoints is added in proportion to the Z4 cap already used.
	PressureCostPoints float64 `yaml:"pressure_cost_points"`
	// LowIntensityPressureShare is the share of pressure cost applied to non high-intensity types.
	LowIntensityPressureShare float64 `yaml:"low_intensity_pressure_share"`
	// LowRecoveryImpactPenalty multiplies high-impact cost below LowRecoveryPct.
	LowRecoveryImpactPenalty float64 `yaml:"low_recovery_impact_penalty"`

	// Generator.

	// HorizonDays is the default number of planned days.
	HorizonDays int `yaml:"horizon_days"`
	// MaxHorizonDays bounds caller-supplied horizons.
	MaxHorizonDays int `yaml:"max_horizon_days"`
}

// DefaultWeights returns the production coefficients.
func DefaultWeights() Weights {
	return Weights{
		SorenessCeiling:              3,
		WindowDays:                   7,
		Z4CapMinutes:                 60,
		MaxHighIntensitySessions:     2,
		MinHoursBetweenHighIntensity: 48,
		HighIntensitySessionMinutes:  10,
		LegPainLocations:             []string{"knee", "calf", "thigh", "hip", "ankle", "shin", "hamstring", "quad"},

		DefaultRecoveryPct: 50,
		HighRecoveryPct:    67,
		LowRecoveryPct:     33,
		VarietyPoints:      0.15,
		VarietyCapDays:     7,
		PreferredBonus:     1.1,
		PreferredTypes:     []string{"run_z3_30", "run_z3_45"},

		SorenessCostFactor:        1.0 / 3.0,
		StrainThreshold:           14,
		StrainScale:               20,
		LoadCostFactor:            0.1,
		LoadReference:             70,
		ExertionLoadPerMinute:     0.05,
		PressureCostPoints:        2,
		LowIntensityPressureShare: 0.25,
		LowRecoveryImpactPenalty:  1.3,

		HorizonDays:    3,
		MaxHorizonDays: 7,
	}
}

// RecoveryMultiplier maps a recovery percentage onto the benefit multiplier bands.
func (w Weights) RecoveryMultiplier(pct float64) float64 {
	switch {
	case pct >= w.HighRecoveryPct:
		return 1 + (pct-w.HighRecoveryPct)/100
	case pct >= w.LowRecoveryPct:
		return 0.8 + (pct-w.LowRecoveryPct)/170
	default:
		return 0.6 + pct/110
	}
}

func (w Weights) isPreferred(typeID string) bool {
	for _, id := range w.PreferredTypes {
		if id == typeID {
			return true
		}
	}
	return false
}
