package matching

import "time"

// Config holds the matcher and resolver tunables. Every field is exposed through the
// tuning file so thresholds can be swept without code changes.
type Config struct {
	// MatchWindow is the half-width of the search window around the logged timestamp.
	MatchWindow time.Duration `yaml:"match_window"`
	// RetryWindow replaces MatchWindow when the user explicitly retries.
	RetryWindow time.Duration `yaml:"retry_window"`
	// StoreTimeout bounds every workout store read.
	StoreTimeout time.Duration `yaml:"store_timeout"`
	// ConfidentDelta is the strict sub-window under which a lone candidate is auto-attributed.
	ConfidentDelta time.Duration `yaml:"confident_delta"`
	// ClosenessMinutes is the score spread under which candidates count as comparable.
	ClosenessMinutes float64 `yaml:"closeness_minutes"`

	// ElapsedPointsPerHour adds NeedMoreInfo points per hour spent unattributed.
	ElapsedPointsPerHour float64 `yaml:"elapsed_points_per_hour"`
	// ElapsedMaxPoints caps the elapsed-time contribution.
	ElapsedMaxPoints float64 `yaml:"elapsed_max_points"`
	// AmbiguousActivityPoints is added when the hint is an ambiguity-prone activity.
	AmbiguousActivityPoints float64 `yaml:"ambiguous_activity_points"`
	// ContactActivityPoints is added for contact or impact sports (not cumulative with the above).
	ContactActivityPoints float64 `yaml:"contact_activity_points"`
	// NoCandidatePoints is added when the store returned nothing at all.
	NoCandidatePoints float64 `yaml:"no_candidate_points"`
	// QuestionThreshold is the score at or above which a clarifying question is sent.
	QuestionThreshold float64 `yaml:"question_threshold"`

	// AmbiguousActivities are hint keywords whose signature overlaps several record shapes.
	AmbiguousActivities []string `yaml:"ambiguous_activities"`
	// ContactActivities are hint keywords for contact and impact sports.
	ContactActivities []string `yaml:"contact_activities"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MatchWindow:             3 * time.Hour,
		RetryWindow:             4*time.Hour + 30*time.Minute,
		StoreTimeout:            3 * time.Second,
		ConfidentDelta:          10 * time.Minute,
		ClosenessMinutes:        15,
		ElapsedPointsPerHour:    0.5,
		ElapsedMaxPoints:        3,
		AmbiguousActivityPoints: 2,
		ContactActivityPoints:   1,
		NoCandidatePoints:       1,
		QuestionThreshold:       3.5,
		AmbiguousActivities: []string{
			"ski", "cross country", "cross-country", "hiking", "hike", "rucking",
			"snowboard", "climbing", "mountain biking", "obstacle", "parkour",
		},
		ContactActivities: []string{
			"basketball", "soccer", "football", "rugby", "martial", "boxing",
			"kickbox", "wrestling", "jiu jitsu", "hiit", "jump",
		},
	}
}
